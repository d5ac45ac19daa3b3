// Package memory is an in-process core.Store used by tests, the CLI's
// dry-run mode and single-user development. Transactions change the data in
// place under the store lock and journal an undo step per change. A failed
// unit replays its journal; a committed nested unit hands its journal to the
// parent, so rolling back the parent undoes it too. A savepoint costs only
// what it changed.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/sheetbase/internal/core"
)

type seqKey struct {
	tableID int64
	column  string
}

type state struct {
	nextTableID int64
	nextRowID   int64
	nextOpID    int64
	tables      map[int64]core.TableSchema
	rows        map[int64]core.Row
	seqs        map[seqKey]int64
	ops         []core.Operation
}

func newState() *state {
	return &state{
		tables: make(map[int64]core.TableSchema),
		rows:   make(map[int64]core.Row),
		seqs:   make(map[seqKey]int64),
	}
}

// journal collects the undo steps of one transaction, oldest first.
type journal struct {
	undo []func()
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

func copyTable(t core.TableSchema) core.TableSchema {
	t.Columns = append([]core.ColumnSpec(nil), t.Columns...)
	return t
}

func copyRow(r core.Row) core.Row {
	r.Values = r.Values.Clone()
	return r
}

type shared struct {
	now    func() time.Time
	mu     sync.Mutex
	faults map[string]error
}

func (sh *shared) fault(op string) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.faults[op]
}

// queries implements core.Queries over one state. Only the root handle
// carries a lock; transaction handles are confined to the goroutine that
// holds it.
type queries struct {
	mu *sync.Mutex
	st *state
	sh *shared
	j  *journal
}

// Store is the root handle.
type Store struct {
	*queries
}

var _ core.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{queries: &queries{
		mu: &sync.Mutex{},
		st: newState(),
		sh: &shared{now: time.Now, faults: map[string]error{}},
	}}
}

// SetClock replaces the time source used for timestamps.
func (s *Store) SetClock(now func() time.Time) { s.sh.now = now }

// InjectError makes every call of the named method fail with err until it
// is cleared with a nil err. Method names match core.Queries.
func (s *Store) InjectError(method string, err error) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	if err == nil {
		delete(s.sh.faults, method)
		return
	}
	s.sh.faults[method] = err
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (q *queries) lock() func() {
	if q.mu == nil {
		return func() {}
	}
	q.mu.Lock()
	return q.mu.Unlock
}

func (q *queries) now() time.Time { return q.sh.now().UTC() }

func (q *queries) InTx(ctx context.Context, fn func(core.Queries) error) error {
	defer q.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	j := &journal{}
	if err := fn(&queries{st: q.st, sh: q.sh, j: j}); err != nil {
		j.rollback()
		return err
	}
	if err := q.sh.fault("Commit"); err != nil {
		j.rollback()
		return err
	}
	if q.j != nil {
		q.j.undo = append(q.j.undo, j.undo...)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Journaled writes
// ---------------------------------------------------------------------------

func (q *queries) record(undo func()) {
	if q.j != nil {
		q.j.undo = append(q.j.undo, undo)
	}
}

// next bumps one of the id counters.
func (q *queries) next(counter *int64) int64 {
	old := *counter
	q.record(func() { *counter = old })
	*counter++
	return *counter
}

func (q *queries) putTable(t core.TableSchema) {
	old, had := q.st.tables[t.ID]
	q.record(func() {
		if had {
			q.st.tables[t.ID] = old
		} else {
			delete(q.st.tables, t.ID)
		}
	})
	q.st.tables[t.ID] = t
}

func (q *queries) removeTable(id int64) {
	old, had := q.st.tables[id]
	if !had {
		return
	}
	q.record(func() { q.st.tables[id] = old })
	delete(q.st.tables, id)
}

func (q *queries) putRow(r core.Row) {
	old, had := q.st.rows[r.ID]
	q.record(func() {
		if had {
			q.st.rows[r.ID] = old
		} else {
			delete(q.st.rows, r.ID)
		}
	})
	q.st.rows[r.ID] = r
}

func (q *queries) removeRow(id int64) {
	old, had := q.st.rows[id]
	if !had {
		return
	}
	q.record(func() { q.st.rows[id] = old })
	delete(q.st.rows, id)
}

func (q *queries) putSeq(k seqKey, v int64) {
	old, had := q.st.seqs[k]
	q.record(func() {
		if had {
			q.st.seqs[k] = old
		} else {
			delete(q.st.seqs, k)
		}
	})
	q.st.seqs[k] = v
}

func (q *queries) removeSeq(k seqKey) {
	old, had := q.st.seqs[k]
	if !had {
		return
	}
	q.record(func() { q.st.seqs[k] = old })
	delete(q.st.seqs, k)
}

// ---------------------------------------------------------------------------
// Tables
// ---------------------------------------------------------------------------

func (q *queries) CreateTable(ctx context.Context, name string, columns []core.ColumnSpec) (core.TableSchema, error) {
	defer q.lock()()
	if err := q.sh.fault("CreateTable"); err != nil {
		return core.TableSchema{}, err
	}
	for _, t := range q.st.tables {
		if t.Name == name {
			return core.TableSchema{}, fmt.Errorf("duplicate key: table %q exists", name)
		}
	}
	now := q.now()
	t := core.TableSchema{
		ID:        q.next(&q.st.nextTableID),
		Name:      name,
		Columns:   append([]core.ColumnSpec(nil), columns...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	q.putTable(t)
	return copyTable(t), nil
}

func (q *queries) GetTable(ctx context.Context, id int64) (core.TableSchema, error) {
	defer q.lock()()
	t, ok := q.st.tables[id]
	if !ok {
		return core.TableSchema{}, fmt.Errorf("table %d: %w", id, core.ErrNotFound)
	}
	return copyTable(t), nil
}

func (q *queries) GetTableByName(ctx context.Context, name string) (core.TableSchema, error) {
	defer q.lock()()
	for _, t := range q.st.tables {
		if t.Name == name {
			return copyTable(t), nil
		}
	}
	return core.TableSchema{}, fmt.Errorf("table %q: %w", name, core.ErrNotFound)
}

func (q *queries) ListTables(ctx context.Context) ([]core.TableSchema, error) {
	defer q.lock()()
	out := make([]core.TableSchema, 0, len(q.st.tables))
	for _, t := range q.st.tables {
		out = append(out, copyTable(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (q *queries) UpdateTable(ctx context.Context, id int64, name string, columns []core.ColumnSpec) (core.TableSchema, error) {
	defer q.lock()()
	if err := q.sh.fault("UpdateTable"); err != nil {
		return core.TableSchema{}, err
	}
	t, ok := q.st.tables[id]
	if !ok {
		return core.TableSchema{}, fmt.Errorf("table %d: %w", id, core.ErrNotFound)
	}
	for _, other := range q.st.tables {
		if other.ID != id && other.Name == name {
			return core.TableSchema{}, fmt.Errorf("duplicate key: table %q exists", name)
		}
	}
	t.Name = name
	t.Columns = append([]core.ColumnSpec(nil), columns...)
	t.UpdatedAt = q.now()
	q.putTable(t)
	return copyTable(t), nil
}

func (q *queries) DeleteTable(ctx context.Context, id int64) error {
	defer q.lock()()
	if err := q.sh.fault("DeleteTable"); err != nil {
		return err
	}
	if _, ok := q.st.tables[id]; !ok {
		return fmt.Errorf("table %d: %w", id, core.ErrNotFound)
	}
	q.dropTable(id)
	return nil
}

func (q *queries) dropTable(id int64) {
	q.removeTable(id)
	for rid, r := range q.st.rows {
		if r.TableID == id {
			q.removeRow(rid)
		}
	}
	for k := range q.st.seqs {
		if k.tableID == id {
			q.removeSeq(k)
		}
	}
}

func (q *queries) DeleteAllTables(ctx context.Context) (int64, error) {
	defer q.lock()()
	n := int64(len(q.st.tables))
	for id := range q.st.tables {
		q.dropTable(id)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Rows
// ---------------------------------------------------------------------------

func (q *queries) InsertRow(ctx context.Context, row core.Row) (core.Row, error) {
	defer q.lock()()
	if err := q.sh.fault("InsertRow"); err != nil {
		return core.Row{}, err
	}
	if _, ok := q.st.tables[row.TableID]; !ok {
		return core.Row{}, fmt.Errorf("table %d: %w", row.TableID, core.ErrNotFound)
	}
	row.ID = q.next(&q.st.nextRowID)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = q.now()
	}
	row.UpdatedAt = row.CreatedAt
	if row.Values == nil {
		row.Values = core.FieldValues{}
	}
	row = copyRow(row)
	q.putRow(row)
	return copyRow(row), nil
}

func (q *queries) GetRow(ctx context.Context, tableID, id int64) (core.Row, error) {
	defer q.lock()()
	r, ok := q.st.rows[id]
	if !ok || r.TableID != tableID {
		return core.Row{}, fmt.Errorf("row %d: %w", id, core.ErrNotFound)
	}
	return copyRow(r), nil
}

func (q *queries) tableRows(tableID int64) []core.Row {
	var out []core.Row
	for _, r := range q.st.rows {
		if r.TableID == tableID {
			out = append(out, copyRow(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (q *queries) ListRows(ctx context.Context, tableID int64) ([]core.Row, error) {
	defer q.lock()()
	if err := q.sh.fault("ListRows"); err != nil {
		return nil, err
	}
	return q.tableRows(tableID), nil
}

func (q *queries) ListRowsPage(ctx context.Context, tableID int64, limit, offset int) ([]core.Row, error) {
	defer q.lock()()
	rows := q.tableRows(tableID)
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID > rows[j].ID
	})
	if offset >= len(rows) {
		return []core.Row{}, nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (q *queries) CountRows(ctx context.Context, tableID int64) (int64, error) {
	defer q.lock()()
	var n int64
	for _, r := range q.st.rows {
		if r.TableID == tableID {
			n++
		}
	}
	return n, nil
}

func (q *queries) UpdateRowValues(ctx context.Context, tableID, id int64, values core.FieldValues) (core.Row, error) {
	defer q.lock()()
	r, ok := q.st.rows[id]
	if !ok || r.TableID != tableID {
		return core.Row{}, fmt.Errorf("row %d: %w", id, core.ErrNotFound)
	}
	r.Values = values.Clone()
	r.UpdatedAt = q.now()
	q.putRow(r)
	return copyRow(r), nil
}

func (q *queries) DeleteRows(ctx context.Context, tableID int64, ids []int64) (int64, error) {
	defer q.lock()()
	var n int64
	for _, id := range ids {
		if r, ok := q.st.rows[id]; ok && r.TableID == tableID {
			q.removeRow(id)
			n++
		}
	}
	return n, nil
}

func (q *queries) DeleteRowsByTable(ctx context.Context, tableID int64) (int64, error) {
	defer q.lock()()
	var n int64
	for id, r := range q.st.rows {
		if r.TableID == tableID {
			q.removeRow(id)
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Sequences
// ---------------------------------------------------------------------------

func (q *queries) IncrementSequence(ctx context.Context, tableID int64, column string) (int64, error) {
	defer q.lock()()
	if err := q.sh.fault("IncrementSequence"); err != nil {
		return 0, err
	}
	k := seqKey{tableID, column}
	v := q.st.seqs[k] + 1
	q.putSeq(k, v)
	return v, nil
}

func (q *queries) SetSequence(ctx context.Context, tableID int64, column string, value int64) error {
	defer q.lock()()
	if err := q.sh.fault("SetSequence"); err != nil {
		return err
	}
	q.putSeq(seqKey{tableID, column}, value)
	return nil
}

func (q *queries) GetSequence(ctx context.Context, tableID int64, column string) (core.Sequence, error) {
	defer q.lock()()
	v, ok := q.st.seqs[seqKey{tableID, column}]
	if !ok {
		return core.Sequence{}, fmt.Errorf("sequence %d/%s: %w", tableID, column, core.ErrNotFound)
	}
	return core.Sequence{TableID: tableID, ColumnName: column, CurrentValue: v}, nil
}

func (q *queries) ListSequences(ctx context.Context, tableID int64) ([]core.Sequence, error) {
	defer q.lock()()
	var out []core.Sequence
	for k, v := range q.st.seqs {
		if k.tableID == tableID {
			out = append(out, core.Sequence{TableID: k.tableID, ColumnName: k.column, CurrentValue: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ColumnName < out[j].ColumnName })
	return out, nil
}

func (q *queries) DeleteSequence(ctx context.Context, tableID int64, column string) error {
	defer q.lock()()
	q.removeSeq(seqKey{tableID, column})
	return nil
}

func (q *queries) DeleteSequencesByTable(ctx context.Context, tableID int64) (int64, error) {
	defer q.lock()()
	var n int64
	for k := range q.st.seqs {
		if k.tableID == tableID {
			q.removeSeq(k)
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Operation log
// ---------------------------------------------------------------------------

func (q *queries) AppendOperation(ctx context.Context, op core.Operation) (core.Operation, error) {
	defer q.lock()()
	if err := q.sh.fault("AppendOperation"); err != nil {
		return core.Operation{}, err
	}
	op.ID = q.next(&q.st.nextOpID)
	if op.CreatedAt.IsZero() {
		op.CreatedAt = q.now()
	}
	n := len(q.st.ops)
	q.record(func() { q.st.ops = q.st.ops[:n] })
	q.st.ops = append(q.st.ops, op)
	return op, nil
}

func (q *queries) ListOperations(ctx context.Context, limit int) ([]core.Operation, error) {
	defer q.lock()()
	out := make([]core.Operation, 0, limit)
	for i := len(q.st.ops) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, q.st.ops[i])
	}
	return out, nil
}
