// Package sqlite is a core.Store on a single SQLite database file.
//
// Schema is created on Open. Column lists and row values are stored as JSON
// text, timestamps as fixed-width RFC 3339 text in UTC. Nested transactions
// map onto SAVEPOINT / ROLLBACK TO / RELEASE inside the outer transaction.
//
// SQLite allows one writer at a time, so the pool is capped at a single
// connection. Callers must not use the root Store while one of its
// transactions is open on the same goroutine.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/JonMunkholm/sheetbase/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS user_tables (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	table_name TEXT NOT NULL UNIQUE,
	columns    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS table_rows (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	table_id   INTEGER NOT NULL REFERENCES user_tables(id) ON DELETE CASCADE,
	data       TEXT NOT NULL,
	created_by INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_table_rows_table ON table_rows(table_id, id);

CREATE TABLE IF NOT EXISTS auto_increment_sequences (
	table_id      INTEGER NOT NULL REFERENCES user_tables(id) ON DELETE CASCADE,
	column_name   TEXT NOT NULL,
	current_value INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (table_id, column_name)
);

CREATE TABLE IF NOT EXISTS operation_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	action     TEXT NOT NULL,
	severity   TEXT NOT NULL,
	user_id    INTEGER NOT NULL DEFAULT 0,
	table_id   INTEGER NOT NULL DEFAULT 0,
	batch_id   TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
`

var (
	tableColumns = []string{"id", "table_name", "columns", "created_at", "updated_at"}
	rowColumns   = []string{"id", "table_id", "data", "created_by", "created_at", "updated_at"}
	opColumns    = []string{"id", "action", "severity", "user_id", "table_id", "batch_id", "detail", "created_at"}
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the root handle.
type Store struct {
	*queries
	db *sql.DB
}

var _ core.Store = (*Store)(nil)

type queries struct {
	db    *sql.DB
	conn  dbtx
	tx    *sql.Tx
	depth int
	qb    squirrel.StatementBuilderType
	now   func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := strings.TrimPrefix(path, "sqlite://")
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{
		db: db,
		queries: &queries{
			db:   db,
			conn: db,
			qb:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
			now:  time.Now,
		},
	}, nil
}

// SetClock replaces the time source used for timestamps.
func (s *Store) SetClock(now func() time.Time) { s.queries.now = now }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (q *queries) timestamp() time.Time { return q.now().UTC() }

func (q *queries) InTx(ctx context.Context, fn func(core.Queries) error) error {
	if q.tx == nil {
		tx, err := q.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		if err := fn(&queries{db: q.db, conn: tx, tx: tx, depth: 1, qb: q.qb, now: q.now}); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	}

	sp := fmt.Sprintf("sp_%d", q.depth)
	if _, err := q.tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(&queries{db: q.db, conn: q.tx, tx: q.tx, depth: q.depth + 1, qb: q.qb, now: q.now}); err != nil {
		return unwindSavepoint(ctx, q.tx, sp, err)
	}
	if _, err := q.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// unwindSavepoint rolls back to sp and releases it after fn failed with
// cause. It runs even when ctx is cancelled so the outer transaction stays
// usable. Unwind failures are joined to cause.
func unwindSavepoint(ctx context.Context, tx execer, sp string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp); err != nil {
		return errors.Join(cause, fmt.Errorf("rollback savepoint: %w", err))
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
		return errors.Join(cause, fmt.Errorf("release savepoint: %w", err))
	}
	return cause
}

// ---------------------------------------------------------------------------
// Query helpers
// ---------------------------------------------------------------------------

type sqlizer interface {
	ToSql() (string, []any, error)
}

func (q *queries) exec(ctx context.Context, b sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return q.conn.ExecContext(ctx, query, args...)
}

func (q *queries) query(ctx context.Context, b sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return q.conn.QueryContext(ctx, query, args...)
}

func (q *queries) queryRow(ctx context.Context, b sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return q.conn.QueryRowContext(ctx, query, args...), nil
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// translate maps driver errors onto the messages the error mapper knows.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("duplicate key: %s: %w", what, err)
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

// ---------------------------------------------------------------------------
// Tables
// ---------------------------------------------------------------------------

func scanTable(sc scanner) (core.TableSchema, error) {
	var (
		t                  core.TableSchema
		cols, created, upd string
	)
	if err := sc.Scan(&t.ID, &t.Name, &cols, &created, &upd); err != nil {
		return core.TableSchema{}, err
	}
	if err := json.Unmarshal([]byte(cols), &t.Columns); err != nil {
		return core.TableSchema{}, fmt.Errorf("decode columns of table %d: %w", t.ID, err)
	}
	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return core.TableSchema{}, err
	}
	if t.UpdatedAt, err = parseTime(upd); err != nil {
		return core.TableSchema{}, err
	}
	return t, nil
}

func (q *queries) CreateTable(ctx context.Context, name string, columns []core.ColumnSpec) (core.TableSchema, error) {
	cols, err := json.Marshal(columns)
	if err != nil {
		return core.TableSchema{}, fmt.Errorf("encode columns: %w", err)
	}
	now := q.timestamp()
	res, err := q.exec(ctx, q.qb.Insert("user_tables").
		Columns("table_name", "columns", "created_at", "updated_at").
		Values(name, string(cols), formatTime(now), formatTime(now)))
	if err != nil {
		return core.TableSchema{}, translate(err, fmt.Sprintf("table %q", name))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.TableSchema{}, err
	}
	return q.GetTable(ctx, id)
}

func (q *queries) getTableWhere(ctx context.Context, pred any, what string) (core.TableSchema, error) {
	row, err := q.queryRow(ctx, q.qb.Select(tableColumns...).From("user_tables").Where(pred))
	if err != nil {
		return core.TableSchema{}, err
	}
	t, err := scanTable(row)
	return t, translate(err, what)
}

func (q *queries) GetTable(ctx context.Context, id int64) (core.TableSchema, error) {
	return q.getTableWhere(ctx, squirrel.Eq{"id": id}, fmt.Sprintf("table %d", id))
}

func (q *queries) GetTableByName(ctx context.Context, name string) (core.TableSchema, error) {
	return q.getTableWhere(ctx, squirrel.Eq{"table_name": name}, fmt.Sprintf("table %q", name))
}

func (q *queries) ListTables(ctx context.Context) ([]core.TableSchema, error) {
	rows, err := q.query(ctx, q.qb.Select(tableColumns...).From("user_tables").OrderBy("id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.TableSchema{}
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *queries) UpdateTable(ctx context.Context, id int64, name string, columns []core.ColumnSpec) (core.TableSchema, error) {
	cols, err := json.Marshal(columns)
	if err != nil {
		return core.TableSchema{}, fmt.Errorf("encode columns: %w", err)
	}
	res, err := q.exec(ctx, q.qb.Update("user_tables").
		Set("table_name", name).
		Set("columns", string(cols)).
		Set("updated_at", formatTime(q.timestamp())).
		Where(squirrel.Eq{"id": id}))
	if err != nil {
		return core.TableSchema{}, translate(err, fmt.Sprintf("table %q", name))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.TableSchema{}, fmt.Errorf("table %d: %w", id, core.ErrNotFound)
	}
	return q.GetTable(ctx, id)
}

func (q *queries) DeleteTable(ctx context.Context, id int64) error {
	res, err := q.exec(ctx, q.qb.Delete("user_tables").Where(squirrel.Eq{"id": id}))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("table %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (q *queries) DeleteAllTables(ctx context.Context) (int64, error) {
	res, err := q.exec(ctx, q.qb.Delete("user_tables"))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------------------------------------------------------------------
// Rows
// ---------------------------------------------------------------------------

func scanRow(sc scanner) (core.Row, error) {
	var (
		r                  core.Row
		data, created, upd string
	)
	if err := sc.Scan(&r.ID, &r.TableID, &data, &r.CreatedBy, &created, &upd); err != nil {
		return core.Row{}, err
	}
	if err := json.Unmarshal([]byte(data), &r.Values); err != nil {
		return core.Row{}, fmt.Errorf("decode row %d: %w", r.ID, err)
	}
	if r.Values == nil {
		r.Values = core.FieldValues{}
	}
	var err error
	if r.CreatedAt, err = parseTime(created); err != nil {
		return core.Row{}, err
	}
	if r.UpdatedAt, err = parseTime(upd); err != nil {
		return core.Row{}, err
	}
	return r, nil
}

func (q *queries) collectRows(ctx context.Context, b sqlizer) ([]core.Row, error) {
	rows, err := q.query(ctx, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.Row{}
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *queries) InsertRow(ctx context.Context, row core.Row) (core.Row, error) {
	if row.Values == nil {
		row.Values = core.FieldValues{}
	}
	data, err := json.Marshal(row.Values)
	if err != nil {
		return core.Row{}, fmt.Errorf("encode row: %w", err)
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = q.timestamp()
	}
	created := formatTime(row.CreatedAt)

	res, err := q.exec(ctx, q.qb.Insert("table_rows").
		Columns("table_id", "data", "created_by", "created_at", "updated_at").
		Values(row.TableID, string(data), row.CreatedBy, created, created))
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return core.Row{}, fmt.Errorf("table %d: %w", row.TableID, core.ErrNotFound)
		}
		return core.Row{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Row{}, err
	}
	return q.GetRow(ctx, row.TableID, id)
}

func (q *queries) GetRow(ctx context.Context, tableID, id int64) (core.Row, error) {
	row, err := q.queryRow(ctx, q.qb.Select(rowColumns...).From("table_rows").
		Where(squirrel.Eq{"id": id, "table_id": tableID}))
	if err != nil {
		return core.Row{}, err
	}
	r, err := scanRow(row)
	return r, translate(err, fmt.Sprintf("row %d", id))
}

func (q *queries) ListRows(ctx context.Context, tableID int64) ([]core.Row, error) {
	return q.collectRows(ctx, q.qb.Select(rowColumns...).From("table_rows").
		Where(squirrel.Eq{"table_id": tableID}).OrderBy("id"))
}

func (q *queries) ListRowsPage(ctx context.Context, tableID int64, limit, offset int) ([]core.Row, error) {
	b := q.qb.Select(rowColumns...).From("table_rows").
		Where(squirrel.Eq{"table_id": tableID}).
		OrderBy("created_at DESC", "id DESC").
		Offset(uint64(max(offset, 0)))
	if limit > 0 {
		b = b.Limit(uint64(limit))
	} else {
		b = b.Limit(1<<62 - 1)
	}
	return q.collectRows(ctx, b)
}

func (q *queries) CountRows(ctx context.Context, tableID int64) (int64, error) {
	row, err := q.queryRow(ctx, q.qb.Select("COUNT(*)").From("table_rows").Where(squirrel.Eq{"table_id": tableID}))
	if err != nil {
		return 0, err
	}
	var n int64
	return n, row.Scan(&n)
}

func (q *queries) UpdateRowValues(ctx context.Context, tableID, id int64, values core.FieldValues) (core.Row, error) {
	data, err := json.Marshal(values)
	if err != nil {
		return core.Row{}, fmt.Errorf("encode row: %w", err)
	}
	res, err := q.exec(ctx, q.qb.Update("table_rows").
		Set("data", string(data)).
		Set("updated_at", formatTime(q.timestamp())).
		Where(squirrel.Eq{"id": id, "table_id": tableID}))
	if err != nil {
		return core.Row{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Row{}, fmt.Errorf("row %d: %w", id, core.ErrNotFound)
	}
	return q.GetRow(ctx, tableID, id)
}

func (q *queries) DeleteRows(ctx context.Context, tableID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := q.exec(ctx, q.qb.Delete("table_rows").Where(squirrel.Eq{"table_id": tableID, "id": ids}))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *queries) DeleteRowsByTable(ctx context.Context, tableID int64) (int64, error) {
	res, err := q.exec(ctx, q.qb.Delete("table_rows").Where(squirrel.Eq{"table_id": tableID}))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------------------------------------------------------------------
// Sequences
// ---------------------------------------------------------------------------

func (q *queries) IncrementSequence(ctx context.Context, tableID int64, column string) (int64, error) {
	row, err := q.queryRow(ctx, q.qb.Insert("auto_increment_sequences").
		Columns("table_id", "column_name", "current_value").
		Values(tableID, column, 1).
		Suffix("ON CONFLICT (table_id, column_name) DO UPDATE SET current_value = current_value + 1 RETURNING current_value"))
	if err != nil {
		return 0, err
	}
	var v int64
	if err := row.Scan(&v); err != nil {
		return 0, fmt.Errorf("increment sequence %s: %w", column, err)
	}
	return v, nil
}

func (q *queries) SetSequence(ctx context.Context, tableID int64, column string, value int64) error {
	_, err := q.exec(ctx, q.qb.Insert("auto_increment_sequences").
		Columns("table_id", "column_name", "current_value").
		Values(tableID, column, value).
		Suffix("ON CONFLICT (table_id, column_name) DO UPDATE SET current_value = excluded.current_value"))
	return err
}

func (q *queries) GetSequence(ctx context.Context, tableID int64, column string) (core.Sequence, error) {
	row, err := q.queryRow(ctx, q.qb.Select("table_id", "column_name", "current_value").
		From("auto_increment_sequences").
		Where(squirrel.Eq{"table_id": tableID, "column_name": column}))
	if err != nil {
		return core.Sequence{}, err
	}
	var s core.Sequence
	err = row.Scan(&s.TableID, &s.ColumnName, &s.CurrentValue)
	return s, translate(err, fmt.Sprintf("sequence %d/%s", tableID, column))
}

func (q *queries) ListSequences(ctx context.Context, tableID int64) ([]core.Sequence, error) {
	rows, err := q.query(ctx, q.qb.Select("table_id", "column_name", "current_value").
		From("auto_increment_sequences").
		Where(squirrel.Eq{"table_id": tableID}).
		OrderBy("column_name"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Sequence
	for rows.Next() {
		var s core.Sequence
		if err := rows.Scan(&s.TableID, &s.ColumnName, &s.CurrentValue); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *queries) DeleteSequence(ctx context.Context, tableID int64, column string) error {
	_, err := q.exec(ctx, q.qb.Delete("auto_increment_sequences").
		Where(squirrel.Eq{"table_id": tableID, "column_name": column}))
	return err
}

func (q *queries) DeleteSequencesByTable(ctx context.Context, tableID int64) (int64, error) {
	res, err := q.exec(ctx, q.qb.Delete("auto_increment_sequences").Where(squirrel.Eq{"table_id": tableID}))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------------------------------------------------------------------
// Operation log
// ---------------------------------------------------------------------------

func (q *queries) AppendOperation(ctx context.Context, op core.Operation) (core.Operation, error) {
	if op.CreatedAt.IsZero() {
		op.CreatedAt = q.timestamp()
	}
	op.CreatedAt = op.CreatedAt.UTC()
	res, err := q.exec(ctx, q.qb.Insert("operation_log").
		Columns(opColumns[1:]...).
		Values(string(op.Action), string(op.Severity), op.UserID, op.TableID, op.BatchID, op.Detail, formatTime(op.CreatedAt)))
	if err != nil {
		return core.Operation{}, err
	}
	if op.ID, err = res.LastInsertId(); err != nil {
		return core.Operation{}, err
	}
	return op, nil
}

func (q *queries) ListOperations(ctx context.Context, limit int) ([]core.Operation, error) {
	rows, err := q.query(ctx, q.qb.Select(opColumns...).From("operation_log").
		OrderBy("id DESC").Limit(uint64(max(limit, 0))))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.Operation{}
	for rows.Next() {
		var (
			op               core.Operation
			action, severity string
			created          string
		)
		if err := rows.Scan(&op.ID, &action, &severity, &op.UserID, &op.TableID, &op.BatchID, &op.Detail, &created); err != nil {
			return nil, err
		}
		op.Action, op.Severity = core.OpAction(action), core.OpSeverity(severity)
		if op.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}
