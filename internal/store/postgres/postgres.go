// Package postgres is the production core.Store, backed by a pgx connection
// pool. Column lists and row values live in JSONB columns. Nested
// transactions use pgx savepoints.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/sheetbase/internal/core"
)

//go:embed schema.sql
var schema string

// codeForeignKeyViolation is raised when a row names a missing table.
const codeForeignKeyViolation = "23503"

var (
	tableColumns = []string{"id", "table_name", "columns", "created_at", "updated_at"}
	rowColumns   = []string{"id", "table_id", "data", "created_by", "created_at", "updated_at"}
	opColumns    = []string{"id", "action", "severity", "user_id", "table_id", "batch_id", "detail", "created_at"}
)

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the root handle.
type Store struct {
	*queries
	pool *pgxpool.Pool
}

var _ core.Store = (*Store)(nil)

type queries struct {
	db  dbtx
	qb  squirrel.StatementBuilderType
	now func() time.Time
}

// Open connects a pool, verifies it and applies the schema.
func Open(ctx context.Context, cfg PoolConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return New(pool), nil
}

// New wraps an existing pool. The schema must already be applied.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		queries: &queries{
			db:  pool,
			qb:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
			now: time.Now,
		},
	}
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (q *queries) timestamp() time.Time { return q.now().UTC() }

// InTx begins a transaction on the pool, or a savepoint when q is already
// inside one.
func (q *queries) InTx(ctx context.Context, fn func(core.Queries) error) error {
	tx, err := q.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&queries{db: tx, qb: q.qb, now: q.now}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Query helpers
// ---------------------------------------------------------------------------

type sqlizer interface {
	ToSql() (string, []any, error)
}

func (q *queries) exec(ctx context.Context, b sqlizer) (pgconn.CommandTag, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return q.db.Exec(ctx, query, args...)
}

func (q *queries) query(ctx context.Context, b sqlizer) (pgx.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return q.db.Query(ctx, query, args...)
}

func (q *queries) queryRow(ctx context.Context, b sqlizer) (pgx.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return q.db.QueryRow(ctx, query, args...), nil
}

// translate maps driver errors onto core sentinels. Unique violations keep
// the server's "duplicate key" message, which the error mapper recognises.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// ---------------------------------------------------------------------------
// Tables
// ---------------------------------------------------------------------------

func scanTable(row pgx.Row) (core.TableSchema, error) {
	var (
		t    core.TableSchema
		cols []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &cols, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return core.TableSchema{}, err
	}
	if err := json.Unmarshal(cols, &t.Columns); err != nil {
		return core.TableSchema{}, fmt.Errorf("decode columns of table %d: %w", t.ID, err)
	}
	t.CreatedAt, t.UpdatedAt = t.CreatedAt.UTC(), t.UpdatedAt.UTC()
	return t, nil
}

func (q *queries) CreateTable(ctx context.Context, name string, columns []core.ColumnSpec) (core.TableSchema, error) {
	cols, err := json.Marshal(columns)
	if err != nil {
		return core.TableSchema{}, fmt.Errorf("encode columns: %w", err)
	}
	now := q.timestamp()
	row, err := q.queryRow(ctx, q.qb.Insert("user_tables").
		Columns("table_name", "columns", "created_at", "updated_at").
		Values(name, cols, now, now).
		Suffix("RETURNING id, table_name, columns, created_at, updated_at"))
	if err != nil {
		return core.TableSchema{}, err
	}
	t, err := scanTable(row)
	return t, translate(err, fmt.Sprintf("create table %q", name))
}

func (q *queries) GetTable(ctx context.Context, id int64) (core.TableSchema, error) {
	row, err := q.queryRow(ctx, q.qb.Select(tableColumns...).From("user_tables").Where(squirrel.Eq{"id": id}))
	if err != nil {
		return core.TableSchema{}, err
	}
	t, err := scanTable(row)
	return t, translate(err, fmt.Sprintf("table %d", id))
}

func (q *queries) GetTableByName(ctx context.Context, name string) (core.TableSchema, error) {
	row, err := q.queryRow(ctx, q.qb.Select(tableColumns...).From("user_tables").Where(squirrel.Eq{"table_name": name}))
	if err != nil {
		return core.TableSchema{}, err
	}
	t, err := scanTable(row)
	return t, translate(err, fmt.Sprintf("table %q", name))
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
	row, err := q.queryRow(ctx, q.qb.Update("user_tables").
		Set("table_name", name).
		Set("columns", cols).
		Set("updated_at", q.timestamp()).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING id, table_name, columns, created_at, updated_at"))
	if err != nil {
		return core.TableSchema{}, err
	}
	t, err := scanTable(row)
	return t, translate(err, fmt.Sprintf("table %d", id))
}

func (q *queries) DeleteTable(ctx context.Context, id int64) error {
	tag, err := q.exec(ctx, q.qb.Delete("user_tables").Where(squirrel.Eq{"id": id}))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("table %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (q *queries) DeleteAllTables(ctx context.Context) (int64, error) {
	tag, err := q.exec(ctx, q.qb.Delete("user_tables"))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ---------------------------------------------------------------------------
// Rows
// ---------------------------------------------------------------------------

func scanRow(row pgx.Row) (core.Row, error) {
	var (
		r    core.Row
		data []byte
	)
	if err := row.Scan(&r.ID, &r.TableID, &data, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return core.Row{}, err
	}
	if err := json.Unmarshal(data, &r.Values); err != nil {
		return core.Row{}, fmt.Errorf("decode row %d: %w", r.ID, err)
	}
	if r.Values == nil {
		r.Values = core.FieldValues{}
	}
	r.CreatedAt, r.UpdatedAt = r.CreatedAt.UTC(), r.UpdatedAt.UTC()
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

	r, err := q.queryRow(ctx, q.qb.Insert("table_rows").
		Columns("table_id", "data", "created_by", "created_at", "updated_at").
		Values(row.TableID, data, row.CreatedBy, row.CreatedAt, row.CreatedAt).
		Suffix("RETURNING id, table_id, data, created_by, created_at, updated_at"))
	if err != nil {
		return core.Row{}, err
	}
	out, err := scanRow(r)
	return out, translate(err, fmt.Sprintf("insert into table %d", row.TableID))
}

func (q *queries) GetRow(ctx context.Context, tableID, id int64) (core.Row, error) {
	r, err := q.queryRow(ctx, q.qb.Select(rowColumns...).From("table_rows").
		Where(squirrel.Eq{"id": id, "table_id": tableID}))
	if err != nil {
		return core.Row{}, err
	}
	row, err := scanRow(r)
	return row, translate(err, fmt.Sprintf("row %d", id))
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
	r, err := q.queryRow(ctx, q.qb.Update("table_rows").
		Set("data", data).
		Set("updated_at", q.timestamp()).
		Where(squirrel.Eq{"id": id, "table_id": tableID}).
		Suffix("RETURNING id, table_id, data, created_by, created_at, updated_at"))
	if err != nil {
		return core.Row{}, err
	}
	row, err := scanRow(r)
	return row, translate(err, fmt.Sprintf("row %d", id))
}

func (q *queries) DeleteRows(ctx context.Context, tableID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := q.exec(ctx, q.qb.Delete("table_rows").
		Where(squirrel.Eq{"table_id": tableID}).
		Where("id = ANY(?)", ids))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *queries) DeleteRowsByTable(ctx context.Context, tableID int64) (int64, error) {
	tag, err := q.exec(ctx, q.qb.Delete("table_rows").Where(squirrel.Eq{"table_id": tableID}))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ---------------------------------------------------------------------------
// Sequences
// ---------------------------------------------------------------------------

// IncrementSequence relies on the row lock taken by the upsert: concurrent
// callers on the same (table, column) serialize and each sees its own value.
func (q *queries) IncrementSequence(ctx context.Context, tableID int64, column string) (int64, error) {
	row, err := q.queryRow(ctx, q.qb.Insert("auto_increment_sequences").
		Columns("table_id", "column_name", "current_value").
		Values(tableID, column, 1).
		Suffix("ON CONFLICT (table_id, column_name) DO UPDATE " +
			"SET current_value = auto_increment_sequences.current_value + 1 RETURNING current_value"))
	if err != nil {
		return 0, err
	}
	var v int64
	if err := row.Scan(&v); err != nil {
		return 0, translate(err, "increment sequence "+column)
	}
	return v, nil
}

func (q *queries) SetSequence(ctx context.Context, tableID int64, column string, value int64) error {
	_, err := q.exec(ctx, q.qb.Insert("auto_increment_sequences").
		Columns("table_id", "column_name", "current_value").
		Values(tableID, column, value).
		Suffix("ON CONFLICT (table_id, column_name) DO UPDATE SET current_value = EXCLUDED.current_value"))
	return translate(err, "set sequence "+column)
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
	tag, err := q.exec(ctx, q.qb.Delete("auto_increment_sequences").Where(squirrel.Eq{"table_id": tableID}))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ---------------------------------------------------------------------------
// Operation log
// ---------------------------------------------------------------------------

func (q *queries) AppendOperation(ctx context.Context, op core.Operation) (core.Operation, error) {
	if op.CreatedAt.IsZero() {
		op.CreatedAt = q.timestamp()
	}
	row, err := q.queryRow(ctx, q.qb.Insert("operation_log").
		Columns(opColumns[1:]...).
		Values(string(op.Action), string(op.Severity), op.UserID, op.TableID, op.BatchID, op.Detail, op.CreatedAt).
		Suffix("RETURNING id"))
	if err != nil {
		return core.Operation{}, err
	}
	if err := row.Scan(&op.ID); err != nil {
		return core.Operation{}, err
	}
	op.CreatedAt = op.CreatedAt.UTC()
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
		)
		if err := rows.Scan(&op.ID, &action, &severity, &op.UserID, &op.TableID, &op.BatchID, &op.Detail, &op.CreatedAt); err != nil {
			return nil, err
		}
		op.Action, op.Severity = core.OpAction(action), core.OpSeverity(severity)
		op.CreatedAt = op.CreatedAt.UTC()
		out = append(out, op)
	}
	return out, rows.Err()
}
