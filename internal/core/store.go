package core

import "context"

// Queries is the persistence surface the engine runs against. Every method
// is scoped to the receiver's transaction when it was handed out by InTx.
type Queries interface {
	// InTx runs fn in a transactional unit: commit when fn returns nil,
	// rollback otherwise. Called on a Queries that is already inside a
	// transaction it opens a nested unit (savepoint) whose rollback leaves
	// the outer transaction usable.
	InTx(ctx context.Context, fn func(q Queries) error) error

	CreateTable(ctx context.Context, name string, columns []ColumnSpec) (TableSchema, error)
	GetTable(ctx context.Context, id int64) (TableSchema, error)
	GetTableByName(ctx context.Context, name string) (TableSchema, error)
	ListTables(ctx context.Context) ([]TableSchema, error)
	UpdateTable(ctx context.Context, id int64, name string, columns []ColumnSpec) (TableSchema, error)
	// DeleteTable removes the table together with its rows and sequences.
	DeleteTable(ctx context.Context, id int64) error
	DeleteAllTables(ctx context.Context) (int64, error)

	// InsertRow stores row and returns it with ID and timestamps filled in.
	// A zero CreatedAt is replaced with the current time.
	InsertRow(ctx context.Context, row Row) (Row, error)
	GetRow(ctx context.Context, tableID, id int64) (Row, error)
	// ListRows returns every row of a table in insertion order.
	ListRows(ctx context.Context, tableID int64) ([]Row, error)
	// ListRowsPage returns rows newest first.
	ListRowsPage(ctx context.Context, tableID int64, limit, offset int) ([]Row, error)
	CountRows(ctx context.Context, tableID int64) (int64, error)
	UpdateRowValues(ctx context.Context, tableID, id int64, values FieldValues) (Row, error)
	DeleteRows(ctx context.Context, tableID int64, ids []int64) (int64, error)
	DeleteRowsByTable(ctx context.Context, tableID int64) (int64, error)

	// IncrementSequence atomically creates the (table, column) counter at 0
	// if absent, adds one and returns the new value.
	IncrementSequence(ctx context.Context, tableID int64, column string) (int64, error)
	// SetSequence creates or overwrites the counter with value.
	SetSequence(ctx context.Context, tableID int64, column string, value int64) error
	GetSequence(ctx context.Context, tableID int64, column string) (Sequence, error)
	ListSequences(ctx context.Context, tableID int64) ([]Sequence, error)
	DeleteSequence(ctx context.Context, tableID int64, column string) error
	DeleteSequencesByTable(ctx context.Context, tableID int64) (int64, error)

	AppendOperation(ctx context.Context, op Operation) (Operation, error)
	ListOperations(ctx context.Context, limit int) ([]Operation, error)
}

// Store is a Queries bound to a connection pool or database handle.
type Store interface {
	Queries
	Close() error
}
