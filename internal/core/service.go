package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetbase/internal/logging"
)

// DefaultImportTimeout bounds a single workbook or CSV import.
const DefaultImportTimeout = 10 * time.Minute

// WorkbookCodec turns uploaded spreadsheet bytes into named sheets and back.
type WorkbookCodec interface {
	Decode(r io.Reader) ([]Sheet, error)
	Encode(w io.Writer, sheets []Sheet) error
}

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	SentinelColumn   string
	PropertiesSuffix string
	ImportTimeout    time.Duration
	MaxConcurrent    int
	MaxWaitTime      time.Duration
	Now              func() time.Time
}

// Service exposes table, row, sequence and transfer operations over a store.
type Service struct {
	store    Queries
	codec    WorkbookCodec
	limiter  *ImportLimiter
	sentinel string
	suffix   string
	timeout  time.Duration
	now      func() time.Time
}

// NewService wires a Service. codec may be nil when workbook transfer is
// not needed; ImportWorkbook and ExportWorkbook then fail.
func NewService(store Queries, codec WorkbookCodec, opts Options) *Service {
	s := &Service{
		store:    store,
		codec:    codec,
		limiter:  NewImportLimiter(opts.MaxConcurrent, opts.MaxWaitTime),
		sentinel: opts.SentinelColumn,
		suffix:   opts.PropertiesSuffix,
		timeout:  opts.ImportTimeout,
		now:      opts.Now,
	}
	if s.sentinel == "" {
		s.sentinel = DefaultSentinelColumn
	}
	if s.suffix == "" {
		s.suffix = DefaultPropertiesSuffix
	}
	if s.timeout <= 0 {
		s.timeout = DefaultImportTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Limiter exposes the import limiter for health reporting and shutdown.
func (s *Service) Limiter() *ImportLimiter { return s.limiter }

// ---------------------------------------------------------------------------
// Tables
// ---------------------------------------------------------------------------

// CreateTable validates and stores a new table definition.
func (s *Service) CreateTable(ctx context.Context, name string, columns []ColumnSpec, userID int64) (TableSchema, error) {
	name = strings.TrimSpace(name)
	if err := ValidateTableName(name); err != nil {
		return TableSchema{}, err
	}
	if err := s.validateColumns(columns); err != nil {
		return TableSchema{}, err
	}

	var table TableSchema
	err := s.store.InTx(ctx, func(q Queries) error {
		if err := ensureNameFree(ctx, q, name, 0); err != nil {
			return err
		}
		var err error
		table, err = q.CreateTable(ctx, name, columns)
		if err != nil {
			return persistence("create table", err)
		}
		return nil
	})
	if err != nil {
		return TableSchema{}, err
	}

	s.recordOperation(ctx, Operation{Action: ActionTableCreate, UserID: userID, TableID: table.ID, Detail: table.Name})
	return table, nil
}

// validateColumns also reserves the sentinel name, which would collide with
// the creation time column on export.
func (s *Service) validateColumns(columns []ColumnSpec) error {
	if err := ValidateColumns(columns); err != nil {
		return err
	}
	for _, c := range columns {
		if c.Name == s.sentinel {
			return schemaInvalid("column name %q is reserved", c.Name)
		}
	}
	return nil
}

func ensureNameFree(ctx context.Context, q Queries, name string, selfID int64) error {
	existing, err := q.GetTableByName(ctx, name)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return persistence("look up table", err)
	case existing.ID != selfID:
		return schemaInvalid("table %q already exists", name)
	}
	return nil
}

// ListTables returns every table definition.
func (s *Service) ListTables(ctx context.Context) ([]TableSchema, error) {
	tables, err := s.store.ListTables(ctx)
	if err != nil {
		return nil, persistence("list tables", err)
	}
	return tables, nil
}

// GetTable returns one table definition.
func (s *Service) GetTable(ctx context.Context, id int64) (TableSchema, error) {
	return getTable(ctx, s.store, id)
}

// GetTableByName returns the table with the given name.
func (s *Service) GetTableByName(ctx context.Context, name string) (TableSchema, error) {
	t, err := s.store.GetTableByName(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return TableSchema{}, notFound("table", name)
	}
	if err != nil {
		return TableSchema{}, persistence("get table", err)
	}
	return t, nil
}

func getTable(ctx context.Context, q Queries, id int64) (TableSchema, error) {
	t, err := q.GetTable(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return TableSchema{}, notFound("table", id)
	}
	if err != nil {
		return TableSchema{}, persistence("get table", err)
	}
	return t, nil
}

// TableUpdate carries the optional parts of a schema update.
type TableUpdate struct {
	Name    *string      `json:"table_name,omitempty"`
	Columns []ColumnSpec `json:"columns,omitempty"`
}

// UpdateTable renames the table and/or replaces its columns wholesale.
// When columns change, every auto-increment counter is reseeded from the
// current rows and counters of columns that lost auto-increment are removed.
func (s *Service) UpdateTable(ctx context.Context, id int64, upd TableUpdate, userID int64) (TableSchema, error) {
	if upd.Name != nil {
		if err := ValidateTableName(*upd.Name); err != nil {
			return TableSchema{}, err
		}
	}
	if upd.Columns != nil {
		if err := s.validateColumns(upd.Columns); err != nil {
			return TableSchema{}, err
		}
	}

	var table TableSchema
	err := s.store.InTx(ctx, func(q Queries) error {
		current, err := getTable(ctx, q, id)
		if err != nil {
			return err
		}
		name, columns := current.Name, current.Columns
		if upd.Name != nil {
			name = strings.TrimSpace(*upd.Name)
			if err := ensureNameFree(ctx, q, name, id); err != nil {
				return err
			}
		}
		if upd.Columns != nil {
			columns = upd.Columns
		}

		table, err = q.UpdateTable(ctx, id, name, columns)
		if err != nil {
			return persistence("update table", err)
		}
		if upd.Columns == nil {
			return nil
		}
		return resyncSequences(ctx, q, table)
	})
	if err != nil {
		return TableSchema{}, err
	}

	s.recordOperation(ctx, Operation{Action: ActionTableUpdate, UserID: userID, TableID: id, Detail: table.Name})
	return table, nil
}

// resyncSequences makes the stored counters match table's auto-increment
// columns: stale counters are dropped, the rest are reconciled.
func resyncSequences(ctx context.Context, q Queries, table TableSchema) error {
	seqs, err := q.ListSequences(ctx, table.ID)
	if err != nil {
		return persistence("list sequences", err)
	}
	for _, seq := range seqs {
		if col, ok := table.Column(seq.ColumnName); ok && col.AutoIncrement {
			continue
		}
		if err := q.DeleteSequence(ctx, table.ID, seq.ColumnName); err != nil {
			return persistence("delete sequence", err)
		}
	}
	if len(table.AutoIncrementColumns()) == 0 {
		return nil
	}
	rows, err := q.ListRows(ctx, table.ID)
	if err != nil {
		return persistence("list rows", err)
	}
	return reconcileAll(ctx, q, table, rows)
}

// CheckAutoIncrement reports whether column may become auto-increment with
// the given prefix (empty to detect it).
func (s *Service) CheckAutoIncrement(ctx context.Context, tableID int64, column, prefix string) (ConsistencyResult, error) {
	table, err := getTable(ctx, s.store, tableID)
	if err != nil {
		return ConsistencyResult{}, err
	}
	if _, ok := table.Column(column); !ok {
		return ConsistencyResult{}, schemaInvalid("table %q has no column %q", table.Name, column)
	}
	return CheckConsistency(ctx, s.store, tableID, column, prefix)
}

// AllocateNext allocates the next value of an auto-increment column in its
// own unit and returns it.
func (s *Service) AllocateNext(ctx context.Context, tableID int64, column, prefix string) (string, error) {
	var v string
	err := s.store.InTx(ctx, func(q Queries) error {
		var err error
		v, err = NextValue(ctx, q, tableID, column, prefix)
		return err
	})
	return v, err
}

// ReconcileSequence reseeds one counter from the table's current rows and
// returns the new value.
func (s *Service) ReconcileSequence(ctx context.Context, tableID int64, column, prefix string) (int64, error) {
	var n int64
	err := s.store.InTx(ctx, func(q Queries) error {
		rows, err := q.ListRows(ctx, tableID)
		if err != nil {
			return persistence("list rows", err)
		}
		n, err = Reconcile(ctx, q, tableID, column, prefix, rows)
		return err
	})
	return n, err
}

// Sequences lists a table's counters.
func (s *Service) Sequences(ctx context.Context, tableID int64) ([]Sequence, error) {
	seqs, err := s.store.ListSequences(ctx, tableID)
	if err != nil {
		return nil, persistence("list sequences", err)
	}
	return seqs, nil
}

// DeleteTable removes a table with its rows and counters.
func (s *Service) DeleteTable(ctx context.Context, id int64, userID int64) error {
	var name string
	err := s.store.InTx(ctx, func(q Queries) error {
		t, err := getTable(ctx, q, id)
		if err != nil {
			return err
		}
		name = t.Name
		if err := q.DeleteTable(ctx, id); err != nil {
			return persistence("delete table", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordOperation(ctx, Operation{Action: ActionTableDelete, UserID: userID, TableID: id, Detail: name})
	return nil
}

// DeleteAllTables removes every table and returns how many were deleted.
func (s *Service) DeleteAllTables(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := s.store.InTx(ctx, func(q Queries) error {
		var err error
		n, err = q.DeleteAllTables(ctx)
		if err != nil {
			return persistence("delete all tables", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logging.FromContext(ctx).Warn("all tables deleted", slog.Int64("count", n), slog.Int64("user_id", userID))
	s.recordOperation(ctx, Operation{Action: ActionDeleteAll, UserID: userID, Detail: fmt.Sprintf("%d tables", n)})
	return n, nil
}
