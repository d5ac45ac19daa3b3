// Package storetest holds the behaviour every core.Store must share. Store
// packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetbase/internal/core"
)

// Factory returns an empty store. Run closes it when the subtest ends.
type Factory func(t *testing.T) core.Store

var columns = []core.ColumnSpec{
	{Name: "code", DataType: "string", AutoIncrement: true, Prefix: "INV"},
	{Name: "label", DataType: "string", Hidden: true},
}

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s core.Store)
	}{
		{"Tables", testTables},
		{"TableNotFound", testTableNotFound},
		{"DuplicateTableName", testDuplicateTableName},
		{"Rows", testRows},
		{"RowsPage", testRowsPage},
		{"InsertRowUnknownTable", testInsertRowUnknownTable},
		{"Sequences", testSequences},
		{"DeleteTableCascades", testDeleteTableCascades},
		{"DeleteAllTables", testDeleteAllTables},
		{"TxRollback", testTxRollback},
		{"NestedTx", testNestedTx},
		{"Operations", testOperations},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { s.Close() })
			tt.fn(t, s)
		})
	}
}

func mustCreate(t *testing.T, s core.Store, name string) core.TableSchema {
	t.Helper()
	table, err := s.CreateTable(context.Background(), name, columns)
	require.NoError(t, err)
	return table
}

func testTables(t *testing.T, s core.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "alpha")
	b := mustCreate(t, s, "beta")

	assert.NotZero(t, a.ID)
	assert.Equal(t, columns, a.Columns)
	assert.False(t, a.CreatedAt.IsZero())

	got, err := s.GetTableByName(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	updated, err := s.UpdateTable(ctx, a.ID, "gamma", columns[:1])
	require.NoError(t, err)
	assert.Equal(t, "gamma", updated.Name)
	assert.Equal(t, columns[:1], updated.Columns)

	tables, err := s.ListTables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, a.ID, tables[0].ID)
	assert.Equal(t, b.ID, tables[1].ID)
}

func testTableNotFound(t *testing.T, s core.Store) {
	ctx := context.Background()
	_, err := s.GetTable(ctx, 4242)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.GetTableByName(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.DeleteTable(ctx, 4242), core.ErrNotFound)
	_, err = s.UpdateTable(ctx, 4242, "x", columns)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testDuplicateTableName(t *testing.T, s core.Store) {
	ctx := context.Background()
	mustCreate(t, s, "dup")
	_, err := s.CreateTable(ctx, "dup", columns)
	require.Error(t, err)
	assert.Equal(t, "DB001", core.MapError(err).Code)

	other := mustCreate(t, s, "other")
	_, err = s.UpdateTable(ctx, other.ID, "dup", columns)
	require.Error(t, err)
	assert.Equal(t, "DB001", core.MapError(err).Code)
}

func testRows(t *testing.T, s core.Store) {
	ctx := context.Background()
	table := mustCreate(t, s, "rows")

	stamp := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	first, err := s.InsertRow(ctx, core.Row{
		TableID:   table.ID,
		Values:    core.FieldValues{"code": "INV1", "label": "first"},
		CreatedBy: 3,
		CreatedAt: stamp,
	})
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.True(t, stamp.Equal(first.CreatedAt))
	assert.Equal(t, int64(3), first.CreatedBy)

	second, err := s.InsertRow(ctx, core.Row{TableID: table.ID, Values: core.FieldValues{"code": "INV2"}})
	require.NoError(t, err)
	assert.False(t, second.CreatedAt.IsZero(), "zero creation time is filled in")

	rows, err := s.ListRows(ctx, table.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, first.ID, rows[0].ID)
	assert.Equal(t, "first", rows[0].Values["label"])

	n, err := s.CountRows(ctx, table.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	upd, err := s.UpdateRowValues(ctx, table.ID, first.ID, core.FieldValues{"code": "INV1", "label": "changed"})
	require.NoError(t, err)
	assert.Equal(t, "changed", upd.Values["label"])

	_, err = s.UpdateRowValues(ctx, table.ID+1, first.ID, core.FieldValues{})
	assert.ErrorIs(t, err, core.ErrNotFound)

	deleted, err := s.DeleteRows(ctx, table.ID, []int64{first.ID, 999})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = s.GetRow(ctx, table.ID, first.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	deleted, err = s.DeleteRowsByTable(ctx, table.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func testRowsPage(t *testing.T, s core.Store) {
	ctx := context.Background()
	table := mustCreate(t, s, "paged")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := s.InsertRow(ctx, core.Row{
			TableID:   table.ID,
			Values:    core.FieldValues{"code": "INV"},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	page, err := s.ListRowsPage(ctx, table.ID, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, base.Add(3*time.Hour).Equal(page[0].CreatedAt))
	assert.True(t, base.Add(2*time.Hour).Equal(page[1].CreatedAt))

	page, err = s.ListRowsPage(ctx, table.ID, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func testInsertRowUnknownTable(t *testing.T, s core.Store) {
	_, err := s.InsertRow(context.Background(), core.Row{TableID: 777, Values: core.FieldValues{}})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testSequences(t *testing.T, s core.Store) {
	ctx := context.Background()
	table := mustCreate(t, s, "seq")

	_, err := s.GetSequence(ctx, table.ID, "code")
	assert.ErrorIs(t, err, core.ErrNotFound)

	v, err := s.IncrementSequence(ctx, table.ID, "code")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	v, err = s.IncrementSequence(ctx, table.ID, "code")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	require.NoError(t, s.SetSequence(ctx, table.ID, "code", 10))
	v, err = s.IncrementSequence(ctx, table.ID, "code")
	require.NoError(t, err)
	assert.Equal(t, int64(11), v)

	require.NoError(t, s.SetSequence(ctx, table.ID, "alt", 0))
	seqs, err := s.ListSequences(ctx, table.ID)
	require.NoError(t, err)
	assert.Equal(t, []core.Sequence{
		{TableID: table.ID, ColumnName: "alt", CurrentValue: 0},
		{TableID: table.ID, ColumnName: "code", CurrentValue: 11},
	}, seqs)

	require.NoError(t, s.DeleteSequence(ctx, table.ID, "alt"))
	n, err := s.DeleteSequencesByTable(ctx, table.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func testDeleteTableCascades(t *testing.T, s core.Store) {
	ctx := context.Background()
	table := mustCreate(t, s, "doomed")
	keep := mustCreate(t, s, "kept")
	for _, id := range []int64{table.ID, keep.ID} {
		_, err := s.InsertRow(ctx, core.Row{TableID: id, Values: core.FieldValues{"code": "INV1"}})
		require.NoError(t, err)
		require.NoError(t, s.SetSequence(ctx, id, "code", 1))
	}

	require.NoError(t, s.DeleteTable(ctx, table.ID))

	rows, err := s.ListRows(ctx, table.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
	seqs, err := s.ListSequences(ctx, table.ID)
	require.NoError(t, err)
	assert.Empty(t, seqs)

	n, err := s.CountRows(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func testDeleteAllTables(t *testing.T, s core.Store) {
	ctx := context.Background()
	mustCreate(t, s, "one")
	mustCreate(t, s, "two")

	n, err := s.DeleteAllTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	tables, err := s.ListTables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func testTxRollback(t *testing.T, s core.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(q core.Queries) error {
		if _, err := q.CreateTable(ctx, "ghost", columns); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetTableByName(ctx, "ghost")
	assert.ErrorIs(t, err, core.ErrNotFound)

	err = s.InTx(ctx, func(q core.Queries) error {
		_, err := q.CreateTable(ctx, "real", columns)
		return err
	})
	require.NoError(t, err)
	_, err = s.GetTableByName(ctx, "real")
	assert.NoError(t, err)
}

func testNestedTx(t *testing.T, s core.Store) {
	ctx := context.Background()
	table := mustCreate(t, s, "nested")
	boom := errors.New("row failed")

	err := s.InTx(ctx, func(q core.Queries) error {
		for i := 0; i < 3; i++ {
			err := q.InTx(ctx, func(tx core.Queries) error {
				if _, err := tx.InsertRow(ctx, core.Row{TableID: table.ID, Values: core.FieldValues{"code": "INV"}}); err != nil {
					return err
				}
				if _, err := tx.IncrementSequence(ctx, table.ID, "code"); err != nil {
					return err
				}
				if i == 1 {
					return boom
				}
				return nil
			})
			if i == 1 {
				assert.ErrorIs(t, err, boom)
			} else {
				require.NoError(t, err)
			}
		}
		return nil
	})
	require.NoError(t, err)

	n, err := s.CountRows(ctx, table.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	seq, err := s.GetSequence(ctx, table.ID, "code")
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq.CurrentValue, "savepoint rollback undoes the increment")
}

func testOperations(t *testing.T, s core.Store) {
	ctx := context.Background()
	for _, action := range []core.OpAction{core.ActionTableCreate, core.ActionCSVImport, core.ActionTableDelete} {
		op, err := s.AppendOperation(ctx, core.Operation{
			Action:   action,
			Severity: core.SeverityMedium,
			UserID:   9,
			Detail:   string(action),
		})
		require.NoError(t, err)
		assert.NotZero(t, op.ID)
		assert.False(t, op.CreatedAt.IsZero())
	}

	ops, err := s.ListOperations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, core.ActionTableDelete, ops[0].Action)
	assert.Equal(t, core.ActionCSVImport, ops[1].Action)
	assert.Equal(t, int64(9), ops[0].UserID)
}
