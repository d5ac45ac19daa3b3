package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetbase/internal/core"
	"github.com/JonMunkholm/sheetbase/internal/store/sqlite"
	"github.com/JonMunkholm/sheetbase/internal/store/storetest"
)

func openMemory(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.Store { return openMemory(t) })
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sheetbase.db")

	s, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	table, err := s.CreateTable(ctx, "parts", []core.ColumnSpec{{Name: "code", DataType: "string", AutoIncrement: true, Prefix: "P"}})
	require.NoError(t, err)
	_, err = s.IncrementSequence(ctx, table.ID, "code")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = sqlite.Open(ctx, "sqlite://"+path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetTableByName(ctx, "parts")
	require.NoError(t, err)
	assert.Equal(t, table.Columns, got.Columns)
	seq, err := s.GetSequence(ctx, table.ID, "code")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq.CurrentValue)
}

func TestServiceOnSQLite(t *testing.T) {
	s := openMemory(t)
	defer s.Close()
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	s.SetClock(func() time.Time { return now })
	ctx := context.Background()

	svc := core.NewService(s, nil, core.Options{Now: func() time.Time { return now }})
	table, err := svc.CreateTable(ctx, "parts", []core.ColumnSpec{
		{Name: "code", DataType: "string", AutoIncrement: true, Prefix: "P"},
		{Name: "name", DataType: "string"},
	}, 1)
	require.NoError(t, err)

	res, err := svc.BatchInsertRows(ctx, table.ID, []core.FieldValues{
		{"name": "bolt"},
		{},
		{"name": "nut"},
		{"bogus": "x"},
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 2, res.FailCount)

	rows, err := s.ListRows(ctx, table.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "P1", rows[0].Values["code"])
	assert.Equal(t, "P2", rows[1].Values["code"])
	assert.Equal(t, now, rows[0].CreatedAt)

	sheets, err := svc.ExportSheets(ctx)
	require.NoError(t, err)
	imported, err := svc.ImportSheets(ctx, sheets, 1)
	require.NoError(t, err)
	require.Len(t, imported.Sheets, 1)
	assert.Equal(t, core.SheetSuccess, imported.Sheets[0].Status, imported.Sheets[0].Message)

	next, err := svc.AllocateNext(ctx, imported.Sheets[0].TableID, "code", "P")
	require.NoError(t, err)
	assert.Equal(t, "P3", next)
}
