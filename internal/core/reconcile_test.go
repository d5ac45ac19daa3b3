package core_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetbase/internal/core"
)

func cells(vals ...any) []any { return vals }

func dataSheet(name string, header []any, rows ...[]any) core.Sheet {
	return core.Sheet{Name: name, Rows: append([][]any{header}, rows...)}
}

func propsSheet(name string, rows ...[]any) core.Sheet {
	header := make([]any, len(core.PropertiesHeader))
	for i, h := range core.PropertiesHeader {
		header[i] = h
	}
	return core.Sheet{Name: name, Rows: append([][]any{header}, rows...)}
}

func importSheets(t *testing.T, svc *core.Service, sheets ...core.Sheet) core.ImportResult {
	t.Helper()
	res, err := svc.ImportSheets(context.Background(), sheets, testUser)
	require.NoError(t, err)
	return res
}

func TestImportSheets_WithProperties(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	res := importSheets(t, svc,
		dataSheet("parts",
			cells("code", "name", "created_at"),
			cells("P1", "bolt", "2024-01-02 03:04:05"),
			cells("P7", "nut", ""),
			cells("P3", 12.0, "not a date"),
		),
		propsSheet("parts_properties",
			cells("code", "string", "FALSE", "TRUE", "P", "false"),
			cells("name", "", false, false, nil, true),
		),
	)

	require.Len(t, res.Sheets, 1)
	sheet := res.Sheets[0]
	assert.Equal(t, core.SheetSuccess, sheet.Status, sheet.Message)
	assert.Equal(t, 3, sheet.SuccessCount)
	assert.Zero(t, sheet.FailCount)
	assert.NotEmpty(t, res.ImportID)

	table, err := svc.GetTable(ctx, sheet.TableID)
	require.NoError(t, err)
	assert.Equal(t, []core.ColumnSpec{
		{Name: "code", DataType: "string", AutoIncrement: true, Prefix: "P"},
		{Name: "name", DataType: "string", Hidden: true},
	}, table.Columns)

	rows, err := store.ListRows(ctx, table.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, core.FieldValues{"code": "P1", "name": "bolt"}, rows[0].Values)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), rows[0].CreatedAt)
	assert.Equal(t, fixedNow, rows[1].CreatedAt, "blank timestamp falls back to now")
	assert.Equal(t, fixedNow, rows[2].CreatedAt, "bad timestamp falls back to now")
	assert.Equal(t, "12", rows[2].Values["name"], "cells are stored as text")
	assert.Equal(t, testUser, rows[0].CreatedBy)

	assert.Equal(t, int64(7), sequenceValue(t, store, table.ID, "code"))

	next, err := svc.InsertRow(ctx, table.ID, core.FieldValues{"name": "washer"}, testUser)
	require.NoError(t, err)
	assert.Equal(t, "P8", next.Values["code"])
}

func TestImportSheets_MismatchedPropertiesHeaderFallsBack(t *testing.T) {
	svc, _ := newTestService(t)

	props := core.Sheet{Name: "items_properties", Rows: [][]any{
		cells("col_name", "data_type", "drop_down", "auto_increment", "prefix", "hidden"),
		cells("sku", "number", true, true, "S", true),
	}}
	res := importSheets(t, svc,
		dataSheet("items", cells("sku", "label", "created_at"), cells("S1", "x", "")),
		props,
	)

	require.Len(t, res.Sheets, 1)
	assert.Equal(t, core.SheetSuccess, res.Sheets[0].Status)
	assert.Equal(t, 1, res.Sheets[0].SuccessCount)

	table, err := svc.GetTable(context.Background(), res.Sheets[0].TableID)
	require.NoError(t, err)
	assert.Equal(t, []core.ColumnSpec{
		{Name: "sku", DataType: "string"},
		{Name: "label", DataType: "string"},
	}, table.Columns)
}

func TestImportSheets_PropertiesFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		props core.Sheet
	}{
		{name: "header only", props: propsSheet("items_properties")},
		{name: "does not describe every data column", props: propsSheet("items_properties",
			cells("sku", "string", false, true, "S", false))},
		{name: "blank rows only", props: propsSheet("items_properties", cells(nil, "", nil))},
		{name: "blank column name", props: propsSheet("items_properties",
			cells("sku", "string", false, true, "S", false),
			cells("label", "string", false, false, "", false),
			cells("", "string", false, false, "", false))},
		{name: "duplicate column name", props: propsSheet("items_properties",
			cells("sku", "string", false, true, "S", false),
			cells("label", "string", false, false, "", false),
			cells("sku", "number", false, false, "", false))},
		{name: "declares the creation time column", props: propsSheet("items_properties",
			cells("sku", "string", false, true, "S", false),
			cells("label", "string", false, false, "", false),
			cells("created_at", "string", false, false, "", false))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			res := importSheets(t, svc,
				dataSheet("items", cells("sku", "label", "created_at"), cells("S1", "x", "")),
				tt.props,
			)
			require.Equal(t, core.SheetSuccess, res.Sheets[0].Status, res.Sheets[0].Message)
			assert.Equal(t, 1, res.Sheets[0].SuccessCount)
			table, err := svc.GetTable(context.Background(), res.Sheets[0].TableID)
			require.NoError(t, err)
			assert.Empty(t, table.AutoIncrementColumns())
			assert.Equal(t, []string{"sku", "label"}, table.ColumnNames())
		})
	}
}

func TestImportSheets_ShortPropertiesRowsArePadded(t *testing.T) {
	svc, _ := newTestService(t)
	res := importSheets(t, svc,
		dataSheet("items", cells("sku", "created_at"), cells("S1", "")),
		propsSheet("items_properties", cells("sku", "string", "no", "yes")),
	)
	require.Equal(t, core.SheetSuccess, res.Sheets[0].Status)

	table, err := svc.GetTable(context.Background(), res.Sheets[0].TableID)
	require.NoError(t, err)
	assert.Equal(t, []core.ColumnSpec{{Name: "sku", DataType: "string", AutoIncrement: true}}, table.Columns)
}

func TestImportSheets_MalformedSheetIsolated(t *testing.T) {
	svc, _ := newTestService(t)

	res := importSheets(t, svc,
		dataSheet("first", cells("a", "created_at"), cells("1", "")),
		dataSheet("second", cells("a", "b"), cells("1", "2")),
		dataSheet("third", cells("a", "created_at"), cells("3", ""), cells("4", "")),
		dataSheet("fourth", cells("created_at")),
		core.Sheet{Name: "fifth"},
	)

	require.Len(t, res.Sheets, 5)
	assert.Equal(t, core.SheetSuccess, res.Sheets[0].Status)
	assert.Equal(t, core.SheetFailed, res.Sheets[1].Status)
	assert.Contains(t, res.Sheets[1].Message, "created_at")
	assert.Equal(t, core.SheetSuccess, res.Sheets[2].Status)
	assert.Equal(t, 2, res.Sheets[2].SuccessCount)
	assert.Equal(t, core.SheetFailed, res.Sheets[3].Status)
	assert.Contains(t, res.Sheets[3].Message, "insufficient header")
	assert.Equal(t, core.SheetFailed, res.Sheets[4].Status)

	tables, err := svc.ListTables(context.Background())
	require.NoError(t, err)
	assert.Len(t, tables, 2)
}

func TestImportSheets_EmptyRowsAreCounted(t *testing.T) {
	svc, _ := newTestService(t)
	res := importSheets(t, svc,
		dataSheet("t", cells("a", "b", "created_at"),
			cells("1", "x", ""),
			cells(),
			cells("", nil, ""),
			cells("2"),
		),
	)
	sheet := res.Sheets[0]
	assert.Equal(t, core.SheetSuccess, sheet.Status)
	assert.Equal(t, 2, sheet.SuccessCount)
	assert.Equal(t, 2, sheet.FailCount)
	assert.Equal(t, []string{"row 3: empty row", "row 4: empty row"}, sheet.Errors)
}

func TestImportSheets_DuplicateHeaderFailsSheet(t *testing.T) {
	svc, _ := newTestService(t)
	res := importSheets(t, svc, dataSheet("t", cells("a", "a", "created_at"), cells("1", "2", "")))
	assert.Equal(t, core.SheetFailed, res.Sheets[0].Status)
	assert.Contains(t, res.Sheets[0].Message, "duplicate column")
}

func TestImportSheets_ReplacesExistingTable(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	old := createTable(t, svc, "parts", sampleColumns())
	_, err := svc.InsertRow(ctx, old.ID, core.FieldValues{"name": "stale"}, testUser)
	require.NoError(t, err)

	res := importSheets(t, svc, dataSheet("parts", cells("sku", "created_at"), cells("N1", "")))
	require.Equal(t, core.SheetSuccess, res.Sheets[0].Status)
	assert.NotEqual(t, old.ID, res.Sheets[0].TableID)

	_, err = svc.GetTable(ctx, old.ID)
	assert.True(t, core.IsKind(err, core.KindNotFound))
	seqs, err := store.ListSequences(ctx, old.ID)
	require.NoError(t, err)
	assert.Empty(t, seqs, "old counters must not be orphaned")

	rows, err := store.ListRows(ctx, res.Sheets[0].TableID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestImportSheets_RowFailuresKeepTable(t *testing.T) {
	svc, store := newTestService(t)
	store.InjectError("InsertRow", errors.New("disk full"))

	res := importSheets(t, svc, dataSheet("t", cells("a", "created_at"), cells("1", ""), cells("2", "")))
	sheet := res.Sheets[0]
	assert.Equal(t, core.SheetSuccess, sheet.Status)
	assert.Zero(t, sheet.SuccessCount)
	assert.Equal(t, 2, sheet.FailCount)
	assert.Contains(t, sheet.Errors[0], "row 2")
}

func TestImportSheets_CommitFailureRollsBack(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	table := createTable(t, svc, "keep", []core.ColumnSpec{{Name: "a", DataType: "string"}})
	store.InjectError("Commit", errors.New("could not serialize access"))

	res := importSheets(t, svc, dataSheet("keep", cells("a", "created_at"), cells("1", "")))
	sheet := res.Sheets[0]
	assert.Equal(t, core.SheetFailed, sheet.Status)
	assert.Contains(t, sheet.Message, "create table")

	store.InjectError("Commit", nil)
	got, err := svc.GetTable(ctx, table.ID)
	require.NoError(t, err, "failed replacement must roll back")
	assert.Equal(t, "keep", got.Name)
}

func TestImportSheets_SequenceFailureReported(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	// Only the counter reconcile step lists rows.
	store.InjectError("ListRows", errors.New("connection refused"))
	res := importSheets(t, svc,
		dataSheet("t", cells("code", "created_at"), cells("C4", "")),
		propsSheet("t_properties", cells("code", "string", false, true, "C", false)),
	)
	store.InjectError("ListRows", nil)

	sheet := res.Sheets[0]
	assert.Equal(t, core.SheetFailed, sheet.Status)
	assert.Contains(t, sheet.Message, "update sequences")
	assert.Equal(t, 1, sheet.SuccessCount)
	assert.Equal(t, 1, sheet.FailCount)

	rows, err := store.ListRows(ctx, sheet.TableID)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "ingested rows stay committed")
}

func TestImportSheets_TruncatedPropertiesName(t *testing.T) {
	svc, _ := newTestService(t)
	long := strings.Repeat("w", 40)

	res := importSheets(t, svc,
		dataSheet(long, cells("id", "created_at"), cells("W1", "")),
		propsSheet(core.PropertiesSheetName(long, core.DefaultPropertiesSuffix),
			cells("id", "string", false, true, "W", false)),
	)
	require.Len(t, res.Sheets, 1)
	table, err := svc.GetTable(context.Background(), res.Sheets[0].TableID)
	require.NoError(t, err)
	assert.Len(t, table.AutoIncrementColumns(), 1)
}

func TestImportSheets_CancelledContext(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ImportSheets(ctx, []core.Sheet{dataSheet("t", cells("a", "created_at"))}, testUser)
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// ROUND TRIP
// =============================================================================

func TestExportImportRoundTrip(t *testing.T) {
	src, srcStore := newTestService(t)
	ctx := context.Background()

	table := createTable(t, src, "inventory", sampleColumns())
	for _, name := range []string{"bolt", "nut, hex", `say "hi"`} {
		_, err := src.InsertRow(ctx, table.ID, core.FieldValues{"name": name, "qty": 4.0}, testUser)
		require.NoError(t, err)
	}
	other := createTable(t, src, "plain", []core.ColumnSpec{{Name: "note", DataType: "text"}})
	_, err := src.InsertRow(ctx, other.ID, core.FieldValues{"note": map[string]any{"_text": "docs", "url": "/d"}}, testUser)
	require.NoError(t, err)

	sheets, err := src.ExportSheets(ctx)
	require.NoError(t, err)
	require.Len(t, sheets, 4)

	dst, dstStore := newTestService(t)
	res := importSheets(t, dst, sheets...)
	require.Len(t, res.Sheets, 2)
	for _, s := range res.Sheets {
		require.Equal(t, core.SheetSuccess, s.Status, s.Message)
	}

	got, err := dst.GetTableByName(ctx, "inventory")
	require.NoError(t, err)
	assert.Equal(t, table.Columns, got.Columns)

	srcRows, err := srcStore.ListRows(ctx, table.ID)
	require.NoError(t, err)
	dstRows, err := dstStore.ListRows(ctx, got.ID)
	require.NoError(t, err)
	require.Len(t, dstRows, len(srcRows))
	for i := range srcRows {
		for _, col := range table.ColumnNames() {
			assert.Equal(t, core.CellString(srcRows[i].Values[col]), dstRows[i].Values[col], "row %d column %s", i, col)
		}
		assert.Equal(t, srcRows[i].CreatedAt.Truncate(time.Second), dstRows[i].CreatedAt)
	}

	assert.Equal(t, sequenceValue(t, srcStore, table.ID, "code"), sequenceValue(t, dstStore, got.ID, "code"))

	plain, err := dst.GetTableByName(ctx, "plain")
	require.NoError(t, err)
	plainRows, err := dstStore.ListRows(ctx, plain.ID)
	require.NoError(t, err)
	assert.Equal(t, "docs", plainRows[0].Values["note"])
}

func TestExportSheets_UniqueNames(t *testing.T) {
	svc, _ := newTestService(t)
	createTable(t, svc, "a/b", []core.ColumnSpec{{Name: "x", DataType: "s"}})
	createTable(t, svc, "a:b", []core.ColumnSpec{{Name: "x", DataType: "s"}})
	createTable(t, svc, "stock_properties", []core.ColumnSpec{{Name: "x", DataType: "s"}})

	sheets, err := svc.ExportSheets(context.Background())
	require.NoError(t, err)

	var names []string
	for _, s := range sheets {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		"a_b", "a_b_properties",
		"a_b~2", "a_b~2_properties",
		"stock~2", "stock~2_properties",
	}, names)
}

// =============================================================================
// CSV
// =============================================================================

func TestImportTableCSV(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	table := createTable(t, svc, "t", sampleColumns())

	input := "\xEF\xBB\xBFcode,name,qty\r\n" +
		"SAMPLE5,\"bolt, large\",1\r\n" +
		"SAMPLE2,nut\r\n" +
		"SAMPLE9,\"say \"\"hi\"\"\",3\r\n"
	res, err := svc.ImportTableCSV(ctx, table.ID, strings.NewReader(input), testUser)
	require.NoError(t, err)

	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 1, res.FailCount)
	assert.Equal(t, []string{"row 3: expected 3 columns, got 2"}, res.Errors)

	rows, err := store.ListRows(ctx, table.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "bolt, large", rows[0].Values["name"])
	assert.Equal(t, `say "hi"`, rows[1].Values["name"])
	assert.Equal(t, int64(9), sequenceValue(t, store, table.ID, "code"))

	var buf bytes.Buffer
	require.NoError(t, svc.ExportTableCSV(ctx, table.ID, &buf))
	assert.Equal(t, "code,name,qty\r\nSAMPLE5,\"bolt, large\",1\r\nSAMPLE9,\"say \"\"hi\"\"\",3\r\n", buf.String())
}

func TestImportTableCSV_HeaderMismatch(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	table := createTable(t, svc, "t", sampleColumns())

	tests := []struct {
		name  string
		input string
	}{
		{name: "wrong count", input: "code,name\r\n"},
		{name: "wrong order", input: "name,code,qty\r\n"},
		{name: "empty", input: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ImportTableCSV(ctx, table.ID, strings.NewReader(tt.input), testUser)
			assert.True(t, core.IsKind(err, core.KindSheetMalformed), "got %v", err)
		})
	}
}

func TestWorkbookWithoutCodec(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ImportWorkbook(context.Background(), strings.NewReader("x"), testUser)
	assert.ErrorIs(t, err, core.ErrNoCodec)
	assert.ErrorIs(t, svc.ExportWorkbook(context.Background(), &bytes.Buffer{}, testUser), core.ErrNoCodec)
}
