package core

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func exportFixture() (TableSchema, []Row) {
	table := TableSchema{
		ID:   1,
		Name: "inventory",
		Columns: []ColumnSpec{
			{Name: "code", DataType: "string", AutoIncrement: true, Prefix: "INV"},
			{Name: "note", DataType: "string", Hidden: true},
			{Name: "qty", DataType: "number", DropDown: true},
		},
	}
	stamp := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	rows := []Row{
		{ID: 1, Values: FieldValues{"code": "INV1", "note": "a,b", "qty": 3.0}, CreatedAt: stamp},
		{ID: 2, Values: FieldValues{"code": "INV2", "note": `a"b`}, CreatedAt: stamp},
		{ID: 3, Values: FieldValues{"code": "INV3", "note": map[string]any{"_text": "link", "url": "/x"}, "qty": nil}, CreatedAt: stamp},
	}
	return table, rows
}

func TestWriteTableCSV(t *testing.T) {
	table, rows := exportFixture()

	var buf bytes.Buffer
	if err := WriteTableCSV(&buf, table, rows); err != nil {
		t.Fatalf("WriteTableCSV() error: %v", err)
	}

	want := "code,note,qty\r\n" +
		"INV1,\"a,b\",3\r\n" +
		"INV2,\"a\"\"b\",\r\n" +
		"INV3,link,\r\n"
	if got := buf.String(); got != want {
		t.Errorf("WriteTableCSV() =\n%q\nwant\n%q", got, want)
	}
}

func TestWriteTableCSV_Newlines(t *testing.T) {
	table := TableSchema{Columns: []ColumnSpec{{Name: "text", DataType: "string"}}}
	rows := []Row{{Values: FieldValues{"text": "line1\nline2"}}}

	var buf bytes.Buffer
	if err := WriteTableCSV(&buf, table, rows); err != nil {
		t.Fatalf("WriteTableCSV() error: %v", err)
	}
	if !strings.Contains(buf.String(), "\"line1\r\nline2\"") && !strings.Contains(buf.String(), "\"line1\nline2\"") {
		t.Errorf("multi-line value not quoted: %q", buf.String())
	}
}

func TestExportTable(t *testing.T) {
	table, rows := exportFixture()
	exp := ExportTable(table, rows)

	if exp.Data.Name != "inventory" || exp.Properties.Name != "inventory_properties" {
		t.Fatalf("sheet names = %q, %q", exp.Data.Name, exp.Properties.Name)
	}

	wantHeader := []any{"code", "note", "qty", "created_at"}
	for i, h := range wantHeader {
		if exp.Data.Rows[0][i] != h {
			t.Errorf("data header[%d] = %v, want %v", i, exp.Data.Rows[0][i], h)
		}
	}
	if got := exp.Data.Rows[1]; got[1] != "a,b" || got[2] != 3.0 || got[3] != "2024-02-03 04:05:06" {
		t.Errorf("data row 1 = %v", got)
	}
	if got := exp.Data.Rows[2][2]; got != "" {
		t.Errorf("missing value exported as %#v, want empty string", got)
	}
	if got := exp.Data.Rows[3][1]; got != "link" {
		t.Errorf("link value exported as %#v, want its text", got)
	}

	if len(exp.Properties.Rows) != 4 {
		t.Fatalf("properties rows = %d, want 4", len(exp.Properties.Rows))
	}
	for i, h := range PropertiesHeader {
		if exp.Properties.Rows[0][i] != h {
			t.Errorf("properties header[%d] = %v, want %v", i, exp.Properties.Rows[0][i], h)
		}
	}
	first := exp.Properties.Rows[1]
	if first[0] != "code" || first[3] != true || first[4] != "INV" || first[5] != false {
		t.Errorf("properties row for code = %v", first)
	}
}

func TestSheetName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"inventory", "inventory"},
		{"a/b:c", "a_b_c"},
		{"[x]?*", "_x___"},
		{"'quoted'", "quoted"},
		{"", "sheet"},
		{strings.Repeat("x", 40), strings.Repeat("x", 31)},
	}
	for _, tt := range tests {
		if got := SheetName(tt.in); got != tt.want {
			t.Errorf("SheetName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPropertiesSheetName(t *testing.T) {
	long := strings.Repeat("y", 31)
	got := PropertiesSheetName(long, DefaultPropertiesSuffix)
	if len(got) != 31 || !strings.HasSuffix(got, DefaultPropertiesSuffix) {
		t.Errorf("PropertiesSheetName(long) = %q", got)
	}
	if got := PropertiesSheetName("short", DefaultPropertiesSuffix); got != "short_properties" {
		t.Errorf("PropertiesSheetName(short) = %q", got)
	}
}

func TestTruncateName_KeepsRunes(t *testing.T) {
	got := truncateName("ab日本", 4)
	if got != "ab" {
		t.Errorf("truncateName() = %q, want %q", got, "ab")
	}
}
