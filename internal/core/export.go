package core

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// TableExport is the sheet pair describing one table.
type TableExport struct {
	Data       Sheet
	Properties Sheet
}

// ExportTable composes the data and properties sheets for a table using the
// default sentinel column and properties suffix.
func ExportTable(table TableSchema, rows []Row) TableExport {
	return composeTable(table, rows, SheetName(table.Name), DefaultSentinelColumn, DefaultPropertiesSuffix)
}

func composeTable(table TableSchema, rows []Row, sheetName, sentinel, suffix string) TableExport {
	propRows := make([][]any, 0, len(table.Columns)+1)
	propRows = append(propRows, stringsToCells(PropertiesHeader))
	for _, c := range table.Columns {
		propRows = append(propRows, []any{c.Name, c.DataType, c.DropDown, c.AutoIncrement, c.Prefix, c.Hidden})
	}

	header := append(table.ColumnNames(), sentinel)
	dataRows := make([][]any, 0, len(rows)+1)
	dataRows = append(dataRows, stringsToCells(header))
	for _, r := range rows {
		cells := make([]any, 0, len(header))
		for _, c := range table.Columns {
			cells = append(cells, ExportCell(r.Values[c.Name]))
		}
		cells = append(cells, FormatTimestamp(r.CreatedAt))
		dataRows = append(dataRows, cells)
	}

	return TableExport{
		Data:       Sheet{Name: sheetName, Rows: dataRows},
		Properties: Sheet{Name: PropertiesSheetName(sheetName, suffix), Rows: propRows},
	}
}

// WriteTableCSV writes a table's rows as CSV: header of column names in
// schema order, CRLF line endings, RFC 4180 quoting. Missing and nil values
// are empty fields. There is no creation time column, so the output can be
// imported back into the same table.
func WriteTableCSV(w io.Writer, table TableSchema, rows []Row) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	if err := cw.Write(table.ColumnNames()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(table.Columns))
	for _, r := range rows {
		for i, c := range table.Columns {
			record[i] = CellString(r.Values[c.Name])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SheetName turns a table name into a valid sheet name: characters sheets
// reject ( : \ / ? * [ ] ) become '_', and the result is capped at 31
// characters.
func SheetName(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, name)
	clean = strings.Trim(clean, "'")
	if clean == "" {
		clean = "sheet"
	}
	return truncateName(clean, maxSheetNameLen)
}

// PropertiesSheetName names the properties companion of a data sheet,
// shortening the data name so the result still fits in 31 characters.
func PropertiesSheetName(dataName, suffix string) string {
	limit := maxSheetNameLen - len(suffix)
	if limit < 1 {
		return truncateName(dataName+suffix, maxSheetNameLen)
	}
	return truncateName(dataName, limit) + suffix
}

// truncateName cuts s to at most n bytes without splitting a rune.
func truncateName(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func stringsToCells(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
