// Package workbook reads and writes .xlsx files as core.Sheet grids.
package workbook

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetbase/internal/core"
)

// Codec implements core.WorkbookCodec with excelize.
type Codec struct{}

var _ core.WorkbookCodec = Codec{}

// Decode reads every sheet in workbook order. Cells come back as their raw
// stored text: numbers unformatted, booleans as "1"/"0". Rows keep their
// position, so a blank row in the file is an empty row in the grid.
func (Codec) Decode(r io.Reader) ([]core.Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sheets []core.Sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		grid := make([][]any, len(rows))
		for i, row := range rows {
			cells := make([]any, len(row))
			for j, v := range row {
				cells[j] = v
			}
			grid[i] = cells
		}
		sheets = append(sheets, core.Sheet{Name: name, Rows: grid})
	}
	return sheets, nil
}

// Encode writes sheets in order through excelize stream writers. An empty
// list still produces a valid workbook with one blank sheet.
func (Codec) Encode(w io.Writer, sheets []core.Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	defaultSheet := f.GetSheetName(0)
	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, sheet.Name); err != nil {
				return fmt.Errorf("name sheet %q: %w", sheet.Name, err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return fmt.Errorf("add sheet %q: %w", sheet.Name, err)
		}

		sw, err := f.NewStreamWriter(sheet.Name)
		if err != nil {
			return fmt.Errorf("open sheet %q: %w", sheet.Name, err)
		}
		for r, row := range sheet.Rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				return err
			}
			if err := sw.SetRow(cell, row); err != nil {
				return fmt.Errorf("write sheet %q row %d: %w", sheet.Name, r+1, err)
			}
		}
		if err := sw.Flush(); err != nil {
			return fmt.Errorf("flush sheet %q: %w", sheet.Name, err)
		}
	}

	if len(sheets) > 0 {
		f.SetActiveSheet(0)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
