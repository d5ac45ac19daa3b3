package core

// reconcile.go rebuilds tables from decoded workbook sheets.
//
// Every sheet whose name ends with the properties suffix describes the
// columns of the data sheet named by the rest; all other sheets are data
// sheets. Data sheets are processed one at a time, in workbook order, and
// each gets three commit units:
//
//  1. replace-or-create the table and seed its counters at 0
//  2. ingest rows, one savepoint per row
//  3. reconcile counters against the rows that landed
//
// A failure in one unit fails that sheet only. Earlier units stay committed,
// so a sheet whose rows fail to load leaves an empty table behind. Sibling
// sheets are never affected.

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetbase/internal/logging"
)

// maxSheetNameLen is the longest sheet name spreadsheet formats accept.
const maxSheetNameLen = 31

// ImportSheets runs the reconciliation engine over already decoded sheets.
// It only fails outright when ctx is done before any sheet is processed;
// everything else is reported per sheet.
func (s *Service) ImportSheets(ctx context.Context, sheets []Sheet, userID int64) (ImportResult, error) {
	if err := ctx.Err(); err != nil {
		return ImportResult{}, err
	}

	start := s.now()
	importID := uuid.NewString()
	log := logging.WithFields(ctx, "import_id", importID)

	props, data := s.splitSheets(sheets)
	log.Info("workbook import started",
		slog.Int("data_sheets", len(data)),
		slog.Int("properties_sheets", len(props)),
		slog.Int64("user_id", userID),
	)

	result := ImportResult{ImportID: importID, Sheets: make([]SheetResult, 0, len(data))}
	for _, sheet := range data {
		var res SheetResult
		if err := ctx.Err(); err != nil {
			res = failedSheet(sheet.Name, "import cancelled: "+err.Error())
		} else {
			res = s.importSheet(ctx, log, sheet, s.findProperties(sheet.Name, props), userID)
		}

		attrs := []any{
			slog.String("sheet", sheet.Name),
			slog.String("status", string(res.Status)),
			slog.Int("inserted", res.SuccessCount),
			slog.Int("failed", res.FailCount),
		}
		if res.Status == SheetFailed {
			log.Warn("sheet import failed", append(attrs, slog.String("reason", res.Message))...)
		} else {
			log.Info("sheet imported", attrs...)
		}
		result.Sheets = append(result.Sheets, res)
	}

	result.Duration = s.now().Sub(start)
	return result, nil
}

// splitSheets separates properties sheets (keyed by stripped name) from
// data sheets, keeping data sheet order.
func (s *Service) splitSheets(sheets []Sheet) (map[string]Sheet, []Sheet) {
	props := make(map[string]Sheet)
	var data []Sheet
	for _, sh := range sheets {
		if base, ok := strings.CutSuffix(sh.Name, s.suffix); ok && base != "" {
			if _, dup := props[base]; !dup {
				props[base] = sh
			}
			continue
		}
		data = append(data, sh)
	}
	return props, data
}

// findProperties returns the properties sheet for a data sheet. Exported
// names are capped at 31 characters, so a long data sheet's properties sheet
// carries only a truncated prefix of its name; that prefix is accepted when
// it is the full allowed length.
func (s *Service) findProperties(dataName string, props map[string]Sheet) *Sheet {
	if p, ok := props[dataName]; ok {
		return &p
	}
	limit := maxSheetNameLen - len(s.suffix)
	if limit <= 0 || len(dataName) <= limit {
		return nil
	}
	if p, ok := props[truncateName(dataName, limit)]; ok {
		return &p
	}
	return nil
}

func failedSheet(name, msg string) SheetResult {
	return SheetResult{TableName: name, Status: SheetFailed, Message: msg}
}

func (s *Service) importSheet(ctx context.Context, log *slog.Logger, sheet Sheet, props *Sheet, userID int64) SheetResult {
	if len(sheet.Rows) == 0 {
		return failedSheet(sheet.Name, "sheet has no header row")
	}
	header := headerCells(sheet.Rows[0])
	if len(header) < 2 {
		return failedSheet(sheet.Name, "insufficient header: need at least one column and the "+s.sentinel+" column")
	}

	sentinelIdx := -1
	for i, h := range header {
		if h == s.sentinel {
			sentinelIdx = i
			break
		}
	}
	if sentinelIdx < 0 {
		return failedSheet(sheet.Name, fmt.Sprintf("missing %s column", s.sentinel))
	}

	dataHeaders := make([]string, 0, len(header)-1)
	dataIdx := make([]int, 0, len(header)-1)
	for i, h := range header {
		if i == sentinelIdx {
			continue
		}
		dataHeaders = append(dataHeaders, h)
		dataIdx = append(dataIdx, i)
	}

	columns := s.resolveColumns(log, sheet.Name, dataHeaders, props)
	if err := s.validateColumns(columns); err != nil {
		return failedSheet(sheet.Name, err.Error())
	}

	// Unit 1: replace-or-create and seed counters.
	var table TableSchema
	err := s.store.InTx(ctx, func(q Queries) error {
		existing, err := q.GetTableByName(ctx, sheet.Name)
		switch {
		case err == nil:
			if err := q.DeleteTable(ctx, existing.ID); err != nil {
				return persistence("delete existing table", err)
			}
		case !IsKind(err, KindNotFound):
			return persistence("look up table", err)
		}

		table, err = q.CreateTable(ctx, sheet.Name, columns)
		if err != nil {
			return persistence("create table", err)
		}
		for _, col := range table.AutoIncrementColumns() {
			if err := q.SetSequence(ctx, table.ID, col.Name, 0); err != nil {
				return persistence("seed sequence "+col.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return failedSheet(sheet.Name, "create table: "+err.Error())
	}

	// Unit 2: rows.
	res := SheetResult{TableName: sheet.Name, TableID: table.ID}
	err = s.store.InTx(ctx, func(q Queries) error {
		res.SuccessCount, res.FailCount, res.Errors = 0, 0, nil
		for i, cells := range sheet.Rows[1:] {
			rowNum := i + 2
			row, ok := s.buildRow(table.ID, cells, dataHeaders, dataIdx, sentinelIdx, userID)
			if !ok {
				res.FailCount++
				res.Errors = append(res.Errors, fmt.Sprintf("row %d: empty row", rowNum))
				continue
			}
			err := q.InTx(ctx, func(tx Queries) error {
				if _, err := tx.InsertRow(ctx, row); err != nil {
					return persistence("insert row", err)
				}
				return nil
			})
			if err != nil {
				res.FailCount++
				res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
				continue
			}
			res.SuccessCount++
		}
		return nil
	})
	if err != nil {
		return SheetResult{
			TableName: sheet.Name,
			TableID:   table.ID,
			Status:    SheetFailed,
			Message:   "import rows: " + err.Error(),
			Errors:    []string{err.Error()},
		}
	}

	// Unit 3: reseed counters from what landed.
	if len(table.AutoIncrementColumns()) > 0 {
		err = s.store.InTx(ctx, func(q Queries) error {
			rows, err := q.ListRows(ctx, table.ID)
			if err != nil {
				return persistence("list rows", err)
			}
			return reconcileAll(ctx, q, table, rows)
		})
		if err != nil {
			res.Status = SheetFailed
			res.Message = "update sequences: " + err.Error()
			res.FailCount++
			res.Errors = append(res.Errors, res.Message)
			return res
		}
	}

	res.Status = SheetSuccess
	res.Message = fmt.Sprintf("imported %d rows, %d failed", res.SuccessCount, res.FailCount)
	return res
}

// buildRow maps one data row onto the data headers. Every cell becomes its
// string form. Returns false for a row with no content at all.
func (s *Service) buildRow(tableID int64, cells []any, headers []string, idx []int, sentinelIdx int, userID int64) (Row, bool) {
	empty := true
	values := make(FieldValues, len(headers))
	for i, h := range headers {
		var v string
		if idx[i] < len(cells) {
			v = CellString(cells[idx[i]])
		}
		if strings.TrimSpace(v) != "" {
			empty = false
		}
		values[h] = v
	}

	var stamp any
	if sentinelIdx < len(cells) {
		stamp = cells[sentinelIdx]
		if strings.TrimSpace(CellString(stamp)) != "" {
			empty = false
		}
	}
	if empty {
		return Row{}, false
	}

	return Row{
		TableID:   tableID,
		Values:    values,
		CreatedBy: userID,
		CreatedAt: ParseTimestamp(stamp, s.now().UTC()),
	}, true
}

// resolveColumns builds column specs from the properties sheet when it is
// usable, or falls back to one string column per data header. Properties
// that would not pass table creation (blank, duplicate or reserved names)
// make the sheet unusable.
func (s *Service) resolveColumns(log *slog.Logger, sheetName string, dataHeaders []string, props *Sheet) []ColumnSpec {
	if props != nil {
		cols, reason := parseProperties(*props, dataHeaders)
		if reason == "" {
			err := s.validateColumns(cols)
			if err == nil {
				return cols
			}
			reason = err.Error()
		}
		log.Warn("properties sheet ignored",
			slog.String("sheet", sheetName),
			slog.String("properties_sheet", props.Name),
			slog.String("reason", reason),
		)
	}
	return defaultColumns(dataHeaders)
}

func defaultColumns(headers []string) []ColumnSpec {
	cols := make([]ColumnSpec, len(headers))
	for i, h := range headers {
		cols[i] = ColumnSpec{Name: h, DataType: DefaultDataType}
	}
	return cols
}

// parseProperties reads a properties sheet. A non-empty reason means the
// sheet is unusable and the caller should fall back.
func parseProperties(sheet Sheet, dataHeaders []string) ([]ColumnSpec, string) {
	if len(sheet.Rows) < 2 {
		return nil, "no column rows"
	}
	header := headerCells(sheet.Rows[0])
	if !slices.Equal(header, PropertiesHeader) {
		return nil, fmt.Sprintf("header %v does not match %v", header, PropertiesHeader)
	}

	var cols []ColumnSpec
	for _, raw := range sheet.Rows[1:] {
		cells := make([]any, len(PropertiesHeader))
		copy(cells, raw)
		if isBlankRow(cells) {
			continue
		}
		dataType := strings.TrimSpace(CellString(cells[1]))
		if dataType == "" {
			dataType = DefaultDataType
		}
		cols = append(cols, ColumnSpec{
			Name:          strings.TrimSpace(CellString(cells[0])),
			DataType:      dataType,
			DropDown:      ParseBoolCell(cells[2]),
			AutoIncrement: ParseBoolCell(cells[3]),
			Prefix:        CellString(cells[4]),
			Hidden:        ParseBoolCell(cells[5]),
		})
	}
	if len(cols) == 0 {
		return nil, "no column rows"
	}

	declared := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		declared[c.Name] = struct{}{}
	}
	for _, h := range dataHeaders {
		if _, ok := declared[h]; !ok {
			return nil, fmt.Sprintf("data column %q is not described", h)
		}
	}
	return cols, ""
}

// headerCells stringifies a header row and drops trailing blank cells.
func headerCells(row []any) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.TrimSpace(CellString(c))
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func isBlankRow(cells []any) bool {
	for _, c := range cells {
		if strings.TrimSpace(CellString(c)) != "" {
			return false
		}
	}
	return true
}
