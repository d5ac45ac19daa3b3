package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoCodec is returned by workbook operations on a Service built without
// a WorkbookCodec.
var ErrNoCodec = errors.New("no workbook codec configured")

// ImportWorkbook decodes a spreadsheet and reconciles every table in it.
// Only an unreadable file, a busy limiter or a cancelled context fail the
// call; sheet-level problems are reported in the result.
func (s *Service) ImportWorkbook(ctx context.Context, r io.Reader, userID int64) (ImportResult, error) {
	if s.codec == nil {
		return ImportResult{}, ErrNoCodec
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return ImportResult{}, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sheets, err := s.codec.Decode(r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("not a spreadsheet: %w", err)
	}

	res, err := s.ImportSheets(ctx, sheets, userID)
	if err != nil {
		return ImportResult{}, err
	}

	var ok, failed int
	for _, sh := range res.Sheets {
		if sh.Status == SheetSuccess {
			ok++
		} else {
			failed++
		}
	}
	s.recordOperation(context.WithoutCancel(ctx), Operation{
		Action:  ActionWorkbookImport,
		UserID:  userID,
		BatchID: res.ImportID,
		Detail:  fmt.Sprintf("%d sheets imported, %d failed", ok, failed),
	})
	return res, nil
}

// ExportWorkbook writes every table as a data sheet plus properties sheet.
func (s *Service) ExportWorkbook(ctx context.Context, w io.Writer, userID int64) error {
	if s.codec == nil {
		return ErrNoCodec
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return err
	}
	defer s.limiter.Release()

	sheets, err := s.ExportSheets(ctx)
	if err != nil {
		return err
	}
	if err := s.codec.Encode(w, sheets); err != nil {
		return fmt.Errorf("encode workbook: %w", err)
	}

	s.recordOperation(ctx, Operation{
		Action: ActionWorkbookExport,
		UserID: userID,
		Detail: fmt.Sprintf("%d tables", len(sheets)/2),
	})
	return nil
}

// ExportSheets composes the sheet pairs of every table, in table id order.
// Sheet names are made unique and never end with the properties suffix, so
// the result imports back table by table.
func (s *Service) ExportSheets(ctx context.Context) ([]Sheet, error) {
	tables, err := s.store.ListTables(ctx)
	if err != nil {
		return nil, persistence("list tables", err)
	}

	used := make(map[string]bool)
	sheets := make([]Sheet, 0, 2*len(tables))
	for _, t := range tables {
		rows, err := s.store.ListRows(ctx, t.ID)
		if err != nil {
			return nil, persistence("list rows", err)
		}
		name := s.uniqueSheetName(SheetName(t.Name), used)
		exp := composeTable(t, rows, name, s.sentinel, s.suffix)
		sheets = append(sheets, exp.Data, exp.Properties)
	}
	return sheets, nil
}

// uniqueSheetName picks a data sheet name whose own name and properties
// name are both unused (sheet names compare case-insensitively).
func (s *Service) uniqueSheetName(base string, used map[string]bool) string {
	taken := func(name string) bool {
		return used[strings.ToLower(name)] ||
			used[strings.ToLower(PropertiesSheetName(name, s.suffix))] ||
			strings.HasSuffix(name, s.suffix)
	}

	name := base
	for n := 2; taken(name); n++ {
		tag := fmt.Sprintf("~%d", n)
		limit := maxSheetNameLen - len(s.suffix) - len(tag)
		if limit < 1 {
			limit = 1
		}
		name = truncateName(strings.TrimSuffix(base, s.suffix), limit) + tag
	}
	used[strings.ToLower(name)] = true
	used[strings.ToLower(PropertiesSheetName(name, s.suffix))] = true
	return name
}

// ExportTableCSV writes one table as CSV.
func (s *Service) ExportTableCSV(ctx context.Context, tableID int64, w io.Writer) error {
	table, err := getTable(ctx, s.store, tableID)
	if err != nil {
		return err
	}
	rows, err := s.store.ListRows(ctx, tableID)
	if err != nil {
		return persistence("list rows", err)
	}
	return WriteTableCSV(w, table, rows)
}

// ImportTableCSV appends CSV rows to an existing table. The header must list
// the table's columns in schema order. Values are stored as given, including
// auto-increment columns, whose counters are reconciled afterwards.
func (s *Service) ImportTableCSV(ctx context.Context, tableID int64, r io.Reader, userID int64) (BatchResult, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return BatchResult{}, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	table, err := getTable(ctx, s.store, tableID)
	if err != nil {
		return BatchResult{}, err
	}

	cr := csv.NewReader(CleanCSVReader(r))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return BatchResult{}, sheetMalformed("csv is empty")
	}
	if err != nil {
		return BatchResult{}, fmt.Errorf("invalid csv: %w", err)
	}
	if err := checkCSVHeader(table, header); err != nil {
		return BatchResult{}, err
	}

	names := table.ColumnNames()
	var res BatchResult
	err = s.store.InTx(ctx, func(q Queries) error {
		res = BatchResult{}
		for rowNum := 2; ; rowNum++ {
			record, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				res.FailCount++
				res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", rowNum, perr.Err))
				continue
			}
			if err != nil {
				return fmt.Errorf("invalid csv: %w", err)
			}
			if len(record) != len(names) {
				res.FailCount++
				res.Errors = append(res.Errors, fmt.Sprintf("row %d: expected %d columns, got %d", rowNum, len(names), len(record)))
				continue
			}

			values := make(FieldValues, len(names))
			for i, n := range names {
				values[n] = record[i]
			}
			err = q.InTx(ctx, func(tx Queries) error {
				if _, err := tx.InsertRow(ctx, Row{TableID: tableID, Values: values, CreatedBy: userID}); err != nil {
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
	})
	if err != nil {
		return BatchResult{}, err
	}

	if len(table.AutoIncrementColumns()) > 0 {
		err = s.store.InTx(ctx, func(q Queries) error {
			rows, err := q.ListRows(ctx, tableID)
			if err != nil {
				return persistence("list rows", err)
			}
			return reconcileAll(ctx, q, table, rows)
		})
		if err != nil {
			return res, err
		}
	}

	s.recordOperation(context.WithoutCancel(ctx), Operation{
		Action:  ActionCSVImport,
		UserID:  userID,
		TableID: tableID,
		Detail:  fmt.Sprintf("%d rows imported, %d failed", res.SuccessCount, res.FailCount),
	})
	return res, nil
}

func checkCSVHeader(table TableSchema, header []string) error {
	names := table.ColumnNames()
	if len(header) != len(names) {
		return sheetMalformed("csv has %d columns, table %q needs %d", len(header), table.Name, len(names))
	}
	for i, h := range header {
		if strings.TrimSpace(h) != names[i] {
			return sheetMalformed("csv column %d should be %q, got %q", i+1, names[i], h)
		}
	}
	return nil
}
