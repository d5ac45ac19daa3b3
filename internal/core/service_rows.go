package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Default and maximum page sizes for ListRows.
const (
	DefaultPerPage = 10
	MaxPerPage     = 1000
)

// InsertRow stores one row. Keys must be declared columns; every
// auto-increment column is overwritten with a freshly allocated value in
// the same unit as the insert.
func (s *Service) InsertRow(ctx context.Context, tableID int64, values FieldValues, userID int64) (Row, error) {
	var row Row
	err := s.store.InTx(ctx, func(q Queries) error {
		table, err := getTable(ctx, q, tableID)
		if err != nil {
			return err
		}
		row, err = insertRow(ctx, q, table, values, userID)
		return err
	})
	return row, err
}

func insertRow(ctx context.Context, q Queries, table TableSchema, values FieldValues, userID int64) (Row, error) {
	if err := ValidateFieldKeys(table, values); err != nil {
		return Row{}, err
	}
	values = values.Clone()
	for _, col := range table.AutoIncrementColumns() {
		v, err := NextValue(ctx, q, table.ID, col.Name, col.Prefix)
		if err != nil {
			return Row{}, err
		}
		values[col.Name] = v
	}
	row, err := q.InsertRow(ctx, Row{TableID: table.ID, Values: values, CreatedBy: userID})
	if err != nil {
		return Row{}, persistence("insert row", err)
	}
	return row, nil
}

// BatchInsertRows inserts items one by one, each in its own savepoint so a
// bad item is counted and skipped without losing the others.
func (s *Service) BatchInsertRows(ctx context.Context, tableID int64, items []FieldValues, userID int64) (BatchResult, error) {
	var res BatchResult
	err := s.store.InTx(ctx, func(q Queries) error {
		table, err := getTable(ctx, q, tableID)
		if err != nil {
			return err
		}
		res = BatchResult{}
		for i, item := range items {
			if len(item) == 0 {
				res.FailCount++
				res.Errors = append(res.Errors, fmt.Sprintf("item %d: empty data", i+1))
				continue
			}
			var row Row
			err := q.InTx(ctx, func(tx Queries) error {
				var err error
				row, err = insertRow(ctx, tx, table, item, userID)
				return err
			})
			if err != nil {
				res.FailCount++
				res.Errors = append(res.Errors, fmt.Sprintf("item %d: %v", i+1, err))
				continue
			}
			res.SuccessCount++
			res.Rows = append(res.Rows, row)
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}
	return res, nil
}

// GetRow returns one row of a table.
func (s *Service) GetRow(ctx context.Context, tableID, rowID int64) (Row, error) {
	row, err := s.store.GetRow(ctx, tableID, rowID)
	if errors.Is(err, ErrNotFound) {
		return Row{}, notFound("row", rowID)
	}
	if err != nil {
		return Row{}, persistence("get row", err)
	}
	return row, nil
}

// RowPage is one page of a table's rows, newest first.
type RowPage struct {
	Rows    []Row `json:"items"`
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
}

// ListRows returns page (1-based) of a table's rows.
func (s *Service) ListRows(ctx context.Context, tableID int64, page, perPage int) (RowPage, error) {
	if _, err := getTable(ctx, s.store, tableID); err != nil {
		return RowPage{}, err
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	total, err := s.store.CountRows(ctx, tableID)
	if err != nil {
		return RowPage{}, persistence("count rows", err)
	}
	rows, err := s.store.ListRowsPage(ctx, tableID, perPage, (page-1)*perPage)
	if err != nil {
		return RowPage{}, persistence("list rows", err)
	}
	return RowPage{Rows: rows, Total: total, Page: page, PerPage: perPage}, nil
}

// UpdateRow replaces a row's whole value mapping.
func (s *Service) UpdateRow(ctx context.Context, tableID, rowID int64, values FieldValues) (Row, error) {
	var row Row
	err := s.store.InTx(ctx, func(q Queries) error {
		table, err := getTable(ctx, q, tableID)
		if err != nil {
			return err
		}
		if err := ValidateFieldKeys(table, values); err != nil {
			return err
		}
		row, err = q.UpdateRowValues(ctx, tableID, rowID, values)
		if errors.Is(err, ErrNotFound) {
			return notFound("row", rowID)
		}
		if err != nil {
			return persistence("update row", err)
		}
		return nil
	})
	return row, err
}

// DeleteRow removes one row.
func (s *Service) DeleteRow(ctx context.Context, tableID, rowID int64) error {
	n, err := s.store.DeleteRows(ctx, tableID, []int64{rowID})
	if err != nil {
		return persistence("delete row", err)
	}
	if n == 0 {
		return notFound("row", rowID)
	}
	return nil
}

// DeleteRows removes the listed rows and returns how many existed.
func (s *Service) DeleteRows(ctx context.Context, tableID int64, ids []int64, userID int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int64
	err := s.store.InTx(ctx, func(q Queries) error {
		var err error
		n, err = q.DeleteRows(ctx, tableID, ids)
		if err != nil {
			return persistence("delete rows", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.recordOperation(ctx, Operation{Action: ActionRowsDelete, UserID: userID, TableID: tableID, Detail: fmt.Sprintf("%d rows", n)})
	return n, nil
}

// ---------------------------------------------------------------------------
// Reports
// ---------------------------------------------------------------------------

// StatsQuery filters and groups a table's rows. Dates are YYYY-MM-DD and
// both bounds are inclusive.
type StatsQuery struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	GroupBy   string `json:"group_by,omitempty"`
}

// StatBucket is the row count of one group.
type StatBucket struct {
	Group string `json:"group"`
	Count int    `json:"count"`
}

// StatsResult is the outcome of Stats.
type StatsResult struct {
	TableID   int64        `json:"table_id"`
	TableName string       `json:"table_name"`
	StartDate string       `json:"start_date,omitempty"`
	EndDate   string       `json:"end_date,omitempty"`
	GroupBy   string       `json:"group_by,omitempty"`
	Stats     []StatBucket `json:"stats"`
}

const dateLayout = "2006-01-02"

// Stats counts rows created in the date range, grouped by the value of
// GroupBy (in first-seen order) or, without GroupBy, by creation date in
// ascending order. Rows lacking the GroupBy field are not counted.
func (s *Service) Stats(ctx context.Context, tableID int64, sq StatsQuery) (StatsResult, error) {
	table, err := getTable(ctx, s.store, tableID)
	if err != nil {
		return StatsResult{}, err
	}

	var start, end time.Time
	if sq.StartDate != "" {
		if start, err = time.ParseInLocation(dateLayout, sq.StartDate, time.UTC); err != nil {
			return StatsResult{}, schemaInvalid("start_date %q is not YYYY-MM-DD", sq.StartDate)
		}
	}
	if sq.EndDate != "" {
		if end, err = time.ParseInLocation(dateLayout, sq.EndDate, time.UTC); err != nil {
			return StatsResult{}, schemaInvalid("end_date %q is not YYYY-MM-DD", sq.EndDate)
		}
		end = end.AddDate(0, 0, 1)
	}

	rows, err := s.store.ListRows(ctx, tableID)
	if err != nil {
		return StatsResult{}, persistence("list rows", err)
	}

	counts := map[string]int{}
	var order []string
	for _, r := range rows {
		if !start.IsZero() && r.CreatedAt.Before(start) {
			continue
		}
		if !end.IsZero() && !r.CreatedAt.Before(end) {
			continue
		}
		var key string
		if sq.GroupBy != "" {
			v, ok := r.Values[sq.GroupBy]
			if !ok {
				continue
			}
			key = CellString(v)
		} else {
			key = r.CreatedAt.UTC().Format(dateLayout)
		}
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}
	if sq.GroupBy == "" {
		sort.Strings(order)
	}

	res := StatsResult{
		TableID:   table.ID,
		TableName: table.Name,
		StartDate: sq.StartDate,
		EndDate:   sq.EndDate,
		GroupBy:   sq.GroupBy,
		Stats:     make([]StatBucket, 0, len(order)),
	}
	for _, k := range order {
		res.Stats = append(res.Stats, StatBucket{Group: k, Count: counts[k]})
	}
	return res, nil
}
