package core

import (
	"context"
	"strconv"
)

// NextValue allocates the next auto-increment value for (tableID, column)
// and returns it as prefix + decimal counter, without padding. The counter
// is created at 0 on first use. Callers that need the value to be unique
// must commit q before handing it to another allocation for the same key.
func NextValue(ctx context.Context, q Queries, tableID int64, column, prefix string) (string, error) {
	n, err := q.IncrementSequence(ctx, tableID, column)
	if err != nil {
		return "", persistence("increment sequence "+column, err)
	}
	return prefix + strconv.FormatInt(n, 10), nil
}

// MaxSuffix returns the largest numeric suffix among rows whose column value
// is exactly prefix followed by digits. Other rows are skipped. Returns 0
// when nothing matches.
func MaxSuffix(rows []Row, column, prefix string) int64 {
	var max int64
	for _, r := range rows {
		v, ok := r.Values[column]
		if !ok {
			continue
		}
		if n, ok := MatchPrefix(CellString(v), prefix); ok && n > max {
			max = n
		}
	}
	return max
}

// Reconcile overwrites the (tableID, column) counter with the maximum
// suffix found in rows and returns it. Unlike CheckConsistency it never
// rejects data: rows that do not match are ignored.
func Reconcile(ctx context.Context, q Queries, tableID int64, column, prefix string, rows []Row) (int64, error) {
	max := MaxSuffix(rows, column, prefix)
	if err := q.SetSequence(ctx, tableID, column, max); err != nil {
		return 0, persistence("set sequence "+column, err)
	}
	return max, nil
}

// reconcileAll reseeds every auto-increment column of table from rows.
func reconcileAll(ctx context.Context, q Queries, table TableSchema, rows []Row) error {
	for _, col := range table.AutoIncrementColumns() {
		if _, err := Reconcile(ctx, q, table.ID, col.Name, col.Prefix, rows); err != nil {
			return err
		}
	}
	return nil
}
