package core

import (
	"context"
	"sort"
)

// CheckConsistency decides whether an existing column of tableID may be
// switched to auto-increment. Every value must be <prefix><digits>, values
// must be unique, and all values must share one prefix. It changes nothing
// in storage.
//
// With an empty requestedPrefix the working prefix is detected from the
// first row holding the column. Values that do not carry the working prefix
// are re-read in detection mode so that mixed prefixes are reported as such
// rather than as format errors.
func CheckConsistency(ctx context.Context, q Queries, tableID int64, column, requestedPrefix string) (ConsistencyResult, error) {
	rows, err := q.ListRows(ctx, tableID)
	if err != nil {
		return ConsistencyResult{}, persistence("list rows", err)
	}
	return checkRows(rows, column, requestedPrefix)
}

func checkRows(rows []Row, column, requestedPrefix string) (ConsistencyResult, error) {
	working := requestedPrefix
	if working == "" {
		for _, r := range rows {
			raw, ok := r.Values[column]
			if !ok {
				continue
			}
			if p, _, ok := DetectPrefix(CellString(raw)); ok {
				working = p
			}
			break
		}
	}

	var (
		max      int64
		values   []string
		prefixes = map[string]struct{}{}
	)
	for _, r := range rows {
		raw, ok := r.Values[column]
		if !ok {
			continue
		}
		v := CellString(raw)

		prefix := working
		n, ok := MatchPrefix(v, working)
		if !ok {
			prefix, n, ok = DetectPrefix(v)
		}
		if !ok {
			return ConsistencyResult{}, &Error{
				Kind:    KindFormatMismatch,
				Message: "value is not prefix followed by digits",
				Value:   v,
			}
		}

		prefixes[prefix] = struct{}{}
		values = append(values, v)
		if n > max {
			max = n
		}
	}

	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			return ConsistencyResult{}, &Error{
				Kind:    KindDuplicateValue,
				Message: "column values are not unique",
				Value:   v,
			}
		}
		seen[v] = struct{}{}
	}

	if _, same := prefixes[working]; len(prefixes) > 1 || (len(prefixes) == 1 && !same) {
		observed := make([]string, 0, len(prefixes))
		for p := range prefixes {
			observed = append(observed, p)
		}
		sort.Strings(observed)
		return ConsistencyResult{}, &Error{
			Kind:     KindPrefixInconsistent,
			Message:  "column mixes prefixes",
			Prefixes: observed,
		}
	}

	return ConsistencyResult{Prefix: working, MaxValue: max}, nil
}
