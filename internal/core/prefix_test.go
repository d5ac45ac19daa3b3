package core

import "testing"

func TestMatchPrefix(t *testing.T) {
	tests := []struct {
		value  string
		prefix string
		want   int64
		wantOK bool
	}{
		{"SAMPLE7", "SAMPLE", 7, true},
		{"SAMPLE007", "SAMPLE", 7, true},
		{"42", "", 42, true},
		{"A1B2", "A1B", 2, true},
		{"SAMPLE", "SAMPLE", 0, false},
		{"SAMPLE7x", "SAMPLE", 0, false},
		{"sample7", "SAMPLE", 0, false},
		{"B7", "A", 0, false},
		{"A-7", "A", 0, false},
		{"A٣", "A", 0, false}, // non-ASCII digit
		{"", "", 0, false},
	}

	for _, tt := range tests {
		got, ok := MatchPrefix(tt.value, tt.prefix)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("MatchPrefix(%q, %q) = (%d, %v), want (%d, %v)", tt.value, tt.prefix, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestDetectPrefix(t *testing.T) {
	tests := []struct {
		value      string
		wantPrefix string
		wantN      int64
		wantOK     bool
	}{
		{"A1", "A", 1, true},
		{"SAMPLE12", "SAMPLE", 12, true},
		{"INV-0042", "INV-", 42, true},
		{"A1B2", "A1B", 2, true},
		{"123", "1", 23, true},
		{"7", "", 0, false},
		{"ABC", "", 0, false},
		{"", "", 0, false},
	}

	for _, tt := range tests {
		p, n, ok := DetectPrefix(tt.value)
		if ok != tt.wantOK || p != tt.wantPrefix || n != tt.wantN {
			t.Errorf("DetectPrefix(%q) = (%q, %d, %v), want (%q, %d, %v)",
				tt.value, p, n, ok, tt.wantPrefix, tt.wantN, tt.wantOK)
		}
	}
}

func rowsOf(column string, values ...any) []Row {
	rows := make([]Row, len(values))
	for i, v := range values {
		rows[i] = Row{ID: int64(i + 1), Values: FieldValues{column: v}}
	}
	return rows
}

func TestMaxSuffix(t *testing.T) {
	rows := rowsOf("code", "A1", "A10", "B99", "A3", nil, "junk")
	rows = append(rows, Row{Values: FieldValues{"other": "A500"}})

	if got := MaxSuffix(rows, "code", "A"); got != 10 {
		t.Errorf("MaxSuffix = %d, want 10", got)
	}
	if got := MaxSuffix(nil, "code", "A"); got != 0 {
		t.Errorf("MaxSuffix(nil) = %d, want 0", got)
	}
}

func TestCheckRows(t *testing.T) {
	tests := []struct {
		name       string
		values     []any
		prefix     string
		wantKind   Kind
		wantPrefix string
		wantMax    int64
	}{
		{name: "detects prefix", values: []any{"A1", "A2", "A3"}, wantPrefix: "A", wantMax: 3},
		{name: "requested prefix", values: []any{"INV-9", "INV-10"}, prefix: "INV-", wantPrefix: "INV-", wantMax: 10},
		{name: "no rows", values: nil, wantPrefix: "", wantMax: 0},
		{name: "mixed prefixes", values: []any{"A1", "B2"}, wantKind: KindPrefixInconsistent},
		{name: "duplicates before prefixes", values: []any{"A1", "A1", "B2"}, wantKind: KindDuplicateValue},
		{name: "duplicate raw values", values: []any{"A1", "A1"}, wantKind: KindDuplicateValue},
		{name: "no digits", values: []any{"A1", "Alpha"}, wantKind: KindFormatMismatch},
		{name: "requested prefix not used", values: []any{"B1", "B2"}, prefix: "A", wantKind: KindPrefixInconsistent},
		{name: "digit runs split at last run", values: []any{"A1B2", "A1B3"}, wantPrefix: "A1B", wantMax: 3},
		{name: "leading zeros are distinct values", values: []any{"A1", "A01"}, wantPrefix: "A", wantMax: 1},
		{name: "numeric cell without prefix", values: []any{"N1", 2.0}, wantKind: KindFormatMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := checkRows(rowsOf("code", tt.values...), "code", tt.prefix)
			if tt.wantKind != "" {
				if !IsKind(err, tt.wantKind) {
					t.Fatalf("checkRows() error = %v, want kind %s", err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("checkRows() unexpected error: %v", err)
			}
			if got.Prefix != tt.wantPrefix || got.MaxValue != tt.wantMax {
				t.Errorf("checkRows() = %+v, want {%q %d}", got, tt.wantPrefix, tt.wantMax)
			}
		})
	}
}

func TestCheckRows_ReportsValues(t *testing.T) {
	_, err := checkRows(rowsOf("code", "A1", "A-x"), "code", "")
	e, ok := err.(*Error)
	if !ok || e.Value != "A-x" {
		t.Fatalf("expected format mismatch naming A-x, got %v", err)
	}

	_, err = checkRows(rowsOf("code", "A1", "B2", "C3"), "code", "")
	e, ok = err.(*Error)
	if !ok || len(e.Prefixes) != 3 {
		t.Fatalf("expected three prefixes, got %v", err)
	}
}
