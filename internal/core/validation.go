package core

// validation.go checks table definitions and row payloads where they enter
// the system: table creation, schema update, workbook import, and row writes.
// Reads trust what was stored.

import (
	"sort"
	"strings"
)

// ValidateTableName rejects empty or whitespace-only names.
func ValidateTableName(name string) error {
	if strings.TrimSpace(name) == "" {
		return schemaInvalid("table name is required")
	}
	return nil
}

// ValidateColumns checks a column list: at least one column, every column
// named and typed, names unique.
func ValidateColumns(columns []ColumnSpec) error {
	if len(columns) == 0 {
		return schemaInvalid("column list is empty")
	}
	seen := make(map[string]struct{}, len(columns))
	for i, c := range columns {
		if strings.TrimSpace(c.Name) == "" {
			return schemaInvalid("column %d has no name", i+1)
		}
		if strings.TrimSpace(c.DataType) == "" {
			return schemaInvalid("column %q has no data type", c.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return schemaInvalid("duplicate column %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// ValidateFieldKeys rejects row values keyed by columns the table does not
// declare. Missing keys are allowed.
func ValidateFieldKeys(table TableSchema, values FieldValues) error {
	var unknown []string
	for k := range values {
		if _, ok := table.Column(k); !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return schemaInvalid("unknown columns %s for table %q", strings.Join(quoteAll(unknown), ", "), table.Name)
}
