package core

import "time"

// TimestampLayout is the fixed display format of the creation-timestamp
// column in exported sheets and the format parsed back on import.
const TimestampLayout = "2006-01-02 15:04:05"

// DefaultSentinelColumn is the reserved header marking a data sheet's
// row-creation-time column.
const DefaultSentinelColumn = "created_at"

// DefaultPropertiesSuffix marks a sheet as the column metadata companion of
// the data sheet named by the remaining prefix.
const DefaultPropertiesSuffix = "_properties"

// DefaultDataType is assigned to columns reconstructed without metadata.
const DefaultDataType = "string"

// PropertiesHeader is the fixed, order-sensitive header of a properties sheet.
var PropertiesHeader = []string{"column_name", "data_type", "drop_down", "auto_increment", "prefix", "hidden"}

// ColumnSpec describes one table column.
type ColumnSpec struct {
	Name          string `json:"column_name" yaml:"column_name"`
	DataType      string `json:"data_type" yaml:"data_type"`
	Hidden        bool   `json:"hidden" yaml:"hidden"`
	DropDown      bool   `json:"drop_down" yaml:"drop_down"`
	AutoIncrement bool   `json:"auto_increment" yaml:"auto_increment"`
	Prefix        string `json:"prefix" yaml:"prefix"` // may be empty for auto-increment columns
}

// TableSchema is a user-defined table: a name plus an ordered column list.
type TableSchema struct {
	ID        int64        `json:"id" yaml:"id"`
	Name      string       `json:"table_name" yaml:"table_name"`
	Columns   []ColumnSpec `json:"columns" yaml:"columns"`
	CreatedAt time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" yaml:"updated_at"`
}

// Column returns the declared column called name.
func (t TableSchema) Column(name string) (ColumnSpec, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// ColumnNames returns the declared column names in schema order.
func (t TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// AutoIncrementColumns returns the columns carrying an auto-increment policy.
func (t TableSchema) AutoIncrementColumns() []ColumnSpec {
	var cols []ColumnSpec
	for _, c := range t.Columns {
		if c.AutoIncrement {
			cols = append(cols, c)
		}
	}
	return cols
}

// FieldValues maps column names to scalar cell values (string, number, bool
// or nil). Structured values such as link objects are tolerated and reduced
// to text on export.
type FieldValues map[string]any

// Clone returns a shallow copy of the mapping.
func (f FieldValues) Clone() FieldValues {
	out := make(FieldValues, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Row is one record of a user-defined table.
type Row struct {
	ID        int64       `json:"id"`
	TableID   int64       `json:"table_id"`
	Values    FieldValues `json:"data"`
	CreatedBy int64       `json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Sequence is the auto-increment counter of one (table, column) pair.
type Sequence struct {
	TableID      int64  `json:"table_id"`
	ColumnName   string `json:"column_name"`
	CurrentValue int64  `json:"current_value"`
}

// Sheet is one named grid of a decoded workbook. The first row is the header.
// Cells hold whatever scalar the spreadsheet codec produced.
type Sheet struct {
	Name string  `json:"name"`
	Rows [][]any `json:"rows"`
}

// SheetStatus is the outcome of importing one data sheet.
type SheetStatus string

const (
	SheetSuccess SheetStatus = "success"
	SheetFailed  SheetStatus = "failed"
)

// SheetResult reports what happened to one data sheet during a workbook import.
type SheetResult struct {
	TableName    string      `json:"table_name" yaml:"table_name"`
	TableID      int64       `json:"table_id,omitempty" yaml:"table_id,omitempty"`
	Status       SheetStatus `json:"status" yaml:"status"`
	Message      string      `json:"message" yaml:"message"`
	SuccessCount int         `json:"success_count" yaml:"success_count"`
	FailCount    int         `json:"fail_count" yaml:"fail_count"`
	Errors       []string    `json:"error_messages,omitempty" yaml:"error_messages,omitempty"`
}

// ImportResult is the aggregate outcome of a workbook import.
type ImportResult struct {
	ImportID string        `json:"import_id" yaml:"import_id"`
	Sheets   []SheetResult `json:"results" yaml:"results"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// BatchResult reports per-item outcomes of a multi-row write.
type BatchResult struct {
	SuccessCount int      `json:"success_count" yaml:"success_count"`
	FailCount    int      `json:"fail_count" yaml:"fail_count"`
	Errors       []string `json:"error_messages,omitempty" yaml:"error_messages,omitempty"`
	Rows         []Row    `json:"-" yaml:"-"`
}

// ConsistencyResult is what the pre-adoption check infers about a column.
type ConsistencyResult struct {
	Prefix   string `json:"prefix" yaml:"prefix"`
	MaxValue int64  `json:"max_value" yaml:"max_value"`
}
