package core

// convert.go coerces spreadsheet and JSON cell values.
//
// Cells reach the engine as whatever the codec or JSON decoder produced:
// strings, bools, float64 or int values, json.Number, decimals, nil, and
// occasionally structured objects (link cells carry {"_text": ..., "url": ...}).
// Numbers are rendered through shopspring/decimal so 3.0 becomes "3" and
// 1e6 becomes "1000000" rather than float formatting artifacts.

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// linkTextKey is the display text sub-field of structured link values.
const linkTextKey = "_text"

// CellString returns the text form of a cell. nil becomes "".
func CellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return decimal.NewFromFloat32(x).String()
	case float64:
		return decimal.NewFromFloat(x).String()
	case json.Number:
		if d, err := decimal.NewFromString(x.String()); err == nil {
			return d.String()
		}
		return x.String()
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return FormatTimestamp(x)
	case map[string]any, []any:
		return structuredText(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// ExportCell reduces a stored field value to a spreadsheet-safe scalar.
// Strings and numbers pass through; nil becomes ""; bools are written as
// "true"/"false" text, since xlsx bool cells read back as "1"/"0";
// structured values become their link text or compact JSON.
func ExportCell(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		return CellString(x)
	case string, int, int32, int64, float32, float64:
		return x
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any, []any:
		return structuredText(x)
	default:
		return CellString(x)
	}
}

func structuredText(v any) string {
	if m, ok := v.(map[string]any); ok {
		if text, ok := m[linkTextKey]; ok {
			return CellString(text)
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// ParseBoolCell interprets boolean-like cells from a properties sheet.
// Accepts true/false, yes/no, t/f, y/n, 1/0 in any case; numbers are true
// when non-zero. Anything else is false.
func ParseBoolCell(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	}
	switch strings.ToLower(strings.TrimSpace(CellString(v))) {
	case "true", "t", "yes", "y", "1":
		return true
	}
	return false
}

// ParseTimestamp reads a creation time cell in TimestampLayout (UTC).
// Empty or unparsable cells yield fallback.
func ParseTimestamp(v any, fallback time.Time) time.Time {
	if t, ok := v.(time.Time); ok && !t.IsZero() {
		return t.UTC()
	}
	s := strings.TrimSpace(CellString(v))
	if s == "" {
		return fallback
	}
	t, err := time.ParseInLocation(TimestampLayout, s, time.UTC)
	if err != nil {
		return fallback
	}
	return t
}

// FormatTimestamp renders t in TimestampLayout, in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
