package core

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies engine errors.
type Kind string

const (
	KindFormatMismatch     Kind = "format_mismatch"
	KindDuplicateValue     Kind = "duplicate_value"
	KindPrefixInconsistent Kind = "prefix_inconsistent"
	KindSchemaInvalid      Kind = "schema_invalid"
	KindSheetMalformed     Kind = "sheet_malformed"
	KindPersistence        Kind = "persistence_failure"
	KindNotFound           Kind = "not_found"
)

// ErrNotFound is returned by stores when a table, row or sequence is missing.
var ErrNotFound = errors.New("record not found")

// Error is a classified engine error. Validation kinds are meant for
// user-facing correction and never accompany a storage change.
type Error struct {
	Kind     Kind
	Message  string
	Value    string   // offending value, if any
	Prefixes []string // observed prefixes for KindPrefixInconsistent
	Err      error    // wrapped cause
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Value != "" {
		fmt.Fprintf(&b, " (value %q)", e.Value)
	}
	if len(e.Prefixes) > 0 {
		fmt.Fprintf(&b, " (prefixes %s)", strings.Join(quoteAll(e.Prefixes), ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	if kind == KindNotFound {
		return errors.Is(err, ErrNotFound)
	}
	return false
}

// IsValidation reports whether err is a caller-correctable validation error.
func IsValidation(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindFormatMismatch, KindDuplicateValue, KindPrefixInconsistent,
		KindSchemaInvalid, KindSheetMalformed:
		return true
	}
	return false
}

func schemaInvalid(format string, args ...any) *Error {
	return &Error{Kind: KindSchemaInvalid, Message: fmt.Sprintf(format, args...)}
}

func sheetMalformed(format string, args ...any) *Error {
	return &Error{Kind: KindSheetMalformed, Message: fmt.Sprintf(format, args...)}
}

func persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: op, Err: err}
}

// notFound wraps ErrNotFound with what was being looked up.
func notFound(what string, id any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %v", what, id), Err: ErrNotFound}
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
