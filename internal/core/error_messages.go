package core

// error_messages.go maps technical errors to user-facing messages with codes
// for support reference.
//
// # Auto-increment Errors (AUTO001-AUTO099)
//
//	AUTO001 - Format mismatch: a value is not <prefix><digits>
//	AUTO002 - Duplicate value: the column holds repeated values
//	AUTO003 - Prefix inconsistent: rows use more than one prefix
//
// # Schema Errors (SCH001-SCH099)
//
//	SCH001 - Schema invalid: missing column name/type, duplicates, empty list,
//	         or row keys that the table does not declare
//
// # Sheet Errors (SHEET001-SHEET099)
//
//	SHEET001 - Sheet malformed: header missing or too short, sentinel column
//	           missing, CSV header not matching the table
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key
//	DB002 - Connection refused
//	DB003 - Connection reset
//	DB004 - Timeout
//	DB005 - Deadlock / serialization failure
//	DB009 - Persistence failure (commit or statement failed)
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Not a spreadsheet / invalid CSV
//	FILE003 - No file provided
//
// # Table Errors (TBL001-TBL099)
//
//	TBL001 - Not found (table, row or sequence)
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Too many concurrent imports
//	IMP002 - Request cancelled
//	IMP003 - Request timed out
//
// Typed *Error values are mapped by Kind first. Anything else is matched
// case-insensitively against the pattern table; the first match wins.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var kindMessages = map[Kind]UserMessage{
	KindFormatMismatch: {
		Message: "A value does not match the prefix-plus-number format",
		Action:  "Make every value in the column look like <prefix><digits>",
		Code:    "AUTO001",
	},
	KindDuplicateValue: {
		Message: "The column contains duplicate values",
		Action:  "Make every value in the column unique before enabling auto-increment",
		Code:    "AUTO002",
	},
	KindPrefixInconsistent: {
		Message: "The column mixes different prefixes",
		Action:  "Use a single prefix for every value in the column",
		Code:    "AUTO003",
	},
	KindSchemaInvalid: {
		Message: "The table definition is invalid",
		Action:  "Every column needs a unique name and a data type",
		Code:    "SCH001",
	},
	KindSheetMalformed: {
		Message: "The sheet layout is not recognized",
		Action:  "Check the header row and the creation time column",
		Code:    "SHEET001",
	},
	KindPersistence: {
		Message: "The change could not be saved",
		Action:  "Please try again; nothing was partially saved",
		Code:    "DB009",
	},
	KindNotFound: {
		Message: "Record not found",
		Action:  "Verify the table or row id",
		Code:    "TBL001",
	},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Database Errors
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Review your data for duplicate values",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "IMP003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB004",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "could not serialize",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},

	// =========================================================================
	// File Errors
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the workbook into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "not a spreadsheet",
		msg: UserMessage{
			Message: "File is not a readable spreadsheet",
			Action:  "Upload an .xlsx workbook",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is comma-separated with consistent columns",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a file to import",
			Code:    "FILE003",
		},
	},

	// =========================================================================
	// Import Errors
	// =========================================================================
	{
		pattern: "too many concurrent imports",
		msg: UserMessage{
			Message: "Another import or export is in progress",
			Action:  "Please wait a moment and try again",
			Code:    "IMP001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "IMP002",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns the zero UserMessage for a nil error and the ERR000 fallback when
// nothing matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindPersistence && e.Err != nil {
			if msg, ok := matchPattern(e.Err); ok {
				return msg
			}
		}
		if msg, ok := kindMessages[e.Kind]; ok {
			return msg
		}
	}
	if errors.Is(err, ErrNotFound) {
		return kindMessages[KindNotFound]
	}

	if msg, ok := matchPattern(err); ok {
		return msg
	}
	return defaultMessage
}

func matchPattern(err error) (UserMessage, bool) {
	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg, true
		}
	}
	return UserMessage{}, false
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while Error() gives the clean message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
//
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
