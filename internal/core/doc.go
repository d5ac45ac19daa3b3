// Package core is the table engine: runtime-defined tables, prefixed
// auto-increment columns, and spreadsheet import/export.
//
// It has no transport dependencies. The web server and the sheetctl CLI both
// drive it through [Service], and storage is reached only through [Queries].
//
// # Auto-increment
//
// A column with AutoIncrement set gets values of the form prefix + counter
// ("SAMPLE7"). [NextValue] bumps the (table, column) counter atomically in
// the caller's transaction. [Reconcile] overwrites the counter with the
// largest suffix found in the rows, skipping values that do not match.
// [CheckConsistency] is the strict gate used before an existing column is
// switched to auto-increment.
//
// Prefix detection splits at the last digit run: "A1B2" has prefix "A1B"
// and suffix 2. Prefixes that end in digits therefore cannot be detected and
// must be given explicitly.
//
// # Workbooks
//
// A table travels as two sheets: a data sheet whose header is the column
// names plus the creation time column ("created_at"), and a properties sheet
// named <table>_properties with the header
//
//	column_name | data_type | drop_down | auto_increment | prefix | hidden
//
// [Service.ImportSheets] replaces tables sheet by sheet and never lets one
// bad sheet affect another. See reconcile.go for the commit boundaries.
//
// # Error Handling
//
// Engine errors are *[Error] values classified by [Kind]. [MapError] turns
// any error into a coded [UserMessage]:
//
//   - AUTO001-AUTO003: auto-increment format, duplicates, mixed prefixes
//   - SCH001, SHEET001: invalid definitions and unreadable sheets
//   - DB001-DB009: database errors
//   - FILE001-FILE003, IMP001-IMP003: uploads and import limits
//
// # Operation Log
//
// Imports, exports, deletions and schema changes are appended to the
// operation log with a severity; see [Service.ListOperations].
package core
