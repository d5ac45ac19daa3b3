package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/sheetbase/internal/logging"
)

// OpAction is the kind of change recorded in the operation log.
type OpAction string

const (
	ActionWorkbookImport OpAction = "workbook_import"
	ActionWorkbookExport OpAction = "workbook_export"
	ActionCSVImport      OpAction = "csv_import"
	ActionTableCreate    OpAction = "table_create"
	ActionTableUpdate    OpAction = "table_update"
	ActionTableDelete    OpAction = "table_delete"
	ActionDeleteAll      OpAction = "delete_all"
	ActionRowsDelete     OpAction = "rows_delete"
)

// OpSeverity ranks operation log entries for review.
type OpSeverity string

const (
	SeverityLow      OpSeverity = "low"
	SeverityMedium   OpSeverity = "medium"
	SeverityHigh     OpSeverity = "high"
	SeverityCritical OpSeverity = "critical"
)

// Operation is one entry of the operation log.
type Operation struct {
	ID        int64      `json:"id" yaml:"id"`
	Action    OpAction   `json:"action" yaml:"action"`
	Severity  OpSeverity `json:"severity" yaml:"severity"`
	UserID    int64      `json:"user_id" yaml:"user_id"`
	TableID   int64      `json:"table_id,omitempty" yaml:"table_id,omitempty"`
	BatchID   string     `json:"batch_id,omitempty" yaml:"batch_id,omitempty"`
	Detail    string     `json:"detail,omitempty" yaml:"detail,omitempty"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
}

func determineSeverity(action OpAction) OpSeverity {
	switch action {
	case ActionWorkbookImport, ActionCSVImport, ActionRowsDelete:
		return SeverityHigh
	case ActionTableDelete, ActionDeleteAll:
		return SeverityCritical
	case ActionWorkbookExport:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// recordOperation appends to the operation log. Failures are logged and
// swallowed: the change being recorded has already committed.
func (s *Service) recordOperation(ctx context.Context, op Operation) {
	op.Severity = determineSeverity(op.Action)
	if _, err := s.store.AppendOperation(ctx, op); err != nil {
		logging.FromContext(ctx).Warn("operation log append failed",
			slog.String("action", string(op.Action)),
			slog.Int64("table_id", op.TableID),
			slog.String("error", err.Error()),
		)
	}
}

// ListOperations returns the newest operation log entries.
func (s *Service) ListOperations(ctx context.Context, limit int) ([]Operation, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	ops, err := s.store.ListOperations(ctx, limit)
	if err != nil {
		return nil, persistence("list operations", err)
	}
	return ops, nil
}
