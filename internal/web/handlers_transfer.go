package web

import (
	"bytes"
	"net/http"
	"regexp"
	"time"

	"github.com/JonMunkholm/sheetbase/internal/core"
	"github.com/JonMunkholm/sheetbase/internal/logging"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeCSV  = "text/csv; charset=utf-8"

	defaultOperationLimit = 100
)

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// handleImportWorkbook reconciles every table of an uploaded .xlsx. Sheet
// failures do not fail the request; they are reported per sheet.
func (s *Server) handleImportWorkbook(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.openUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	logging.FromContext(r.Context()).Info("workbook upload received",
		"filename", header.Filename,
		"size", header.Size,
		"user_id", userID(r),
	)

	res, err := s.service.ImportWorkbook(r.Context(), file, userID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// handleExportWorkbook encodes into memory first so an encoding failure can
// still be reported as a JSON error.
func (s *Server) handleExportWorkbook(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.service.ExportWorkbook(r.Context(), &buf, userID(r)); err != nil {
		s.respondError(w, r, err)
		return
	}

	name := "sheetbase-export-" + time.Now().UTC().Format("20060102-150405") + ".xlsx"
	if err := attachment(w, contentTypeXLSX, name, &buf); err != nil {
		logging.FromContext(r.Context()).Warn("workbook download interrupted", "error", err)
	}
}

func (s *Server) handleExportTableCSV(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	table, err := s.service.GetTable(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.service.ExportTableCSV(r.Context(), id, &buf); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := attachment(w, contentTypeCSV, csvFilename(table.Name), &buf); err != nil {
		logging.FromContext(r.Context()).Warn("csv download interrupted", "table_id", id, "error", err)
	}
}

func (s *Server) handleImportTableCSV(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	file, _, err := s.openUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	res, err := s.service.ImportTableCSV(r.Context(), id, file, userID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.Limiter().Status())
}

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	ops, err := s.service.ListOperations(r.Context(), parseIntParam(r, "limit", defaultOperationLimit))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if ops == nil {
		ops = []core.Operation{}
	}
	writeJSON(w, ops)
}

type healthResponse struct {
	Status  string                   `json:"status"`
	Imports core.ImportLimiterStatus `json:"imports"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{Status: "ok", Imports: s.service.Limiter().Status()})
}

// csvFilename keeps header-safe characters of a table name.
func csvFilename(table string) string {
	name := unsafeFilename.ReplaceAllString(table, "_")
	if name == "" || name == "_" {
		name = "table"
	}
	return name + ".csv"
}
