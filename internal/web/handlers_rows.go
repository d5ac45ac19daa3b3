package web

import (
	"net/http"

	"github.com/JonMunkholm/sheetbase/internal/core"
)

type rowRequest struct {
	Data core.FieldValues `json:"data"`
}

type batchInsertRequest struct {
	Items []core.FieldValues `json:"items"`
}

type batchDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

func (s *Server) handleListRows(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	page, err := s.service.ListRows(r.Context(), id,
		parseIntParam(r, "page", 1),
		parseIntParam(r, "per_page", core.DefaultPerPage),
	)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if page.Rows == nil {
		page.Rows = []core.Row{}
	}
	writeJSON(w, page)
}

func (s *Server) handleInsertRow(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req rowRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Data == nil {
		req.Data = core.FieldValues{}
	}

	row, err := s.service.InsertRow(r.Context(), id, req.Data, userID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, row)
}

// handleBatchInsertRows answers 200 even when some items failed; the body
// carries per-item counts and messages.
func (s *Server) handleBatchInsertRows(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req batchInsertRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if len(req.Items) == 0 {
		s.respondError(w, r, badRequest("items must not be empty"))
		return
	}

	res, err := s.service.BatchInsertRows(r.Context(), id, req.Items, userID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleGetRow(w http.ResponseWriter, r *http.Request) {
	tableID, rowID, err := rowParams(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	row, err := s.service.GetRow(r.Context(), tableID, rowID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, row)
}

func (s *Server) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	tableID, rowID, err := rowParams(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req rowRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Data == nil {
		s.respondError(w, r, badRequest("data is required"))
		return
	}

	row, err := s.service.UpdateRow(r.Context(), tableID, rowID, req.Data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, row)
}

func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	tableID, rowID, err := rowParams(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.service.DeleteRow(r.Context(), tableID, rowID); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteRows(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req batchDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if len(req.IDs) == 0 {
		s.respondError(w, r, badRequest("ids must not be empty"))
		return
	}

	n, err := s.service.DeleteRows(r.Context(), id, req.IDs, userID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]int64{"deleted": n})
}

func rowParams(r *http.Request) (tableID, rowID int64, err error) {
	if tableID, err = idParam(r, "id"); err != nil {
		return 0, 0, err
	}
	if rowID, err = idParam(r, "rowID"); err != nil {
		return 0, 0, err
	}
	return tableID, rowID, nil
}
