package web

import (
	"net/http"

	"github.com/JonMunkholm/sheetbase/internal/core"
)

type createTableRequest struct {
	Name    string            `json:"table_name"`
	Columns []core.ColumnSpec `json:"columns"`
}

// columnRequest names one column. Prefix only applies to the consistency
// check; allocation and reconciliation use the column's declared prefix.
type columnRequest struct {
	Column string `json:"column_name"`
	Prefix string `json:"prefix"`
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.service.ListTables(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if tables == nil {
		tables = []core.TableSchema{}
	}
	writeJSON(w, tables)
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	table, err := s.service.CreateTable(r.Context(), req.Name, req.Columns, userID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, table)
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, table)
}

func (s *Server) handleUpdateTable(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var upd core.TableUpdate
	if err := decodeJSON(r, &upd); err != nil {
		s.respondError(w, r, err)
		return
	}

	table, err := s.service.UpdateTable(r.Context(), id, upd, userID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, table)
}

func (s *Server) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.service.DeleteTable(r.Context(), id, userID(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAllTables(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.DeleteAllTables(r.Context(), userID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]int64{"deleted": n})
}

// handleCheckAutoIncrement runs the pre-adoption check for one column.
func (s *Server) handleCheckAutoIncrement(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req columnRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Column == "" {
		s.respondError(w, r, badRequest("column_name is required"))
		return
	}

	res, err := s.service.CheckAutoIncrement(r.Context(), id, req.Column, req.Prefix)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleListSequences(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	seqs, err := s.service.Sequences(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if seqs == nil {
		seqs = []core.Sequence{}
	}
	writeJSON(w, seqs)
}

func (s *Server) handleReconcileSequence(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req columnRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Column == "" {
		s.respondError(w, r, badRequest("column_name is required"))
		return
	}

	col, err := s.autoIncrementColumn(r, id, req.Column)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	v, err := s.service.ReconcileSequence(r.Context(), id, col.Name, col.Prefix)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, core.Sequence{TableID: id, ColumnName: col.Name, CurrentValue: v})
}

// handleAllocate hands out the next value of a column without inserting a
// row, for clients that need the identifier up front.
func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req columnRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Column == "" {
		s.respondError(w, r, badRequest("column_name is required"))
		return
	}

	col, err := s.autoIncrementColumn(r, id, req.Column)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	v, err := s.service.AllocateNext(r.Context(), id, col.Name, col.Prefix)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"value": v})
}

// autoIncrementColumn looks up a declared auto-increment column of table id.
func (s *Server) autoIncrementColumn(r *http.Request, id int64, name string) (core.ColumnSpec, error) {
	table, err := s.service.GetTable(r.Context(), id)
	if err != nil {
		return core.ColumnSpec{}, err
	}
	col, ok := table.Column(name)
	if !ok || !col.AutoIncrement {
		return core.ColumnSpec{}, badRequest("column %q of table %q is not auto-increment", name, table.Name)
	}
	return col, nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	q := r.URL.Query()

	res, err := s.service.Stats(r.Context(), id, core.StatsQuery{
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		GroupBy:   q.Get("group_by"),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, res)
}
