package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetbase/internal/config"
	"github.com/JonMunkholm/sheetbase/internal/core"
	"github.com/JonMunkholm/sheetbase/internal/store/memory"
	"github.com/JonMunkholm/sheetbase/internal/workbook"
)

type caller struct {
	id   int64
	role string
}

var (
	anonymous = caller{}
	admin     = caller{1, core.RoleAdmin}
	leader    = caller{2, core.RoleLeader}
	member    = caller{3, core.RoleMember}
)

type testServer struct {
	srv     *Server
	service *core.Service
	cfg     *config.Config
}

func newTestServer(t *testing.T, tweak func(*config.Config)) *testServer {
	t.Helper()
	cfg, err := config.LoadFrom(func(key string) (string, bool) {
		if key == "DB_DRIVER" {
			return config.DriverSQLite, true
		}
		return "", false
	})
	require.NoError(t, err)
	if tweak != nil {
		tweak(cfg)
	}

	store := memory.New()
	t.Cleanup(func() { store.Close() })
	svc := core.NewService(store, workbook.Codec{}, core.Options{
		MaxConcurrent: cfg.Import.MaxConcurrent,
		MaxWaitTime:   cfg.Import.MaxWaitTime,
	})
	return &testServer{srv: NewServer(svc, cfg), service: svc, cfg: cfg}
}

func (ts *testServer) do(t *testing.T, as caller, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	return ts.serve(as, req)
}

func (ts *testServer) upload(t *testing.T, as caller, path, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return ts.serve(as, req)
}

func (ts *testServer) serve(as caller, req *http.Request) *httptest.ResponseRecorder {
	if as.id != 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(as.id, 10))
		req.Header.Set("X-User-Role", as.role)
	}
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) createTable(t *testing.T, name string) core.TableSchema {
	t.Helper()
	rec := ts.do(t, admin, http.MethodPost, "/api/v1/tables", createTableRequest{
		Name: name,
		Columns: []core.ColumnSpec{
			{Name: "code", DataType: "string", AutoIncrement: true, Prefix: "SAMPLE"},
			{Name: "name", DataType: "string"},
			{Name: "qty", DataType: "number"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[core.TableSchema](t, rec)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, code, resp.Code)
	assert.NotEmpty(t, resp.Message)
}

func tablePath(id int64, rest string) string {
	return "/api/v1/tables/" + strconv.FormatInt(id, 10) + rest
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, anonymous, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[healthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Imports.MaxConcurrent)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestAPIRequiresIdentity(t *testing.T) {
	ts := newTestServer(t, nil)

	assertError(t, ts.do(t, anonymous, http.MethodGet, "/api/v1/tables", nil), http.StatusUnauthorized, "AUTH003")

	rec := ts.do(t, member, http.MethodGet, "/api/v1/tables", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestAPIKey(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"secret"}
	})

	assertError(t, ts.do(t, member, http.MethodGet, "/api/v1/tables", nil), http.StatusUnauthorized, "AUTH001")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tables", nil)
	req.Header.Set("X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, ts.serve(member, req).Code)

	assert.Equal(t, http.StatusOK, ts.do(t, anonymous, http.MethodGet, "/health", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tables", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := ts.serve(anonymous, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestTableLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	table := ts.createTable(t, "stock")
	assert.Equal(t, "stock", table.Name)
	assert.Len(t, table.Columns, 3)

	t.Run("members cannot create", func(t *testing.T) {
		rec := ts.do(t, member, http.MethodPost, "/api/v1/tables", createTableRequest{
			Name:    "other",
			Columns: []core.ColumnSpec{{Name: "a", DataType: "string"}},
		})
		assertError(t, rec, http.StatusForbidden, "AUTH005")
	})

	t.Run("list and get", func(t *testing.T) {
		rec := ts.do(t, member, http.MethodGet, "/api/v1/tables", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]core.TableSchema](t, rec), 1)

		rec = ts.do(t, member, http.MethodGet, tablePath(table.ID, ""), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "stock", decode[core.TableSchema](t, rec).Name)
	})

	t.Run("missing and malformed ids", func(t *testing.T) {
		assertError(t, ts.do(t, member, http.MethodGet, tablePath(999, ""), nil), http.StatusNotFound, "TBL001")
		assertError(t, ts.do(t, member, http.MethodGet, "/api/v1/tables/abc", nil), http.StatusBadRequest, "REQ001")
	})

	t.Run("duplicate name", func(t *testing.T) {
		rec := ts.do(t, admin, http.MethodPost, "/api/v1/tables", createTableRequest{
			Name:    "stock",
			Columns: []core.ColumnSpec{{Name: "a", DataType: "string"}},
		})
		assertError(t, rec, http.StatusBadRequest, "SCH001")
	})

	t.Run("rename", func(t *testing.T) {
		name := "inventory"
		rec := ts.do(t, leader, http.MethodPut, tablePath(table.ID, ""), core.TableUpdate{Name: &name})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "inventory", decode[core.TableSchema](t, rec).Name)
	})

	t.Run("delete", func(t *testing.T) {
		assertError(t, ts.do(t, leader, http.MethodDelete, tablePath(table.ID, ""), nil), http.StatusForbidden, "AUTH005")

		rec := ts.do(t, admin, http.MethodDelete, tablePath(table.ID, ""), nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assertError(t, ts.do(t, member, http.MethodGet, tablePath(table.ID, ""), nil), http.StatusNotFound, "TBL001")
	})
}

func TestCreateTableValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		body any
		code string
	}{
		{
			name: "missing data type",
			body: createTableRequest{Name: "t", Columns: []core.ColumnSpec{{Name: "a"}}},
			code: "SCH001",
		},
		{
			name: "no columns",
			body: createTableRequest{Name: "t"},
			code: "SCH001",
		},
		{
			name: "unknown field",
			body: map[string]any{"table_name": "t", "colums": []any{}},
			code: "REQ001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertError(t, ts.do(t, admin, http.MethodPost, "/api/v1/tables", tt.body), http.StatusBadRequest, tt.code)
		})
	}
}

func TestRows(t *testing.T) {
	ts := newTestServer(t, nil)
	table := ts.createTable(t, "stock")
	rows := tablePath(table.ID, "/rows")

	var first core.Row
	t.Run("insert allocates", func(t *testing.T) {
		rec := ts.do(t, member, http.MethodPost, rows, rowRequest{Data: core.FieldValues{"name": "bolt", "code": "ignored"}})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		first = decode[core.Row](t, rec)
		assert.Equal(t, "SAMPLE1", first.Values["code"])
		assert.Equal(t, member.id, first.CreatedBy)

		rec = ts.do(t, member, http.MethodPost, rows, rowRequest{Data: core.FieldValues{"name": "nut"}})
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "SAMPLE2", decode[core.Row](t, rec).Values["code"])
	})

	t.Run("unknown key", func(t *testing.T) {
		rec := ts.do(t, member, http.MethodPost, rows, rowRequest{Data: core.FieldValues{"colour": "red"}})
		assertError(t, rec, http.StatusBadRequest, "SCH001")
	})

	t.Run("list pages newest first", func(t *testing.T) {
		rec := ts.do(t, member, http.MethodGet, rows+"?page=1&per_page=1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		page := decode[core.RowPage](t, rec)
		assert.Equal(t, int64(2), page.Total)
		require.Len(t, page.Rows, 1)
		assert.Equal(t, "SAMPLE2", page.Rows[0].Values["code"])
	})

	t.Run("get and update", func(t *testing.T) {
		path := rows + "/" + strconv.FormatInt(first.ID, 10)
		rec := ts.do(t, member, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "bolt", decode[core.Row](t, rec).Values["name"])

		rec = ts.do(t, member, http.MethodPut, path, rowRequest{Data: core.FieldValues{"code": "SAMPLE1", "name": "large bolt"}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "large bolt", decode[core.Row](t, rec).Values["name"])

		assertError(t, ts.do(t, member, http.MethodGet, rows+"/999", nil), http.StatusNotFound, "TBL001")
	})

	t.Run("batch insert isolates failures", func(t *testing.T) {
		rec := ts.do(t, member, http.MethodPost, rows+"/batch", batchInsertRequest{Items: []core.FieldValues{
			{"name": "washer"},
			{"bogus": "x"},
			{"name": "screw"},
		}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		res := decode[core.BatchResult](t, rec)
		assert.Equal(t, 2, res.SuccessCount)
		assert.Equal(t, 1, res.FailCount)
		assert.Len(t, res.Errors, 1)

		assertError(t, ts.do(t, member, http.MethodPost, rows+"/batch", batchInsertRequest{}), http.StatusBadRequest, "REQ001")
	})

	t.Run("delete", func(t *testing.T) {
		path := rows + "/" + strconv.FormatInt(first.ID, 10)
		assertError(t, ts.do(t, member, http.MethodDelete, path, nil), http.StatusForbidden, "AUTH005")
		assert.Equal(t, http.StatusNoContent, ts.do(t, leader, http.MethodDelete, path, nil).Code)

		rec := ts.do(t, member, http.MethodGet, rows, nil)
		page := decode[core.RowPage](t, rec)
		require.Equal(t, int64(3), page.Total)

		ids := make([]int64, 0, len(page.Rows))
		for _, r := range page.Rows {
			ids = append(ids, r.ID)
		}
		rec = ts.do(t, leader, http.MethodPost, rows+"/batch-delete", batchDeleteRequest{IDs: ids})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, map[string]int64{"deleted": 3}, decode[map[string]int64](t, rec))
	})
}

func TestAutoIncrementEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, admin, http.MethodPost, "/api/v1/tables", createTableRequest{
		Name: "orders",
		Columns: []core.ColumnSpec{
			{Name: "ref", DataType: "string"},
			{Name: "code", DataType: "string", AutoIncrement: true, Prefix: "ORD-"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	table := decode[core.TableSchema](t, rec)

	for _, ref := range []string{"R1", "R2"} {
		rec := ts.do(t, member, http.MethodPost, tablePath(table.ID, "/rows"), rowRequest{Data: core.FieldValues{"ref": ref}})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	t.Run("check consistent column", func(t *testing.T) {
		rec := ts.do(t, member, http.MethodPost, tablePath(table.ID, "/check-auto-increment"), columnRequest{Column: "ref"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		res := decode[core.ConsistencyResult](t, rec)
		assert.Equal(t, "R", res.Prefix)
		assert.Equal(t, int64(2), res.MaxValue)
	})

	t.Run("check duplicates", func(t *testing.T) {
		rec := ts.do(t, member, http.MethodPost, tablePath(table.ID, "/rows"), rowRequest{Data: core.FieldValues{"ref": "R2"}})
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = ts.do(t, member, http.MethodPost, tablePath(table.ID, "/check-auto-increment"), columnRequest{Column: "ref"})
		assertError(t, rec, http.StatusBadRequest, "AUTO002")
	})

	t.Run("check requires column", func(t *testing.T) {
		rec := ts.do(t, member, http.MethodPost, tablePath(table.ID, "/check-auto-increment"), columnRequest{})
		assertError(t, rec, http.StatusBadRequest, "REQ001")
	})

	t.Run("sequences", func(t *testing.T) {
		rec := ts.do(t, member, http.MethodGet, tablePath(table.ID, "/sequences"), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		seqs := decode[[]core.Sequence](t, rec)
		require.Len(t, seqs, 1)
		assert.Equal(t, "code", seqs[0].ColumnName)
		assert.Equal(t, int64(3), seqs[0].CurrentValue)
	})

	t.Run("allocate", func(t *testing.T) {
		rec := ts.do(t, leader, http.MethodPost, tablePath(table.ID, "/allocate"), columnRequest{Column: "code"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, map[string]string{"value": "ORD-4"}, decode[map[string]string](t, rec))

		rec = ts.do(t, leader, http.MethodPost, tablePath(table.ID, "/allocate"), columnRequest{Column: "ref"})
		assertError(t, rec, http.StatusBadRequest, "REQ001")
		rec = ts.do(t, member, http.MethodPost, tablePath(table.ID, "/allocate"), columnRequest{Column: "code"})
		assertError(t, rec, http.StatusForbidden, "AUTH005")
	})

	t.Run("reconcile drops unused allocations", func(t *testing.T) {
		rec := ts.do(t, leader, http.MethodPost, tablePath(table.ID, "/sequences/reconcile"), columnRequest{Column: "code"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, int64(3), decode[core.Sequence](t, rec).CurrentValue)
	})
}

func TestStats(t *testing.T) {
	ts := newTestServer(t, nil)
	table := ts.createTable(t, "stock")
	for _, name := range []string{"bolt", "nut", "bolt"} {
		rec := ts.do(t, member, http.MethodPost, tablePath(table.ID, "/rows"), rowRequest{Data: core.FieldValues{"name": name}})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	stats := "/api/v1/reports/" + strconv.FormatInt(table.ID, 10) + "/stats"

	rec := ts.do(t, member, http.MethodGet, stats+"?group_by=name", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[core.StatsResult](t, rec)
	assert.Equal(t, []core.StatBucket{{Group: "bolt", Count: 2}, {Group: "nut", Count: 1}}, res.Stats)

	rec = ts.do(t, member, http.MethodGet, stats, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res = decode[core.StatsResult](t, rec)
	require.Len(t, res.Stats, 1)
	assert.Equal(t, 3, res.Stats[0].Count)

	assertError(t, ts.do(t, member, http.MethodGet, stats+"?start_date=June", nil), http.StatusBadRequest, "SCH001")
}

func TestCSVTransfer(t *testing.T) {
	ts := newTestServer(t, nil)
	table := ts.createTable(t, "stock items")
	rec := ts.do(t, member, http.MethodPost, tablePath(table.ID, "/rows"), rowRequest{Data: core.FieldValues{"name": "bolt", "qty": "4"}})
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("export", func(t *testing.T) {
		rec := ts.do(t, member, http.MethodGet, tablePath(table.ID, "/export"), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, contentTypeCSV, rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="stock_items.csv"`, rec.Header().Get("Content-Disposition"))
		assert.Equal(t, "code,name,qty\r\nSAMPLE1,bolt,4\r\n", rec.Body.String())
	})

	t.Run("import reconciles", func(t *testing.T) {
		csv := "code,name,qty\nSAMPLE9,nut,1\nSAMPLE10,short\n"
		rec := ts.upload(t, leader, tablePath(table.ID, "/import"), "file", "stock.csv", []byte(csv))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		res := decode[core.BatchResult](t, rec)
		assert.Equal(t, 1, res.SuccessCount)
		assert.Equal(t, 1, res.FailCount)

		rec = ts.do(t, member, http.MethodPost, tablePath(table.ID, "/rows"), rowRequest{Data: core.FieldValues{"name": "washer"}})
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "SAMPLE10", decode[core.Row](t, rec).Values["code"])
	})

	t.Run("header mismatch", func(t *testing.T) {
		rec := ts.upload(t, leader, tablePath(table.ID, "/import"), "file", "stock.csv", []byte("name,code,qty\n"))
		assertError(t, rec, http.StatusBadRequest, "SHEET001")
	})

	t.Run("no file", func(t *testing.T) {
		rec := ts.upload(t, leader, tablePath(table.ID, "/import"), "attachment", "stock.csv", []byte("x"))
		assertError(t, rec, http.StatusBadRequest, "FILE003")
	})

	t.Run("members cannot import", func(t *testing.T) {
		rec := ts.upload(t, member, tablePath(table.ID, "/import"), "file", "stock.csv", []byte("code,name,qty\n"))
		assertError(t, rec, http.StatusForbidden, "AUTH005")
	})
}

func TestWorkbookTransfer(t *testing.T) {
	ts := newTestServer(t, nil)
	table := ts.createTable(t, "stock")
	for _, name := range []string{"bolt", "nut"} {
		rec := ts.do(t, member, http.MethodPost, tablePath(table.ID, "/rows"), rowRequest{Data: core.FieldValues{"name": name}})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := ts.do(t, member, http.MethodGet, "/api/v1/export-all-data", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, contentTypeXLSX, rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), `attachment; filename="sheetbase-export-`))
	exported := rec.Body.Bytes()

	rec = ts.do(t, admin, http.MethodDelete, "/api/v1/tables", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int64{"deleted": 1}, decode[map[string]int64](t, rec))

	rec = ts.upload(t, leader, "/api/v1/import-data", "file", "export.xlsx", exported)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[core.ImportResult](t, rec)
	require.Len(t, res.Sheets, 1)
	assert.Equal(t, core.SheetSuccess, res.Sheets[0].Status)
	assert.Equal(t, 2, res.Sheets[0].SuccessCount)

	rec = ts.do(t, member, http.MethodGet, "/api/v1/tables", nil)
	tables := decode[[]core.TableSchema](t, rec)
	require.Len(t, tables, 1)

	rec = ts.do(t, member, http.MethodPost, tablePath(tables[0].ID, "/rows"), rowRequest{Data: core.FieldValues{"name": "washer"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "SAMPLE3", decode[core.Row](t, rec).Values["code"])

	t.Run("garbage upload", func(t *testing.T) {
		rec := ts.upload(t, leader, "/api/v1/import-data", "file", "notes.xlsx", []byte("plain text"))
		assertError(t, rec, http.StatusBadRequest, "FILE002")
	})
}

func TestUploadTooLarge(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.Import.MaxFileSize = 256 })

	rec := ts.upload(t, leader, "/api/v1/import-data", "file", "big.xlsx", bytes.Repeat([]byte("x"), 4096))
	assertError(t, rec, http.StatusRequestEntityTooLarge, "FILE001")
}

func TestImportBusy(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.Import.MaxWaitTime = 10 * time.Millisecond })

	require.NoError(t, ts.service.Limiter().Acquire(context.Background()))
	defer ts.service.Limiter().Release()

	rec := ts.do(t, member, http.MethodGet, "/api/v1/import-status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[core.ImportLimiterStatus](t, rec).Active)

	rec = ts.upload(t, leader, "/api/v1/import-data", "file", "export.xlsx", []byte("irrelevant"))
	assertError(t, rec, http.StatusTooManyRequests, "IMP001")
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
}

func TestOperations(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createTable(t, "stock")

	assertError(t, ts.do(t, leader, http.MethodGet, "/api/v1/operations", nil), http.StatusForbidden, "AUTH005")

	rec := ts.do(t, admin, http.MethodGet, "/api/v1/operations?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ops := decode[[]core.Operation](t, rec)
	require.Len(t, ops, 1)
	assert.Equal(t, core.ActionTableCreate, ops[0].Action)
	assert.Equal(t, admin.id, ops[0].UserID)
}

func TestCSVFilename(t *testing.T) {
	tests := map[string]string{
		"stock":       "stock.csv",
		"stock items": "stock_items.csv",
		`a"b/c`:       "a_b_c.csv",
		"":            "table.csv",
		"***":         "table.csv",
		"q3-2024.v2":  "q3-2024.v2.csv",
	}
	for in, want := range tests {
		if got := csvFilename(in); got != want {
			t.Errorf("csvFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
