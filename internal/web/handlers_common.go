package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sheetbase/internal/core"
)

// multipartMemory is how much of an upload is held in memory before
// spilling to a temp file.
const multipartMemory = 32 << 20

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// idParam parses a positive int64 URL path parameter.
func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid %s %q", name, raw)
	}
	return id, nil
}

// userID is the caller's id. RequireIdentity guarantees one on API routes.
func userID(r *http.Request) int64 {
	id, _ := core.IdentityFromContext(r.Context())
	return id.UserID
}

// openUpload caps the request body at the configured size and returns the
// multipart "file" part. The caller closes the file.
func (s *Server) openUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			return nil, nil, fmt.Errorf("file too large (max %d bytes): %w", maxSize, err)
		}
		return nil, nil, &requestError{status: http.StatusBadRequest, msg: "invalid multipart form", err: err}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, &requestError{status: http.StatusBadRequest, msg: "no file provided", err: err}
	}
	return file, header, nil
}

// attachment sets the download headers and copies body to w.
func attachment(w http.ResponseWriter, contentType, filename string, body io.Reader) error {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, err := io.Copy(w, body)
	return err
}
