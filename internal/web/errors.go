package web

// errors.go turns engine and request errors into JSON responses.
//
// Every error is logged with the request id and its technical detail, then
// mapped through core.MapError to a coded message for the client. The HTTP
// status is derived from the error kind:
//   - validation kinds (format, duplicate, prefix, schema, sheet) → 400
//   - not found → 404
//   - import limiter saturated → 429
//   - oversized upload → 413
//   - anything else → 500

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/sheetbase/internal/core"
	"github.com/JonMunkholm/sheetbase/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// requestError is a malformed request detected before reaching the service.
type requestError struct {
	status int
	msg    string
	err    error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *requestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

// respondError logs err and writes the coded JSON error.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	userMsg := core.MapError(err)
	status := statusFor(err, userMsg)

	var reqErr *requestError
	if errors.As(err, &reqErr) && userMsg.Code == "ERR000" {
		userMsg = core.UserMessage{Message: reqErr.msg, Action: "Check the request and try again", Code: "REQ001"}
	}

	log := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request error", "path", r.URL.Path, "method", r.Method, "status", status, "error", err, "code", userMsg.Code)
	} else {
		log.Warn("request rejected", "path", r.URL.Path, "method", r.Method, "status", status, "error", err, "code", userMsg.Code)
	}

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "5")
	}
	writeJSONStatus(w, status, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

func statusFor(err error, msg core.UserMessage) int {
	var reqErr *requestError
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &reqErr):
		return reqErr.status
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusTooManyRequests
	case core.IsValidation(err):
		return http.StatusBadRequest
	case core.IsKind(err, core.KindNotFound):
		return http.StatusNotFound
	}

	switch msg.Code {
	case "DB001":
		return http.StatusConflict
	case "FILE001":
		return http.StatusRequestEntityTooLarge
	case "FILE002", "FILE003":
		return http.StatusBadRequest
	case "IMP003":
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeJSON encodes v as JSON with a 200 status.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON. Encoding errors are only logged since
// the header is already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &requestError{status: http.StatusBadRequest, msg: "invalid request body", err: err}
	}
	return nil
}
