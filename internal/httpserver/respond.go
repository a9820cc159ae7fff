package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorResponse is the standard JSON error envelope. RequestID carries the
// chi request ID (see router.go's middleware.RequestID) so a caller can hand
// it to support/ops without needing to re-grep the server logs for it.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// RespondError writes a JSON error response for a booking/showing or admin
// API failure, tagging it with the request ID from context when present.
func RespondError(w http.ResponseWriter, r *http.Request, status int, err string, message string) {
	Respond(w, status, ErrorResponse{
		Error:     err,
		Message:   message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}
