package web

// errors.go provides unified error response handling for the web layer.
//
// Technical errors are logged with the request id and returned to clients
// as user-friendly messages with a code from core.MapError. Ingestion
// results use their own bodies (see handlers.go) because their shape is
// part of the upload contract.

import (
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/policyingest/internal/core"
	"github.com/JonMunkholm/policyingest/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes the mapped user message as JSON. Errors
// with a known mapping are expected (bad input, busy, database down) and log
// at warn; anything that falls through to the generic message logs at error.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userErr := core.NewUserError(err)

	level := slog.LevelError
	if core.IsUserFacing(err) {
		level = slog.LevelWarn
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", userErr.Technical.Error(),
		"code", userErr.User.Code,
	)

	writeJSONStatus(w, statusCode, ErrorResponse{
		Error:   userErr.User.Message,
		Message: userErr.User.Message,
		Action:  userErr.User.Action,
		Code:    userErr.User.Code,
	})
}
