package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/policyingest/internal/core"
)

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

// historyResponse is the GET /uploads body.
type historyResponse struct {
	Runs []core.IngestRun `json:"runs"`
}

// handleHistory lists recent ingestions, newest first. ?limit= bounds the
// page size.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.History(r.Context(), parseIntParam(r, "limit", core.DefaultHistoryLimit))
	if errors.Is(err, core.ErrHistoryDisabled) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []core.IngestRun{}
	}
	writeJSON(w, historyResponse{Runs: runs})
}
