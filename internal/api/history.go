package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowcanvas/flowrefine/internal/core"
)

func historyKey(r *http.Request) string {
	return core.HistoryKey(chi.URLParam(r, "workflowID"), chi.URLParam(r, "flowID"))
}

// handleGetHistory returns the conversation for a workflow or nested flow.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.history.Load(r.Context(), historyKey(r))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

// handleClearHistory drops the conversation for a workflow or nested flow.
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	key := historyKey(r)
	release, ok := s.lockKey(key)
	if !ok {
		respondError(w, http.StatusConflict, "a refinement is running for this conversation")
		return
	}
	defer release()

	if err := s.history.Clear(r.Context(), key); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
