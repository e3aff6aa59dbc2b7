package api

import (
	"net/http"

	"github.com/flowcanvas/flowrefine/internal/core"
	"github.com/flowcanvas/flowrefine/internal/diff"
)

// DiffRequest compares two workflows.
type DiffRequest struct {
	Baseline *core.Workflow `json:"baseline"`
	Proposed *core.Workflow `json:"proposed"`
}

// DiffResponse is a change summary and its one-line description.
type DiffResponse struct {
	diff.Summary
	Headline string `json:"headline"`
}

// handleDiff summarises the changes between two workflows.
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	var req DiffRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Baseline == nil {
		respondError(w, http.StatusBadRequest, "baseline is required")
		return
	}

	summary := diff.ComputeWorkflows(req.Baseline, req.Proposed)
	respondJSON(w, http.StatusOK, DiffResponse{Summary: summary, Headline: summary.Headline()})
}
