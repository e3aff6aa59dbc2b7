package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/flowcanvas/flowrefine/internal/core"
	"github.com/flowcanvas/flowrefine/internal/diff"
	"github.com/flowcanvas/flowrefine/internal/service/refine"
	"github.com/flowcanvas/flowrefine/internal/skills"
)

const correlationHeader = "X-Correlation-ID"

// maxBodyBytes bounds refine request bodies. Messages alone may be 100k
// characters, and the workflow rides along.
const maxBodyBytes = 8 << 20

// RefineWorkflowRequest is the body of a workflow refine call.
type RefineWorkflowRequest struct {
	CorrelationID string         `json:"correlationId,omitempty"`
	Workflow      *core.Workflow `json:"workflow"`
	Message       string         `json:"message"`
	UseSkills     *bool          `json:"useSkills,omitempty"`
	TimeoutMs     int64          `json:"timeoutMs,omitempty"`
}

// RefineNestedFlowRequest is the body of a nested flow refine call.
type RefineNestedFlowRequest struct {
	CorrelationID string           `json:"correlationId,omitempty"`
	Flow          *core.NestedFlow `json:"flow"`
	Message       string           `json:"message"`
	UseSkills     *bool            `json:"useSkills,omitempty"`
	TimeoutMs     int64            `json:"timeoutMs,omitempty"`
}

// RefineResponse is returned by both refine endpoints.
type RefineResponse struct {
	CorrelationID string                    `json:"correlationId"`
	Outcome       refine.Outcome            `json:"outcome"`
	Workflow      *core.Workflow            `json:"workflow,omitempty"`
	NestedFlow    *core.NestedFlow          `json:"nestedFlow,omitempty"`
	Message       string                    `json:"message,omitempty"`
	Diff          *diff.Summary             `json:"diff,omitempty"`
	Headline      string                    `json:"headline,omitempty"`
	Skills        *skills.ResolveReport     `json:"skills,omitempty"`
	History       *core.ConversationHistory `json:"history,omitempty"`
	Error         *errorBody                `json:"error,omitempty"`
	ElapsedMs     int64                     `json:"elapsedMs"`
}

func newCorrelationID() string {
	return uuid.NewString()
}

func (s *Server) correlationID(r *http.Request, fromBody string) string {
	if id := strings.TrimSpace(fromBody); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.Header.Get(correlationHeader)); id != "" {
		return id
	}
	return s.newID()
}

func (s *Server) skillsFlag(v *bool) bool {
	if v == nil {
		return s.useSkills
	}
	return *v
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func validateMessage(w http.ResponseWriter, message string) bool {
	if strings.TrimSpace(message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return false
	}
	if len([]rune(message)) > core.MaxMessageLength {
		respondError(w, http.StatusBadRequest, "message is too long")
		return false
	}
	return true
}

// handleRefineWorkflow refines a whole workflow and persists the round.
func (s *Server) handleRefineWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")

	var req RefineWorkflowRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Workflow == nil {
		respondError(w, http.StatusBadRequest, "workflow is required")
		return
	}
	if req.Workflow.ID == "" {
		req.Workflow.ID = workflowID
	}
	if req.Workflow.ID != workflowID {
		respondError(w, http.StatusBadRequest, "workflow id does not match path")
		return
	}
	if !validateMessage(w, req.Message) {
		return
	}
	if req.TimeoutMs < 0 {
		respondError(w, http.StatusBadRequest, "timeoutMs must be non-negative")
		return
	}

	key := core.HistoryKey(workflowID, "")
	release, ok := s.lockKey(key)
	if !ok {
		respondError(w, http.StatusConflict, "a refinement is already running for this workflow")
		return
	}
	defer release()

	history, err := s.history.Load(r.Context(), key)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	id := s.correlationID(r, req.CorrelationID)
	w.Header().Set(correlationHeader, id)

	res := s.refiner.RefineWorkflow(r.Context(), refine.WorkflowRequest{
		CorrelationID: id,
		Workflow:      req.Workflow,
		Message:       req.Message,
		History:       history,
		UseSkills:     s.skillsFlag(req.UseSkills),
		Timeout:       time.Duration(req.TimeoutMs) * time.Millisecond,
	})
	s.finishRefine(w, r, key, id, history, res)
}

// handleRefineNestedFlow refines one nested flow of a workflow.
func (s *Server) handleRefineNestedFlow(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")
	flowID := chi.URLParam(r, "flowID")

	var req RefineNestedFlowRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Flow == nil {
		respondError(w, http.StatusBadRequest, "flow is required")
		return
	}
	if !validateMessage(w, req.Message) {
		return
	}
	if req.TimeoutMs < 0 {
		respondError(w, http.StatusBadRequest, "timeoutMs must be non-negative")
		return
	}

	key := core.HistoryKey(workflowID, flowID)
	release, ok := s.lockKey(key)
	if !ok {
		respondError(w, http.StatusConflict, "a refinement is already running for this nested flow")
		return
	}
	defer release()

	history, err := s.history.Load(r.Context(), key)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	id := s.correlationID(r, req.CorrelationID)
	w.Header().Set(correlationHeader, id)

	res := s.refiner.RefineNestedFlow(r.Context(), refine.NestedFlowRequest{
		CorrelationID: id,
		WorkflowID:    workflowID,
		NestedFlowID:  flowID,
		Flow:          req.Flow,
		Message:       req.Message,
		History:       history,
		UseSkills:     s.skillsFlag(req.UseSkills),
		Timeout:       time.Duration(req.TimeoutMs) * time.Millisecond,
	})
	s.finishRefine(w, r, key, id, history, res)
}

// finishRefine saves the history after a successful or clarification round
// and writes the response.
func (s *Server) finishRefine(w http.ResponseWriter, r *http.Request, key, id string, history *core.ConversationHistory, res refine.Result) {
	resp := RefineResponse{
		CorrelationID: id,
		Outcome:       res.Outcome,
		Workflow:      res.Workflow,
		NestedFlow:    res.NestedFlow,
		Message:       res.Message,
		Diff:          res.Diff,
		Skills:        res.Skills,
		ElapsedMs:     res.Elapsed.Milliseconds(),
	}
	if res.Diff != nil {
		resp.Headline = res.Diff.Headline()
	}

	if res.Outcome == refine.OutcomeError {
		resp.Error = errorBodyFor(res.Error)
		code := core.CodeUnknownError
		if res.Error != nil {
			code = res.Error.Code
		}
		respondJSON(w, httpStatusForCode(code), resp)
		return
	}

	// The round has already been appended; a cancelled request context
	// must not lose it.
	if err := s.history.Save(context.WithoutCancel(r.Context()), key, history); err != nil {
		s.logger.WithRequest(id).Error("saving history failed", "key", key, "error", err)
		respondStoreError(w, err)
		return
	}
	resp.History = history
	respondJSON(w, http.StatusOK, resp)
}

// handleCancel cancels an in-flight refinement by correlation id.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "correlationID")
	res := s.refiner.Cancel(r.Context(), id)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"correlationId": id,
		"cancelled":     res.Cancelled,
		"elapsedMs":     res.Elapsed.Milliseconds(),
	})
}
