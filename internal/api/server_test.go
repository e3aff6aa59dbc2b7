package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcanvas/flowrefine/internal/adapters/cli"
	"github.com/flowcanvas/flowrefine/internal/adapters/history"
	"github.com/flowcanvas/flowrefine/internal/core"
	"github.com/flowcanvas/flowrefine/internal/diff"
	"github.com/flowcanvas/flowrefine/internal/service/refine"
)

// fakeRefiner mimics the pipeline's history contract: success and
// clarification append one round, errors leave history untouched.
type fakeRefiner struct {
	mu        sync.Mutex
	outcome   refine.Outcome
	err       *core.DomainError
	question  string
	workflows []refine.WorkflowRequest
	nested    []refine.NestedFlowRequest
	cancelled []string
}

func (f *fakeRefiner) RefineWorkflow(_ context.Context, req refine.WorkflowRequest) refine.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workflows = append(f.workflows, req)
	return f.result(req.Message, req.History, req.Workflow, nil)
}

func (f *fakeRefiner) RefineNestedFlow(_ context.Context, req refine.NestedFlowRequest) refine.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nested = append(f.nested, req)
	return f.result(req.Message, req.History, nil, req.Flow)
}

func (f *fakeRefiner) result(message string, h *core.ConversationHistory, wf *core.Workflow, flow *core.NestedFlow) refine.Result {
	switch f.outcome {
	case refine.OutcomeError:
		return refine.Result{Outcome: refine.OutcomeError, Error: f.err, Elapsed: 20 * time.Millisecond}
	case refine.OutcomeClarification:
		h.AppendRound(message, f.question)
		return refine.Result{Outcome: refine.OutcomeClarification, Message: f.question}
	default:
		h.AppendRound(message, "Proposed an updated workflow with no changes.")
		summary := diff.Summary{AddedNodes: []diff.NodeChange{}, RemovedNodes: []diff.NodeChange{}, ModifiedNodes: []diff.NodeChange{}}
		return refine.Result{Outcome: refine.OutcomeSuccess, Workflow: wf, NestedFlow: flow, Diff: &summary, Elapsed: 1500 * time.Millisecond}
	}
}

func (f *fakeRefiner) Cancel(_ context.Context, id string) cli.CancelResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return cli.CancelResult{Cancelled: id == "running", Elapsed: 3 * time.Second}
}

type fixture struct {
	refiner *fakeRefiner
	store   *history.MemoryStore
	server  *Server
}

func newFixture(opts ...ServerOption) *fixture {
	f := &fixture{refiner: &fakeRefiner{outcome: refine.OutcomeSuccess}, store: history.NewMemoryStore()}
	opts = append([]ServerOption{WithIDGenerator(func() string { return "generated-id" })}, opts...)
	f.server = NewServer(f.refiner, f.store, opts...)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func sampleWorkflow() *core.Workflow {
	return &core.Workflow{
		ID:   "wf-1",
		Name: "Greeter",
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeTypeStart},
			{ID: "end", Type: core.NodeTypeEnd},
		},
		Connections: []core.Connection{{ID: "c1", From: "start", To: "end"}},
	}
}

func TestServer_Health(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestServer_RefineWorkflowSuccess(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/v1/workflows/wf-1/refine", RefineWorkflowRequest{
		Workflow: sampleWorkflow(),
		Message:  "add a greeting step",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "generated-id", rec.Header().Get(correlationHeader))

	resp := decode[RefineResponse](t, rec)
	assert.Equal(t, refine.OutcomeSuccess, resp.Outcome)
	assert.Equal(t, "generated-id", resp.CorrelationID)
	assert.Equal(t, "No changes", resp.Headline)
	assert.Equal(t, int64(1500), resp.ElapsedMs)
	require.NotNil(t, resp.History)
	assert.Equal(t, 1, resp.History.CurrentIteration)

	require.Len(t, f.refiner.workflows, 1)
	assert.True(t, f.refiner.workflows[0].UseSkills, "skills default on")

	saved, err := f.store.Load(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Len())
}

func TestServer_RefineWorkflowUsesGivenIDsAndFlags(t *testing.T) {
	f := newFixture(WithDefaultUseSkills(true))
	off := false
	wf := sampleWorkflow()
	wf.ID = ""

	rec := f.do(t, http.MethodPost, "/api/v1/workflows/wf-1/refine", RefineWorkflowRequest{
		CorrelationID: "corr-7",
		Workflow:      wf,
		Message:       "tweak",
		UseSkills:     &off,
		TimeoutMs:     2500,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	req := f.refiner.workflows[0]
	assert.Equal(t, "corr-7", req.CorrelationID)
	assert.Equal(t, "wf-1", req.Workflow.ID, "path id fills an empty body id")
	assert.False(t, req.UseSkills)
	assert.Equal(t, 2500*time.Millisecond, req.Timeout)
}

func TestServer_Clarification(t *testing.T) {
	f := newFixture()
	f.refiner.outcome = refine.OutcomeClarification
	f.refiner.question = "Which channel should the greeting go to?"

	rec := f.do(t, http.MethodPost, "/api/v1/workflows/wf-1/refine", RefineWorkflowRequest{
		Workflow: sampleWorkflow(),
		Message:  "send a greeting",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[RefineResponse](t, rec)
	assert.Equal(t, refine.OutcomeClarification, resp.Outcome)
	assert.Equal(t, f.refiner.question, resp.Message)

	saved, err := f.store.Load(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 1, saved.CurrentIteration)
}

func TestServer_RefineErrors(t *testing.T) {
	tests := []struct {
		err    *core.DomainError
		status int
	}{
		{core.ErrCommandNotFound("claude"), http.StatusServiceUnavailable},
		{core.ErrTimeout("took too long"), http.StatusGatewayTimeout},
		{core.ErrParse("no json"), http.StatusBadGateway},
		{core.ErrInvalidWorkflow("bad graph"), http.StatusUnprocessableEntity},
		{core.ErrProhibitedNodeType([]string{"q1 (askUserQuestion)"}), http.StatusUnprocessableEntity},
		{core.ErrCancelled(), http.StatusConflict},
		{core.ErrUnknown("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			f := newFixture()
			f.refiner.outcome = refine.OutcomeError
			f.refiner.err = tt.err

			rec := f.do(t, http.MethodPost, "/api/v1/workflows/wf-1/refine", RefineWorkflowRequest{
				Workflow: sampleWorkflow(),
				Message:  "do it",
			})
			assert.Equal(t, tt.status, rec.Code)

			resp := decode[RefineResponse](t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.err.Code, resp.Error.Code)
			assert.Equal(t, core.UserGuidance(tt.err.Code), resp.Error.Guidance)
			assert.Nil(t, resp.History)

			saved, err := f.store.Load(context.Background(), "wf-1")
			require.NoError(t, err)
			assert.Zero(t, saved.Len(), "errors never touch history")
		})
	}
}

func TestServer_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		path string
		body interface{}
	}{
		{"no workflow", "/api/v1/workflows/wf-1/refine", RefineWorkflowRequest{Message: "x"}},
		{"id mismatch", "/api/v1/workflows/other/refine", RefineWorkflowRequest{Workflow: sampleWorkflow(), Message: "x"}},
		{"blank message", "/api/v1/workflows/wf-1/refine", RefineWorkflowRequest{Workflow: sampleWorkflow(), Message: "   "}},
		{"negative timeout", "/api/v1/workflows/wf-1/refine", RefineWorkflowRequest{Workflow: sampleWorkflow(), Message: "x", TimeoutMs: -1}},
		{"no flow", "/api/v1/workflows/wf-1/nested-flows/f1/refine", RefineNestedFlowRequest{Message: "x"}},
		{"not json", "/api/v1/workflows/wf-1/refine", "just a string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rec := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
			assert.Empty(t, f.refiner.workflows)
			assert.Empty(t, f.refiner.nested)
		})
	}
}

func TestServer_NestedFlowHistoryIsSeparate(t *testing.T) {
	f := newFixture()
	flow := &core.NestedFlow{Nodes: []core.Node{{ID: "s", Type: core.NodeTypeStart}, {ID: "e", Type: core.NodeTypeEnd}}}

	rec := f.do(t, http.MethodPost, "/api/v1/workflows/wf-1/nested-flows/flow-a/refine", RefineNestedFlowRequest{
		Flow:    flow,
		Message: "add a prompt",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, f.refiner.nested, 1)
	assert.Equal(t, "wf-1", f.refiner.nested[0].WorkflowID)
	assert.Equal(t, "flow-a", f.refiner.nested[0].NestedFlowID)

	nested := f.do(t, http.MethodGet, "/api/v1/workflows/wf-1/nested-flows/flow-a/history", nil)
	require.Equal(t, http.StatusOK, nested.Code)
	assert.Equal(t, 1, decode[core.ConversationHistory](t, nested).CurrentIteration)

	parent := f.do(t, http.MethodGet, "/api/v1/workflows/wf-1/history", nil)
	require.Equal(t, http.StatusOK, parent.Code)
	assert.Zero(t, decode[core.ConversationHistory](t, parent).CurrentIteration)
}

func TestServer_ClearHistory(t *testing.T) {
	f := newFixture()
	h := core.NewConversationHistory()
	h.AppendRound("u", "a")
	require.NoError(t, f.store.Save(context.Background(), "wf-1", h))

	rec := f.do(t, http.MethodDelete, "/api/v1/workflows/wf-1/history", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	saved, err := f.store.Load(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Zero(t, saved.Len())
}

func TestServer_BusyKeyConflicts(t *testing.T) {
	f := newFixture()
	release, ok := f.server.lockKey("wf-1")
	require.True(t, ok)

	rec := f.do(t, http.MethodPost, "/api/v1/workflows/wf-1/refine", RefineWorkflowRequest{
		Workflow: sampleWorkflow(),
		Message:  "x",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodDelete, "/api/v1/workflows/wf-1/history", nil).Code)

	release()
	rec = f.do(t, http.MethodPost, "/api/v1/workflows/wf-1/refine", RefineWorkflowRequest{
		Workflow: sampleWorkflow(),
		Message:  "x",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Cancel(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodDelete, "/api/v1/refinements/running", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]interface{}](t, rec)
	assert.Equal(t, true, body["cancelled"])
	assert.Equal(t, float64(3000), body["elapsedMs"])

	rec = f.do(t, http.MethodDelete, "/api/v1/refinements/finished", nil)
	assert.Equal(t, false, decode[map[string]interface{}](t, rec)["cancelled"])
	assert.Equal(t, []string{"running", "finished"}, f.refiner.cancelled)
}

func TestServer_Diff(t *testing.T) {
	f := newFixture()
	proposed := sampleWorkflow()
	proposed.Nodes = append(proposed.Nodes, core.Node{ID: "p1", Type: core.NodeTypePrompt, Name: "Greet"})

	rec := f.do(t, http.MethodPost, "/api/v1/diff", DiffRequest{Baseline: sampleWorkflow(), Proposed: proposed})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[DiffResponse](t, rec)
	assert.Equal(t, 1, resp.TotalChanges)
	require.Len(t, resp.AddedNodes, 1)
	assert.Equal(t, "p1", resp.AddedNodes[0].ID)
	assert.Equal(t, "1 node added", resp.Headline)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/diff", DiffRequest{}).Code)
}

func TestServer_RateLimit(t *testing.T) {
	f := newFixture(WithRateLimiter(NewRateLimiter(0.001, 1)))
	body := RefineWorkflowRequest{Workflow: sampleWorkflow(), Message: "x"}

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/workflows/wf-1/refine", body).Code)

	rec := f.do(t, http.MethodPost, "/api/v1/workflows/wf-1/refine", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/workflows/wf-1/history", nil).Code,
		"history reads are not limited")
}

func TestServer_Metrics(t *testing.T) {
	f := newFixture()
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/metrics", nil).Code)

	mounted := newFixture(WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("flowrefine_refinements_total 1\n"))
	})))
	rec := mounted.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flowrefine_refinements_total")
}

func TestRateLimiter_Refill(t *testing.T) {
	now := time.Unix(1000, 0)
	l := NewRateLimiter(2, 2)
	l.now = func() time.Time { return now }
	l.lastRefill = now

	ok, _ := l.TryAcquire()
	assert.True(t, ok)
	ok, _ = l.TryAcquire()
	assert.True(t, ok)
	ok, wait := l.TryAcquire()
	assert.False(t, ok)
	assert.Equal(t, 500*time.Millisecond, wait)

	now = now.Add(time.Second)
	assert.InDelta(t, 2.0, l.Available(), 1e-9)

	assert.Nil(t, NewRateLimiter(0, 5))
	ok, _ = (*RateLimiter)(nil).TryAcquire()
	assert.True(t, ok)
}
