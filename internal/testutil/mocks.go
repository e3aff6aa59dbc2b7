package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/flowcanvas/flowrefine/internal/core"
)

// MockCall records a call to a mock.
type MockCall struct {
	Method    string
	Args      interface{}
	Timestamp time.Time
}

type callRecorder struct {
	mu    sync.Mutex
	calls []MockCall
}

func (r *callRecorder) record(method string, args interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, MockCall{Method: method, Args: args, Timestamp: time.Now()})
}

// Calls returns a copy of the recorded calls.
func (r *callRecorder) Calls() []MockCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MockCall(nil), r.calls...)
}

// MockSchemaLoader implements core.SchemaLoader.
type MockSchemaLoader struct {
	callRecorder
	Schema *core.Schema
	Err    error
	Delay  time.Duration
}

// LoadSchema returns the configured schema or error.
func (m *MockSchemaLoader) LoadSchema(ctx context.Context, path string) (*core.Schema, error) {
	m.record("LoadSchema", path)
	if err := sleepCtx(ctx, m.Delay); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Schema == nil {
		return &core.Schema{Source: "mock", Raw: map[string]interface{}{"type": "object"}}, nil
	}
	return m.Schema, nil
}

// MockSkillScanner implements core.SkillScanner.
type MockSkillScanner struct {
	callRecorder
	Catalogue core.SkillCatalogue
	Err       error
}

// Scan returns the configured catalogue or error.
func (m *MockSkillScanner) Scan(ctx context.Context) (core.SkillCatalogue, error) {
	m.record("Scan", nil)
	if err := ctx.Err(); err != nil {
		return core.SkillCatalogue{}, err
	}
	return m.Catalogue, m.Err
}

// MockValidator implements core.WorkflowValidator.
type MockValidator struct {
	callRecorder
	Result core.ValidationResult
}

// Validate returns the configured result, valid by default.
func (m *MockValidator) Validate(wf *core.Workflow) core.ValidationResult {
	m.record("Validate", wf)
	if m.Result.Errors == nil && !m.Result.Valid {
		return core.ValidationResult{Valid: true}
	}
	return m.Result
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
