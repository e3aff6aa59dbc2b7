package core

import (
	"context"
	"encoding/json"
)

// =============================================================================
// Schema Port
// =============================================================================

// Schema is a loaded structural schema document. Raw holds the decoded
// document so it can be re-rendered deterministically.
type Schema struct {
	Source string
	Raw    map[string]interface{}
}

// CanonicalJSON renders the schema with sorted keys and stable indentation.
func (s *Schema) CanonicalJSON() (string, error) {
	if s == nil || s.Raw == nil {
		return "{}", nil
	}
	// encoding/json sorts map keys, which makes the output deterministic.
	data, err := json.MarshalIndent(s.Raw, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SchemaLoader loads the workflow schema document.
type SchemaLoader interface {
	LoadSchema(ctx context.Context, path string) (*Schema, error)
}

// =============================================================================
// Skill Port
// =============================================================================

// SkillScanner produces the current skill catalogue.
type SkillScanner interface {
	Scan(ctx context.Context) (SkillCatalogue, error)
}

// =============================================================================
// Validation Port
// =============================================================================

// ValidationIssue is one semantic problem found in a workflow.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// ValidationResult reports the outcome of semantic validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// Messages returns the issue messages in order.
func (r ValidationResult) Messages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, issue := range r.Errors {
		out = append(out, issue.Message)
	}
	return out
}

// WorkflowValidator performs semantic validation of a workflow.
type WorkflowValidator interface {
	Validate(workflow *Workflow) ValidationResult
}

// =============================================================================
// History Port
// =============================================================================

// HistoryStore persists conversation histories keyed by refinement target.
// Load returns an empty history when nothing is stored for key.
type HistoryStore interface {
	Load(ctx context.Context, key string) (*ConversationHistory, error)
	Save(ctx context.Context, key string, history *ConversationHistory) error
	Clear(ctx context.Context, key string) error
}

// HistoryKey builds the store key for a workflow or one of its nested flows.
func HistoryKey(workflowID, nestedFlowID string) string {
	if nestedFlowID == "" {
		return workflowID
	}
	return workflowID + "/" + nestedFlowID
}
