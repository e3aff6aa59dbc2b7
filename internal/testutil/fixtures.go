package testutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/flowcanvas/flowrefine/internal/core"
)

// FixedTime is a stable timestamp for fixtures.
var FixedTime = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

// StartEndWorkflow returns a freshly created workflow with only a start and
// an end node.
func StartEndWorkflow(id string) *core.Workflow {
	return &core.Workflow{
		ID:      id,
		Name:    "Untitled",
		Version: "1.0.0",
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeTypeStart, Name: "Start", Position: core.Position{X: 100, Y: 200}},
			{ID: "end", Type: core.NodeTypeEnd, Name: "End", Position: core.Position{X: 600, Y: 200}},
		},
		Connections: []core.Connection{},
		CreatedAt:   FixedTime,
		UpdatedAt:   FixedTime,
	}
}

// LinearWorkflow returns start -> prompt -> end.
func LinearWorkflow(id string) *core.Workflow {
	wf := StartEndWorkflow(id)
	wf.Name = "Summarize"
	wf.Nodes = []core.Node{
		wf.Nodes[0],
		{
			ID:       "prompt-1",
			Type:     core.NodeTypePrompt,
			Name:     "Summarize input",
			Position: core.Position{X: 350, Y: 200},
			Data:     json.RawMessage(`{"prompt":"Summarize the text","model":"sonnet"}`),
		},
		wf.Nodes[1],
	}
	wf.Connections = []core.Connection{
		{ID: "c1", From: "start", FromPort: "out", To: "prompt-1", ToPort: "in"},
		{ID: "c2", From: "prompt-1", FromPort: "out", To: "end", ToPort: "in"},
	}
	return wf
}

// SampleCatalogue returns a small catalogue with one name present in both scopes.
func SampleCatalogue() core.SkillCatalogue {
	return core.SkillCatalogue{
		Personal: []core.SkillReference{
			{Name: "git-commit", Description: "Write conventional commit messages", Scope: core.SkillScopePersonal, Path: "/home/u/.claude/skills/git-commit/SKILL.md", Status: core.SkillStatusValid},
			{Name: "pdf-extract", Description: "Extract text and tables from PDF files", Scope: core.SkillScopePersonal, Path: "/home/u/.claude/skills/pdf-extract/SKILL.md", Status: core.SkillStatusValid},
		},
		Project: []core.SkillReference{
			{Name: "pdf-extract", Description: "Project PDF extraction with OCR", Scope: core.SkillScopeProject, Path: "/repo/.claude/skills/pdf-extract/SKILL.md", Status: core.SkillStatusValid},
			{Name: "slack-notify", Description: "Post a summary message to a Slack channel", Scope: core.SkillScopeProject, Path: "/repo/.claude/skills/slack-notify/SKILL.md", Status: core.SkillStatusValid},
		},
	}
}

// MustJSON marshals v or fails the test.
func MustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshaling fixture: %v", err)
	}
	return string(data)
}

// Fence wraps s in a ```json fenced block.
func Fence(s string) string {
	return "```json\n" + s + "\n```"
}
