package refine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcanvas/flowrefine/internal/core"
)

func nestedNodes(extra ...core.Node) []core.Node {
	nodes := []core.Node{
		{ID: "start", Type: core.NodeTypeStart},
		{ID: "p1", Type: core.NodeTypePrompt},
		{ID: "end", Type: core.NodeTypeEnd},
	}
	return append(nodes, extra...)
}

func TestNestedFlowMode_CheckNodes(t *testing.T) {
	mode := NestedFlowMode(0)
	require.Equal(t, DefaultMaxNestedNodes, mode.MaxNodes)

	assert.Nil(t, mode.CheckNodes(nestedNodes()))

	err := mode.CheckNodes(nestedNodes(
		core.Node{ID: "agent-7", Type: core.NodeTypeSubAgent},
		core.Node{ID: "q", Type: core.NodeTypeAskUserQuestion},
	))
	require.NotNil(t, err)
	assert.Equal(t, core.CodeProhibitedNodeType, err.Code)
	assert.Equal(t, []string{"agent-7 (subAgent)", "q (askUserQuestion)"}, err.Details["offenders"])
	assert.Contains(t, err.Message, "agent-7")
}

func TestNestedFlowMode_ProhibitedWinsOverOtherRules(t *testing.T) {
	mode := NestedFlowMode(3)
	nodes := []core.Node{{ID: "flow", Type: core.NodeTypeSubAgentFlow}}
	for i := 0; i < 10; i++ {
		nodes = append(nodes, core.Node{ID: fmt.Sprintf("p%d", i), Type: core.NodeTypePrompt})
	}
	err := mode.CheckNodes(nodes)
	require.NotNil(t, err)
	assert.Equal(t, core.CodeProhibitedNodeType, err.Code)
}

func TestNestedFlowMode_Validation(t *testing.T) {
	mode := NestedFlowMode(4)

	tests := []struct {
		name  string
		nodes []core.Node
	}{
		{"over cap", nestedNodes(core.Node{ID: "p2", Type: core.NodeTypePrompt}, core.Node{ID: "p3", Type: core.NodeTypePrompt})},
		{"no start", []core.Node{{ID: "end", Type: core.NodeTypeEnd}}},
		{"two starts", nestedNodes(core.Node{ID: "s2", Type: core.NodeTypeStart})},
		{"no end", []core.Node{{ID: "start", Type: core.NodeTypeStart}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mode.CheckNodes(tt.nodes)
			require.NotNil(t, err)
			assert.Equal(t, core.CodeValidationError, err.Code)
		})
	}
}

func TestWorkflowMode(t *testing.T) {
	mode := WorkflowMode()
	assert.Nil(t, mode.Constraints())
	assert.Nil(t, mode.CheckNodes([]core.Node{{ID: "a", Type: core.NodeTypeSubAgent}}))
	assert.True(t, mode.ResolveSkills)
	assert.Equal(t, []string{"id", "nodes", "connections"}, mode.RequiredFields)

	c := NestedFlowMode(0).Constraints()
	require.NotNil(t, c)
	assert.Equal(t, 30, c.MaxNodes)
	assert.True(t, c.RequireStartEnd)
}
