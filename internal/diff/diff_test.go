package diff

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcanvas/flowrefine/internal/core"
	"github.com/flowcanvas/flowrefine/internal/testutil"
)

func TestCompute_IdenticalGraphs(t *testing.T) {
	base := testutil.LinearWorkflow("wf")
	s := ComputeWorkflows(base, base.Clone())

	assert.Zero(t, s.TotalChanges)
	assert.False(t, s.HasChanges())
	assert.Nil(t, s.NameChange)
	assert.Empty(t, s.AddedNodes)
	assert.False(t, s.IsNewWorkflow)
	assert.Equal(t, "No changes", s.Headline())
}

func TestCompute_AddedNode(t *testing.T) {
	base := testutil.LinearWorkflow("wf")
	next := base.Clone()
	next.Nodes = append(next.Nodes, core.Node{ID: "skill-1", Type: core.NodeTypeSkill, Name: "PDF"})

	s := ComputeWorkflows(base, next)

	require.Len(t, s.AddedNodes, 1)
	assert.Equal(t, NodeChange{ID: "skill-1", Name: "PDF", Type: core.NodeTypeSkill}, s.AddedNodes[0])
	assert.Equal(t, 1, s.TotalChanges)
}

func TestCompute_Rename(t *testing.T) {
	base := testutil.LinearWorkflow("wf")
	next := base.Clone()
	next.Name = "Summarize v2"

	s := ComputeWorkflows(base, next)

	require.NotNil(t, s.NameChange)
	assert.Equal(t, NameChange{From: "Summarize", To: "Summarize v2"}, *s.NameChange)
	assert.Equal(t, 1, s.TotalChanges)
	assert.Equal(t, `renamed to "Summarize v2"`, s.Headline())
}

func TestCompute_NewWorkflow(t *testing.T) {
	base := testutil.StartEndWorkflow("wf")
	s := ComputeWorkflows(base, testutil.LinearWorkflow("wf"))

	assert.True(t, s.IsNewWorkflow)
	assert.Len(t, s.AddedNodes, 1)
	assert.Equal(t, 2, s.AddedConnections)
	assert.Equal(t, "New workflow: renamed to \"Summarize\", 1 node added, 2 connections added", s.Headline())

	assert.True(t, Compute(nil, nil, "", &core.Workflow{}).IsNewWorkflow)
	assert.False(t, ComputeWorkflows(testutil.LinearWorkflow("wf"), nil).IsNewWorkflow)
}

func TestCompute_ModifiedNodes(t *testing.T) {
	base := testutil.LinearWorkflow("wf")

	tests := []struct {
		name     string
		mutate   func(n *core.Node)
		modified bool
	}{
		{"data reordered", func(n *core.Node) { n.Data = json.RawMessage(`{ "model":"sonnet", "prompt":"Summarize the text" }`) }, false},
		{"position moved", func(n *core.Node) { n.Position = core.Position{X: 1, Y: 2} }, false},
		{"name only", func(n *core.Node) { n.Name = "Other" }, false},
		{"data changed", func(n *core.Node) { n.Data = json.RawMessage(`{"prompt":"Translate","model":"sonnet"}`) }, true},
		{"type changed", func(n *core.Node) { n.Type = core.NodeTypeSubAgent }, true},
		{"data dropped", func(n *core.Node) { n.Data = nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := base.Clone()
			tt.mutate(&next.Nodes[1])
			s := ComputeWorkflows(base, next)
			if tt.modified {
				require.Len(t, s.ModifiedNodes, 1)
				assert.Equal(t, "prompt-1", s.ModifiedNodes[0].ID)
			} else {
				assert.Empty(t, s.ModifiedNodes)
			}
		})
	}
}

func TestCompute_RemovedNodeAndConnections(t *testing.T) {
	base := testutil.LinearWorkflow("wf")
	next := base.Clone()
	next.Nodes = []core.Node{next.Nodes[0], next.Nodes[2]}
	next.Connections = []core.Connection{{ID: "c9", From: "start", To: "end"}}

	s := ComputeWorkflows(base, next)

	require.Len(t, s.RemovedNodes, 1)
	assert.Equal(t, "prompt-1", s.RemovedNodes[0].ID)
	assert.Equal(t, 1, s.AddedConnections)
	assert.Equal(t, 2, s.RemovedConnections)
	assert.Equal(t, 4, s.TotalChanges)
}

func TestCompute_ConnectionKeyIgnoresID(t *testing.T) {
	base := testutil.LinearWorkflow("wf")
	next := base.Clone()
	for i := range next.Connections {
		next.Connections[i].ID = "renamed"
	}
	assert.False(t, ComputeWorkflows(base, next).HasChanges())

	next.Connections[0].FromPort = ""
	s := ComputeWorkflows(base, next)
	assert.Equal(t, 1, s.AddedConnections)
	assert.Equal(t, 1, s.RemovedConnections)
}

func TestCompute_DuplicateConnectionsCountOnce(t *testing.T) {
	base := testutil.LinearWorkflow("wf")
	dup := base.Connections[0]
	dup.ID = "c1-dup"
	baseConns := append(append([]core.Connection{}, base.Connections...), dup)

	s := Compute(base.Nodes, baseConns, base.Name, base.Clone())
	assert.Zero(t, s.RemovedConnections)
	assert.Zero(t, s.AddedConnections)
	assert.Zero(t, s.TotalChanges)

	next := base.Clone()
	next.Connections = append(next.Connections, dup)
	s = ComputeWorkflows(base, next)
	assert.Zero(t, s.AddedConnections)
	assert.False(t, s.HasChanges())
}

func TestCompute_DeterministicOrder(t *testing.T) {
	base := testutil.StartEndWorkflow("wf")
	next := base.Clone()
	for _, id := range []string{"z", "a", "m"} {
		next.Nodes = append(next.Nodes, core.Node{ID: id, Type: core.NodeTypePrompt})
	}

	s := ComputeWorkflows(base, next)
	ids := []string{}
	for _, n := range s.AddedNodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"z", "a", "m"}, ids)
	assert.Equal(t, "z", s.AddedNodes[0].Name, "display name falls back to id")
}
