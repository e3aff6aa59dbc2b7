package core

import (
	"encoding/json"
	"time"
)

// NodeType tags the kind of a workflow node.
type NodeType string

const (
	NodeTypeStart           NodeType = "start"
	NodeTypeEnd             NodeType = "end"
	NodeTypePrompt          NodeType = "prompt"
	NodeTypeSubAgent        NodeType = "subAgent"
	NodeTypeAskUserQuestion NodeType = "askUserQuestion"
	NodeTypeIfElse          NodeType = "ifElse"
	NodeTypeSwitch          NodeType = "switch"
	NodeTypeSkill           NodeType = "skill"
	NodeTypeMCP             NodeType = "mcp"
	NodeTypeSubAgentFlow    NodeType = "subAgentFlow"
)

// AllNodeTypes lists the full node vocabulary in display order.
func AllNodeTypes() []NodeType {
	return []NodeType{
		NodeTypeStart,
		NodeTypeEnd,
		NodeTypePrompt,
		NodeTypeSubAgent,
		NodeTypeAskUserQuestion,
		NodeTypeIfElse,
		NodeTypeSwitch,
		NodeTypeSkill,
		NodeTypeMCP,
		NodeTypeSubAgentFlow,
	}
}

// IsKnown reports whether t belongs to the node vocabulary.
func (t NodeType) IsKnown() bool {
	for _, known := range AllNodeTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// IsBoundary reports whether t is a start or terminal type.
func (t NodeType) IsBoundary() bool {
	return t == NodeTypeStart || t == NodeTypeEnd
}

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a graph vertex. Data is kept as raw JSON so that nodes the
// pipeline does not touch round-trip unchanged.
type Node struct {
	ID       string          `json:"id" validate:"required"`
	Type     NodeType        `json:"type" validate:"required"`
	Name     string          `json:"name,omitempty"`
	Position Position        `json:"position"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// DisplayName returns the node name, falling back to its id.
func (n Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// Connection is a directed edge between two node ports.
type Connection struct {
	ID       string `json:"id"`
	From     string `json:"from" validate:"required"`
	FromPort string `json:"fromPort,omitempty"`
	To       string `json:"to" validate:"required"`
	ToPort   string `json:"toPort,omitempty"`
}

// Workflow is a graph of typed nodes and directed connections.
type Workflow struct {
	ID          string         `json:"id" validate:"required"`
	Name        string         `json:"name"`
	Version     string         `json:"version,omitempty"`
	Nodes       []Node         `json:"nodes" validate:"dive"`
	Connections []Connection   `json:"connections" validate:"dive"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// NodeByID returns the node with the given id.
func (w *Workflow) NodeByID(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Clone returns a deep copy of the workflow.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	out := *w
	out.Nodes = cloneNodes(w.Nodes)
	out.Connections = append([]Connection(nil), w.Connections...)
	if w.Metadata != nil {
		out.Metadata = make(map[string]any, len(w.Metadata))
		for k, v := range w.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// NestedFlow is a constrained graph fragment embedded in a workflow node.
// It has no identity of its own.
type NestedFlow struct {
	Nodes       []Node       `json:"nodes" validate:"dive"`
	Connections []Connection `json:"connections" validate:"dive"`
}

// Clone returns a deep copy of the fragment.
func (f *NestedFlow) Clone() *NestedFlow {
	if f == nil {
		return nil
	}
	return &NestedFlow{
		Nodes:       cloneNodes(f.Nodes),
		Connections: append([]Connection(nil), f.Connections...),
	}
}

// AsWorkflow wraps the fragment in a workflow shell so that graph-level
// tooling (diff, validation) can operate on it.
func (f *NestedFlow) AsWorkflow(id string) *Workflow {
	return &Workflow{
		ID:          id,
		Nodes:       f.Nodes,
		Connections: f.Connections,
	}
}

func cloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n
		if n.Data != nil {
			out[i].Data = append(json.RawMessage(nil), n.Data...)
		}
	}
	return out
}

// CountNodes counts nodes of type t.
func CountNodes(nodes []Node, t NodeType) int {
	count := 0
	for _, n := range nodes {
		if n.Type == t {
			count++
		}
	}
	return count
}
