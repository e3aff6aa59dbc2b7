package refine

import (
	"fmt"

	"github.com/flowcanvas/flowrefine/internal/core"
	"github.com/flowcanvas/flowrefine/internal/service"
)

// Mode names.
const (
	ModeWorkflow   = "workflow"
	ModeNestedFlow = "nestedFlow"
)

// DefaultMaxNestedNodes caps the size of a nested flow.
const DefaultMaxNestedNodes = 30

// Mode parameterises the refinement pipeline for one target shape.
type Mode struct {
	Name               string
	RequiredFields     []string
	ProhibitedTypes    []core.NodeType
	MaxNodes           int
	RequireStartEnd    bool
	ResolveSkills      bool
	SemanticValidation bool
	Template           string
}

// WorkflowMode refines a whole workflow.
func WorkflowMode() Mode {
	return Mode{
		Name:               ModeWorkflow,
		RequiredFields:     []string{"id", "nodes", "connections"},
		ResolveSkills:      true,
		SemanticValidation: true,
		Template:           service.TemplateRefineWorkflow,
	}
}

// NestedFlowMode refines a nested flow of at most maxNodes nodes. A
// non-positive cap selects DefaultMaxNestedNodes.
func NestedFlowMode(maxNodes int) Mode {
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNestedNodes
	}
	return Mode{
		Name:           ModeNestedFlow,
		RequiredFields: []string{"nodes", "connections"},
		ProhibitedTypes: []core.NodeType{
			core.NodeTypeSubAgent,
			core.NodeTypeSubAgentFlow,
			core.NodeTypeAskUserQuestion,
		},
		MaxNodes:        maxNodes,
		RequireStartEnd: true,
		Template:        service.TemplateRefineNestedFlow,
	}
}

// Constraints returns the prompt constraints, or nil for unconstrained modes.
func (m Mode) Constraints() *service.NestedConstraints {
	if len(m.ProhibitedTypes) == 0 && m.MaxNodes == 0 && !m.RequireStartEnd {
		return nil
	}
	return &service.NestedConstraints{
		ProhibitedTypes: m.ProhibitedTypes,
		MaxNodes:        m.MaxNodes,
		RequireStartEnd: m.RequireStartEnd,
	}
}

// CheckNodes enforces the mode's structural rules. Prohibited types are
// reported before the node cap, and the cap before the start/end rule.
func (m Mode) CheckNodes(nodes []core.Node) *core.DomainError {
	if len(m.ProhibitedTypes) > 0 {
		banned := make(map[core.NodeType]bool, len(m.ProhibitedTypes))
		for _, t := range m.ProhibitedTypes {
			banned[t] = true
		}
		var offenders []string
		for _, n := range nodes {
			if banned[n.Type] {
				offenders = append(offenders, fmt.Sprintf("%s (%s)", n.ID, n.Type))
			}
		}
		if len(offenders) > 0 {
			return core.ErrProhibitedNodeType(offenders)
		}
	}

	if m.MaxNodes > 0 && len(nodes) > m.MaxNodes {
		return core.ErrInvalidWorkflow(fmt.Sprintf("nested flow has %d nodes, the maximum is %d", len(nodes), m.MaxNodes)).
			WithDetail("node_count", len(nodes)).
			WithDetail("max_nodes", m.MaxNodes)
	}

	if m.RequireStartEnd {
		starts := core.CountNodes(nodes, core.NodeTypeStart)
		ends := core.CountNodes(nodes, core.NodeTypeEnd)
		if starts != 1 {
			return core.ErrInvalidWorkflow(fmt.Sprintf("nested flow must have exactly one start node, found %d", starts))
		}
		if ends < 1 {
			return core.ErrInvalidWorkflow("nested flow must have at least one end node")
		}
	}
	return nil
}
