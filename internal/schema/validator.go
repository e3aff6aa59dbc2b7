package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"

	"github.com/flowcanvas/flowrefine/internal/core"
)

// Issue codes reported by Validator.
const (
	IssueSchema        = "schema"
	IssueField         = "field"
	IssueDuplicateNode = "duplicate_node"
	IssueDanglingEdge  = "dangling_connection"
	IssueStartCount    = "start_count"
	IssueMissingEnd    = "missing_end"
	IssueUnknownType   = "unknown_node_type"
	IssueEncoding      = "encoding"
	IssueNilWorkflow   = "nil_workflow"
)

// Validator checks proposed workflows structurally and semantically.
type Validator struct {
	schema   *gojsonschema.Schema
	validate *validator.Validate
}

// NewValidator compiles the embedded workflow schema.
func NewValidator() (*Validator, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(defaultSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compiling workflow schema: %w", err)
	}
	return &Validator{schema: s, validate: validator.New()}, nil
}

// Validate runs JSON Schema validation, struct tag validation, and graph
// checks, in that order, collecting every issue.
func (v *Validator) Validate(wf *core.Workflow) core.ValidationResult {
	if wf == nil {
		return invalid([]core.ValidationIssue{{Code: IssueNilWorkflow, Message: "workflow is nil"}})
	}

	var issues []core.ValidationIssue
	issues = append(issues, v.schemaIssues(wf)...)
	issues = append(issues, v.structIssues(wf)...)
	issues = append(issues, graphIssues(wf)...)

	if len(issues) > 0 {
		return invalid(issues)
	}
	return core.ValidationResult{Valid: true}
}

func invalid(issues []core.ValidationIssue) core.ValidationResult {
	return core.ValidationResult{Valid: false, Errors: issues}
}

func (v *Validator) schemaIssues(wf *core.Workflow) []core.ValidationIssue {
	doc := *wf
	if doc.Nodes == nil {
		doc.Nodes = []core.Node{}
	}
	if doc.Connections == nil {
		doc.Connections = []core.Connection{}
	}
	data, err := json.Marshal(&doc)
	if err != nil {
		return []core.ValidationIssue{{Code: IssueEncoding, Message: fmt.Sprintf("encoding workflow: %v", err)}}
	}

	res, err := v.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return []core.ValidationIssue{{Code: IssueEncoding, Message: fmt.Sprintf("schema validation: %v", err)}}
	}
	var issues []core.ValidationIssue
	for _, e := range res.Errors() {
		issues = append(issues, core.ValidationIssue{
			Code:    IssueSchema,
			Message: fmt.Sprintf("%s: %s", e.Field(), e.Description()),
			Path:    e.Field(),
		})
	}
	return issues
}

func (v *Validator) structIssues(wf *core.Workflow) []core.ValidationIssue {
	err := v.validate.Struct(wf)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []core.ValidationIssue{{Code: IssueField, Message: err.Error()}}
	}
	issues := make([]core.ValidationIssue, 0, len(verrs))
	for _, fe := range verrs {
		path := strings.TrimPrefix(fe.Namespace(), "Workflow.")
		issues = append(issues, core.ValidationIssue{
			Code:    IssueField,
			Message: fmt.Sprintf("%s failed %q", path, fe.Tag()),
			Path:    path,
		})
	}
	return issues
}

func graphIssues(wf *core.Workflow) []core.ValidationIssue {
	var issues []core.ValidationIssue
	ids := make(map[string]bool, len(wf.Nodes))

	for i, n := range wf.Nodes {
		path := fmt.Sprintf("nodes.%d", i)
		if n.ID != "" && ids[n.ID] {
			issues = append(issues, core.ValidationIssue{
				Code:    IssueDuplicateNode,
				Message: fmt.Sprintf("duplicate node id %q", n.ID),
				Path:    path + ".id",
			})
		}
		ids[n.ID] = true
		if n.Type != "" && !n.Type.IsKnown() {
			issues = append(issues, core.ValidationIssue{
				Code:    IssueUnknownType,
				Message: fmt.Sprintf("node %q has unknown type %q", n.ID, n.Type),
				Path:    path + ".type",
			})
		}
	}

	for i, c := range wf.Connections {
		path := fmt.Sprintf("connections.%d", i)
		if c.From != "" && !ids[c.From] {
			issues = append(issues, core.ValidationIssue{
				Code:    IssueDanglingEdge,
				Message: fmt.Sprintf("connection %s references unknown source node %q", connLabel(c, i), c.From),
				Path:    path + ".from",
			})
		}
		if c.To != "" && !ids[c.To] {
			issues = append(issues, core.ValidationIssue{
				Code:    IssueDanglingEdge,
				Message: fmt.Sprintf("connection %s references unknown target node %q", connLabel(c, i), c.To),
				Path:    path + ".to",
			})
		}
	}

	if starts := core.CountNodes(wf.Nodes, core.NodeTypeStart); starts != 1 {
		issues = append(issues, core.ValidationIssue{
			Code:    IssueStartCount,
			Message: fmt.Sprintf("workflow must have exactly one start node, found %d", starts),
			Path:    "nodes",
		})
	}
	if core.CountNodes(wf.Nodes, core.NodeTypeEnd) == 0 {
		issues = append(issues, core.ValidationIssue{
			Code:    IssueMissingEnd,
			Message: "workflow must have at least one end node",
			Path:    "nodes",
		})
	}
	return issues
}

func connLabel(c core.Connection, i int) string {
	if c.ID != "" {
		return c.ID
	}
	return fmt.Sprintf("#%d", i)
}

var _ core.WorkflowValidator = (*Validator)(nil)
