package skills

import (
	"encoding/json"

	"github.com/flowcanvas/flowrefine/internal/core"
)

// Skill node data keys written by the resolver.
const (
	keyName             = "name"
	keyScope            = "scope"
	keySkillPath        = "skillPath"
	keyValidationStatus = "validationStatus"
)

// ResolveReport lists skill node ids by resolution outcome.
type ResolveReport struct {
	Valid      []string `json:"valid,omitempty"`
	Missing    []string `json:"missing,omitempty"`
	Unresolved []string `json:"unresolved,omitempty"`
}

// Total returns the number of skill nodes seen.
func (r ResolveReport) Total() int {
	return len(r.Valid) + len(r.Missing) + len(r.Unresolved)
}

// Resolve matches every skill node against the catalogue and stamps its
// path and validation status. Non-skill nodes are returned untouched and
// unknown data keys on skill nodes are preserved. The input is not mutated.
func Resolve(nodes []core.Node, catalogue core.SkillCatalogue) ([]core.Node, ResolveReport) {
	var report ResolveReport
	if nodes == nil {
		return nil, report
	}

	out := make([]core.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n
		if n.Type != core.NodeTypeSkill {
			continue
		}

		data, status := resolveNode(n.Data, catalogue)
		if data != nil {
			out[i].Data = data
		}
		switch status {
		case core.SkillStatusValid:
			report.Valid = append(report.Valid, n.ID)
		case core.SkillStatusMissing:
			report.Missing = append(report.Missing, n.ID)
		default:
			report.Unresolved = append(report.Unresolved, n.ID)
		}
	}
	return out, report
}

// resolveNode returns rewritten data (nil when the original cannot be
// rewritten) and the resolution status.
func resolveNode(raw json.RawMessage, catalogue core.SkillCatalogue) (json.RawMessage, core.SkillStatus) {
	fields := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			return nil, core.SkillStatusUnresolved
		}
	}

	name := stringField(fields, keyName)
	scope := core.SkillScope(stringField(fields, keyScope))

	var status core.SkillStatus
	switch ref, ok := catalogue.Lookup(name, scope); {
	case name == "":
		status = core.SkillStatusUnresolved
	case ok:
		status = core.SkillStatusValid
		fields[keySkillPath] = mustRaw(ref.Path)
		if scope == "" {
			fields[keyScope] = mustRaw(string(ref.Scope))
		}
	default:
		status = core.SkillStatusMissing
		delete(fields, keySkillPath)
	}
	fields[keyValidationStatus] = mustRaw(string(status))

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, status
	}
	return data, status
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func mustRaw(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
