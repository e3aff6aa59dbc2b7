// Package diff compares a baseline workflow graph with a proposed one and
// summarises what a refinement would change.
package diff

import (
	"bytes"
	"encoding/json"

	"github.com/flowcanvas/flowrefine/internal/core"
)

// NameChange records a workflow rename.
type NameChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// NodeChange identifies a node in a summary list.
type NodeChange struct {
	ID   string        `json:"id"`
	Name string        `json:"name"`
	Type core.NodeType `json:"type"`
}

// Summary describes the differences between two graphs.
type Summary struct {
	NameChange         *NameChange  `json:"nameChange,omitempty"`
	AddedNodes         []NodeChange `json:"addedNodes"`
	RemovedNodes       []NodeChange `json:"removedNodes"`
	ModifiedNodes      []NodeChange `json:"modifiedNodes"`
	AddedConnections   int          `json:"addedConnections"`
	RemovedConnections int          `json:"removedConnections"`
	TotalChanges       int          `json:"totalChanges"`
	IsNewWorkflow      bool         `json:"isNewWorkflow"`
}

// HasChanges reports whether anything differs.
func (s Summary) HasChanges() bool {
	return s.TotalChanges > 0
}

type connKey struct {
	from, fromPort, to, toPort string
}

func keyOf(c core.Connection) connKey {
	return connKey{from: c.From, fromPort: c.FromPort, to: c.To, toPort: c.ToPort}
}

// Compute diffs the baseline graph against proposed. Nodes are matched by
// id; a node is modified when its type or its data differs, ignoring key
// order and whitespace. Position changes are not reported. Connections are
// matched by endpoints and ports.
func Compute(baselineNodes []core.Node, baselineConnections []core.Connection, baselineName string, proposed *core.Workflow) Summary {
	s := Summary{
		AddedNodes:    []NodeChange{},
		RemovedNodes:  []NodeChange{},
		ModifiedNodes: []NodeChange{},
		IsNewWorkflow: isNewWorkflow(baselineNodes, baselineConnections),
	}
	if proposed == nil {
		proposed = &core.Workflow{Name: baselineName}
	}

	if baselineName != proposed.Name {
		s.NameChange = &NameChange{From: baselineName, To: proposed.Name}
	}

	base := make(map[string]core.Node, len(baselineNodes))
	for _, n := range baselineNodes {
		base[n.ID] = n
	}
	next := make(map[string]bool, len(proposed.Nodes))

	for _, n := range proposed.Nodes {
		next[n.ID] = true
		old, ok := base[n.ID]
		switch {
		case !ok:
			s.AddedNodes = append(s.AddedNodes, changeOf(n))
		case old.Type != n.Type || !sameData(old.Data, n.Data):
			s.ModifiedNodes = append(s.ModifiedNodes, changeOf(n))
		}
	}
	for _, n := range baselineNodes {
		if !next[n.ID] {
			s.RemovedNodes = append(s.RemovedNodes, changeOf(n))
		}
	}

	s.AddedConnections, s.RemovedConnections = diffConnections(baselineConnections, proposed.Connections)

	if s.NameChange != nil {
		s.TotalChanges++
	}
	s.TotalChanges += len(s.AddedNodes) + len(s.RemovedNodes) + len(s.ModifiedNodes)
	s.TotalChanges += s.AddedConnections + s.RemovedConnections
	return s
}

// ComputeWorkflows is Compute with both sides given as workflows.
func ComputeWorkflows(baseline, proposed *core.Workflow) Summary {
	if baseline == nil {
		baseline = &core.Workflow{}
	}
	return Compute(baseline.Nodes, baseline.Connections, baseline.Name, proposed)
}

func changeOf(n core.Node) NodeChange {
	return NodeChange{ID: n.ID, Name: n.DisplayName(), Type: n.Type}
}

// diffConnections compares the connection sets of both sides. Duplicate
// edges count once.
func diffConnections(baseline, proposed []core.Connection) (added, removed int) {
	base := connSet(baseline)
	next := connSet(proposed)
	for k := range next {
		if _, ok := base[k]; !ok {
			added++
		}
	}
	for k := range base {
		if _, ok := next[k]; !ok {
			removed++
		}
	}
	return added, removed
}

func connSet(conns []core.Connection) map[connKey]struct{} {
	set := make(map[connKey]struct{}, len(conns))
	for _, c := range conns {
		set[keyOf(c)] = struct{}{}
	}
	return set
}

// isNewWorkflow reports whether the baseline is the initial start/end shell.
func isNewWorkflow(nodes []core.Node, conns []core.Connection) bool {
	if len(nodes) > 2 || len(conns) > 0 {
		return false
	}
	for _, n := range nodes {
		if !n.Type.IsBoundary() {
			return false
		}
	}
	return true
}

func sameData(a, b json.RawMessage) bool {
	if bytes.Equal(a, b) {
		return true
	}
	ca, errA := canonical(a)
	cb, errB := canonical(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

// canonical re-encodes raw JSON with sorted keys and no insignificant
// whitespace. Empty input and null are equivalent.
func canonical(raw json.RawMessage) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null"), nil
	}
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
