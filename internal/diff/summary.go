package diff

import (
	"fmt"
	"strings"
)

// Headline returns a one-line description of the summary.
func (s Summary) Headline() string {
	if !s.HasChanges() {
		return "No changes"
	}
	var parts []string
	if s.NameChange != nil {
		parts = append(parts, fmt.Sprintf("renamed to %q", s.NameChange.To))
	}
	add := func(n int, what string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, plural(n, what)))
		}
	}
	add(len(s.AddedNodes), "node added")
	add(len(s.RemovedNodes), "node removed")
	add(len(s.ModifiedNodes), "node modified")
	add(s.AddedConnections, "connection added")
	add(s.RemovedConnections, "connection removed")

	prefix := ""
	if s.IsNewWorkflow {
		prefix = "New workflow: "
	}
	return prefix + strings.Join(parts, ", ")
}

func plural(n int, what string) string {
	if n == 1 {
		return what
	}
	noun, rest, _ := strings.Cut(what, " ")
	return noun + "s " + rest
}
