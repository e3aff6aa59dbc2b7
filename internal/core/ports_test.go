package core

import (
	"strings"
	"testing"
)

func TestSchema_CanonicalJSON_Deterministic(t *testing.T) {
	s := &Schema{Raw: map[string]interface{}{"b": 1, "a": map[string]interface{}{"z": true, "y": false}}}
	first, err := s.CanonicalJSON()
	if err != nil {
		t.Fatalf("CanonicalJSON() error = %v", err)
	}
	second, _ := s.CanonicalJSON()
	if first != second {
		t.Fatalf("expected identical output")
	}
	if strings.Index(first, `"a"`) > strings.Index(first, `"b"`) {
		t.Errorf("keys not sorted: %s", first)
	}

	var empty *Schema
	if out, _ := empty.CanonicalJSON(); out != "{}" {
		t.Errorf("nil schema = %q, want {}", out)
	}
}

func TestHistoryKey(t *testing.T) {
	if HistoryKey("wf", "") != "wf" {
		t.Errorf("expected bare workflow key")
	}
	if HistoryKey("wf", "flow") != "wf/flow" {
		t.Errorf("expected nested key")
	}
}

func TestValidationResult_Messages(t *testing.T) {
	r := ValidationResult{Errors: []ValidationIssue{{Message: "one"}, {Message: "two"}}}
	if got := strings.Join(r.Messages(), ","); got != "one,two" {
		t.Errorf("Messages() = %q", got)
	}
}
