package refine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Kind is the classification of a tool response.
type Kind string

const (
	KindClarification Kind = "clarification"
	KindWorkflowJSON  Kind = "workflowJSON"
)

// Classification is the result of Classify. Text is set for
// clarifications; Value and Raw for workflow JSON. Raw holds the object
// exactly as the tool wrote it.
type Classification struct {
	Kind  Kind
	Text  string
	Value map[string]json.RawMessage
	Raw   json.RawMessage
}

// ParseError reports tool output that could not be turned into JSON.
type ParseError struct {
	Reason  string
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var fencedBlockRe = regexp.MustCompile("(?s)```[ \\t]*(?i:json)?[ \\t]*\\r?\\n(.*?)```")

var defaultPatternExprs = []string{
	`\b(could|can|would) you (please )?(clarify|specify|explain|elaborate)\b`,
	`\bplease (clarify|specify|provide|confirm|elaborate)\b`,
	`\bneed(s)? (some |a bit of )?clarification\b`,
	`\bambigu(ous|ity)\b`,
	`\bunclear\b`,
	`\bwhich (one|option|approach|of (these|the following))\b`,
	`\bwould you like me to\b`,
	`\bdo you want me to\b`,
	`\bshould i\b.*\?`,
	`\bi need more (information|details|context)\b`,
	`\bnot (sure|clear) (what|which|how|whether)\b`,
}

// DefaultPatterns returns the clarification-intent patterns used when none
// are injected.
func DefaultPatterns() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(defaultPatternExprs))
	for i, expr := range defaultPatternExprs {
		out[i] = regexp.MustCompile("(?i)" + expr)
	}
	return out
}

// CompilePatterns compiles case-insensitive clarification patterns.
func CompilePatterns(exprs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, fmt.Errorf("compiling clarification pattern %q: %w", expr, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Classifier separates clarification questions from workflow JSON.
type Classifier struct {
	patterns []*regexp.Regexp
}

// NewClassifier creates a classifier. Nil patterns select DefaultPatterns.
func NewClassifier(patterns []*regexp.Regexp) *Classifier {
	if patterns == nil {
		patterns = DefaultPatterns()
	}
	return &Classifier{patterns: patterns}
}

// Classify inspects raw tool output. Any clarification pattern match in the
// prose wins over JSON that may also be present.
func (c *Classifier) Classify(raw string) (Classification, error) {
	if strings.TrimSpace(raw) == "" {
		return Classification{}, &ParseError{Reason: "empty output"}
	}

	if c.IsClarification(raw) {
		text := ClarificationText(raw)
		return Classification{Kind: KindClarification, Text: text}, nil
	}

	obj, value, err := extractObject(raw)
	if err != nil {
		return Classification{}, err
	}
	return Classification{Kind: KindWorkflowJSON, Value: value, Raw: json.RawMessage(obj)}, nil
}

// IsClarification reports whether the prose part of raw, with fenced blocks
// and a trailing raw JSON object removed, matches a clarification pattern.
func (c *Classifier) IsClarification(raw string) bool {
	prose := ClarificationText(raw)
	if prose == "" {
		return false
	}
	for _, re := range c.patterns {
		if re.MatchString(prose) {
			return true
		}
	}
	return false
}

// ClarificationText strips fenced blocks and any trailing raw JSON object,
// returning the remaining trimmed prose.
func ClarificationText(raw string) string {
	text := fencedBlockRe.ReplaceAllString(raw, "")
	text = stripTrailingJSON(text)
	return strings.TrimSpace(text)
}

// stripTrailingJSON removes the outermost JSON object that runs to the end
// of text.
func stripTrailingJSON(text string) string {
	trimmed := strings.TrimRight(text, " \t\r\n")
	if !strings.HasSuffix(trimmed, "}") {
		return text
	}
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] != '{' {
			continue
		}
		if json.Valid([]byte(trimmed[i:])) {
			return trimmed[:i]
		}
	}
	return text
}

// ExtractJSON returns the top-level JSON object in raw. A fenced block is
// preferred; otherwise the whole trimmed output is parsed, falling back to
// the first balanced object embedded in surrounding prose.
func ExtractJSON(raw string) (map[string]json.RawMessage, error) {
	_, value, err := extractObject(raw)
	return value, err
}

// extractObject is ExtractJSON that also returns the object's source text.
func extractObject(raw string) (string, map[string]json.RawMessage, error) {
	candidate := strings.TrimSpace(raw)
	if m := fencedBlockRe.FindStringSubmatch(raw); m != nil {
		candidate = strings.TrimSpace(m[1])
	}
	if candidate == "" {
		return "", nil, &ParseError{Reason: "no JSON content in output"}
	}

	value, err := decodeObject(candidate)
	if err == nil {
		return candidate, value, nil
	}
	if embedded := scanObject(candidate); embedded != "" && embedded != candidate {
		if value, embErr := decodeObject(embedded); embErr == nil {
			return embedded, value, nil
		}
	}
	return "", nil, &ParseError{
		Reason:  "output is not a valid JSON object",
		Snippet: snippet(candidate),
		Err:     err,
	}
}

func decodeObject(s string) (map[string]json.RawMessage, error) {
	var value map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &value); err != nil {
		return nil, err
	}
	if value == nil {
		return nil, fmt.Errorf("expected a JSON object, got null")
	}
	return value, nil
}

// scanObject finds the first balanced {...} in output, honouring strings
// and escapes.
func scanObject(output string) string {
	start := strings.Index(output, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(output); i++ {
		c := output[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return output[start : i+1]
			}
		}
	}
	return ""
}

func snippet(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// RequireFields returns the names in fields that are absent from value, in
// the order given.
func RequireFields(value map[string]json.RawMessage, fields []string) []string {
	var missing []string
	for _, f := range fields {
		if _, ok := value[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}
