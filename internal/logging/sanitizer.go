package logging

import (
	"regexp"
	"unicode/utf8"
)

const redacted = "[REDACTED]"

// rule redacts the match of re. When keep is set, the first submatch (a key
// or scheme name) is left in place and only the value is replaced.
type rule struct {
	re   *regexp.Regexp
	keep bool
}

// Prompts carry user messages and workflow node payloads, and tool output
// echoes them back, so any of these can hold pasted credentials.
var builtinRules = []rule{
	{re: regexp.MustCompile(`sk-ant-[a-zA-Z0-9-]{40,}`)},
	{re: regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`)},
	{re: regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`)},
	{re: regexp.MustCompile(`xox[baprs]-[0-9a-zA-Z-]{10,}`)},
	{re: regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{re: regexp.MustCompile(`(?i)(bearer\s+)[a-zA-Z0-9._-]{20,}`), keep: true},
	{re: regexp.MustCompile(`(?i)((?:api[_-]?key|secret|token)["'\s:=]+)[a-zA-Z0-9_-]{20,}`), keep: true},
	{re: regexp.MustCompile(`(?i)(password["'\s:=]+)[^\s"']{8,}`), keep: true},
}

// Sanitizer redacts credentials from log output.
type Sanitizer struct {
	rules []rule
}

// NewSanitizer creates a sanitizer with the built-in rules.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{rules: append([]rule(nil), builtinRules...)}
}

// Sanitize redacts sensitive information from input.
func (s *Sanitizer) Sanitize(input string) string {
	out := input
	for _, r := range s.rules {
		if r.keep {
			out = r.re.ReplaceAllString(out, "${1}"+redacted)
		} else {
			out = r.re.ReplaceAllLiteralString(out, redacted)
		}
	}
	return out
}

// AddPattern adds a pattern whose whole match is redacted.
func (s *Sanitizer) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.rules = append(s.rules, rule{re: re})
	return nil
}

// Truncate shortens s to at most max bytes for logging, marking the cut.
// The cut never splits a UTF-8 sequence.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}
