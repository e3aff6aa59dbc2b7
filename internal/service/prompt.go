package service

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/flowcanvas/flowrefine/internal/core"
)

//go:embed prompts/*.md.tmpl
var promptsFS embed.FS

// Template names.
const (
	TemplateRefineWorkflow   = "refine-workflow"
	TemplateRefineNestedFlow = "refine-nested-flow"
)

// DefaultHistoryWindow is the number of most recent messages included in a prompt.
const DefaultHistoryWindow = 6

// PromptRenderer renders prompts from templates.
type PromptRenderer struct {
	templates map[string]*template.Template
	mu        sync.RWMutex
}

// NewPromptRenderer creates a new prompt renderer.
func NewPromptRenderer() (*PromptRenderer, error) {
	r := &PromptRenderer{
		templates: make(map[string]*template.Template),
	}

	if err := r.loadTemplates(); err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	return r, nil
}

// loadTemplates loads all templates from the embedded filesystem.
func (r *PromptRenderer) loadTemplates() error {
	return fs.WalkDir(promptsFS, "prompts", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !strings.HasSuffix(path, ".md.tmpl") {
			return nil
		}

		content, err := promptsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		name := strings.TrimPrefix(path, "prompts/")
		name = strings.TrimSuffix(name, ".md.tmpl")

		tmpl, err := template.New(name).Funcs(templateFuncs()).Parse(string(content))
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}

		r.templates[name] = tmpl
		return nil
	})
}

// templateFuncs returns custom template functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"join":      strings.Join,
		"indent":    indent,
		"trimSpace": strings.TrimSpace,
		"joinTypes": joinTypes,
	}
}

func indent(spaces int, s string) string {
	pad := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}

func joinTypes(types []core.NodeType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

// NestedConstraints are the structural rules a nested flow must satisfy.
// They are written into the prompt verbatim.
type NestedConstraints struct {
	ProhibitedTypes []core.NodeType
	MaxNodes        int
	RequireStartEnd bool
}

// PromptInput holds everything a refinement prompt is built from.
type PromptInput struct {
	// Template selects the prompt template.
	Template string
	// CurrentState is the workflow or nested flow being refined.
	CurrentState interface{}
	History      *core.ConversationHistory
	Message      string
	Schema       *core.Schema
	Skills       []core.SkillReference
	// Constraints is set for nested-flow prompts.
	Constraints *NestedConstraints
	// HistoryWindow overrides DefaultHistoryWindow when positive.
	HistoryWindow int
}

type promptHistoryEntry struct {
	Sender  core.Sender
	Content string
}

type promptData struct {
	StateJSON   string
	SchemaJSON  string
	NodeTypes   []core.NodeType
	Skills      []core.SkillReference
	History     []promptHistoryEntry
	Message     string
	Constraints *NestedConstraints
}

// Build renders the refinement prompt. Identical inputs produce
// byte-identical output.
func (r *PromptRenderer) Build(in PromptInput) (string, error) {
	state, err := json.MarshalIndent(in.CurrentState, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serializing current state: %w", err)
	}

	schemaJSON := "{}"
	if in.Schema != nil {
		if schemaJSON, err = in.Schema.CanonicalJSON(); err != nil {
			return "", fmt.Errorf("serializing schema: %w", err)
		}
	}

	window := in.HistoryWindow
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	var history []promptHistoryEntry
	if in.History != nil {
		for _, m := range in.History.Recent(window) {
			history = append(history, promptHistoryEntry{Sender: m.Sender, Content: m.Content})
		}
	}

	data := promptData{
		StateJSON:   string(state),
		SchemaJSON:  schemaJSON,
		NodeTypes:   allowedTypes(in.Constraints),
		Skills:      in.Skills,
		History:     history,
		Message:     strings.TrimSpace(in.Message),
		Constraints: in.Constraints,
	}
	return r.render(in.Template, data)
}

// allowedTypes returns the node vocabulary minus prohibited types, sorted
// by display order.
func allowedTypes(c *NestedConstraints) []core.NodeType {
	prohibited := map[core.NodeType]bool{}
	if c != nil {
		for _, t := range c.ProhibitedTypes {
			prohibited[t] = true
		}
	}
	var out []core.NodeType
	for _, t := range core.AllNodeTypes() {
		if !prohibited[t] {
			out = append(out, t)
		}
	}
	return out
}

func (r *PromptRenderer) render(name string, data interface{}) (string, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("template %q not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}

	return buf.String(), nil
}

// ListTemplates returns available template names in sorted order.
func (r *PromptRenderer) ListTemplates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasTemplate checks if a template exists.
func (r *PromptRenderer) HasTemplate(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[name]
	return ok
}
