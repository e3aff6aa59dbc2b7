package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"

	"github.com/flowcanvas/flowrefine/internal/core"
	"github.com/flowcanvas/flowrefine/internal/diff"
)

// Renderer formats results for a terminal of a given width.
type Renderer struct {
	width int
	color bool
}

// NewRenderer creates a renderer. Widths below 20 fall back to 80.
func NewRenderer(width int, color bool) *Renderer {
	if width < 20 {
		width = 80
	}
	return &Renderer{width: width, color: color}
}

// Markdown renders md with glamour. Rendering failures return md unchanged.
func (r *Renderer) Markdown(md string) string {
	style := glamour.WithStandardStyle(styles.NoTTYStyle)
	if r.color {
		style = glamour.WithStandardStyle(styles.DarkStyle)
	}
	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(r.width-4))
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n") + "\n"
}

// Clarification renders a question from the tool.
func (r *Renderer) Clarification(question string) string {
	return HeaderStyle.Render("Clarification needed") + "\n" + r.Markdown(question)
}

// Diff renders a change summary, one line per change.
func (r *Renderer) Diff(s diff.Summary) string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render(s.Headline()))
	b.WriteString("\n")
	if !s.HasChanges() {
		return b.String()
	}

	if s.NameChange != nil {
		fmt.Fprintf(&b, "  %s %q -> %q\n", ModifiedStyle.Render("~ name"), s.NameChange.From, s.NameChange.To)
	}
	writeNodes := func(style func(...string) string, mark string, nodes []diff.NodeChange) {
		for _, n := range nodes {
			fmt.Fprintf(&b, "  %s %s %s\n", style(mark), n.Name, MutedStyle.Render("("+string(n.Type)+")"))
		}
	}
	writeNodes(AddedStyle.Render, "+", s.AddedNodes)
	writeNodes(RemovedStyle.Render, "-", s.RemovedNodes)
	writeNodes(ModifiedStyle.Render, "~", s.ModifiedNodes)

	if s.AddedConnections > 0 || s.RemovedConnections > 0 {
		fmt.Fprintf(&b, "  %s %s\n",
			AddedStyle.Render(fmt.Sprintf("+%d", s.AddedConnections)),
			RemovedStyle.Render(fmt.Sprintf("-%d connections", s.RemovedConnections)))
	}
	return b.String()
}

// Error renders a refinement error with its guidance. Cancellation is not a
// failure and renders as a single muted line.
func (r *Renderer) Error(err *core.DomainError) string {
	if err == nil {
		return ""
	}
	if err.Code == core.CodeCancelled {
		return MutedStyle.Render("Refinement cancelled.") + "\n"
	}

	lines := []string{err.Code + ": " + err.Message}
	if guidance := core.UserGuidance(err.Code); guidance != "" {
		lines = append(lines, guidance)
	}
	if errs, ok := err.Details["errors"].([]string); ok {
		for _, e := range errs {
			lines = append(lines, "- "+e)
		}
	}
	return ErrorStyle.Width(r.width-2).Render(strings.Join(lines, "\n")) + "\n"
}

// History renders a conversation transcript.
func (r *Renderer) History(key string, h *core.ConversationHistory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", HeaderStyle.Render(key), MutedStyle.Render(fmt.Sprintf("(iteration %d)", h.CurrentIteration)))
	if h.Len() == 0 {
		b.WriteString(MutedStyle.Render("No messages.") + "\n")
		return b.String()
	}
	for _, m := range h.Messages {
		label := UserStyle.Render("user")
		if m.Sender == core.SenderAssistant {
			label = AssistantStyle.Render("assistant")
		}
		fmt.Fprintf(&b, "%s %s\n%s\n", label, MutedStyle.Render(m.Timestamp.Format("2006-01-02 15:04:05")), m.Content)
	}
	return b.String()
}

// Table renders label/value pairs in a box.
func (r *Renderer) Table(title string, rows [][2]string) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, LabelStyle.Render(row[0])+" "+row[1])
	}
	return HeaderStyle.Render(title) + "\n" + BoxStyle.Render(strings.Join(lines, "\n")) + "\n"
}

// Check renders one doctor line.
func Check(ok bool, optional bool, name, detail string) string {
	icon := AddedStyle.Render("✓")
	switch {
	case !ok && optional:
		icon = MutedStyle.Render("○")
	case !ok:
		icon = RemovedStyle.Render("✗")
	}
	if detail != "" {
		return fmt.Sprintf("  %s %s %s", icon, name, MutedStyle.Render(detail))
	}
	return fmt.Sprintf("  %s %s", icon, name)
}
