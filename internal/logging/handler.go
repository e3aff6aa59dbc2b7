package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// redactingHandler passes records through a redaction function before the
// wrapped handler sees them. Messages, string values, errors and raw JSON
// payloads are covered; other kinds are passed as-is.
type redactingHandler struct {
	next   slog.Handler
	redact func(string) string
}

func newRedactingHandler(next slog.Handler, redact func(string) string) *redactingHandler {
	return &redactingHandler{next: next, redact: redact}
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.redact(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.attr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		clean = append(clean, h.attr(a))
	}
	return &redactingHandler{next: h.next.WithAttrs(clean), redact: h.redact}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{next: h.next.WithGroup(name), redact: h.redact}
}

func (h *redactingHandler) attr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.redact(v.String()))
	case slog.KindGroup:
		group := v.Group()
		clean := make([]slog.Attr, len(group))
		for i, g := range group {
			clean[i] = h.attr(g)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return slog.String(a.Key, h.redact(x.Error()))
		case json.RawMessage:
			return slog.String(a.Key, h.redact(string(x)))
		case []byte:
			return slog.String(a.Key, h.redact(string(x)))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// PrettyHandler writes one compact line per record for interactive
// terminals. A correlation_id attribute is shown as a tag after the level.
type PrettyHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	styles prettyStyles
	tag    string
	attrs  string
	prefix string
}

type prettyStyles struct {
	levels map[slog.Level]lipgloss.Style
	time   lipgloss.Style
	key    lipgloss.Style
	tag    lipgloss.Style
}

func newPrettyStyles(w io.Writer) prettyStyles {
	r := lipgloss.NewRenderer(w)
	return prettyStyles{
		levels: map[slog.Level]lipgloss.Style{
			slog.LevelDebug: r.NewStyle().Foreground(lipgloss.Color("8")),
			slog.LevelInfo:  r.NewStyle().Foreground(lipgloss.Color("4")),
			slog.LevelWarn:  r.NewStyle().Foreground(lipgloss.Color("3")),
			slog.LevelError: r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		},
		time: r.NewStyle().Foreground(lipgloss.Color("8")),
		key:  r.NewStyle().Foreground(lipgloss.Color("6")),
		tag:  r.NewStyle().Foreground(lipgloss.Color("5")),
	}
}

// NewPrettyHandler creates a handler writing to w at the given minimum level.
func NewPrettyHandler(w io.Writer, level slog.Leveler) *PrettyHandler {
	return &PrettyHandler{
		mu:     &sync.Mutex{},
		w:      w,
		level:  level,
		styles: newPrettyStyles(w),
	}
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(h.styles.time.Render(r.Time.Format("15:04:05")))
	b.WriteByte(' ')
	b.WriteString(h.levelLabel(r.Level))
	tag := h.tag
	var attrs strings.Builder
	attrs.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "correlation_id" && h.prefix == "" {
			tag = a.Value.String()
			return true
		}
		h.writeAttr(&attrs, h.prefix, a)
		return true
	})
	if tag != "" {
		b.WriteString(" " + h.styles.tag.Render("["+tag+"]"))
	}
	b.WriteByte(' ')
	b.WriteString(r.Message)
	b.WriteString(attrs.String())
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		if a.Key == "correlation_id" && h.prefix == "" {
			next.tag = a.Value.String()
			continue
		}
		h.writeAttr(&b, h.prefix, a)
	}
	next.attrs = b.String()
	return &next
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *PrettyHandler) levelLabel(level slog.Level) string {
	label := map[slog.Level]string{
		slog.LevelDebug: "DBG",
		slog.LevelInfo:  "INF",
		slog.LevelWarn:  "WRN",
		slog.LevelError: "ERR",
	}[level]
	if label == "" {
		return level.String()
	}
	return h.styles.levels[level].Render(label)
}

func (h *PrettyHandler) writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, g := range v.Group() {
			h.writeAttr(b, p, g)
		}
		return
	}
	fmt.Fprintf(b, " %s=%v", h.styles.key.Render(prefix+a.Key), v.Any())
}
