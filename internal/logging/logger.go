package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Logger wraps slog.Logger with refinement-aware helpers and secret redaction.
type Logger struct {
	*slog.Logger
	sanitizer *Sanitizer
}

// Config configures the logger.
type Config struct {
	Level     string
	Format    string // auto, text, json
	Output    io.Writer
	AddSource bool
}

// DefaultConfig returns the default logger configuration. Logs go to stderr
// so that command output on stdout stays machine-readable.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "auto",
		Output: os.Stderr,
	}
}

// New creates a new logger.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}
	sanitizer := NewSanitizer()

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(cfg.Output, opts)
	case "text":
		handler = slog.NewTextHandler(cfg.Output, opts)
	default:
		if isTerminal(cfg.Output) {
			handler = NewPrettyHandler(cfg.Output, opts.Level.Level())
		} else {
			handler = slog.NewJSONHandler(cfg.Output, opts)
		}
	}

	return &Logger{
		Logger:    slog.New(newRedactingHandler(handler, sanitizer.Sanitize)),
		sanitizer: sanitizer,
	}
}

// NewNop creates a logger that discards everything.
func NewNop() *Logger {
	return &Logger{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		sanitizer: NewSanitizer(),
	}
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

func (l *Logger) derive(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		sanitizer: l.sanitizer,
	}
}

// WithRequest tags records with a refinement correlation id.
func (l *Logger) WithRequest(correlationID string) *Logger {
	return l.derive("correlation_id", correlationID)
}

// WithWorkflow tags records with the target workflow.
func (l *Logger) WithWorkflow(workflowID string) *Logger {
	return l.derive("workflow_id", workflowID)
}

// WithTarget tags records with a workflow and, when set, a nested flow.
func (l *Logger) WithTarget(workflowID, nestedFlowID string) *Logger {
	if nestedFlowID == "" {
		return l.WithWorkflow(workflowID)
	}
	return l.derive("workflow_id", workflowID, "nested_flow_id", nestedFlowID)
}

// WithMode tags records with the refinement mode.
func (l *Logger) WithMode(mode string) *Logger {
	return l.derive("mode", mode)
}

// With returns a logger with custom fields.
func (l *Logger) With(args ...any) *Logger {
	return l.derive(args...)
}

// Sanitize redacts secrets from input using the logger's sanitizer.
func (l *Logger) Sanitize(input string) string {
	return l.sanitizer.Sanitize(input)
}
