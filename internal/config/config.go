package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Tool        ToolConfig        `mapstructure:"tool"`
	Refine      RefineConfig      `mapstructure:"refine"`
	Skills      SkillsConfig      `mapstructure:"skills"`
	History     HistoryConfig     `mapstructure:"history"`
	Server      ServerConfig      `mapstructure:"server"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ToolConfig configures the external completion tool subprocess.
type ToolConfig struct {
	Path        string   `mapstructure:"path"`
	ExtraArgs   []string `mapstructure:"extra_args"`
	Timeout     string   `mapstructure:"timeout"`
	GracePeriod string   `mapstructure:"grace_period"`
	StderrLimit int      `mapstructure:"stderr_limit"`
	WorkDir     string   `mapstructure:"work_dir"`
}

// TimeoutDuration parses Timeout, falling back to DefaultTimeout.
func (c ToolConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(c.Timeout, DefaultTimeout)
}

// GracePeriodDuration parses GracePeriod, falling back to DefaultGracePeriod.
func (c ToolConfig) GracePeriodDuration() time.Duration {
	return parseDurationOr(c.GracePeriod, DefaultGracePeriod)
}

// RefineConfig configures the refinement pipeline.
type RefineConfig struct {
	HistoryWindow  int    `mapstructure:"history_window"`
	MaxNestedNodes int    `mapstructure:"max_nested_nodes"`
	UseSkills      bool   `mapstructure:"use_skills"`
	SchemaPath     string `mapstructure:"schema_path"`
}

// SkillsConfig configures skill discovery and relevance filtering.
type SkillsConfig struct {
	PersonalDir string `mapstructure:"personal_dir"`
	ProjectDir  string `mapstructure:"project_dir"`
	MaxSkills   int    `mapstructure:"max_skills"`
	MinScore    int    `mapstructure:"min_score"`
	Watch       bool   `mapstructure:"watch"`
}

// HistoryConfig selects the conversation history backend.
type HistoryConfig struct {
	Backend string `mapstructure:"backend"` // memory, json, sqlite
	Path    string `mapstructure:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string   `mapstructure:"addr"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	ShutdownTimeout string   `mapstructure:"shutdown_timeout"`
	// RefineRate is the sustained refinements per second admitted by the
	// API. Zero disables limiting.
	RefineRate  float64 `mapstructure:"refine_rate"`
	RefineBurst int     `mapstructure:"refine_burst"`
}

// ShutdownTimeoutDuration parses ShutdownTimeout, falling back to ten seconds.
func (c ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return parseDurationOr(c.ShutdownTimeout, 10*time.Second)
}

// DiagnosticsConfig configures resource preflight checks.
type DiagnosticsConfig struct {
	Preflight       bool `mapstructure:"preflight"`
	MinFreeMemoryMB int  `mapstructure:"min_free_memory_mb"`
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
