package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults shared with the runner and orchestrator.
const (
	DefaultTimeout        = 90 * time.Second
	DefaultGracePeriod    = 500 * time.Millisecond
	DefaultStderrLimit    = 500
	DefaultHistoryWindow  = 6
	DefaultMaxNestedNodes = 30
	DefaultMaxSkills      = 20
	DefaultMinScore       = 1
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader using an existing viper instance so
// CLI flag bindings take part in resolution.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "FLOWREFINE",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (FLOWREFINE_*)
// 3. Project config (.flowrefine/config.yaml)
// 4. User config (~/.config/flowrefine/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(ProjectConfigDir)
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "flowrefine"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("tool.path", "claude")
	l.v.SetDefault("tool.extra_args", []string{})
	l.v.SetDefault("tool.timeout", DefaultTimeout.String())
	l.v.SetDefault("tool.grace_period", DefaultGracePeriod.String())
	l.v.SetDefault("tool.stderr_limit", DefaultStderrLimit)
	l.v.SetDefault("tool.work_dir", "")

	l.v.SetDefault("refine.history_window", DefaultHistoryWindow)
	l.v.SetDefault("refine.max_nested_nodes", DefaultMaxNestedNodes)
	l.v.SetDefault("refine.use_skills", true)
	l.v.SetDefault("refine.schema_path", "")

	l.v.SetDefault("skills.personal_dir", defaultPersonalSkillsDir())
	l.v.SetDefault("skills.project_dir", filepath.Join(".claude", "skills"))
	l.v.SetDefault("skills.max_skills", DefaultMaxSkills)
	l.v.SetDefault("skills.min_score", DefaultMinScore)
	l.v.SetDefault("skills.watch", false)

	l.v.SetDefault("history.backend", "memory")
	l.v.SetDefault("history.path", filepath.Join(ProjectConfigDir, "history"))

	l.v.SetDefault("server.addr", "127.0.0.1:8787")
	l.v.SetDefault("server.allowed_origins", []string{"http://localhost:*", "http://127.0.0.1:*"})
	l.v.SetDefault("server.shutdown_timeout", "10s")
	l.v.SetDefault("server.refine_rate", 1.0)
	l.v.SetDefault("server.refine_burst", 5)

	l.v.SetDefault("diagnostics.preflight", false)
	l.v.SetDefault("diagnostics.min_free_memory_mb", 256)
}

func defaultPersonalSkillsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".claude", "skills")
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}
