package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Log:         LogConfig{Level: "info", Format: "auto"},
		Tool:        ToolConfig{Path: "claude", Timeout: "90s", GracePeriod: "500ms", StderrLimit: 500},
		Refine:      RefineConfig{HistoryWindow: 6, MaxNestedNodes: 30, UseSkills: true},
		Skills:      SkillsConfig{MaxSkills: 20, MinScore: 1},
		History:     HistoryConfig{Backend: "memory"},
		Server:      ServerConfig{Addr: "127.0.0.1:8787", ShutdownTimeout: "10s"},
		Diagnostics: DiagnosticsConfig{MinFreeMemoryMB: 256},
	}
}

func TestValidator_ValidConfig(t *testing.T) {
	if err := ValidateConfig(validConfig()); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidator_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"tool path", func(c *Config) { c.Tool.Path = "  " }, "tool.path"},
		{"tool timeout", func(c *Config) { c.Tool.Timeout = "soon" }, "tool.timeout"},
		{"grace period", func(c *Config) { c.Tool.GracePeriod = "0s" }, "tool.grace_period"},
		{"nested cap", func(c *Config) { c.Refine.MaxNestedNodes = 0 }, "refine.max_nested_nodes"},
		{"max skills", func(c *Config) { c.Skills.MaxSkills = -1 }, "skills.max_skills"},
		{"history backend", func(c *Config) { c.History.Backend = "redis" }, "history.backend"},
		{"history path", func(c *Config) { c.History.Backend = "json" }, "history.path"},
		{"server addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"refine rate", func(c *Config) { c.Server.RefineRate = -1 }, "server.refine_rate"},
		{"refine burst", func(c *Config) { c.Server.RefineRate = 2 }, "server.refine_burst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			if err == nil {
				t.Fatalf("expected validation error for %s", tt.field)
			}
			errs, ok := err.(ValidationErrors)
			if !ok {
				t.Fatalf("error type = %T, want ValidationErrors", err)
			}
			if !errs.HasErrors() || errs[0].Field != tt.field {
				t.Errorf("first error field = %q, want %q", errs[0].Field, tt.field)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Error() = %q, want mention of %s", err.Error(), tt.field)
			}
		})
	}
}
