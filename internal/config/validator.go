package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateTool(&cfg.Tool)
	v.validateRefine(&cfg.Refine)
	v.validateSkills(&cfg.Skills)
	v.validateHistory(&cfg.History)
	v.validateServer(&cfg.Server)
	v.validateDiagnostics(&cfg.Diagnostics)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateTool(cfg *ToolConfig) {
	if strings.TrimSpace(cfg.Path) == "" {
		v.addError("tool.path", cfg.Path, "tool path required")
	}
	v.validateDuration("tool.timeout", cfg.Timeout)
	v.validateDuration("tool.grace_period", cfg.GracePeriod)
	if cfg.StderrLimit < 0 {
		v.addError("tool.stderr_limit", cfg.StderrLimit, "must be non-negative")
	}
}

func (v *Validator) validateRefine(cfg *RefineConfig) {
	if cfg.HistoryWindow < 0 {
		v.addError("refine.history_window", cfg.HistoryWindow, "must be non-negative")
	}
	if cfg.MaxNestedNodes <= 0 {
		v.addError("refine.max_nested_nodes", cfg.MaxNestedNodes, "must be positive")
	}
}

func (v *Validator) validateSkills(cfg *SkillsConfig) {
	if cfg.MaxSkills <= 0 {
		v.addError("skills.max_skills", cfg.MaxSkills, "must be positive")
	}
	if cfg.MinScore < 0 {
		v.addError("skills.min_score", cfg.MinScore, "must be non-negative")
	}
}

func (v *Validator) validateHistory(cfg *HistoryConfig) {
	switch cfg.Backend {
	case "memory":
	case "json", "sqlite":
		if cfg.Path == "" {
			v.addError("history.path", cfg.Path, "path required for "+cfg.Backend+" backend")
		}
	default:
		v.addError("history.backend", cfg.Backend, "must be one of: memory, json, sqlite")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Addr == "" {
		v.addError("server.addr", cfg.Addr, "address required")
	}
	if cfg.ShutdownTimeout != "" {
		v.validateDuration("server.shutdown_timeout", cfg.ShutdownTimeout)
	}
	if cfg.RefineRate < 0 {
		v.addError("server.refine_rate", cfg.RefineRate, "must be non-negative")
	}
	if cfg.RefineRate > 0 && cfg.RefineBurst < 1 {
		v.addError("server.refine_burst", cfg.RefineBurst, "must be at least 1 when rate limiting")
	}
}

func (v *Validator) validateDiagnostics(cfg *DiagnosticsConfig) {
	if cfg.MinFreeMemoryMB < 0 {
		v.addError("diagnostics.min_free_memory_mb", cfg.MinFreeMemoryMB, "must be non-negative")
	}
}

func (v *Validator) validateDuration(field, value string) {
	d, err := time.ParseDuration(value)
	if err != nil {
		v.addError(field, value, "invalid duration")
		return
	}
	if d <= 0 {
		v.addError(field, value, "must be positive")
	}
}

// ValidateConfig is a convenience function to validate configuration.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}
