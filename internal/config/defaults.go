package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// ProjectConfigDir is the per-project configuration directory.
const ProjectConfigDir = ".flowrefine"

// DefaultConfigYAML is written by `flowrefine init`.
const DefaultConfigYAML = `# flowrefine configuration
# Values not specified here use built-in defaults.

log:
  level: info
  format: auto

# External completion tool, invoked as: <path> [extra_args...] -p <prompt>
tool:
  path: claude
  extra_args: []
  timeout: 90s
  grace_period: 500ms

refine:
  use_skills: true
  # Empty uses the built-in schema. JSON and YAML are accepted.
  schema_path: ""

skills:
  project_dir: .claude/skills
  max_skills: 20
  watch: false

# memory | json | sqlite
history:
  backend: memory
  path: .flowrefine/history

server:
  addr: 127.0.0.1:8787
  # Refinements admitted per second; 0 disables limiting.
  refine_rate: 1
  refine_burst: 5

diagnostics:
  preflight: false
  min_free_memory_mb: 256
`

// WriteDefault writes DefaultConfigYAML to path atomically. It refuses to
// overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := renameio.WriteFile(path, []byte(DefaultConfigYAML), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
