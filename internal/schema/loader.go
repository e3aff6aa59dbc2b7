// Package schema loads the workflow schema document given to the completion
// tool and validates proposed workflows against it.
package schema

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/flowcanvas/flowrefine/internal/core"
	"github.com/flowcanvas/flowrefine/internal/logging"
)

//go:embed workflow.schema.json
var defaultSchemaJSON []byte

// DefaultSource is the Schema.Source of the embedded schema.
const DefaultSource = "embedded:workflow.schema.json"

// DefaultSchema returns a fresh copy of the embedded schema.
func DefaultSchema() (*core.Schema, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(defaultSchemaJSON, &raw); err != nil {
		return nil, fmt.Errorf("decoding embedded schema: %w", err)
	}
	return &core.Schema{Source: DefaultSource, Raw: raw}, nil
}

// FileLoader reads schema documents from disk. Parsed documents are cached
// by path and modification time.
type FileLoader struct {
	logger *logging.Logger

	mu    sync.Mutex
	cache map[string]cachedSchema
}

type cachedSchema struct {
	modTime int64
	size    int64
	schema  *core.Schema
}

// NewFileLoader creates a loader.
func NewFileLoader(logger *logging.Logger) *FileLoader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FileLoader{logger: logger, cache: make(map[string]cachedSchema)}
}

// LoadSchema loads the document at path. An empty path yields the embedded
// default. YAML is selected by a .yaml or .yml extension, JSON otherwise.
func (l *FileLoader) LoadSchema(ctx context.Context, path string) (*core.Schema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path == "" {
		return DefaultSchema()
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema %s: %w", path, err)
	}

	l.mu.Lock()
	if c, ok := l.cache[path]; ok && c.modTime == info.ModTime().UnixNano() && c.size == info.Size() {
		l.mu.Unlock()
		return c.schema, nil
	}
	l.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema %s: %w", path, err)
	}

	raw, err := decode(path, data)
	if err != nil {
		return nil, fmt.Errorf("parsing schema %s: %w", path, err)
	}
	schema := &core.Schema{Source: path, Raw: raw}

	l.mu.Lock()
	l.cache[path] = cachedSchema{modTime: info.ModTime().UnixNano(), size: info.Size(), schema: schema}
	l.mu.Unlock()

	l.logger.Debug("schema loaded", "path", path, "keys", len(raw))
	return schema, nil
}

func decode(path string, data []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	}
	if raw == nil {
		return nil, fmt.Errorf("schema document is empty")
	}
	return raw, nil
}

var _ core.SchemaLoader = (*FileLoader)(nil)
