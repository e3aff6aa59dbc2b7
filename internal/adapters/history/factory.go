package history

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/flowcanvas/flowrefine/internal/config"
	"github.com/flowcanvas/flowrefine/internal/core"
)

// Backend names accepted in history.backend.
const (
	BackendMemory = "memory"
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// NewStore creates the store selected by cfg.
func NewStore(cfg config.HistoryConfig) (core.HistoryStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendJSON:
		return NewJSONStore(cfg.Path)
	case BackendSQLite:
		path := cfg.Path
		if !strings.HasSuffix(path, ".db") {
			path = filepath.Join(path, "history.db")
		}
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}

// Closeable is implemented by stores that hold resources.
type Closeable interface {
	Close() error
}

// CloseStore closes store if it implements Closeable.
func CloseStore(store core.HistoryStore) error {
	if c, ok := store.(Closeable); ok {
		return c.Close()
	}
	return nil
}
