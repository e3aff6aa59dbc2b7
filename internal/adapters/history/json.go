package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/flowcanvas/flowrefine/internal/core"
)

const jsonFileVersion = 1

// JSONStore keeps one JSON file per history key.
type JSONStore struct {
	mu  sync.RWMutex
	dir string
}

// historyFileEnvelope wraps a history with a format version.
type historyFileEnvelope struct {
	Version int                       `json:"version"`
	Key     string                    `json:"key"`
	History *core.ConversationHistory `json:"history"`
}

// NewJSONStore creates a store rooted at dir, creating it if needed.
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	return &JSONStore{dir: dir}, nil
}

// path maps a key to a file name. Keys contain "/" for nested flows, so
// they are escaped into a single path segment.
func (s *JSONStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+".json")
}

// Load returns the history for key, or an empty history.
func (s *JSONStore) Load(ctx context.Context, key string) (*core.ConversationHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return core.NewConversationHistory(), nil
		}
		return nil, fmt.Errorf("reading history file: %w", err)
	}

	var envelope historyFileEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parsing history file: %w", err)
	}
	if envelope.History == nil {
		return core.NewConversationHistory(), nil
	}
	if envelope.History.Messages == nil {
		envelope.History.Messages = []core.Message{}
	}
	return envelope.History, nil
}

// Save writes history for key atomically.
func (s *JSONStore) Save(ctx context.Context, key string, history *core.ConversationHistory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(historyFileEnvelope{
		Version: jsonFileVersion,
		Key:     key,
		History: history,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}
	if err := renameio.WriteFile(s.path(key), data, 0o600); err != nil {
		return fmt.Errorf("writing history file: %w", err)
	}
	return nil
}

// Clear removes the history file for key.
func (s *JSONStore) Clear(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing history file: %w", err)
	}
	return nil
}

var _ core.HistoryStore = (*JSONStore)(nil)
