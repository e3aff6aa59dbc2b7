// Package history provides conversation history persistence.
package history

import (
	"context"
	"sync"

	"github.com/flowcanvas/flowrefine/internal/core"
)

// MemoryStore keeps histories in process memory. Values are cloned on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	histories map[string]*core.ConversationHistory
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{histories: make(map[string]*core.ConversationHistory)}
}

// Load returns the history for key, or an empty history.
func (s *MemoryStore) Load(ctx context.Context, key string) (*core.ConversationHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h, ok := s.histories[key]; ok {
		return h.Clone(), nil
	}
	return core.NewConversationHistory(), nil
}

// Save stores a copy of history under key.
func (s *MemoryStore) Save(ctx context.Context, key string, history *core.ConversationHistory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[key] = history.Clone()
	return nil
}

// Clear removes the history for key.
func (s *MemoryStore) Clear(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.histories, key)
	return nil
}

var _ core.HistoryStore = (*MemoryStore)(nil)
