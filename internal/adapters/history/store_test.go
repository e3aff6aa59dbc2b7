package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcanvas/flowrefine/internal/config"
	"github.com/flowcanvas/flowrefine/internal/core"
)

func stores(t *testing.T) map[string]core.HistoryStore {
	t.Helper()
	dir := t.TempDir()

	jsonStore, err := NewJSONStore(filepath.Join(dir, "json"))
	require.NoError(t, err)
	sqliteStore, err := NewSQLiteStore(filepath.Join(dir, "sqlite", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]core.HistoryStore{
		"memory": NewMemoryStore(),
		"json":   jsonStore,
		"sqlite": sqliteStore,
	}
}

func assertSameHistory(t *testing.T, want, got *core.ConversationHistory) {
	t.Helper()
	require.Len(t, got.Messages, len(want.Messages))
	assert.Equal(t, want.CurrentIteration, got.CurrentIteration)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updatedAt %v != %v", want.UpdatedAt, got.UpdatedAt)
	for i := range want.Messages {
		w, g := want.Messages[i], got.Messages[i]
		assert.Equal(t, w.ID, g.ID)
		assert.Equal(t, w.Sender, g.Sender)
		assert.Equal(t, w.Content, g.Content)
		assert.True(t, w.Timestamp.Equal(g.Timestamp))
	}
}

func TestStores_Contract(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := core.HistoryKey("wf-1", "flow/a")

			empty, err := store.Load(ctx, key)
			require.NoError(t, err)
			assert.Zero(t, empty.Len())
			assert.Zero(t, empty.CurrentIteration)

			h := core.NewConversationHistory()
			h.AppendRound("add a step", "Proposed an updated workflow: 1 node added.")
			h.AppendRound("which one?", "The Slack one.")
			require.NoError(t, store.Save(ctx, key, h))

			loaded, err := store.Load(ctx, key)
			require.NoError(t, err)
			assertSameHistory(t, h, loaded)

			other, err := store.Load(ctx, "wf-1")
			require.NoError(t, err)
			assert.Zero(t, other.Len(), "nested flow history is separate from the workflow")

			h.AppendRound("again", "done")
			require.NoError(t, store.Save(ctx, key, h))
			loaded, err = store.Load(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, 3, loaded.CurrentIteration)
			assert.Len(t, loaded.Messages, 6)

			require.NoError(t, store.Clear(ctx, key))
			cleared, err := store.Load(ctx, key)
			require.NoError(t, err)
			assert.Zero(t, cleared.Len())
			require.NoError(t, store.Clear(ctx, key), "clearing twice is fine")
		})
	}
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	h := core.NewConversationHistory()
	h.AppendRound("u", "a")
	require.NoError(t, s.Save(ctx, "k", h))

	h.AppendRound("mutated", "after save")
	loaded, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.CurrentIteration)

	loaded.Clear()
	again, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Len())
}

func TestJSONStore_FileLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), "wf/flow", core.NewConversationHistory()))
	_, err = os.Stat(filepath.Join(dir, "wf%2Fflow.json"))
	assert.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o600))
	_, err = s.Load(context.Background(), "broken")
	assert.Error(t, err)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "h.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	h := core.NewConversationHistory()
	h.AppendRound("u", "a")
	require.NoError(t, s.Save(ctx, "wf", h))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	loaded, err := s.Load(ctx, "wf")
	require.NoError(t, err)
	assertSameHistory(t, h, loaded)
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("-- comment\nCREATE TABLE a (x INT);\n\n-- other\nCREATE TABLE b (y INT);\n")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE TABLE b (y INT)"}, got)
}

func TestNewStore(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStore(config.HistoryConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	assert.NoError(t, CloseStore(s))

	s, err = NewStore(config.HistoryConfig{Backend: "json", Path: filepath.Join(dir, "j")})
	require.NoError(t, err)
	assert.IsType(t, &JSONStore{}, s)

	s, err = NewStore(config.HistoryConfig{Backend: "SQLite", Path: filepath.Join(dir, "s")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	assert.NoError(t, CloseStore(s))
	_, err = os.Stat(filepath.Join(dir, "s", "history.db"))
	assert.NoError(t, err)

	_, err = NewStore(config.HistoryConfig{Backend: "redis"})
	assert.Error(t, err)
}
