package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowcanvas/flowrefine/internal/core"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLiteStore keeps histories in a SQLite database.
type SQLiteStore struct {
	dbPath string
	db     *sql.DB

	maxRetries    int
	baseRetryWait time.Duration
}

// SQLiteStoreOption configures the store.
type SQLiteStoreOption func(*SQLiteStore)

// WithRetry sets the busy-retry policy for writes.
func WithRetry(maxRetries int, baseWait time.Duration) SQLiteStoreOption {
	return func(s *SQLiteStore) {
		s.maxRetries = maxRetries
		s.baseRetryWait = baseWait
	}
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewSQLiteStore(dbPath string, opts ...SQLiteStoreOption) (*SQLiteStore, error) {
	s := &SQLiteStore{
		dbPath:        dbPath,
		maxRetries:    5,
		baseRetryWait: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	s.db = db

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS history_schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM history_schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	migrations := []string{migrationV1}
	for i, migration := range migrations {
		version := i + 1
		if version <= currentVersion {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration transaction: %w", err)
		}
		for _, stmt := range splitStatements(migration) {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("executing migration v%d: %w", version, err)
			}
		}
		if _, err := tx.Exec(
			"INSERT INTO history_schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration v%d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", version, err)
		}
	}
	return nil
}

// splitStatements splits a SQL script into statements, dropping comment lines.
func splitStatements(script string) []string {
	var statements []string
	for _, stmt := range strings.Split(script, ";") {
		var sqlLines []string
		for _, line := range strings.Split(stmt, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				sqlLines = append(sqlLines, line)
			}
		}
		if len(sqlLines) > 0 {
			statements = append(statements, strings.Join(sqlLines, "\n"))
		}
	}
	return statements
}

// Load returns the history for key, or an empty history.
func (s *SQLiteStore) Load(ctx context.Context, key string) (*core.ConversationHistory, error) {
	h := core.NewConversationHistory()

	var updatedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT current_iteration, updated_at FROM histories WHERE history_key = ?", key,
	).Scan(&h.CurrentIteration, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return h, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if h.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, sender, content, created_at FROM history_messages WHERE history_key = ? ORDER BY seq", key)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m core.Message
		var sender, createdAt string
		if err := rows.Scan(&m.ID, &sender, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Sender = core.Sender(sender)
		if m.Timestamp, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		h.Messages = append(h.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return h, nil
}

// Save replaces the stored history for key in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, key string, history *core.ConversationHistory) error {
	return s.retryWrite(ctx, "save history", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `INSERT INTO histories (history_key, current_iteration, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(history_key) DO UPDATE SET
				current_iteration = excluded.current_iteration,
				updated_at = excluded.updated_at`,
			key, history.CurrentIteration, formatTime(history.UpdatedAt),
		); err != nil {
			return fmt.Errorf("upserting history: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM history_messages WHERE history_key = ?", key); err != nil {
			return fmt.Errorf("clearing messages: %w", err)
		}
		for i, m := range history.Messages {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO history_messages (history_key, seq, id, sender, content, created_at) VALUES (?, ?, ?, ?, ?, ?)",
				key, i, m.ID, string(m.Sender), m.Content, formatTime(m.Timestamp),
			); err != nil {
				return fmt.Errorf("inserting message: %w", err)
			}
		}
		return tx.Commit()
	})
}

// Clear removes the history for key. Messages cascade.
func (s *SQLiteStore) Clear(ctx context.Context, key string) error {
	return s.retryWrite(ctx, "clear history", func() error {
		_, err := s.db.ExecContext(ctx, "DELETE FROM histories WHERE history_key = ?", key)
		return err
	})
}

// retryWrite executes a write operation, retrying while the database is busy.
func (s *SQLiteStore) retryWrite(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
		lastErr = err
		wait := s.baseRetryWait * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", operation, s.maxRetries, lastErr)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", s, err)
	}
	return t, nil
}

var _ core.HistoryStore = (*SQLiteStore)(nil)
