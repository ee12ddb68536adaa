// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/Pondsiders/Rosemary-App/internal/model"
	"github.com/Pondsiders/Rosemary-App/internal/util"
)

// =============================================================================
// TRANSCRIPT TYPES
// =============================================================================

// Transcript is one cached session.
type Transcript struct {
	SessionID  string
	Title      string
	Messages   []model.Message
	TotalCount int
	UpdatedAt  time.Time
}

// TranscriptMeta is a transcript without its messages.
type TranscriptMeta struct {
	SessionID    string
	Title        string
	MessageCount int
	UpdatedAt    time.Time
}

// MaxTitleRunes bounds derived titles.
const MaxTitleRunes = 80

// DefaultMaxTranscripts is how many sessions Prune keeps by default.
const DefaultMaxTranscripts = 200

// ErrTranscriptNotFound is returned when a session is not cached.
// Use errors.Is(err, ErrTranscriptNotFound) to check for this error.
var ErrTranscriptNotFound = &CacheError{Message: "transcript not found"}

// ErrClosed is returned after Close.
var ErrClosed = &CacheError{Message: "cache closed"}

// CacheError represents a cache-related error.
type CacheError struct {
	Message string
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing cache errors.
func (e *CacheError) Is(target error) bool {
	t, ok := target.(*CacheError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// DeriveTitle returns the first user text, whitespace collapsed, cut to
// MaxTitleRunes.
func DeriveTitle(msgs []model.Message) string {
	for _, m := range msgs {
		if m.Role != model.RoleUser {
			continue
		}
		text := util.OneLine(m.Text())
		if text != "" {
			return util.TruncateRunesNoEllipsis(text, MaxTitleRunes)
		}
	}
	return ""
}

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	session_id    TEXT PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	messages      TEXT NOT NULL,
	message_count INTEGER NOT NULL DEFAULT 0,
	total_count   INTEGER NOT NULL DEFAULT 0,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_updated ON transcripts(updated_at DESC);
`

// =============================================================================
// CACHE
// =============================================================================

// Cache is a SQLite transcript store. Safe for concurrent use.
type Cache struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// DefaultPath returns ~/.rosemary/cache.db.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".rosemary", "cache.db")
	}
	return filepath.Join(home, ".rosemary", "cache.db")
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Cache, error) {
	if path == "" {
		return nil, errors.New("cache path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Cache{db: db, path: path}, nil
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.path
}

// Close closes the database. Safe to call more than once.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}

// Save inserts or replaces a transcript. An empty title is derived from the
// messages; a zero UpdatedAt becomes now.
func (c *Cache) Save(ctx context.Context, t Transcript) error {
	if t.SessionID == "" {
		return errors.New("transcript has no session id")
	}
	if t.Title == "" {
		t.Title = DeriveTitle(t.Messages)
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now()
	}
	msgs := t.Messages
	if msgs == nil {
		msgs = []model.Message{}
	}

	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO transcripts (session_id, title, messages, message_count, total_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			title = CASE WHEN transcripts.title = '' THEN excluded.title ELSE transcripts.title END,
			messages = excluded.messages,
			message_count = excluded.message_count,
			total_count = excluded.total_count,
			updated_at = excluded.updated_at`,
		t.SessionID, t.Title, string(data), len(msgs), max(t.TotalCount, len(msgs)), t.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// Load returns a cached transcript.
func (c *Cache) Load(ctx context.Context, sessionID string) (Transcript, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Transcript{}, ErrClosed
	}

	var (
		t       = Transcript{SessionID: sessionID}
		data    string
		updated int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT title, messages, total_count, updated_at FROM transcripts WHERE session_id = ?`,
		sessionID,
	).Scan(&t.Title, &data, &t.TotalCount, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Transcript{}, ErrTranscriptNotFound
	}
	if err != nil {
		return Transcript{}, fmt.Errorf("load transcript: %w", err)
	}

	if err := json.Unmarshal([]byte(data), &t.Messages); err != nil {
		return Transcript{}, fmt.Errorf("decode transcript: %w", err)
	}
	t.UpdatedAt = time.UnixMilli(updated)
	return t, nil
}

// List returns transcripts by most recent update. limit <= 0 means all.
func (c *Cache) List(ctx context.Context, limit int) ([]TranscriptMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT session_id, title, message_count, updated_at
		FROM transcripts
		ORDER BY updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	var out []TranscriptMeta
	for rows.Next() {
		var m TranscriptMeta
		var updated int64
		if err := rows.Scan(&m.SessionID, &m.Title, &m.MessageCount, &updated); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		m.UpdatedAt = time.UnixMilli(updated)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete removes a transcript. Deleting a missing one is not an error.
func (c *Cache) Delete(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM transcripts WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	return nil
}

// Prune keeps the keep most recently updated transcripts and returns how
// many were removed.
func (c *Cache) Prune(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		keep = DefaultMaxTranscripts
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}

	res, err := c.db.ExecContext(ctx, `
		DELETE FROM transcripts WHERE session_id NOT IN (
			SELECT session_id FROM transcripts ORDER BY updated_at DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune transcripts: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
