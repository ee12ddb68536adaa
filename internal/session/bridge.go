// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Pondsiders/Rosemary-App/internal/api"
	"github.com/Pondsiders/Rosemary-App/internal/conversation"
	"github.com/Pondsiders/Rosemary-App/internal/storage"
)

// Backend is the part of the API client the bridge uses.
type Backend interface {
	ListSessions(ctx context.Context, limit int) ([]api.SessionSummary, error)
	GetSession(ctx context.Context, id string) (api.SessionHistory, error)
}

// Cache stores transcripts locally.
type Cache interface {
	Save(ctx context.Context, t storage.Transcript) error
	Load(ctx context.Context, sessionID string) (storage.Transcript, error)
}

// ErrNoSession is returned by Save when the store has no session id yet.
var ErrNoSession = errors.New("no session to save")

// =============================================================================
// BRIDGE
// =============================================================================

// Bridge adapts stored sessions to one conversation store.
type Bridge struct {
	store   *conversation.Store
	backend Backend
	cache   Cache
	logger  *slog.Logger
	limit   int

	mu        sync.Mutex
	sessions  []api.SessionSummary
	onChanged func([]api.SessionSummary)
}

// NewBridge creates a bridge for store.
func NewBridge(store *conversation.Store, backend Backend) *Bridge {
	return &Bridge{
		store:   store,
		backend: backend,
		logger:  slog.Default(),
		limit:   api.DefaultSessionLimit,
	}
}

// WithCache enables the local transcript cache. A nil cache disables it.
func (b *Bridge) WithCache(c Cache) *Bridge {
	b.cache = c
	return b
}

// WithLogger sets the logger.
func (b *Bridge) WithLogger(logger *slog.Logger) *Bridge {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithListLimit sets how many sessions Sessions fetches.
func (b *Bridge) WithListLimit(n int) *Bridge {
	if n > 0 {
		b.limit = n
	}
	return b
}

// OnSessionsChanged registers a callback for refreshed session lists.
func (b *Bridge) OnSessionsChanged(fn func([]api.SessionSummary)) *Bridge {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChanged = fn
	return b
}

// Snapshot exposes the store's state for renderers.
func (b *Bridge) Snapshot() conversation.State {
	return b.store.Snapshot()
}

// New resets the store to a blank session.
func (b *Bridge) New() {
	b.store.Reset()
	b.logger.Debug("new session")
}

// Open loads a session into the store. If the backend fails and the
// session is cached locally, the cached copy is loaded instead.
func (b *Bridge) Open(ctx context.Context, id string) error {
	if b.store.IsRunning() {
		return fmt.Errorf("open session: a turn is in progress")
	}

	hist, err := b.backend.GetSession(ctx, id)
	if err == nil {
		msgs, convErr := FromHistory(hist.Messages)
		if convErr == nil {
			b.store.LoadSession(hist.SessionID, msgs, hist.TotalCount)
			b.logger.Info("session loaded",
				"session_id", shortID(hist.SessionID),
				"messages", len(msgs))
			return nil
		}
		err = convErr
	}

	if b.cache != nil && !errors.Is(err, context.Canceled) {
		t, cacheErr := b.cache.Load(ctx, id)
		if cacheErr == nil {
			total := t.TotalCount
			b.store.LoadSession(id, t.Messages, &total)
			b.logger.Warn("session loaded from cache",
				"session_id", shortID(id),
				"err", err)
			return nil
		}
		if !errors.Is(cacheErr, storage.ErrTranscriptNotFound) {
			b.logger.Warn("cache load failed", "session_id", shortID(id), "err", cacheErr)
		}
	}

	return fmt.Errorf("open session %s: %w", shortID(id), err)
}

// Sessions fetches the session list and notifies any listener.
func (b *Bridge) Sessions(ctx context.Context) ([]api.SessionSummary, error) {
	list, err := b.backend.ListSessions(ctx, b.limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	b.mu.Lock()
	b.sessions = list
	fn := b.onChanged
	b.mu.Unlock()

	if fn != nil {
		fn(cloneSummaries(list))
	}
	return cloneSummaries(list), nil
}

// Cached returns the last fetched session list.
func (b *Bridge) Cached() []api.SessionSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneSummaries(b.sessions)
}

// SessionCreated is the notification that a turn created a new session.
// It refreshes the session list; a failed refresh is only logged.
func (b *Bridge) SessionCreated(ctx context.Context, id string) {
	b.logger.Info("session created", "session_id", shortID(id))
	if _, err := b.Sessions(ctx); err != nil {
		b.logger.Warn("session list refresh failed", "err", err)
	}
}

// Save mirrors the current conversation into the cache. Without a cache it
// does nothing; without a session id it returns ErrNoSession.
func (b *Bridge) Save(ctx context.Context) error {
	if b.cache == nil {
		return nil
	}

	snap := b.store.Snapshot()
	if snap.SessionID == "" {
		return ErrNoSession
	}

	if err := b.cache.Save(ctx, b.transcriptOf(snap)); err != nil {
		return fmt.Errorf("cache session: %w", err)
	}
	return nil
}

// Transcript returns the current conversation as a transcript, titled the
// same way Save titles it.
func (b *Bridge) Transcript() storage.Transcript {
	return b.transcriptOf(b.store.Snapshot())
}

func (b *Bridge) transcriptOf(snap conversation.State) storage.Transcript {
	return storage.Transcript{
		SessionID:  snap.SessionID,
		Title:      b.titleFor(snap),
		Messages:   snap.Messages,
		TotalCount: snap.TotalMessageCount,
	}
}

// titleFor prefers the server's title for known sessions.
func (b *Bridge) titleFor(snap conversation.State) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.sessions {
		if s.ID == snap.SessionID && s.Title != "" && s.Title != shortID(s.ID) {
			return s.Title
		}
	}
	return storage.DeriveTitle(snap.Messages)
}

func cloneSummaries(in []api.SessionSummary) []api.SessionSummary {
	if in == nil {
		return nil
	}
	return append([]api.SessionSummary(nil), in...)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
