// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Pondsiders/Rosemary-App/internal/api"
	"github.com/Pondsiders/Rosemary-App/internal/config"
	"github.com/Pondsiders/Rosemary-App/internal/conversation"
	"github.com/Pondsiders/Rosemary-App/internal/session"
	"github.com/Pondsiders/Rosemary-App/internal/storage"
	"github.com/Pondsiders/Rosemary-App/internal/turn"
)

// noticeBuffer bounds queued warnings; extra warnings are logged only.
const noticeBuffer = 16

// =============================================================================
// APP WIRING
// =============================================================================

// App is the assembled client: one store driven by one turn controller,
// with a session bridge and optional local cache. Every front end (TUI,
// ask, sessions) runs on an App.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Client *api.Client
	Store  *conversation.Store
	Cache  *storage.Cache
	Bridge *session.Bridge
	Turns  *turn.Controller

	notices chan string
}

// NewApp wires the engine from cfg. The local cache is opened when enabled;
// a cache that fails to open is logged and skipped.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("new app: nil config")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := api.New(cfg.Server.URL).
		WithPaths(api.Paths{
			Chat:      cfg.Server.ChatPath,
			Interrupt: cfg.Server.InterruptPath,
			Upload:    cfg.Server.UploadPath,
			Sessions:  cfg.Server.SessionsPath,
		}).
		WithTimeout(cfg.RequestTimeout()).
		WithLogger(logger.With("component", "api"))

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Client:  client,
		Store:   conversation.NewStore(),
		notices: make(chan string, noticeBuffer),
	}

	if cfg.Sessions.CacheEnabled {
		cache, err := storage.Open(cfg.CachePath())
		if err != nil {
			logger.Warn("session cache disabled", "path", cfg.CachePath(), "err", err)
		} else {
			a.Cache = cache
		}
	}

	a.Bridge = session.NewBridge(a.Store, client).
		WithLogger(logger.With("component", "session")).
		WithListLimit(cfg.Sessions.ListLimit)
	if a.Cache != nil {
		a.Bridge.WithCache(a.Cache)
	}

	a.Turns = turn.New(a.Store, client).
		WithLogger(logger.With("component", "turn")).
		WithHooks(turn.Hooks{
			OnSessionCreated: a.sessionCreated,
			OnWarning:        a.Warn,
			OnFinish:         a.turnFinished,
		})
	a.Turns.SetAttribution(cfg.Upload.Attribution)

	return a, nil
}

// Notices delivers user-facing warnings raised in the background.
func (a *App) Notices() <-chan string {
	return a.notices
}

// Warn queues a user-facing warning. It never blocks.
func (a *App) Warn(msg string) {
	a.Logger.Warn("notice", "msg", msg)
	select {
	case a.notices <- msg:
	default:
	}
}

// ApplyConfig adopts the reloadable settings of cfg. They take effect for
// the next request; a turn already streaming is unaffected.
func (a *App) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.Client.SetBaseURL(cfg.Server.URL)
	a.Turns.SetAttribution(cfg.Upload.Attribution)
	a.Logger.Info("config applied", "server_url", cfg.Server.URL)
}

// WatchConfig reloads path on change and applies it. A bad edit leaves the
// previous settings in place and raises a warning.
func (a *App) WatchConfig(ctx context.Context, path string) error {
	return config.WatchWithLogger(ctx, path, config.DefaultDebounce, a.Logger, func(cfg *config.Config, err error) {
		if err != nil {
			a.Warn(fmt.Sprintf("config not reloaded: %v", err))
			return
		}
		a.ApplyConfig(cfg)
	})
}

// Close stops background work and closes the cache.
func (a *App) Close() error {
	a.Turns.Cancel()
	a.Turns.Wait()
	if a.Cache != nil {
		return a.Cache.Close()
	}
	return nil
}

// =============================================================================
// HOOKS
// =============================================================================

func (a *App) sessionCreated(id string) {
	// The hook runs on the stream loop; refresh the list off it.
	go a.Bridge.SessionCreated(context.Background(), id)
}

func (a *App) turnFinished(out turn.Outcome) {
	if a.Cache == nil || out.SessionID == "" {
		return
	}

	ctx := context.Background()
	if err := a.Bridge.Save(ctx); err != nil && !errors.Is(err, session.ErrNoSession) {
		a.Logger.Warn("cache save failed", "err", err)
		return
	}
	if n, err := a.Cache.Prune(ctx, a.Config.Sessions.CacheKeep); err != nil {
		a.Logger.Warn("cache prune failed", "err", err)
	} else if n > 0 {
		a.Logger.Debug("cache pruned", "removed", n)
	}
}
