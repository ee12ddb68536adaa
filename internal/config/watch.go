// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for writes to settle.
const DefaultDebounce = 250 * time.Millisecond

// =============================================================================
// CONFIG WATCHER
// =============================================================================

// ReloadFunc receives each reloaded config. On a load or validation error
// cfg is nil and the previous config should stay in effect.
type ReloadFunc func(cfg *Config, err error)

// Watch reloads path whenever it changes and passes the result to fn. It
// returns once the watch is established; watching stops when ctx is done.
//
// The parent directory is watched rather than the file so that editors
// which save by rename are still seen.
func Watch(ctx context.Context, path string, fn ReloadFunc) error {
	return watch(ctx, path, DefaultDebounce, slog.Default(), fn)
}

// WatchWithLogger is Watch with an explicit debounce and logger.
func WatchWithLogger(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, fn ReloadFunc) error {
	if logger == nil {
		logger = slog.Default()
	}
	return watch(ctx, path, debounce, logger, fn)
}

func watch(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, fn ReloadFunc) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return fmt.Errorf("watch config %s: %w", filepath.Dir(path), err)
	}

	go func() {
		defer w.Close()

		timer := time.NewTimer(debounce)
		if !timer.Stop() {
			<-timer.C
		}
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				timer.Reset(debounce)

			case <-timer.C:
				if !fileExists(path) {
					continue
				}
				cfg, err := LoadFromPath(path)
				if err != nil {
					logger.Warn("config reload failed", "path", path, "err", err)
				} else {
					logger.Info("config reloaded", "path", path)
				}
				fn(cfg, err)

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "err", err)
			}
		}
	}()

	return nil
}
