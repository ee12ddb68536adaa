// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Pondsiders/Rosemary-App/internal/config"
)

// NewLogger creates a text logger writing to w.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// SetupLogging opens the log file named by cfg and installs a logger on it as
// the slog default. The TUI owns the terminal, so nothing is logged to
// stderr. The returned close function flushes and closes the file.
func SetupLogging(cfg *config.Config, verbose bool) (*slog.Logger, func() error, error) {
	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}

	path := cfg.LogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	logger := NewLogger(f, level).With("pid", os.Getpid())
	slog.SetDefault(logger)
	return logger, f.Close, nil
}
