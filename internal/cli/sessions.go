// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// sessions.go - "rosemary sessions" listing.

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Pondsiders/Rosemary-App/internal/api"
	"github.com/Pondsiders/Rosemary-App/internal/util"
)

// Column widths for the session table.
const (
	idColumn      = 36
	updatedColumn = 16
	minTitleWidth = 20
)

// sessionJSON is the --json shape of one session.
type sessionJSON struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// RunSessions lists recent sessions, newest first.
func RunSessions(ctx context.Context, app *App, args Args, stdio IO) error {
	if args.Limit > 0 {
		app.Bridge.WithListLimit(args.Limit)
	}

	list, err := app.Bridge.Sessions(ctx)
	if err != nil {
		return &CommandError{Command: "sessions", Err: err}
	}

	if args.JSON {
		out := make([]sessionJSON, 0, len(list))
		for _, s := range list {
			out = append(out, sessionJSON{SessionID: s.ID, Title: s.Title, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt})
		}
		enc := json.NewEncoder(stdio.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(list) == 0 {
		fmt.Fprintln(stdio.Out, DimStyle.Render("No sessions yet."))
		return nil
	}

	width := DefaultTerminalWidth
	if isTerminal(stdio.Out) {
		width = GetTerminalWidth()
	}
	fmt.Fprint(stdio.Out, FormatSessions(list, width, time.Now()))
	return nil
}

// FormatSessions renders sessions as a fixed-width table. Titles are
// truncated by display width so wide characters keep the columns aligned.
func FormatSessions(list []api.SessionSummary, width int, now time.Time) string {
	titleWidth := max(width-idColumn-updatedColumn-4, minTitleWidth)

	var b []byte
	header := util.FitWidth("SESSION", idColumn) + "  " +
		util.FitWidth("UPDATED", updatedColumn) + "  " + "TITLE"
	b = append(b, TitleStyle.Render(header)...)
	b = append(b, '\n')

	for _, s := range list {
		row := util.FitWidth(s.ID, idColumn) + "  " +
			DimStyle.Render(util.FitWidth(relativeTime(s.Updated(), now), updatedColumn)) + "  " +
			ValueStyle.Render(util.TruncateWidth(util.OneLine(s.Title), titleWidth))
		b = append(b, row...)
		b = append(b, '\n')
	}
	return string(b)
}

// relativeTime formats t relative to now ("just now", "5m ago", "3d ago").
// Older entries show the date.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Local().Format("2006-01-02")
	}
}
