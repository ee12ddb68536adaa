// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/Pondsiders/Rosemary-App/internal/api"
	"github.com/Pondsiders/Rosemary-App/internal/conversation"
	"github.com/Pondsiders/Rosemary-App/internal/model"
)

// =============================================================================
// BUBBLE TEA MESSAGES
// =============================================================================

// StateMsg carries a throttled conversation snapshot.
type StateMsg struct {
	State conversation.State
}

// TurnDoneMsg is sent when Submit returns.
type TurnDoneMsg struct {
	Err error
}

// Notice is a one-line message for the status area.
type Notice struct {
	Text    string
	IsError bool
}

// NoticeMsg delivers a notice from outside the UI (controller hooks).
type NoticeMsg struct {
	Notice Notice
}

// SessionsMsg carries a refreshed session list.
type SessionsMsg struct {
	Sessions []api.SessionSummary
	Err      error
}

// SessionOpenedMsg reports the result of opening a session.
type SessionOpenedMsg struct {
	SessionID string
	Err       error
}

// AttachedMsg reports a staged attachment: an inline image or an uploaded
// file path.
type AttachedMsg struct {
	Name  string
	Image *model.ImageSegment
	Path  string
	Err   error
}
