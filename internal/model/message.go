// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Rosemary"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   []Segment `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewID returns a fresh opaque message identifier.
func NewID() string {
	return uuid.NewString()
}

// NewUserMessage builds a user message: images first, in the order given,
// followed by exactly one text segment carrying the full text.
func NewUserMessage(text string, images ...ImageSegment) Message {
	content := make([]Segment, 0, len(images)+1)
	for _, img := range images {
		content = append(content, img)
	}
	content = append(content, TextSegment{Text: text})

	return Message{
		ID:        NewID(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewAssistantPlaceholder builds an assistant message with no content.
func NewAssistantPlaceholder() Message {
	return Message{
		ID:        NewID(),
		Role:      RoleAssistant,
		Content:   []Segment{},
		CreatedAt: time.Now(),
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Clone returns a deep copy of the message. Segments are values, so only
// the slice and the raw JSON buffers inside tool calls need copying.
func (m Message) Clone() Message {
	out := m
	if m.Content != nil {
		out.Content = make([]Segment, len(m.Content))
		for i, seg := range m.Content {
			if tc, ok := seg.(ToolCallSegment); ok {
				seg = tc.clone()
			}
			out.Content[i] = seg
		}
	}
	return out
}

// IsEmpty returns true if the message has no content segments.
func (m Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// Text returns the concatenation of all text segments, separated by blank
// lines. Thinking and tool calls are excluded.
func (m Message) Text() string {
	var parts []string
	for _, seg := range m.Content {
		if t, ok := seg.(TextSegment); ok && t.Text != "" {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Preview returns a truncated preview of the message text.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	content := strings.ReplaceAll(m.Text(), "\n", " ")
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// ToolCall returns the tool call segment with the given id, if present.
func (m Message) ToolCall(toolCallID string) (ToolCallSegment, bool) {
	for _, seg := range m.Content {
		if tc, ok := seg.(ToolCallSegment); ok && tc.ToolCallID == toolCallID {
			return tc, true
		}
	}
	return ToolCallSegment{}, false
}

// CloneMessages deep-copies a message slice. A nil input yields an empty,
// non-nil slice so snapshots never alias caller memory.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
