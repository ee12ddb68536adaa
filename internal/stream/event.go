// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// =============================================================================
// EVENT TYPES
// =============================================================================

// EventType names a stream event.
type EventType string

const (
	EventTextDelta     EventType = "text-delta"
	EventText          EventType = "text"
	EventThinkingDelta EventType = "thinking-delta"
	EventToolCall      EventType = "tool-call"
	EventToolResult    EventType = "tool-result"
	EventSessionID     EventType = "session-id"
	EventContext       EventType = "context"
	EventDone          EventType = "done"
	EventError         EventType = "error"
	EventArchiveError  EventType = "archive-error"
)

// Event is one decoded frame. Data holds the type-specific payload; it is
// nil for the synthetic done event.
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ErrPayload is returned when an event's data does not match its type.
var ErrPayload = errors.New("invalid event payload")

// ToolCall is the payload of a tool-call event.
type ToolCall struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
	ArgsText   string          `json:"argsText"`
}

// ToolResult is the payload of a tool-result event.
type ToolResult struct {
	ToolCallID string          `json:"toolCallId"`
	Result     json.RawMessage `json:"result"`
	IsError    bool            `json:"isError"`
}

// =============================================================================
// PAYLOAD ACCESSORS
// =============================================================================

// Text decodes a string payload (text-delta, text, thinking-delta,
// session-id, error, archive-error). Non-string payloads of error events
// are returned as raw JSON so the message is never lost.
func (e Event) Text() (string, error) {
	if e.Data == nil {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(e.Data, &s); err != nil {
		if e.Type == EventError || e.Type == EventArchiveError {
			return string(e.Data), nil
		}
		return "", fmt.Errorf("%w: %s data is not a string", ErrPayload, e.Type)
	}
	return s, nil
}

// ToolCall decodes a tool-call payload.
func (e Event) ToolCall() (ToolCall, error) {
	var tc ToolCall
	if err := json.Unmarshal(e.Data, &tc); err != nil {
		return ToolCall{}, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	if tc.ToolCallID == "" {
		return ToolCall{}, fmt.Errorf("%w: tool-call without toolCallId", ErrPayload)
	}
	if tc.ArgsText == "" && len(tc.Args) > 0 {
		tc.ArgsText = string(tc.Args)
	}
	return tc, nil
}

// ToolResult decodes a tool-result payload.
func (e Event) ToolResult() (ToolResult, error) {
	var tr ToolResult
	if err := json.Unmarshal(e.Data, &tr); err != nil {
		return ToolResult{}, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	if tr.ToolCallID == "" {
		return ToolResult{}, fmt.Errorf("%w: tool-result without toolCallId", ErrPayload)
	}
	if tr.Result == nil {
		tr.Result = json.RawMessage("null")
	}
	return tr, nil
}
