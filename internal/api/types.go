// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"strings"
	"time"
)

// =============================================================================
// CHAT PAYLOAD
// =============================================================================

// ChatRequest is the body of a chat request. A nil SessionID starts a new
// session.
type ChatRequest struct {
	SessionID *string `json:"sessionId"`
	Content   Content `json:"content"`
}

// Content is the user turn. It encodes as a bare string when Parts is empty
// and as an array of typed parts otherwise.
type Content struct {
	Text  string
	Parts []ContentPart
}

// ContentPart is one element of a structured user turn.
type ContentPart struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource carries inline image bytes.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart builds an inline base64 image part.
func ImagePart(mediaType, data string) ContentPart {
	return ContentPart{
		Type:   "image",
		Source: &ImageSource{Type: "base64", MediaType: mediaType, Data: data},
	}
}

// IsStructured reports whether the content encodes as a part array.
func (c Content) IsStructured() bool {
	return len(c.Parts) > 0
}

// MarshalJSON implements json.Marshaler.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsStructured() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Content) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*c = Content{Text: text}
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	*c = Content{Parts: parts}
	return nil
}

// =============================================================================
// SESSIONS
// =============================================================================

// SessionSummary is one row of the session list.
type SessionSummary struct {
	ID        string `json:"session_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Created parses CreatedAt; the zero time is returned if it is absent or
// unparseable.
func (s SessionSummary) Created() time.Time {
	return parseTimestamp(s.CreatedAt)
}

// Updated parses UpdatedAt.
func (s SessionSummary) Updated() time.Time {
	return parseTimestamp(s.UpdatedAt)
}

// HistoryMessage is one message of stored session history. Content is a
// bare string or an array of parts; see model.DecodeContent.
type HistoryMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// SessionHistory is the response of the single-session endpoint.
type SessionHistory struct {
	SessionID  string           `json:"session_id"`
	Messages   []HistoryMessage `json:"messages"`
	TotalCount *int             `json:"total_count,omitempty"`
	CreatedAt  string           `json:"created_at,omitempty"`
	UpdatedAt  string           `json:"updated_at,omitempty"`
}

// =============================================================================
// UPLOAD AND INTERRUPT
// =============================================================================

// UploadResult is the response of a successful upload.
type UploadResult struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// InterruptResult is the response of the interrupt endpoint.
type InterruptResult struct {
	Status string `json:"status"`
}

// StatusInterrupted is the status reported when generation was stopped.
const StatusInterrupted = "interrupted"

// timestampLayouts covers RFC 3339 and the naive ISO form some rows carry.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
