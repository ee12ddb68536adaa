// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// WIRE PARTS
// =============================================================================

// Part is the JSON shape of a segment in session history:
//
//	{"type":"text","text":"..."}
//	{"type":"reasoning","text":"..."}
//	{"type":"image","image":"data:image/png;base64,..."}
//	{"type":"tool-call","toolCallId":"...","toolName":"...","args":{},"argsText":"...","result":...,"isError":false}
type Part struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	Image      string          `json:"image,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	ArgsText   string          `json:"argsText,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	IsError    bool            `json:"isError,omitempty"`
}

// Part type tags. "thinking" is accepted on input as an alias of "reasoning".
const (
	PartText      = "text"
	PartReasoning = "reasoning"
	PartThinking  = "thinking"
	PartImage     = "image"
	PartToolCall  = "tool-call"
)

// ErrUnknownPart is returned for part types this client cannot represent.
var ErrUnknownPart = errors.New("unknown content part")

// partEncoder converts segments to parts.
type partEncoder struct {
	part Part
}

func (e *partEncoder) VisitText(s TextSegment) {
	e.part = Part{Type: PartText, Text: s.Text}
}

func (e *partEncoder) VisitThinking(s ThinkingSegment) {
	e.part = Part{Type: PartReasoning, Text: s.Text}
}

func (e *partEncoder) VisitImage(s ImageSegment) {
	e.part = Part{Type: PartImage, Image: s.Data}
}

func (e *partEncoder) VisitToolCall(s ToolCallSegment) {
	e.part = Part{
		Type:       PartToolCall,
		ToolCallID: s.ToolCallID,
		ToolName:   s.ToolName,
		Args:       cloneRaw(s.Args),
		ArgsText:   s.ArgsText,
		Result:     cloneRaw(s.Result),
		IsError:    s.IsError,
	}
}

// PartOf encodes a segment as a wire part.
func PartOf(seg Segment) Part {
	var enc partEncoder
	seg.Accept(&enc)
	return enc.part
}

// Segment decodes a wire part. Unknown types return ErrUnknownPart.
func (p Part) Segment() (Segment, error) {
	switch p.Type {
	case PartText:
		return TextSegment{Text: p.Text}, nil
	case PartReasoning, PartThinking:
		return ThinkingSegment{Text: p.Text}, nil
	case PartImage:
		return ImageSegment{Data: p.Image}, nil
	case PartToolCall:
		return ToolCallSegment{
			ToolCallID: p.ToolCallID,
			ToolName:   p.ToolName,
			Args:       cloneRaw(p.Args),
			ArgsText:   p.ArgsText,
			Result:     cloneRaw(p.Result),
			IsError:    p.IsError,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPart, p.Type)
	}
}

// DecodeContent decodes a history content field, which is either a bare
// string (one text segment) or an array of parts. Parts of unknown type are
// skipped so newer servers do not break older clients.
func DecodeContent(raw json.RawMessage) ([]Segment, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []Segment{}, nil
	}

	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("decode text content: %w", err)
		}
		return []Segment{TextSegment{Text: text}}, nil
	}

	var parts []Part
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, fmt.Errorf("decode content parts: %w", err)
	}

	segs := make([]Segment, 0, len(parts))
	for _, p := range parts {
		seg, err := p.Segment()
		if err != nil {
			continue
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// =============================================================================
// MESSAGE JSON
// =============================================================================

type messageJSON struct {
	ID        string          `json:"id,omitempty"`
	Role      Role            `json:"role"`
	Content   json.RawMessage `json:"content"`
	CreatedAt time.Time       `json:"createdAt,omitempty"`
}

// MarshalJSON encodes the message with its content as a part array.
func (m Message) MarshalJSON() ([]byte, error) {
	parts := make([]Part, len(m.Content))
	for i, seg := range m.Content {
		parts[i] = PartOf(seg)
	}
	content, err := json.Marshal(parts)
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageJSON{
		ID:        m.ID,
		Role:      m.Role,
		Content:   content,
		CreatedAt: m.CreatedAt,
	})
}

// UnmarshalJSON decodes a message whose content is a string or a part array.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	content, err := DecodeContent(raw.Content)
	if err != nil {
		return err
	}
	*m = Message{
		ID:        raw.ID,
		Role:      raw.Role,
		Content:   content,
		CreatedAt: raw.CreatedAt,
	}
	return nil
}
