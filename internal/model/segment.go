// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"encoding/json"
)

// =============================================================================
// SEGMENT SUM TYPE
// =============================================================================

// SegmentKind names a segment variant.
type SegmentKind string

const (
	KindText     SegmentKind = "text"
	KindThinking SegmentKind = "thinking"
	KindImage    SegmentKind = "image"
	KindToolCall SegmentKind = "tool-call"
)

// Segment is one typed unit of a message's content.
// The interface is sealed; the four variants below are the only implementations.
type Segment interface {
	Kind() SegmentKind
	Accept(v SegmentVisitor)
	segment()
}

// SegmentVisitor handles every segment kind. Implementations get a compile
// error when a kind is added.
type SegmentVisitor interface {
	VisitText(TextSegment)
	VisitThinking(ThinkingSegment)
	VisitImage(ImageSegment)
	VisitToolCall(ToolCallSegment)
}

// TextSegment is prose that accumulates by appending.
type TextSegment struct {
	Text string
}

// ThinkingSegment is the assistant's reasoning. At most one per message,
// always at position 0.
type ThinkingSegment struct {
	Text string
}

// ImageSegment is an inline image, immutable once attached.
// Data is a data URL ("data:image/png;base64,...").
type ImageSegment struct {
	Data string
}

// ToolCallSegment is a tool invocation. It is created without a result and
// updated once when the result arrives.
type ToolCallSegment struct {
	ToolCallID string
	ToolName   string
	Args       json.RawMessage
	ArgsText   string

	// Result is nil until the tool result arrives.
	Result  json.RawMessage
	IsError bool
}

func (TextSegment) Kind() SegmentKind     { return KindText }
func (ThinkingSegment) Kind() SegmentKind { return KindThinking }
func (ImageSegment) Kind() SegmentKind    { return KindImage }
func (ToolCallSegment) Kind() SegmentKind { return KindToolCall }

func (s TextSegment) Accept(v SegmentVisitor)     { v.VisitText(s) }
func (s ThinkingSegment) Accept(v SegmentVisitor) { v.VisitThinking(s) }
func (s ImageSegment) Accept(v SegmentVisitor)    { v.VisitImage(s) }
func (s ToolCallSegment) Accept(v SegmentVisitor) { v.VisitToolCall(s) }

func (TextSegment) segment()     {}
func (ThinkingSegment) segment() {}
func (ImageSegment) segment()    {}
func (ToolCallSegment) segment() {}

// HasResult reports whether the tool result has arrived.
func (s ToolCallSegment) HasResult() bool {
	return s.Result != nil
}

// ResultText returns the result as display text. JSON strings are unquoted;
// anything else is returned as raw JSON.
func (s ToolCallSegment) ResultText() string {
	if s.Result == nil {
		return ""
	}
	var str string
	if err := json.Unmarshal(s.Result, &str); err == nil {
		return str
	}
	// Content-block arrays: join their text fields.
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(s.Result, &blocks); err == nil && len(blocks) > 0 {
		var buf bytes.Buffer
		for i, b := range blocks {
			if i > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(b.Text)
		}
		return buf.String()
	}
	return string(s.Result)
}

func (s ToolCallSegment) clone() ToolCallSegment {
	s.Args = cloneRaw(s.Args)
	s.Result = cloneRaw(s.Result)
	return s
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return bytes.Clone(raw)
}
