// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewUserMessage_ImagesBeforeText(t *testing.T) {
	msg := NewUserMessage("look at these",
		ImageSegment{Data: "data:image/png;base64,AAA"},
		ImageSegment{Data: "data:image/jpeg;base64,BBB"},
	)

	require.Equal(t, RoleUser, msg.Role)
	require.NotEmpty(t, msg.ID)
	require.Len(t, msg.Content, 3)
	assert.Equal(t, ImageSegment{Data: "data:image/png;base64,AAA"}, msg.Content[0])
	assert.Equal(t, ImageSegment{Data: "data:image/jpeg;base64,BBB"}, msg.Content[1])
	assert.Equal(t, TextSegment{Text: "look at these"}, msg.Content[2])
}

func TestNewAssistantPlaceholder_Empty(t *testing.T) {
	msg := NewAssistantPlaceholder()

	assert.Equal(t, RoleAssistant, msg.Role)
	assert.True(t, msg.IsEmpty())
	assert.NotNil(t, msg.Content)
}

func TestMessage_CloneDoesNotAlias(t *testing.T) {
	orig := Message{
		ID:   "m1",
		Role: RoleAssistant,
		Content: []Segment{
			ToolCallSegment{ToolCallID: "t1", Args: json.RawMessage(`{"a":1}`)},
		},
	}

	cp := orig.Clone()
	cp.Content[0] = TextSegment{Text: "replaced"}
	assert.IsType(t, ToolCallSegment{}, orig.Content[0])

	tc := orig.Clone().Content[0].(ToolCallSegment)
	tc.Args[2] = 'X'
	assert.Equal(t, `{"a":1}`, string(orig.Content[0].(ToolCallSegment).Args))
}

func TestMessage_Preview(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   string
	}{
		{"short", "hello", 10, "hello"},
		{"truncated", "hello world", 8, "hello..."},
		{"unicode", "héllo wörld", 8, "héllo..."},
		{"newlines flattened", "a\nb", 10, "a b"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := Message{Content: []Segment{TextSegment{Text: tc.text}}}
			assert.Equal(t, tc.want, msg.Preview(tc.maxLen))
		})
	}
}

func TestMessage_ToolCallLookup(t *testing.T) {
	msg := Message{Content: []Segment{
		TextSegment{Text: "x"},
		ToolCallSegment{ToolCallID: "call_1", ToolName: "Read"},
	}}

	tc, ok := msg.ToolCall("call_1")
	require.True(t, ok)
	assert.Equal(t, "Read", tc.ToolName)

	_, ok = msg.ToolCall("missing")
	assert.False(t, ok)
}

// =============================================================================
// WIRE TESTS
// =============================================================================

func TestDecodeContent_BareString(t *testing.T) {
	segs, err := DecodeContent(json.RawMessage(`"just text"`))
	require.NoError(t, err)
	assert.Equal(t, []Segment{TextSegment{Text: "just text"}}, segs)
}

func TestDecodeContent_Parts(t *testing.T) {
	raw := json.RawMessage(`[
		{"type":"reasoning","text":"hmm"},
		{"type":"text","text":"answer"},
		{"type":"image","image":"data:image/png;base64,AAA"},
		{"type":"tool-call","toolCallId":"c1","toolName":"Bash","args":{"cmd":"ls"},"argsText":"{\"cmd\":\"ls\"}","result":"ok"},
		{"type":"video","url":"x"}
	]`)

	segs, err := DecodeContent(raw)
	require.NoError(t, err)
	require.Len(t, segs, 4, "unknown part types are skipped")

	assert.Equal(t, ThinkingSegment{Text: "hmm"}, segs[0])
	assert.Equal(t, TextSegment{Text: "answer"}, segs[1])
	assert.Equal(t, ImageSegment{Data: "data:image/png;base64,AAA"}, segs[2])

	tc, ok := segs[3].(ToolCallSegment)
	require.True(t, ok)
	assert.Equal(t, "c1", tc.ToolCallID)
	assert.True(t, tc.HasResult())
	assert.Equal(t, "ok", tc.ResultText())
}

func TestDecodeContent_Invalid(t *testing.T) {
	_, err := DecodeContent(json.RawMessage(`{"type":"text"}`))
	assert.Error(t, err)
}

func TestMessage_JSONShape(t *testing.T) {
	msg := Message{
		ID:   "m1",
		Role: RoleAssistant,
		Content: []Segment{
			ThinkingSegment{Text: "t"},
			TextSegment{Text: "hi"},
		},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"content":[{"type":"reasoning","text":"t"},{"type":"text","text":"hi"}]`)

	var back Message
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, msg.Content, back.Content)
	assert.Equal(t, RoleAssistant, back.Role)
}

func TestToolCallSegment_ResultText(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   string
	}{
		{"string", `"done"`, "done"},
		{"blocks", `[{"type":"text","text":"a"},{"type":"text","text":"b"}]`, "a\nb"},
		{"object", `{"ok":true}`, `{"ok":true}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seg := ToolCallSegment{Result: json.RawMessage(tc.result)}
			assert.Equal(t, tc.want, seg.ResultText())
		})
	}

	assert.Equal(t, "", ToolCallSegment{}.ResultText())
}
