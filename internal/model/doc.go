// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// A conversation is an ordered list of messages, and every message is an
// ordered list of typed content segments. The segment kinds form a closed set:
//
//   - TextSegment: assistant or user prose, grows by appending deltas
//   - ThinkingSegment: the assistant's reasoning, always rendered first
//   - ImageSegment: an inline image carried as a data URL
//   - ToolCallSegment: one tool invocation and, later, its result
//
// The set is sealed: only this package can add a kind, and adding one means
// adding a method to SegmentVisitor, which breaks every consumer until it
// handles the new kind.
//
// # Usage
//
//	msg := model.NewUserMessage("hello", model.ImageSegment{Data: dataURL})
//	for _, seg := range msg.Content {
//	    seg.Accept(renderer)
//	}
//
// Messages serialize to the same part shapes the backend uses for session
// history, so a stored transcript and a fetched one decode identically.
package model
