// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation holds the authoritative in-memory model of a chat
// thread and the only operations allowed to change it.
//
// Every mutation is keyed by message id (and tool call id where relevant).
// A mutation whose target no longer exists is a silent no-op: events from a
// cancelled or superseded turn may arrive late and must never corrupt state
// or fail.
//
// Observers read deep-copied snapshots, either on demand with Snapshot or
// pushed after each mutation through Subscribe.
package conversation
