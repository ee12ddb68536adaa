// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage keeps a local SQLite copy of session transcripts.
//
// The backend owns conversation history. This cache only lets the client
// reopen a session it has seen before when the backend cannot serve it,
// and list recent sessions offline.
//
// # Key Types
//
//   - Cache: SQLite-backed transcript store
//   - Transcript: one session's messages plus title and timestamps
//   - TranscriptMeta: lightweight row for listing
//
// # Usage
//
//	cache, err := storage.Open(storage.DefaultPath())
//	defer cache.Close()
//	err = cache.Save(ctx, transcript)
//	t, err := cache.Load(ctx, sessionID)
//
// # Storage Location
//
// Transcripts are stored in ~/.rosemary/cache.db.
package storage
