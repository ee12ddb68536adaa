// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session connects the conversation store to stored sessions.
//
// A Bridge loads a session's history from the backend into the store,
// converting the wire shape (bare string or part array content) into
// segments. It keeps the session list fresh when a turn creates a new
// session, and mirrors transcripts into an optional local cache that is
// consulted when the backend cannot serve a session.
//
// # Key Types
//
//   - Bridge: load, reset, list and cache sessions around one store
//   - Backend: the subset of the API client the bridge needs
//   - Cache: local transcript storage (storage.Cache satisfies it)
//
// # Usage
//
//	bridge := session.NewBridge(store, client).WithCache(cache)
//	if err := bridge.Open(ctx, id); err != nil {
//	    return err
//	}
//	snap := bridge.Snapshot()
package session
