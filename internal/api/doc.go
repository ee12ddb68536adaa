// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP transport to the Rosemary backend.
//
// It covers the chat endpoint (a server-sent event stream returned as an
// open body), the interrupt endpoint, multipart uploads, and the session
// list and history endpoints. Non-2xx responses become *StatusError.
//
// The streaming client has no overall timeout; chat requests are bounded
// only by their context so that cancelling the context aborts the read.
package api
