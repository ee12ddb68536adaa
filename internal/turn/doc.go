// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package turn drives one user turn end to end: it commits the user message
// and an assistant placeholder, opens the chat stream, applies each decoded
// event to the conversation store in order, and finalizes the turn exactly
// once as completed, cancelled, or failed.
//
// # States
//
//	Idle -> Sending -> Streaming -> Completed
//	                            \-> Cancelled
//	                            \-> Failed
//
// Sending may also go straight to Cancelled or Failed.
//
// Cancel stops dispatch before it returns: once Cancel has returned, no
// event from the abandoned stream reaches the store, even if the backend
// keeps sending. The backend is asked to interrupt generation in the
// background; a failed interrupt is logged and otherwise ignored.
package turn
