// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat is the Bubble Tea front end for a conversation.
//
// The model never mutates conversation state itself. It subscribes to the
// store through a Throttle, renders whatever snapshot arrives, and sends
// user actions to a TurnRunner and a SessionSource.
package chat
