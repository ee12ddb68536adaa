// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package markdown renders assistant replies (glamour) and tool payloads
// (chroma) for the terminal.
package markdown
