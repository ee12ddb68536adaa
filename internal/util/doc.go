// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across Rosemary.
//
// String Utilities:
//   - TruncateRunes, TruncateRunesNoEllipsis: rune-safe truncation
//   - TruncateWidth, FitWidth, StringWidth: terminal column math
//   - OneLine: whitespace collapsing for previews and titles
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
package util
