// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes session transcripts to Markdown or JSON.
//
// # Usage
//
//	exp, err := export.ForFormat("md", export.DefaultOptions())
//	data, err := exp.Export(transcript)
//
// Or straight to a file named after the session title:
//
//	path, err := export.ExportToFile(transcript, exp, opts)
package export
