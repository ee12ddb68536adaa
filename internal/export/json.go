// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/Pondsiders/Rosemary-App/internal/model"
	"github.com/Pondsiders/Rosemary-App/internal/storage"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports transcripts to JSON. Messages use the same part
// shapes as session history, so an export can be read back with
// model.DecodeContent. Options other than Now are ignored.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

type transcriptJSON struct {
	SessionID  string          `json:"session_id"`
	Title      string          `json:"title"`
	UpdatedAt  time.Time       `json:"updated_at,omitzero"`
	TotalCount int             `json:"total_count"`
	ExportedAt time.Time       `json:"exported_at"`
	Messages   []model.Message `json:"messages"`
}

// Export converts a transcript to indented JSON.
func (e *JSONExporter) Export(t storage.Transcript) ([]byte, error) {
	msgs := t.Messages
	if msgs == nil {
		msgs = []model.Message{}
	}
	return json.MarshalIndent(transcriptJSON{
		SessionID:  t.SessionID,
		Title:      t.Title,
		UpdatedAt:  t.UpdatedAt,
		TotalCount: t.TotalCount,
		ExportedAt: e.options.now().UTC(),
		Messages:   msgs,
	}, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
