// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package turn

import (
	"fmt"
	"strings"

	"github.com/Pondsiders/Rosemary-App/internal/api"
	"github.com/Pondsiders/Rosemary-App/internal/attach"
	"github.com/Pondsiders/Rosemary-App/internal/model"
)

// Input is what the user submits for one turn.
type Input struct {
	// Text typed by the user.
	Text string

	// Images attached inline, in order.
	Images []model.ImageSegment

	// Files are backend paths of already-uploaded files. Each becomes a
	// reference line ahead of Text.
	Files []string
}

// composeText assembles the full user text including file references.
func composeText(attribution string, in Input) string {
	return attach.ComposeText(attribution, in.Files, in.Text)
}

// isSubmittable reports whether a turn with this text and these images may
// be sent.
func isSubmittable(text string, images []model.ImageSegment) bool {
	return strings.TrimSpace(text) != "" || len(images) > 0
}

// BuildContent encodes the outbound content: a bare string when text-only,
// otherwise a text part (if any text) followed by one inline part per image.
func BuildContent(text string, images []model.ImageSegment) (api.Content, error) {
	if len(images) == 0 {
		return api.Content{Text: text}, nil
	}

	parts := make([]api.ContentPart, 0, len(images)+1)
	if strings.TrimSpace(text) != "" {
		parts = append(parts, api.TextPart(text))
	}
	for i, img := range images {
		mt, data, err := attach.ParseDataURL(img.Data)
		if err != nil {
			return api.Content{}, fmt.Errorf("image %d: %w", i+1, err)
		}
		parts = append(parts, api.ImagePart(mt, data))
	}
	return api.Content{Parts: parts}, nil
}
