// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"

	"github.com/Pondsiders/Rosemary-App/internal/api"
	"github.com/Pondsiders/Rosemary-App/internal/model"
)

// FromHistory converts stored history into store messages. History carries
// no message ids, so fresh ones are assigned. Messages with an unknown role
// are skipped.
func FromHistory(hist []api.HistoryMessage) ([]model.Message, error) {
	out := make([]model.Message, 0, len(hist))
	for i, h := range hist {
		role := model.Role(h.Role)
		if !role.Valid() {
			continue
		}
		content, err := model.DecodeContent(h.Content)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		out = append(out, model.Message{
			ID:      model.NewID(),
			Role:    role,
			Content: content,
		})
	}
	return out, nil
}
