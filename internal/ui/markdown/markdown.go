// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// maxCached bounds the rendered-output cache. Finished messages are
// re-rendered on every viewport refresh, so most lookups hit.
const maxCached = 512

// =============================================================================
// MARKDOWN RENDERER
// =============================================================================

// Renderer renders markdown for the terminal with glamour. One glamour
// renderer is kept per wrap width.
type Renderer struct {
	profile termenv.Profile
	dark    bool

	mu        sync.Mutex
	renderers map[int]*glamour.TermRenderer
	cache     map[cacheKey]string
}

type cacheKey struct {
	width int
	text  string
}

// New creates a renderer for a color profile. termenv.Ascii produces plain
// text with markdown structure but no escape codes.
func New(profile termenv.Profile, dark bool) *Renderer {
	return &Renderer{
		profile:   profile,
		dark:      dark,
		renderers: make(map[int]*glamour.TermRenderer),
		cache:     make(map[cacheKey]string),
	}
}

// Render renders text wrapped to width. On any glamour error the text is
// returned unchanged.
func (r *Renderer) Render(text string, width int) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	if width < 20 {
		width = 20
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := cacheKey{width: width, text: text}
	if out, ok := r.cache[key]; ok {
		return out
	}

	tr, err := r.rendererFor(width)
	if err != nil {
		return text
	}
	out, err := tr.Render(text)
	if err != nil {
		return text
	}
	out = strings.Trim(out, "\n")

	if len(r.cache) >= maxCached {
		clear(r.cache)
	}
	r.cache[key] = out
	return out
}

func (r *Renderer) rendererFor(width int) (*glamour.TermRenderer, error) {
	if tr, ok := r.renderers[width]; ok {
		return tr, nil
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(r.styleName()),
		glamour.WithColorProfile(r.profile),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	r.renderers[width] = tr
	return tr, nil
}

func (r *Renderer) styleName() string {
	switch {
	case r.profile == termenv.Ascii:
		return "notty"
	case r.dark:
		return "dark"
	default:
		return "light"
	}
}
