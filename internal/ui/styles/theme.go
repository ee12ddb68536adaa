// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	Width  int
	Height int

	// ==========================================================================
	// HEADER AND STATUS
	// ==========================================================================

	Header      lipgloss.Style
	HeaderBrand lipgloss.Style
	HeaderInfo  lipgloss.Style
	StatusBar   lipgloss.Style
	ShortcutKey lipgloss.Style
	ShortcutDsc lipgloss.Style

	// ==========================================================================
	// MESSAGES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	Body           lipgloss.Style
	Thinking       lipgloss.Style
	ImageRef       lipgloss.Style
	ToolPending    lipgloss.Style
	ToolSuccess    lipgloss.Style
	ToolError      lipgloss.Style
	ToolDetail     lipgloss.Style
	Separator      lipgloss.Style

	// ==========================================================================
	// INPUT, SPINNER, NOTICES
	// ==========================================================================

	InputPrompt lipgloss.Style
	Spinner     lipgloss.Style
	Warning     lipgloss.Style
	Error       lipgloss.Style
	Muted       lipgloss.Style
}

// NewTheme detects the terminal's color support and builds the styles.
func NewTheme() *Theme {
	t := &Theme{
		IsDark:       termenv.HasDarkBackground(),
		ColorProfile: termenv.ColorProfile(),
	}
	t.initStyles()
	return t
}

// NewThemeWithProfile builds a theme for a fixed profile, e.g. termenv.Ascii
// when output is not a terminal.
func NewThemeWithProfile(p termenv.Profile) *Theme {
	t := &Theme{IsDark: true, ColorProfile: p}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(t.ColorProfile)
	r.SetHasDarkBackground(t.IsDark)
	s := r.NewStyle

	t.Header = s().Padding(0, 1).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(Overlay)
	t.HeaderBrand = s().Bold(true).Foreground(Purple)
	t.HeaderInfo = s().Foreground(TextSecondary)
	t.StatusBar = s().Foreground(TextSecondary).Padding(0, 1)
	t.ShortcutKey = s().Bold(true).Foreground(Cyan)
	t.ShortcutDsc = s().Foreground(TextMuted)

	t.UserLabel = s().Bold(true).Foreground(Cyan)
	t.AssistantLabel = s().Bold(true).Foreground(Purple)
	t.Body = s().Foreground(TextPrimary)
	t.Thinking = s().Italic(true).Foreground(TextMuted).PaddingLeft(2)
	t.ImageRef = s().Foreground(TextSecondary)
	t.ToolPending = s().Foreground(Amber)
	t.ToolSuccess = s().Foreground(Emerald)
	t.ToolError = s().Foreground(Rose)
	t.ToolDetail = s().Foreground(TextMuted).PaddingLeft(4)
	t.Separator = s().Foreground(Overlay)

	t.InputPrompt = s().Bold(true).Foreground(Cyan)
	t.Spinner = s().Foreground(Purple)
	t.Warning = s().Foreground(Amber)
	t.Error = s().Bold(true).Foreground(Rose)
	t.Muted = s().Foreground(TextMuted)
}

// SetSize records the terminal dimensions.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}
