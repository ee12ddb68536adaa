// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"testing"

	"github.com/muesli/termenv"
)

func TestNewThemeWithProfile_AsciiHasNoEscapes(t *testing.T) {
	theme := NewThemeWithProfile(termenv.Ascii)

	got := theme.Error.Render("boom")
	if got != "boom" {
		t.Errorf("ascii render = %q, want plain text", got)
	}
}

func TestNewThemeWithProfile_ColorsApplied(t *testing.T) {
	theme := NewThemeWithProfile(termenv.TrueColor)

	got := theme.ToolSuccess.Render("ok")
	if got == "ok" {
		t.Error("expected ANSI styling for a true color profile")
	}
}

func TestSetSize(t *testing.T) {
	theme := NewThemeWithProfile(termenv.Ascii)
	theme.SetSize(120, 40)
	if theme.Width != 120 || theme.Height != 40 {
		t.Errorf("size = %dx%d", theme.Width, theme.Height)
	}
}
