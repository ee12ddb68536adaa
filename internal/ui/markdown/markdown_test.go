// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"strings"
	"testing"

	"github.com/muesli/termenv"
)

func TestRenderPlainProfile(t *testing.T) {
	r := New(termenv.Ascii, true)

	out := r.Render("Some **bold** words and a list:\n\n- one\n- two", 60)

	for _, want := range []string{"bold", "one", "two"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q in %q", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("Ascii profile produced escape codes: %q", out)
	}
	if strings.HasPrefix(out, "\n") || strings.HasSuffix(out, "\n") {
		t.Errorf("Render() should trim surrounding newlines: %q", out)
	}
}

func TestRenderWraps(t *testing.T) {
	r := New(termenv.Ascii, true)
	long := strings.Repeat("word ", 40)

	out := r.Render(long, 30)
	if !strings.Contains(out, "\n") {
		t.Errorf("expected wrapped output, got %q", out)
	}
}

func TestRenderCaches(t *testing.T) {
	r := New(termenv.Ascii, true)

	first := r.Render("hello *there*", 40)
	second := r.Render("hello *there*", 40)
	if first != second {
		t.Errorf("cached render differs: %q vs %q", first, second)
	}
	if len(r.renderers) != 1 || len(r.cache) != 1 {
		t.Errorf("renderers=%d cache=%d, want 1 and 1", len(r.renderers), len(r.cache))
	}

	r.Render("hello *there*", 50)
	if len(r.renderers) != 2 {
		t.Errorf("renderers=%d, want one per width", len(r.renderers))
	}
}

func TestRenderBlank(t *testing.T) {
	r := New(termenv.ANSI256, true)
	if got := r.Render("  ", 40); got != "  " {
		t.Errorf("Render(blank) = %q", got)
	}
}

func TestHighlight(t *testing.T) {
	code := `{"path": "a.txt", "lines": 3}`

	if got := Highlight(code, "json", termenv.Ascii); got != code {
		t.Errorf("Ascii highlight should be a no-op, got %q", got)
	}

	colored := Highlight(code, "json", termenv.ANSI256)
	if !strings.Contains(colored, "\x1b[") {
		t.Errorf("expected escape codes, got %q", colored)
	}
	if !strings.Contains(colored, "a.txt") {
		t.Errorf("highlighted output lost content: %q", colored)
	}

	if got := Highlight("", "json", termenv.TrueColor); got != "" {
		t.Errorf("Highlight(empty) = %q", got)
	}
}
