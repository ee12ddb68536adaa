// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/muesli/termenv"
)

// =============================================================================
// SYNTAX HIGHLIGHTING (Chroma-based)
// =============================================================================

// Highlight colors code for the terminal. language may be empty, in which
// case the lexer is guessed from the content. With termenv.Ascii, or when
// chroma fails, the code is returned unchanged.
func Highlight(code, language string, profile termenv.Profile) string {
	formatter := formatterFor(profile)
	if formatter == nil || code == "" {
		return code
	}

	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return strings.TrimRight(buf.String(), "\n")
}

// formatterFor picks the chroma terminal formatter matching the profile.
func formatterFor(profile termenv.Profile) chroma.Formatter {
	switch profile {
	case termenv.TrueColor:
		return formatters.TTY16m
	case termenv.ANSI256:
		return formatters.TTY256
	case termenv.ANSI:
		return formatters.TTY16
	default:
		return nil
	}
}
