// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Pondsiders/Rosemary-App/internal/attach"
	"github.com/Pondsiders/Rosemary-App/internal/model"
	"github.com/Pondsiders/Rosemary-App/internal/ui/markdown"
	"github.com/Pondsiders/Rosemary-App/internal/ui/styles"
	"github.com/Pondsiders/Rosemary-App/internal/util"
)

// RenderOptions controls which segment kinds are shown.
type RenderOptions struct {
	ShowThinking bool
	ShowTools    bool
	Width        int

	// Markdown renders assistant text. Nil shows it as plain wrapped text.
	Markdown *markdown.Renderer
}

// maxToolLines bounds how much of a tool result is shown inline.
const maxToolLines = 6

// =============================================================================
// TRANSCRIPT RENDERING
// =============================================================================

// RenderTranscript renders every message in order.
func RenderTranscript(theme *styles.Theme, msgs []model.Message, opts RenderOptions) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(RenderMessage(theme, m, opts))
	}
	return b.String()
}

// RenderMessage renders one message: a role label followed by its segments.
func RenderMessage(theme *styles.Theme, m model.Message, opts RenderOptions) string {
	label := theme.UserLabel
	if m.Role == model.RoleAssistant {
		label = theme.AssistantLabel
	}

	r := &segmentRenderer{theme: theme, opts: opts, role: m.Role}
	for _, seg := range m.Content {
		seg.Accept(r)
	}

	head := label.Render(m.Role.DisplayName())
	if len(r.blocks) == 0 {
		return head
	}
	return head + "\n" + strings.Join(r.blocks, "\n")
}

// segmentRenderer turns segments into display blocks.
type segmentRenderer struct {
	theme  *styles.Theme
	opts   RenderOptions
	role   model.Role
	blocks []string
}

func (r *segmentRenderer) wrap(s string, indent int) string {
	if r.opts.Width <= indent+10 {
		return s
	}
	return lipgloss.NewStyle().Width(r.opts.Width - indent).Render(s)
}

func (r *segmentRenderer) VisitText(s model.TextSegment) {
	if s.Text == "" {
		return
	}
	if r.role == model.RoleAssistant && r.opts.Markdown != nil {
		r.blocks = append(r.blocks, r.opts.Markdown.Render(s.Text, r.opts.Width))
		return
	}
	r.blocks = append(r.blocks, r.theme.Body.Render(r.wrap(s.Text, 0)))
}

func (r *segmentRenderer) VisitThinking(s model.ThinkingSegment) {
	if !r.opts.ShowThinking || strings.TrimSpace(s.Text) == "" {
		return
	}
	r.blocks = append(r.blocks, r.theme.Thinking.Render(r.wrap(s.Text, 2)))
}

func (r *segmentRenderer) VisitImage(s model.ImageSegment) {
	mt, payload, err := attach.ParseDataURL(s.Data)
	desc := "image"
	if err == nil {
		desc = fmt.Sprintf("%s, %s", mt, humanBytes(len(payload)*3/4))
	}
	r.blocks = append(r.blocks, r.theme.ImageRef.Render(styles.IconImage+" ["+desc+"]"))
}

func (r *segmentRenderer) VisitToolCall(s model.ToolCallSegment) {
	if !r.opts.ShowTools {
		return
	}

	icon, style := styles.IconPending, r.theme.ToolPending
	switch {
	case s.HasResult() && s.IsError:
		icon, style = styles.IconError, r.theme.ToolError
	case s.HasResult():
		icon, style = styles.IconSuccess, r.theme.ToolSuccess
	}

	line := style.Render(icon + " " + s.ToolName)
	if args := util.OneLine(s.ArgsText); args != "" {
		args = util.TruncateWidth(args, max(r.opts.Width-len(s.ToolName)-4, 20))
		if json.Valid([]byte(args)) {
			line += " " + markdown.Highlight(args, "json", r.theme.ColorProfile)
		} else {
			line += " " + r.theme.Muted.Render(args)
		}
	}
	r.blocks = append(r.blocks, line)

	res := strings.TrimSpace(s.ResultText())
	switch {
	case res == "":
	case json.Valid([]byte(res)):
		code := clipLines(prettyJSON(res), maxToolLines)
		r.blocks = append(r.blocks, indent(markdown.Highlight(code, "json", r.theme.ColorProfile), "    "))
	default:
		r.blocks = append(r.blocks, r.theme.ToolDetail.Render(clipLines(res, maxToolLines)))
	}
}

// prettyJSON indents compact JSON so long results clip by line.
func prettyJSON(s string) string {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return s
	}
	return string(out)
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// clipLines keeps the first n lines and notes how many were hidden.
func clipLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	hidden := len(lines) - n
	return strings.Join(lines[:n], "\n") + fmt.Sprintf("\n… %d more lines", hidden)
}

func humanBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
