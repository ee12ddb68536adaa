// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"

	"github.com/Pondsiders/Rosemary-App/internal/model"
	"github.com/Pondsiders/Rosemary-App/internal/storage"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown with YAML frontmatter.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a transcript to Markdown.
func (e *MarkdownExporter) Export(t storage.Transcript) ([]byte, error) {
	if len(t.Messages) == 0 {
		return nil, ErrEmptyTranscript
	}

	var sb strings.Builder
	title := t.Title
	if title == "" {
		title = "Conversation"
	}

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(title))
		fmt.Fprintf(&sb, "session: %s\n", escapeYAML(t.SessionID))
		if !t.UpdatedAt.IsZero() {
			fmt.Fprintf(&sb, "updated: %s\n", formatTimestamp(t.UpdatedAt.Local()))
		}
		fmt.Fprintf(&sb, "messages: %d\n", len(t.Messages))
		fmt.Fprintf(&sb, "exported: %s\n", formatTimestamp(e.options.now()))
		sb.WriteString("generator: rosemary\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(title))
	sb.WriteString("## Conversation\n\n")

	for i, msg := range t.Messages {
		if i > 0 {
			sb.WriteString("---\n\n")
		}
		e.writeMessage(&sb, msg)
	}

	sb.WriteString("---\n\n")
	sb.WriteString("*Exported from rosemary*\n")
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

func (e *MarkdownExporter) writeMessage(sb *strings.Builder, msg model.Message) {
	sb.WriteString("### ")
	sb.WriteString(msg.Role.DisplayName())
	if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
		fmt.Fprintf(sb, " <sub>%s</sub>", formatShortTimestamp(msg.CreatedAt.Local()))
	}
	sb.WriteString("\n\n")

	w := &markdownWriter{sb: sb, opts: e.options}
	for _, seg := range msg.Content {
		seg.Accept(w)
	}
}

// =============================================================================
// SEGMENT RENDERING
// =============================================================================

// markdownWriter renders one message's segments in order.
type markdownWriter struct {
	sb   *strings.Builder
	opts *Options
}

func (w *markdownWriter) VisitText(s model.TextSegment) {
	text := strings.TrimSpace(s.Text)
	if text == "" {
		return
	}
	w.sb.WriteString(text)
	w.sb.WriteString("\n\n")
}

func (w *markdownWriter) VisitThinking(s model.ThinkingSegment) {
	if !w.opts.IncludeThinking || strings.TrimSpace(s.Text) == "" {
		return
	}
	w.sb.WriteString("> **Thinking**\n>\n")
	for _, line := range strings.Split(strings.TrimSpace(s.Text), "\n") {
		w.sb.WriteString("> ")
		w.sb.WriteString(line)
		w.sb.WriteString("\n")
	}
	w.sb.WriteString("\n")
}

func (w *markdownWriter) VisitImage(s model.ImageSegment) {
	mediaType, size := describeDataURL(s.Data)
	fmt.Fprintf(w.sb, "*[image: %s, %s]*\n\n", mediaType, humanBytes(size))
}

func (w *markdownWriter) VisitToolCall(s model.ToolCallSegment) {
	if !w.opts.IncludeTools {
		return
	}
	fmt.Fprintf(w.sb, "**Tool**: `%s`\n\n", s.ToolName)
	if args := strings.TrimSpace(s.ArgsText); args != "" {
		w.sb.WriteString("Input:\n\n")
		writeFence(w.sb, args)
	}
	if !s.HasResult() {
		w.sb.WriteString("*No result*\n\n")
		return
	}
	status := "[OK]"
	if s.IsError {
		status = "[FAIL]"
	}
	fmt.Fprintf(w.sb, "Result %s:\n\n", status)
	writeFence(w.sb, s.ResultText())
}

// writeFence writes a code block whose fence is longer than any backtick
// run inside the content.
func writeFence(sb *strings.Builder, content string) {
	fence := "```"
	for strings.Contains(content, fence) {
		fence += "`"
	}
	sb.WriteString(fence)
	sb.WriteString("\n")
	sb.WriteString(strings.TrimRight(content, "\n"))
	sb.WriteString("\n")
	sb.WriteString(fence)
	sb.WriteString("\n\n")
}

// describeDataURL returns the media type and decoded size of a base64 data
// URL. Anything else is reported as a URL of unknown size.
func describeDataURL(data string) (string, int) {
	rest, ok := strings.CutPrefix(data, "data:")
	if !ok {
		return "url", 0
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "unknown", 0
	}
	mediaType, _, _ := strings.Cut(header, ";")
	if mediaType == "" {
		mediaType = "unknown"
	}
	payload = strings.TrimRight(payload, "=")
	return mediaType, len(payload) * 3 / 4
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	// Only escape characters that would break formatting in titles/headings
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML quotes a scalar when it contains YAML syntax or line breaks.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
