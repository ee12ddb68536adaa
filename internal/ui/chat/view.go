// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/Pondsiders/Rosemary-App/internal/ui/styles"
	"github.com/Pondsiders/Rosemary-App/internal/util"
)

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "\n  Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderNotice())
	b.WriteString("\n")
	b.WriteString(m.renderStaged())
	b.WriteString("\n")
	b.WriteString(m.renderInput())
	b.WriteString("\n")
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m *Model) renderHeader() string {
	title := "new session"
	if id := m.snap.SessionID; id != "" {
		title = m.titleOf(id)
	}

	info := fmt.Sprintf("%s · %d messages", title, m.snap.TotalMessageCount)
	if m.snap.HasMoreHistory {
		info += fmt.Sprintf(" (showing last %d)", len(m.snap.Messages))
	}
	brand := m.theme.HeaderBrand.Render("Rosemary")
	room := max(m.width-util.StringWidth("Rosemary")-5, 10)
	return m.theme.Header.Width(max(m.width, 1)).Render(brand + "  " + m.theme.HeaderInfo.Render(util.TruncateWidth(info, room)))
}

func (m *Model) renderNotice() string {
	if m.notice.Text == "" {
		return ""
	}
	text := util.TruncateWidth(util.OneLine(m.notice.Text), max(m.width-2, 10))
	if m.notice.IsError {
		return m.theme.Error.Render(styles.IconError + " " + text)
	}
	return m.theme.Warning.Render(styles.IconWarning + " " + text)
}

func (m *Model) renderStaged() string {
	if len(m.staged) == 0 {
		return ""
	}
	return m.theme.Muted.Render("attached: " + util.TruncateWidth(strings.Join(m.staged, ", "), max(m.width-12, 10)))
}

func (m *Model) renderInput() string {
	if m.running() {
		return m.spinner.View() + m.theme.Muted.Render(" thinking... (esc to stop)")
	}
	return m.input.View()
}

func (m *Model) renderHelp() string {
	parts := make([]string, 0, len(m.keys.ShortHelp()))
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDsc.Render(h.Desc))
	}
	return m.theme.StatusBar.Render(strings.Join(parts, "  "))
}
