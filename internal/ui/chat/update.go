// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Pondsiders/Rosemary-App/internal/turn"
)

const attachCommand = "/attach "

var errNoUploader = errors.New("file uploads are not available")

// Layout rows outside the viewport: header (2), notice, staged, input, help.
const chromeRows = 6

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}

	case StateMsg:
		m.snap = msg.State
		m.refreshViewport()
		return m, waitForState(m.throttle.Updates())

	case TurnDoneMsg:
		m.submitting = false
		m.stopSubmit = nil
		switch {
		case msg.Err == nil:
		case errors.Is(msg.Err, turn.ErrEmptyInput):
		case errors.Is(msg.Err, turn.ErrBusy):
			m.notice = Notice{Text: "a turn is already running", IsError: true}
		default:
			m.notice = Notice{Text: msg.Err.Error(), IsError: true}
		}
		return m, nil

	case NoticeMsg:
		m.notice = msg.Notice
		return m, waitForNotice(m.deps.Notices)

	case SessionsMsg:
		if msg.Err != nil {
			m.log.Warn("session list failed", "err", msg.Err)
			m.notice = Notice{Text: "could not load sessions", IsError: true}
			return m, nil
		}
		m.sessions = msg.Sessions
		return m, nil

	case SessionOpenedMsg:
		if msg.Err != nil {
			m.notice = Notice{Text: msg.Err.Error(), IsError: true}
		} else {
			m.notice = Notice{Text: "opened " + m.titleOf(msg.SessionID)}
		}
		return m, nil

	case AttachedMsg:
		if msg.Err != nil {
			m.notice = Notice{Text: fmt.Sprintf("attach %s: %v", filepath.Base(msg.Name), msg.Err), IsError: true}
			return m, nil
		}
		if msg.Image != nil {
			m.images = append(m.images, *msg.Image)
		} else {
			m.files = append(m.files, msg.Path)
		}
		m.staged = append(m.staged, filepath.Base(msg.Name))
		m.notice = Notice{}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// handleKey processes bound keys. Unbound keys fall through to the input.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.running() {
			m.stop()
		}
		m.Close()
		return tea.Quit, true

	case key.Matches(msg, m.keys.Cancel):
		if m.running() {
			m.stop()
			m.notice = Notice{Text: "stopped"}
		}
		return nil, true

	case key.Matches(msg, m.keys.Submit):
		return m.handleSubmit(), true

	case key.Matches(msg, m.keys.New):
		if m.running() {
			m.notice = Notice{Text: "wait for the reply or press esc", IsError: true}
			return nil, true
		}
		m.deps.Sessions.New()
		m.clearStaged()
		m.notice = Notice{Text: "new session"}
		return nil, true

	case key.Matches(msg, m.keys.Open):
		if m.running() {
			m.notice = Notice{Text: "wait for the reply or press esc", IsError: true}
			return nil, true
		}
		if len(m.sessions) == 0 {
			m.notice = Notice{Text: "no sessions yet"}
			return m.refreshSessions(), true
		}
		return m.openSession(m.sessions[0].ID), true

	case key.Matches(msg, m.keys.Refresh):
		return m.refreshSessions(), true

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return nil, true

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return nil, true
	}
	return nil, false
}

func (m *Model) handleSubmit() tea.Cmd {
	value := m.input.Value()
	trimmed := strings.TrimSpace(value)

	if strings.HasPrefix(trimmed, attachCommand) {
		path := strings.TrimSpace(strings.TrimPrefix(trimmed, attachCommand))
		m.input.Reset()
		if path == "" {
			return nil
		}
		return m.stage(path)
	}

	if m.running() {
		m.notice = Notice{Text: "a turn is already running", IsError: true}
		return nil
	}
	if trimmed == "" && len(m.images) == 0 {
		return nil
	}

	in := turn.Input{Text: value, Images: m.images, Files: m.files}
	m.input.Reset()
	m.clearStaged()
	m.notice = Notice{}
	m.submitting = true
	return m.submit(in)
}

func (m *Model) clearStaged() {
	m.images = nil
	m.files = nil
	m.staged = nil
}

// running is true from submit until the store reports the turn finished.
func (m *Model) running() bool {
	return m.submitting || m.snap.IsRunning
}

func (m *Model) titleOf(id string) string {
	for _, s := range m.sessions {
		if s.ID == id {
			return s.Title
		}
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// =============================================================================
// LAYOUT
// =============================================================================

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.theme.SetSize(width, height)

	vpHeight := max(height-chromeRows, 1)
	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.input.Width = max(width-4, 10)
	m.refreshViewport()
}

// refreshViewport re-renders the transcript, following the tail when the
// view was already at the bottom.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	follow := m.viewport.AtBottom()
	m.viewport.SetContent(RenderTranscript(m.theme, m.snap.Messages, RenderOptions{
		ShowThinking: m.deps.Options.ShowThinking,
		ShowTools:    m.deps.Options.ShowTools,
		Width:        m.width,
		Markdown:     m.markdown,
	}))
	if follow {
		m.viewport.GotoBottom()
	}
}
