// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"log/slog"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Pondsiders/Rosemary-App/internal/api"
	"github.com/Pondsiders/Rosemary-App/internal/attach"
	"github.com/Pondsiders/Rosemary-App/internal/conversation"
	"github.com/Pondsiders/Rosemary-App/internal/model"
	"github.com/Pondsiders/Rosemary-App/internal/turn"
	"github.com/Pondsiders/Rosemary-App/internal/ui/markdown"
	"github.com/Pondsiders/Rosemary-App/internal/ui/styles"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// TurnRunner runs turns. *turn.Controller implements it.
type TurnRunner interface {
	Submit(ctx context.Context, in turn.Input) error
	Cancel()
}

// SessionSource opens and lists sessions. *session.Bridge implements it.
type SessionSource interface {
	New()
	Open(ctx context.Context, id string) error
	Sessions(ctx context.Context) ([]api.SessionSummary, error)
}

// Options are the display settings.
type Options struct {
	ShowThinking  bool
	ShowTools     bool
	RenderFPS     int
	MaxImageBytes int64
}

// Deps wires the model to the engine.
type Deps struct {
	Store    *conversation.Store
	Turns    TurnRunner
	Sessions SessionSource
	Uploader attach.Uploader
	Notices  <-chan string
	Logger   *slog.Logger
	Theme    *styles.Theme
	Options  Options
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	ctx   context.Context
	deps  Deps
	theme *styles.Theme
	keys  KeyMap
	log   *slog.Logger

	width  int
	height int
	ready  bool

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	throttle    *Throttle
	unsubscribe func()
	markdown    *markdown.Renderer

	// Latest rendered snapshot
	snap conversation.State

	sessions   []api.SessionSummary
	submitting bool

	// stopSubmit cancels the context of the pending submit, covering the
	// gap before the controller has registered the turn.
	stopSubmit context.CancelFunc

	// Attachments staged for the next submit
	images []model.ImageSegment
	files  []string
	staged []string

	notice Notice
}

// New creates the chat model and subscribes it to the store. Snapshot
// delivery stops when ctx is done or Close is called.
func New(ctx context.Context, deps Deps) *Model {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Theme == nil {
		deps.Theme = styles.NewTheme()
	}
	if deps.Options.MaxImageBytes <= 0 {
		deps.Options.MaxImageBytes = attach.DefaultMaxImageBytes
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.PromptStyle = deps.Theme.InputPrompt
	ti.Placeholder = "Message Rosemary (/attach PATH to add a file)"
	ti.CharLimit = 0
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = deps.Theme.Spinner

	th := NewThrottle(deps.Options.RenderFPS)
	m := &Model{
		ctx:      ctx,
		deps:     deps,
		theme:    deps.Theme,
		keys:     DefaultKeyMap(),
		log:      deps.Logger,
		input:    ti,
		spinner:  sp,
		throttle: th,
		snap:     deps.Store.Snapshot(),
		markdown: markdown.New(deps.Theme.ColorProfile, deps.Theme.IsDark),
	}
	m.unsubscribe = deps.Store.Subscribe(th.Push)
	go th.Run(ctx)
	return m
}

// Close stops snapshot delivery.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		waitForState(m.throttle.Updates()),
		waitForNotice(m.deps.Notices),
		m.refreshSessions(),
	)
}

// Snapshot returns the last snapshot the model rendered.
func (m *Model) Snapshot() conversation.State {
	return m.snap
}

// Notice returns the notice currently shown.
func (m *Model) Notice() Notice {
	return m.notice
}

// =============================================================================
// COMMANDS
// =============================================================================

func waitForState(ch <-chan conversation.State) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return StateMsg{State: s}
	}
}

// waitForNotice delivers background warnings, such as a failed archive.
func waitForNotice(ch <-chan string) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		text, ok := <-ch
		if !ok {
			return nil
		}
		return NoticeMsg{Notice: Notice{Text: text}}
	}
}

func (m *Model) refreshSessions() tea.Cmd {
	src, ctx := m.deps.Sessions, m.ctx
	if src == nil {
		return nil
	}
	return func() tea.Msg {
		list, err := src.Sessions(ctx)
		return SessionsMsg{Sessions: list, Err: err}
	}
}

func (m *Model) openSession(id string) tea.Cmd {
	src, ctx := m.deps.Sessions, m.ctx
	return func() tea.Msg {
		return SessionOpenedMsg{SessionID: id, Err: src.Open(ctx, id)}
	}
}

func (m *Model) submit(in turn.Input) tea.Cmd {
	turns := m.deps.Turns
	ctx, cancel := context.WithCancel(m.ctx)
	m.stopSubmit = cancel
	return func() tea.Msg {
		defer cancel()
		return TurnDoneMsg{Err: turns.Submit(ctx, in)}
	}
}

// stop cancels the running turn, including one whose submit has not
// reached the controller yet.
func (m *Model) stop() {
	if m.stopSubmit != nil {
		m.stopSubmit()
	}
	m.deps.Turns.Cancel()
}

// stage loads an image inline or uploads any other file.
func (m *Model) stage(path string) tea.Cmd {
	up, ctx, maxBytes := m.deps.Uploader, m.ctx, m.deps.Options.MaxImageBytes
	return func() tea.Msg {
		if attach.IsImagePath(path) {
			img, err := attach.LoadImage(path, maxBytes)
			if err != nil {
				return AttachedMsg{Name: path, Err: err}
			}
			return AttachedMsg{Name: path, Image: &img}
		}
		if up == nil {
			return AttachedMsg{Name: path, Err: errNoUploader}
		}
		res, err := attach.UploadFile(ctx, up, path)
		if err != nil {
			return AttachedMsg{Name: path, Err: err}
		}
		return AttachedMsg{Name: res.Filename, Path: res.Path}
	}
}
