// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package turn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pondsiders/Rosemary-App/internal/api"
	"github.com/Pondsiders/Rosemary-App/internal/conversation"
	"github.com/Pondsiders/Rosemary-App/internal/model"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fakeTransport struct {
	mu           sync.Mutex
	requests     []api.ChatRequest
	chat         func(ctx context.Context) (io.ReadCloser, error)
	interrupts   int
	interruptErr error
}

func (f *fakeTransport) Chat(ctx context.Context, req api.ChatRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.chat(ctx)
}

func (f *fakeTransport) Interrupt(context.Context) (api.InterruptResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupts++
	if f.interruptErr != nil {
		return api.InterruptResult{}, f.interruptErr
	}
	return api.InterruptResult{Status: api.StatusInterrupted}, nil
}

func (f *fakeTransport) lastRequest(t *testing.T) api.ChatRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func staticBody(s string) func(context.Context) (io.ReadCloser, error) {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(s)), nil
	}
}

// sse renders frames in wire format.
func sse(frames ...string) string {
	var sb strings.Builder
	for _, f := range frames {
		sb.WriteString("data: ")
		sb.WriteString(f)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newController(tr *fakeTransport) (*Controller, *conversation.Store) {
	store := conversation.NewStore()
	return New(store, tr).WithLogger(quietLogger()), store
}

func assistant(t *testing.T, store *conversation.Store) model.Message {
	t.Helper()
	last, ok := store.Snapshot().LastMessage()
	require.True(t, ok)
	require.Equal(t, model.RoleAssistant, last.Role)
	return last
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestSubmit_CompletedTurn(t *testing.T) {
	tr := &fakeTransport{chat: staticBody(sse(
		`{"type":"text-delta","data":"Let me "}`,
		`{"type":"thinking-delta","data":"user wants "}`,
		`{"type":"text-delta","data":"look."}`,
		`{"type":"thinking-delta","data":"a file"}`,
		`{"type":"tool-call","data":{"toolCallId":"c1","toolName":"Read","args":{"path":"a"},"argsText":"{\"path\":\"a\"}"}}`,
		`{"type":"tool-result","data":{"toolCallId":"c1","result":"contents","isError":false}}`,
		`{"type":"text","data":"Done."}`,
		`{"type":"context","data":{"tokens":10}}`,
		`{"type":"session-id","data":"sess-123456789"}`,
		`[DONE]`,
		`{"type":"text-delta","data":"after done"}`,
	))}

	var created []string
	var outcomes []Outcome
	c, store := newController(tr)
	c.WithHooks(Hooks{
		OnSessionCreated: func(id string) { created = append(created, id) },
		OnFinish:         func(o Outcome) { outcomes = append(outcomes, o) },
	})

	require.NoError(t, c.Submit(context.Background(), Input{Text: "read a"}))

	snap := store.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, []model.Segment{model.TextSegment{Text: "read a"}}, snap.Messages[0].Content)

	msg := snap.Messages[1]
	require.Len(t, msg.Content, 4)
	assert.Equal(t, model.ThinkingSegment{Text: "user wants a file"}, msg.Content[0])
	assert.Equal(t, model.TextSegment{Text: "Let me look."}, msg.Content[1])
	tc := msg.Content[2].(model.ToolCallSegment)
	assert.Equal(t, "Read", tc.ToolName)
	assert.Equal(t, "contents", tc.ResultText())
	assert.Equal(t, model.TextSegment{Text: "Done."}, msg.Content[3])

	assert.Equal(t, "sess-123456789", snap.SessionID)
	assert.False(t, snap.IsRunning)
	assert.Equal(t, StateCompleted, c.State())
	assert.Equal(t, []string{"sess-123456789"}, created)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StateCompleted, outcomes[0].State)
	assert.Equal(t, msg.ID, outcomes[0].AssistantID)

	req := tr.lastRequest(t)
	assert.Nil(t, req.SessionID)
	assert.Equal(t, api.Content{Text: "read a"}, req.Content)
}

func TestSubmit_SendsExistingSession(t *testing.T) {
	tr := &fakeTransport{chat: staticBody(sse(`{"type":"session-id","data":"s1"}`, `[DONE]`))}
	c, store := newController(tr)
	var created int
	c.WithHooks(Hooks{OnSessionCreated: func(string) { created++ }})
	store.SetSessionID("s1")

	require.NoError(t, c.Submit(context.Background(), Input{Text: "again"}))

	req := tr.lastRequest(t)
	require.NotNil(t, req.SessionID)
	assert.Equal(t, "s1", *req.SessionID)
	assert.Zero(t, created, "same session id is not a new session")
}

func TestSubmit_ImagesAndFiles(t *testing.T) {
	tr := &fakeTransport{chat: staticBody(sse(`[DONE]`))}
	c, store := newController(tr)
	c.SetAttribution("Uploaded")

	img := model.ImageSegment{Data: "data:image/png;base64,AAAA"}
	require.NoError(t, c.Submit(context.Background(), Input{
		Text:   "see",
		Images: []model.ImageSegment{img},
		Files:  []string{"/up/a.txt"},
	}))

	user := store.Snapshot().Messages[0]
	assert.Equal(t, []model.Segment{img, model.TextSegment{Text: "Uploaded: /up/a.txt\n\nsee"}}, user.Content)

	req := tr.lastRequest(t)
	require.True(t, req.Content.IsStructured())
	data, err := json.Marshal(req.Content)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"type":"text","text":"Uploaded: /up/a.txt\n\nsee"},
		{"type":"image","source":{"type":"base64","media_type":"image/png","data":"AAAA"}}
	]`, string(data))
}

func TestSubmit_ImageOnly(t *testing.T) {
	tr := &fakeTransport{chat: staticBody(sse(`[DONE]`))}
	c, _ := newController(tr)

	require.NoError(t, c.Submit(context.Background(), Input{
		Images: []model.ImageSegment{{Data: "data:image/jpeg;base64,AAAA"}},
	}))

	parts := tr.lastRequest(t).Content.Parts
	require.Len(t, parts, 1)
	assert.Equal(t, "image", parts[0].Type)
}

func TestSubmit_EmptyInputDropped(t *testing.T) {
	tr := &fakeTransport{chat: staticBody(sse(`[DONE]`))}
	c, store := newController(tr)

	err := c.Submit(context.Background(), Input{Text: "   \n"})

	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, store.Snapshot().Messages)
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, tr.requests)
}

func TestSubmit_StreamEndsWithoutDone(t *testing.T) {
	tr := &fakeTransport{chat: staticBody(sse(`{"type":"text-delta","data":"partial"}`) + `data: {"type":"text-delta","data":"lost`)}
	c, store := newController(tr)

	require.NoError(t, c.Submit(context.Background(), Input{Text: "x"}))

	assert.Equal(t, StateCompleted, c.State())
	assert.Equal(t, "partial", assistant(t, store).Text())
}

// =============================================================================
// ERROR EVENTS
// =============================================================================

func TestSubmit_ErrorEventDoesNotEndTurn(t *testing.T) {
	var logs bytes.Buffer
	tr := &fakeTransport{chat: staticBody(sse(
		`{"type":"text-delta","data":"a"}`,
		`{"type":"error","data":"tool exploded"}`,
		`not-json`,
		`{"type":"text-delta","data":"b"}`,
		`[DONE]`,
	))}
	c, store := newController(tr)
	c.WithLogger(slog.New(slog.NewTextHandler(&logs, nil)))

	require.NoError(t, c.Submit(context.Background(), Input{Text: "x"}))

	assert.Equal(t, StateCompleted, c.State())
	assert.Equal(t, "ab", assistant(t, store).Text())
	assert.Contains(t, logs.String(), "tool exploded")
}

func TestSubmit_ArchiveErrorWarns(t *testing.T) {
	tr := &fakeTransport{chat: staticBody(sse(
		`{"type":"text-delta","data":"reply"}`,
		`{"type":"archive-error","data":"database unavailable"}`,
		`[DONE]`,
	))}
	c, store := newController(tr)
	var warnings []string
	c.WithHooks(Hooks{OnWarning: func(msg string) { warnings = append(warnings, msg) }})

	require.NoError(t, c.Submit(context.Background(), Input{Text: "x"}))

	assert.Equal(t, StateCompleted, c.State())
	assert.Equal(t, "reply", assistant(t, store).Text())
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "database unavailable")
}

func TestSubmit_OrphanToolResultIgnored(t *testing.T) {
	tr := &fakeTransport{chat: staticBody(sse(
		`{"type":"tool-result","data":{"toolCallId":"late","result":"x"}}`,
		`{"type":"tool-call","data":{"toolCallId":"late","toolName":"Bash","args":{}}}`,
		`[DONE]`,
	))}
	c, store := newController(tr)

	require.NoError(t, c.Submit(context.Background(), Input{Text: "x"}))

	tc, ok := assistant(t, store).ToolCall("late")
	require.True(t, ok)
	assert.False(t, tc.HasResult())
}

// =============================================================================
// FAILURE
// =============================================================================

func TestSubmit_TransportFailure(t *testing.T) {
	tr := &fakeTransport{chat: func(context.Context) (io.ReadCloser, error) {
		return nil, &api.StatusError{Method: "POST", Path: "/api/chat", Status: 502, Body: `{"detail":"backend down"}`}
	}}
	c, store := newController(tr)
	var outcome Outcome
	c.WithHooks(Hooks{OnFinish: func(o Outcome) { outcome = o }})

	err := c.Submit(context.Background(), Input{Text: "x"})

	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrServer)
	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, StateFailed, outcome.State)

	snap := store.Snapshot()
	assert.False(t, snap.IsRunning)
	require.Len(t, snap.Messages, 2, "optimistic user message stays")
	assert.Equal(t, "Error: HTTP 502: backend down", snap.Messages[1].Text())
}

func TestSubmit_ReadFailureKeepsPartial(t *testing.T) {
	pr, pw := io.Pipe()
	tr := &fakeTransport{chat: func(context.Context) (io.ReadCloser, error) { return pr, nil }}
	c, store := newController(tr)

	go func() {
		io.WriteString(pw, sse(`{"type":"text-delta","data":"half"}`))
		pw.CloseWithError(errors.New("connection reset"))
	}()

	err := c.Submit(context.Background(), Input{Text: "x"})

	require.Error(t, err)
	assert.Equal(t, StateFailed, c.State())
	msg := assistant(t, store)
	require.Len(t, msg.Content, 1)
	assert.Equal(t, "half\n\nError: read stream: connection reset", msg.Text())
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestCancel_StopsDispatch(t *testing.T) {
	pr, pw := io.Pipe()
	tr := &fakeTransport{chat: func(context.Context) (io.ReadCloser, error) { return pr, nil }}
	c, store := newController(tr)

	var finishes int
	var mu sync.Mutex
	c.WithHooks(Hooks{OnFinish: func(Outcome) { mu.Lock(); finishes++; mu.Unlock() }})

	firstDelta := make(chan struct{})
	var once sync.Once
	unsubscribe := store.Subscribe(func(st conversation.State) {
		if last, ok := st.LastMessage(); ok && last.Text() == "Hel" {
			once.Do(func() { close(firstDelta) })
		}
	})
	defer unsubscribe()

	result := make(chan error, 1)
	go func() { result <- c.Submit(context.Background(), Input{Text: "hi"}) }()

	_, err := io.WriteString(pw, sse(`{"type":"text-delta","data":"Hel"}`))
	require.NoError(t, err)

	select {
	case <-firstDelta:
	case <-time.After(5 * time.Second):
		t.Fatal("first delta never applied")
	}

	c.Cancel()

	// Guaranteed immediately after Cancel returns.
	snap := store.Snapshot()
	assert.False(t, snap.IsRunning)
	assert.Equal(t, StateCancelled, c.State())
	before := snap.Messages[1]

	// More frames from the abandoned stream never land.
	_, _ = io.WriteString(pw, sse(`{"type":"text-delta","data":"lo"}`, `[DONE]`))

	select {
	case err := <-result:
		assert.NoError(t, err, "cancellation is not a failure")
	case <-time.After(5 * time.Second):
		t.Fatal("submit did not return after cancel")
	}

	after, ok := store.Message(before.ID)
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.Equal(t, "Hel", after.Text(), "partial content is kept")

	c.Cancel() // no turn in flight
	c.Wait()
	tr.mu.Lock()
	assert.Equal(t, 1, tr.interrupts)
	tr.mu.Unlock()

	mu.Lock()
	assert.Equal(t, 1, finishes, "finalizer runs once")
	mu.Unlock()
}

func TestCancel_DuringSend(t *testing.T) {
	started := make(chan struct{})
	tr := &fakeTransport{chat: func(ctx context.Context) (io.ReadCloser, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c, store := newController(tr)

	result := make(chan error, 1)
	go func() { result <- c.Submit(context.Background(), Input{Text: "hi"}) }()

	<-started
	assert.Equal(t, StateSending, c.State())
	c.Cancel()

	require.NoError(t, <-result)
	assert.Equal(t, StateCancelled, c.State())
	assert.True(t, assistant(t, store).IsEmpty(), "no error text for a cancelled turn")
	assert.False(t, store.IsRunning())
}

// A cancel issued as soon as the store reports running must stop the turn,
// even though no request has been sent yet.
func TestCancel_AsSoonAsRunning(t *testing.T) {
	tr := &fakeTransport{chat: staticBody(sse(`{"type":"text-delta","data":"kept streaming"}`, `[DONE]`))}
	c, store := newController(tr)

	var outcomes []Outcome
	c.WithHooks(Hooks{OnFinish: func(o Outcome) { outcomes = append(outcomes, o) }})

	var once sync.Once
	unsubscribe := store.Subscribe(func(st conversation.State) {
		if st.IsRunning {
			once.Do(c.Cancel)
		}
	})
	defer unsubscribe()

	require.NoError(t, c.Submit(context.Background(), Input{Text: "hi"}))
	c.Wait()

	assert.Equal(t, StateCancelled, c.State())
	assert.False(t, store.IsRunning())
	assert.True(t, assistant(t, store).IsEmpty())

	tr.mu.Lock()
	assert.Empty(t, tr.requests, "no chat request after cancel")
	tr.mu.Unlock()

	require.Len(t, outcomes, 1)
	assert.Equal(t, StateCancelled, outcomes[0].State)
	assert.NotEmpty(t, outcomes[0].AssistantID)

	// The controller is free for the next turn.
	require.NoError(t, c.Submit(context.Background(), Input{Text: "again"}))
	assert.Equal(t, StateCompleted, c.State())
	assert.Equal(t, "kept streaming", assistant(t, store).Text())
}

func TestSubmit_ContextAlreadyCancelled(t *testing.T) {
	tr := &fakeTransport{chat: staticBody(sse(`{"type":"text-delta","data":"late"}`, `[DONE]`))}
	c, store := newController(tr)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, c.Submit(ctx, Input{Text: "hi"}))

	assert.Equal(t, StateCancelled, c.State())
	assert.False(t, store.IsRunning())
	assert.True(t, assistant(t, store).IsEmpty())
	assert.Empty(t, tr.requests)
}

// OnFinish runs on the goroutine blocked in Submit, never inside Cancel.
func TestCancel_FinishHookRunsInSubmit(t *testing.T) {
	started := make(chan struct{})
	tr := &fakeTransport{chat: func(ctx context.Context) (io.ReadCloser, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c, store := newController(tr)

	release := make(chan struct{})
	finished := make(chan struct{})
	c.WithHooks(Hooks{OnFinish: func(Outcome) {
		<-release
		close(finished)
	}})

	result := make(chan error, 1)
	go func() { result <- c.Submit(context.Background(), Input{Text: "hi"}) }()
	<-started

	// Returns while the hook is still blocked.
	c.Cancel()
	assert.False(t, store.IsRunning())
	assert.Equal(t, StateCancelled, c.State())
	assert.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return tr.interrupts == 1
	}, 5*time.Second, 10*time.Millisecond, "interrupt does not wait for the hook")

	close(release)
	<-finished
	require.NoError(t, <-result)
	c.Wait()
}

func TestCancel_InterruptFailureIsQuiet(t *testing.T) {
	var logs bytes.Buffer
	started := make(chan struct{})
	tr := &fakeTransport{
		interruptErr: errors.New("backend unreachable"),
		chat: func(ctx context.Context) (io.ReadCloser, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	c, _ := newController(tr)
	c.WithLogger(slog.New(slog.NewTextHandler(&logs, nil)))

	result := make(chan error, 1)
	go func() { result <- c.Submit(context.Background(), Input{Text: "hi"}) }()
	<-started

	c.Cancel()
	require.NoError(t, <-result)
	c.Wait()

	assert.Equal(t, StateCancelled, c.State())
	assert.Contains(t, logs.String(), "interrupt failed")
}

func TestSubmit_Busy(t *testing.T) {
	started := make(chan struct{})
	tr := &fakeTransport{chat: func(ctx context.Context) (io.ReadCloser, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c, _ := newController(tr)

	result := make(chan error, 1)
	go func() { result <- c.Submit(context.Background(), Input{Text: "one"}) }()
	<-started

	assert.ErrorIs(t, c.Submit(context.Background(), Input{Text: "two"}), ErrBusy)

	c.Cancel()
	require.NoError(t, <-result)
}

// =============================================================================
// PAYLOAD
// =============================================================================

func TestBuildContent(t *testing.T) {
	content, err := BuildContent("plain", nil)
	require.NoError(t, err)
	assert.False(t, content.IsStructured())
	assert.Equal(t, "plain", content.Text)

	_, err = BuildContent("x", []model.ImageSegment{{Data: "not a data url"}})
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.True(t, StateSending.Active())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateIdle.Terminal())
}
