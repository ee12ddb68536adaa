// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Pondsiders/Rosemary-App/internal/api"
	"github.com/Pondsiders/Rosemary-App/internal/attach"
	"github.com/Pondsiders/Rosemary-App/internal/conversation"
	"github.com/Pondsiders/Rosemary-App/internal/stream"
)

// =============================================================================
// STATE
// =============================================================================

// State is the lifecycle position of the current (or last) turn.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateCancelled
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Active reports whether a turn is in flight.
func (s State) Active() bool {
	return s == StateSending || s == StateStreaming
}

// Terminal reports whether the state ends a turn.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Outcome describes how a turn ended.
type Outcome struct {
	State       State
	Err         error
	SessionID   string
	AssistantID string
	Duration    time.Duration
}

// Error variables for submit preconditions.
var (
	// ErrEmptyInput indicates a submit with no text and no images.
	ErrEmptyInput = errors.New("nothing to send")

	// ErrBusy indicates a submit while another turn is in flight.
	ErrBusy = errors.New("a turn is already in progress")
)

// DefaultInterruptTimeout bounds the background interrupt call.
const DefaultInterruptTimeout = 5 * time.Second

// =============================================================================
// CONTROLLER
// =============================================================================

// Transport opens chat streams and interrupts them. *api.Client satisfies it.
type Transport interface {
	Chat(ctx context.Context, req api.ChatRequest) (io.ReadCloser, error)
	Interrupt(ctx context.Context) (api.InterruptResult, error)
}

// Hooks are optional callbacks. They run on the turn's goroutine (or the
// caller of Cancel for a cancelled turn) without any controller lock held.
type Hooks struct {
	// OnSessionCreated fires when the stream reports a session id that
	// differs from the store's current one.
	OnSessionCreated func(sessionID string)

	// OnWarning fires for non-fatal problems such as archival failures.
	OnWarning func(msg string)

	// OnFinish fires once per turn after finalization.
	OnFinish func(Outcome)
}

// Controller runs turns against a store. One turn at a time.
type Controller struct {
	store     *conversation.Store
	transport Transport
	logger    *slog.Logger
	hooks     Hooks

	interruptTimeout time.Duration

	mu          sync.Mutex
	state       State
	active      *run
	last        *run
	attribution string

	interrupts sync.WaitGroup
}

// run is the bookkeeping for one in-flight turn.
type run struct {
	assistantID string
	started     time.Time
	cancel      context.CancelFunc
	body        io.ReadCloser
	cancelled   bool
	finalize    sync.Once
	done        chan struct{}
}

// New creates a controller driving store through transport.
func New(store *conversation.Store, transport Transport) *Controller {
	return &Controller{
		store:            store,
		transport:        transport,
		logger:           slog.Default(),
		interruptTimeout: DefaultInterruptTimeout,
		attribution:      attach.DefaultAttribution,
	}
}

// WithHooks sets the callbacks.
func (c *Controller) WithHooks(h Hooks) *Controller {
	c.hooks = h
	return c
}

// WithLogger sets the logger.
func (c *Controller) WithLogger(logger *slog.Logger) *Controller {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithInterruptTimeout bounds the background interrupt request.
func (c *Controller) WithInterruptTimeout(d time.Duration) *Controller {
	if d > 0 {
		c.interruptTimeout = d
	}
	return c
}

// SetAttribution changes the prefix of file reference lines for later turns.
func (c *Controller) SetAttribution(attribution string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if attribution == "" {
		attribution = attach.DefaultAttribution
	}
	c.attribution = attribution
}

// State returns the current turn state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Store returns the store the controller writes to.
func (c *Controller) Store() *conversation.Store {
	return c.store
}

// Submit runs one turn and blocks until it ends. It returns nil for a
// completed or cancelled turn, the transport or stream error for a failed
// one, and ErrEmptyInput or ErrBusy (with no state change) when the turn
// cannot start.
func (c *Controller) Submit(ctx context.Context, in Input) error {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return ErrBusy
	}
	text := composeText(c.attribution, in)
	c.mu.Unlock()

	if !isSubmittable(text, in.Images) {
		return ErrEmptyInput
	}
	content, err := BuildContent(text, in.Images)
	if err != nil {
		return fmt.Errorf("build content: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The run is registered before the store shows it running, so a
	// Cancel from a subscriber always finds it.
	r := &run{started: time.Now(), cancel: cancel, done: make(chan struct{})}
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return ErrBusy
	}
	c.active = r
	c.last = r
	c.state = StateSending
	c.mu.Unlock()
	defer close(r.done)

	// Optimistic commit before any network call.
	c.store.AddUserMessage(text, in.Images...)
	assistantID := c.store.AddAssistantPlaceholder()
	c.mu.Lock()
	r.assistantID = assistantID
	c.mu.Unlock()
	c.store.SetRunning(true)

	if c.cancelled(r) || ctx.Err() != nil {
		c.finish(r, StateCancelled, nil)
		return nil
	}

	req := api.ChatRequest{Content: content}
	if sid := c.store.SessionID(); sid != "" {
		req.SessionID = &sid
	}

	c.logger.Debug("turn sending",
		"session_id", shortID(c.store.SessionID()),
		"structured", content.IsStructured(),
		"images", len(in.Images))

	body, err := c.transport.Chat(ctx, req)
	if err != nil {
		if c.isCancelled(r, err) {
			c.finish(r, StateCancelled, nil)
			return nil
		}
		c.finish(r, StateFailed, err)
		return err
	}

	dec := stream.NewDecoder(body)
	defer dec.Close()

	c.mu.Lock()
	if r.cancelled {
		c.mu.Unlock()
		c.finish(r, StateCancelled, nil)
		return nil
	}
	r.body = body
	c.state = StateStreaming
	c.mu.Unlock()

	state, err := c.consume(r, dec)
	if state == StateFailed {
		c.finish(r, StateFailed, err)
		return err
	}
	c.finish(r, state, nil)
	return nil
}

// Cancel abandons the in-flight turn. Dispatch has stopped by the time it
// returns, the store is no longer running, and the backend interrupt is on
// its way in the background. The OnFinish hook runs later, on the goroutine
// blocked in Submit. Cancel with no turn in flight does nothing.
func (c *Controller) Cancel() {
	c.mu.Lock()
	r := c.active
	if r == nil || r.cancelled {
		c.mu.Unlock()
		return
	}
	r.cancelled = true
	r.cancel()
	c.state = StateCancelled
	body := r.body
	c.mu.Unlock()

	c.interrupt()
	if body != nil {
		body.Close()
	}
	c.store.SetRunning(false)
}

// Wait blocks until the latest Submit has returned (its OnFinish hook
// included) and background interrupt calls are done.
func (c *Controller) Wait() {
	c.mu.Lock()
	r := c.last
	c.mu.Unlock()
	if r != nil {
		<-r.done
	}
	c.interrupts.Wait()
}

// =============================================================================
// DISPATCH
// =============================================================================

// consume reads events until the stream ends and reports the terminal state.
func (c *Controller) consume(r *run, dec *stream.Decoder) (State, error) {
	for {
		ev, err := dec.Next()
		if err != nil {
			switch {
			case c.isCancelled(r, err):
				return StateCancelled, nil
			case errors.Is(err, io.EOF):
				// Stream ended without [DONE]; keep what arrived.
				c.logger.Debug("stream ended without done", "dropped", dec.Dropped())
				return StateCompleted, nil
			default:
				return StateFailed, err
			}
		}

		done, notify, ok := c.dispatch(r, ev)
		if !ok {
			return StateCancelled, nil
		}
		if notify != nil {
			notify()
		}
		if done {
			if n := dec.Dropped(); n > 0 {
				c.logger.Debug("malformed frames dropped", "count", n)
			}
			return StateCompleted, nil
		}
	}
}

// dispatch applies one event under the controller lock. It returns ok=false
// if the turn was cancelled, in which case nothing was applied. notify, if
// set, must be called after the lock is released.
func (c *Controller) dispatch(r *run, ev stream.Event) (done bool, notify func(), ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.cancelled {
		return false, nil, false
	}

	id := r.assistantID
	switch ev.Type {
	case stream.EventThinkingDelta:
		if text, err := ev.Text(); c.payloadOK(ev, err) {
			c.store.AppendThinking(id, text)
		}

	case stream.EventTextDelta, stream.EventText:
		if text, err := ev.Text(); c.payloadOK(ev, err) {
			c.store.AppendToAssistant(id, text)
		}

	case stream.EventToolCall:
		if tc, err := ev.ToolCall(); c.payloadOK(ev, err) {
			c.store.AddToolCall(id, conversation.ToolCallInfo{
				ToolCallID: tc.ToolCallID,
				ToolName:   tc.ToolName,
				Args:       tc.Args,
				ArgsText:   tc.ArgsText,
			})
		}

	case stream.EventToolResult:
		if tr, err := ev.ToolResult(); c.payloadOK(ev, err) {
			c.store.UpdateToolResult(id, tr.ToolCallID, tr.Result, tr.IsError)
		}

	case stream.EventSessionID:
		sid, err := ev.Text()
		if !c.payloadOK(ev, err) || sid == "" {
			break
		}
		isNew := c.store.SessionID() != sid
		c.store.SetSessionID(sid)
		if isNew && c.hooks.OnSessionCreated != nil {
			fn := c.hooks.OnSessionCreated
			notify = func() { fn(sid) }
		}

	case stream.EventContext:
		// Reserved; not used by this client.

	case stream.EventError:
		msg, _ := ev.Text()
		c.logger.Warn("stream error event", "message", msg)

	case stream.EventArchiveError:
		msg, _ := ev.Text()
		c.logger.Warn("turn not archived", "message", msg)
		if c.hooks.OnWarning != nil {
			fn := c.hooks.OnWarning
			warning := "Conversation not archived: " + msg
			notify = func() { fn(warning) }
		}

	case stream.EventDone:
		return true, nil, true

	default:
		c.logger.Debug("unknown event type", "type", string(ev.Type))
	}

	return false, notify, true
}

func (c *Controller) payloadOK(ev stream.Event, err error) bool {
	if err != nil {
		c.logger.Debug("event payload ignored", "type", string(ev.Type), "err", err)
		return false
	}
	return true
}

// =============================================================================
// FINALIZATION
// =============================================================================

// finish moves the turn to a terminal state. Only the first call per turn
// has any effect.
func (c *Controller) finish(r *run, state State, err error) {
	r.finalize.Do(func() {
		c.mu.Lock()
		if r.cancelled {
			state, err = StateCancelled, nil
		}
		c.state = state
		if c.active == r {
			c.active = nil
		}
		r.body = nil
		c.mu.Unlock()

		if state == StateFailed {
			c.appendFailure(r.assistantID, err)
		}
		c.store.SetRunning(false)

		out := Outcome{
			State:       state,
			Err:         err,
			SessionID:   c.store.SessionID(),
			AssistantID: r.assistantID,
			Duration:    time.Since(r.started),
		}

		level := slog.LevelInfo
		if state == StateFailed {
			level = slog.LevelError
		}
		c.logger.Log(context.Background(), level, "turn finished",
			"state", state.String(),
			"session_id", shortID(out.SessionID),
			"duration", out.Duration.Round(time.Millisecond),
			"err", err)

		if c.hooks.OnFinish != nil {
			c.hooks.OnFinish(out)
		}
	})
}

// appendFailure writes a visible error into the placeholder so the thread
// never shows an empty bubble for a failed turn.
func (c *Controller) appendFailure(assistantID string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
		var se *api.StatusError
		if errors.As(err, &se) {
			msg = fmt.Sprintf("HTTP %d", se.Status)
			if d := se.Detail(); d != "" {
				msg += ": " + d
			}
		}
	}

	text := "Error: " + msg
	if m, ok := c.store.Message(assistantID); ok && !m.IsEmpty() {
		text = "\n\n" + text
	}
	c.store.AppendToAssistant(assistantID, text)
}

// interrupt asks the backend to stop, in the background.
func (c *Controller) interrupt() {
	c.interrupts.Add(1)
	go func() {
		defer c.interrupts.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.interruptTimeout)
		defer cancel()

		res, err := c.transport.Interrupt(ctx)
		switch {
		case err != nil:
			c.logger.Warn("interrupt failed", "err", err)
		case res.Status != api.StatusInterrupted:
			c.logger.Warn("interrupt not confirmed", "status", res.Status)
		default:
			c.logger.Debug("interrupt confirmed")
		}
	}()
}

func (c *Controller) cancelled(r *run) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return r.cancelled
}

// isCancelled distinguishes a user abort from a transport failure.
func (c *Controller) isCancelled(r *run, err error) bool {
	c.mu.Lock()
	cancelled := r.cancelled
	c.mu.Unlock()
	return cancelled || errors.Is(err, context.Canceled) || errors.Is(err, stream.ErrClosed)
}

func shortID(id string) string {
	if id == "" {
		return "new"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
