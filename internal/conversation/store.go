// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/Pondsiders/Rosemary-App/internal/model"
)

// =============================================================================
// STATE
// =============================================================================

// State is a point-in-time view of the conversation. Values returned by the
// Store never alias its internal storage.
type State struct {
	SessionID         string
	Messages          []model.Message
	IsRunning         bool
	TotalMessageCount int
	HasMoreHistory    bool
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	s.Messages = model.CloneMessages(s.Messages)
	return s
}

// LastMessage returns the final message, if any.
func (s State) LastMessage() (model.Message, bool) {
	if len(s.Messages) == 0 {
		return model.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// ToolCallInfo is the data needed to open a tool call segment.
type ToolCallInfo struct {
	ToolCallID string
	ToolName   string
	Args       json.RawMessage
	ArgsText   string
}

// =============================================================================
// STORE
// =============================================================================

// Store is an observable conversation container. All methods are safe for
// concurrent use, but the design assumes a single writer per turn: the turn
// controller's dispatch loop.
type Store struct {
	mu    sync.Mutex
	state State

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int

	now func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		state: State{Messages: []model.Message{}},
		subs:  make(map[int]func(State)),
		now:   time.Now,
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Message returns a copy of the message with the given id.
func (s *Store) Message(id string) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.state.Messages[i].Clone(), true
	}
	return model.Message{}, false
}

// SessionID returns the current session id ("" for a new session).
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SessionID
}

// IsRunning reports whether a turn is in flight.
func (s *Store) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsRunning
}

// Subscribe registers fn to receive a snapshot after every mutation that
// changed state. fn runs on the mutating goroutine and must not call back
// into the store's mutators. The returned function unsubscribes.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// AddUserMessage appends a user message with the images first, in order,
// followed by one text segment holding text. It returns the new id.
func (s *Store) AddUserMessage(text string, images ...model.ImageSegment) string {
	msg := model.NewUserMessage(text, images...)
	msg.CreatedAt = s.now()

	s.update(func(st *State) bool {
		st.Messages = append(st.Messages, msg)
		st.TotalMessageCount++
		return true
	})
	return msg.ID
}

// AddAssistantPlaceholder appends an empty assistant message and returns its id.
func (s *Store) AddAssistantPlaceholder() string {
	msg := model.NewAssistantPlaceholder()
	msg.CreatedAt = s.now()

	s.update(func(st *State) bool {
		st.Messages = append(st.Messages, msg)
		st.TotalMessageCount++
		return true
	})
	return msg.ID
}

// AppendToAssistant extends the trailing text segment of an assistant
// message, or starts a new one if the last segment is not text.
func (s *Store) AppendToAssistant(id, text string) {
	s.update(func(st *State) bool {
		msg := st.assistant(id)
		if msg == nil {
			return false
		}
		if n := len(msg.Content); n > 0 {
			if last, ok := msg.Content[n-1].(model.TextSegment); ok {
				msg.Content[n-1] = model.TextSegment{Text: last.Text + text}
				return true
			}
		}
		msg.Content = append(msg.Content, model.TextSegment{Text: text})
		return true
	})
}

// AppendThinking extends the message's thinking segment, creating it at
// position 0 if absent.
func (s *Store) AppendThinking(id, text string) {
	s.update(func(st *State) bool {
		msg := st.assistant(id)
		if msg == nil {
			return false
		}
		for i, seg := range msg.Content {
			if th, ok := seg.(model.ThinkingSegment); ok {
				msg.Content[i] = model.ThinkingSegment{Text: th.Text + text}
				return true
			}
		}
		content := make([]model.Segment, 0, len(msg.Content)+1)
		content = append(content, model.ThinkingSegment{Text: text})
		msg.Content = append(content, msg.Content...)
		return true
	})
}

// AddToolCall appends a tool call segment without a result. A call whose id
// already exists in the message is ignored.
func (s *Store) AddToolCall(id string, call ToolCallInfo) {
	s.update(func(st *State) bool {
		msg := st.assistant(id)
		if msg == nil {
			return false
		}
		if _, exists := msg.ToolCall(call.ToolCallID); exists {
			return false
		}
		msg.Content = append(msg.Content, model.ToolCallSegment{
			ToolCallID: call.ToolCallID,
			ToolName:   call.ToolName,
			Args:       cloneRaw(call.Args),
			ArgsText:   call.ArgsText,
		})
		return true
	})
}

// UpdateToolResult records the result of a tool call. Unknown message or
// call ids, and calls that already have a result, are left untouched.
func (s *Store) UpdateToolResult(id, toolCallID string, result json.RawMessage, isError bool) {
	if result == nil {
		result = json.RawMessage("null")
	}
	s.update(func(st *State) bool {
		i := st.index(id)
		if i < 0 {
			return false
		}
		msg := &st.Messages[i]
		for j, seg := range msg.Content {
			tc, ok := seg.(model.ToolCallSegment)
			if !ok || tc.ToolCallID != toolCallID {
				continue
			}
			if tc.HasResult() {
				return false
			}
			tc.Result = cloneRaw(result)
			tc.IsError = isError
			msg.Content[j] = tc
			return true
		}
		return false
	})
}

// SetMessages replaces the whole message list.
func (s *Store) SetMessages(msgs []model.Message) {
	cp := model.CloneMessages(msgs)
	s.update(func(st *State) bool {
		st.Messages = cp
		st.TotalMessageCount = len(cp)
		st.HasMoreHistory = false
		return true
	})
}

// SetSessionID records the server-assigned session id.
func (s *Store) SetSessionID(id string) {
	s.update(func(st *State) bool {
		if st.SessionID == id {
			return false
		}
		st.SessionID = id
		return true
	})
}

// SetRunning sets the in-flight flag.
func (s *Store) SetRunning(running bool) {
	s.update(func(st *State) bool {
		if st.IsRunning == running {
			return false
		}
		st.IsRunning = running
		return true
	})
}

// Reset restores the empty state of a new session.
func (s *Store) Reset() {
	s.update(func(st *State) bool {
		*st = State{Messages: []model.Message{}}
		return true
	})
}

// LoadSession installs fetched history. With a nil total, HasMoreHistory is
// false; otherwise it reports whether the server holds more messages than
// were loaded.
func (s *Store) LoadSession(sessionID string, msgs []model.Message, total *int) {
	cp := model.CloneMessages(msgs)
	s.update(func(st *State) bool {
		st.SessionID = sessionID
		st.Messages = cp
		st.IsRunning = false
		st.TotalMessageCount = len(cp)
		st.HasMoreHistory = false
		if total != nil {
			st.TotalMessageCount = max(*total, len(cp))
			st.HasMoreHistory = *total > len(cp)
		}
		return true
	})
}

// =============================================================================
// INTERNALS
// =============================================================================

// update applies fn under the lock and notifies subscribers if fn reports a
// change.
func (s *Store) update(fn func(*State) bool) {
	s.mu.Lock()
	if s.state.Messages == nil {
		s.state.Messages = []model.Message{}
	}
	changed := fn(&s.state)
	var snap State
	if changed {
		snap = s.state.Clone()
	}
	s.mu.Unlock()

	if changed {
		s.notify(snap)
	}
}

func (s *Store) notify(snap State) {
	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) indexOf(id string) int {
	return s.state.index(id)
}

// index finds a message by id, searching from the end where the active
// turn lives.
func (st *State) index(id string) int {
	if id == "" {
		return -1
	}
	for i := len(st.Messages) - 1; i >= 0; i-- {
		if st.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// assistant returns the assistant message with the given id, or nil.
func (st *State) assistant(id string) *model.Message {
	i := st.index(id)
	if i < 0 || st.Messages[i].Role != model.RoleAssistant {
		return nil
	}
	return &st.Messages[i]
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
