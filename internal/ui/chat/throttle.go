// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/Pondsiders/Rosemary-App/internal/conversation"
)

// =============================================================================
// RENDER THROTTLE
// =============================================================================

// Throttle coalesces store snapshots so the screen repaints at most fps
// times per second. Intermediate snapshots are dropped; the latest one is
// always delivered.
type Throttle struct {
	limiter *rate.Limiter

	mu      sync.Mutex
	latest  conversation.State
	pending bool

	wake chan struct{}
	out  chan conversation.State
}

// NewThrottle creates a throttle. fps <= 0 means 30.
func NewThrottle(fps int) *Throttle {
	if fps <= 0 {
		fps = 30
	}
	return &Throttle{
		limiter: rate.NewLimiter(rate.Limit(fps), 1),
		wake:    make(chan struct{}, 1),
		out:     make(chan conversation.State),
	}
}

// Push records a new snapshot. It never blocks, so it is safe to use as a
// store subscriber.
func (t *Throttle) Push(s conversation.State) {
	t.mu.Lock()
	t.latest = s
	t.pending = true
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Updates delivers rate-limited snapshots.
func (t *Throttle) Updates() <-chan conversation.State {
	return t.out
}

// Run forwards snapshots until ctx is done.
func (t *Throttle) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.wake:
		}

		if err := t.limiter.Wait(ctx); err != nil {
			return
		}

		t.mu.Lock()
		s, ok := t.latest, t.pending
		t.pending = false
		t.mu.Unlock()
		if !ok {
			continue
		}

		select {
		case t.out <- s:
		case <-ctx.Done():
			return
		}
	}
}
