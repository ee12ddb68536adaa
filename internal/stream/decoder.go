// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// =============================================================================
// STREAMING CONSTANTS
// =============================================================================

const (
	// DataPrefix marks a payload-carrying line.
	DataPrefix = "data: "

	// DoneSentinel terminates the stream.
	DoneSentinel = "[DONE]"

	// MaxLineSize bounds a single buffered line. Longer lines are dropped
	// whole, like any other malformed frame.
	MaxLineSize = 8 * 1024 * 1024

	// readBufferSize is the chunk size for body reads.
	readBufferSize = 32 * 1024
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("stream decoder closed")

// =============================================================================
// FRAMER
// =============================================================================

// Framer splits a chunked byte stream into lines and decodes data lines
// into events. Partial lines are held until a later chunk completes them.
// The zero value is ready to use. A Framer is not safe for concurrent use.
type Framer struct {
	buf      []byte
	skipping bool // discarding an oversized line up to its newline
	dropped  int
}

// Feed consumes one chunk and returns the events completed by it, in order.
func (f *Framer) Feed(chunk []byte) []Event {
	var events []Event

	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			f.buffer(chunk)
			break
		}

		line := chunk[:i]
		chunk = chunk[i+1:]

		if f.skipping {
			f.skipping = false
			f.buf = f.buf[:0]
			f.dropped++
			continue
		}

		if len(f.buf) > 0 {
			f.buf = append(f.buf, line...)
			line = f.buf
		}
		if ev, ok := f.decodeLine(line); ok {
			events = append(events, ev)
		}
		f.buf = f.buf[:0]
	}

	return events
}

// Pending returns the number of buffered bytes of an unterminated line.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Dropped returns the number of data lines discarded as malformed.
func (f *Framer) Dropped() int {
	return f.dropped
}

// Reset discards any buffered partial line. An unterminated fragment at the
// end of a stream is never treated as data.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.skipping = false
}

func (f *Framer) buffer(part []byte) {
	if f.skipping {
		return
	}
	if len(f.buf)+len(part) > MaxLineSize {
		f.buf = f.buf[:0]
		f.skipping = true
		return
	}
	f.buf = append(f.buf, part...)
}

// decodeLine turns one complete line into an event.
func (f *Framer) decodeLine(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, []byte(DataPrefix)) {
		// Blank separators, comments, event:/id:/retry: fields
		return Event{}, false
	}

	payload := bytes.TrimSpace(line[len(DataPrefix):])
	if string(payload) == DoneSentinel {
		return Event{Type: EventDone}, true
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil || ev.Type == "" {
		f.dropped++
		return Event{}, false
	}
	return ev, true
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder reads events from a response body. It owns the body: the body is
// closed when the stream ends, when a read fails, or on Close, whichever
// comes first. Decoding is single-pass; restarting means opening a new
// request.
type Decoder struct {
	body    io.ReadCloser
	framer  Framer
	pending []Event
	chunk   []byte
	err     error

	closeOnce sync.Once
	closeErr  error
}

// NewDecoder creates a decoder over body.
func NewDecoder(body io.ReadCloser) *Decoder {
	return &Decoder{
		body:  body,
		chunk: make([]byte, readBufferSize),
	}
}

// Next returns the next event. It returns io.EOF once the body is exhausted
// and all complete frames have been delivered; the trailing partial line,
// if any, is discarded. Read failures are returned wrapped; the body is
// already closed by then.
func (d *Decoder) Next() (Event, error) {
	for {
		if len(d.pending) > 0 {
			ev := d.pending[0]
			d.pending = d.pending[1:]
			return ev, nil
		}
		if d.err != nil {
			return Event{}, d.err
		}

		n, err := d.body.Read(d.chunk)
		if n > 0 {
			d.pending = append(d.pending, d.framer.Feed(d.chunk[:n])...)
		}
		if err != nil {
			d.framer.Reset()
			if errors.Is(err, io.EOF) {
				d.err = io.EOF
			} else {
				d.err = fmt.Errorf("read stream: %w", err)
			}
			d.release()
		}
	}
}

// Dropped returns the number of malformed frames skipped so far.
func (d *Decoder) Dropped() int {
	return d.framer.Dropped()
}

// Close releases the body and discards buffered events. Subsequent calls to
// Next return ErrClosed. Close is idempotent.
func (d *Decoder) Close() error {
	d.pending = nil
	d.framer.Reset()
	if d.err == nil || errors.Is(d.err, io.EOF) {
		d.err = ErrClosed
	}
	d.release()
	return d.closeErr
}

func (d *Decoder) release() {
	d.closeOnce.Do(func() {
		d.closeErr = d.body.Close()
	})
}
