// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot "rosemary ask" command.

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/muesli/termenv"

	"github.com/Pondsiders/Rosemary-App/internal/attach"
	"github.com/Pondsiders/Rosemary-App/internal/conversation"
	"github.com/Pondsiders/Rosemary-App/internal/model"
	"github.com/Pondsiders/Rosemary-App/internal/turn"
	"github.com/Pondsiders/Rosemary-App/internal/ui/markdown"
	"github.com/Pondsiders/Rosemary-App/internal/ui/styles"
)

// maxStdinBytes bounds a piped question.
const maxStdinBytes = 1 << 20

// IO holds the streams a command writes to.
type IO struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer

	// Stream prints the raw reply as it arrives. Without it the reply is
	// printed once the turn ends.
	Stream bool

	// Markdown renders a finished reply for the terminal.
	Markdown bool
}

// StdIO returns the process streams. A terminal gets rendered markdown,
// pipes get plain text.
func StdIO() IO {
	return IO{In: os.Stdin, Out: os.Stdout, ErrOut: os.Stderr, Markdown: IsStdoutTTY()}
}

// =============================================================================
// ASK COMMAND
// =============================================================================

// RunAsk sends one message and prints the assistant's reply. Cancelling ctx
// stops the turn the same way esc does in the TUI.
func RunAsk(ctx context.Context, app *App, args Args, stdio IO) error {
	question := args.Query
	if question == "" && stdio.In != nil && !isTerminal(stdio.In) {
		data, err := io.ReadAll(io.LimitReader(bufio.NewReader(stdio.In), maxStdinBytes))
		if err == nil && len(data) > 0 {
			question = strings.TrimSpace(string(data))
			progress(stdio, args, "Read message from stdin (%d bytes)", len(data))
		}
	}

	in := turn.Input{Text: question}
	for _, path := range args.Images {
		img, err := attach.LoadImage(path, app.Config.Upload.MaxImageBytes)
		if err != nil {
			return &CommandError{Command: "ask", Err: err}
		}
		in.Images = append(in.Images, img)
		progress(stdio, args, "Attached image: %s", path)
	}

	if strings.TrimSpace(in.Text) == "" && len(in.Images) == 0 && len(args.Files) == 0 {
		return ErrNoQuery
	}

	for _, path := range args.Files {
		res, err := attach.UploadFile(ctx, app.Client, path)
		if err != nil {
			return &CommandError{Command: "ask", Err: err}
		}
		in.Files = append(in.Files, res.Path)
		progress(stdio, args, "Uploaded file: %s", res.Path)
	}

	if args.SessionID != "" {
		if err := app.Bridge.Open(ctx, args.SessionID); err != nil {
			return &CommandError{Command: "ask", Err: err}
		}
	}

	printer := newReplyPrinter(stdio.Out, len(app.Store.Snapshot().Messages))
	switch {
	case stdio.Stream || args.Stream:
		unsubscribe := app.Store.Subscribe(printer.update)
		defer unsubscribe()
	case stdio.Markdown:
		md := markdown.New(GetColorProfile(), termenv.HasDarkBackground())
		width := GetTerminalWidth()
		printer.render = func(text string) string { return md.Render(text, width) }
	}

	stop := context.AfterFunc(ctx, app.Turns.Cancel)
	defer stop()

	err := app.Turns.Submit(ctx, in)

	printer.finish(app.Store.Snapshot())
	drainNotices(app, stdio)

	if ctx.Err() != nil {
		progress(stdio, args, "Stopped")
		return ctx.Err()
	}
	if err != nil {
		return &CommandError{Command: "ask", Err: err}
	}
	if sid := app.Store.SessionID(); sid != "" {
		progress(stdio, args, "Session: %s", sid)
	}
	return nil
}

// progress writes a "[+]" status line to stderr unless --quiet.
func progress(stdio IO, args Args, format string, a ...any) {
	if args.Quiet || stdio.ErrOut == nil {
		return
	}
	fmt.Fprintf(stdio.ErrOut, "%s %s\n", InfoStyle.Render("[+]"), fmt.Sprintf(format, a...))
}

func drainNotices(app *App, stdio IO) {
	for {
		select {
		case msg := <-app.Notices():
			if stdio.ErrOut != nil {
				fmt.Fprintf(stdio.ErrOut, "%s %s\n", WarningStyle.Render(styles.IconWarning), msg)
			}
		default:
			return
		}
	}
}

// =============================================================================
// REPLY PRINTER
// =============================================================================

// replyPrinter writes the growing assistant text without repeating what it
// has already written. Messages that existed before the turn are ignored.
type replyPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	before  int
	printed int

	// render, if set, formats the whole reply at finish instead of
	// printing it raw.
	render func(string) string
}

func newReplyPrinter(w io.Writer, before int) *replyPrinter {
	return &replyPrinter{w: w, before: before}
}

func (p *replyPrinter) update(s conversation.State) {
	if len(s.Messages) <= p.before {
		return
	}
	last, ok := s.LastMessage()
	if !ok || last.Role != model.RoleAssistant {
		return
	}
	p.write(ReplyText(last))
}

// finish prints whatever remains and ends the line.
func (p *replyPrinter) finish(s conversation.State) {
	if p.render != nil && len(s.Messages) > p.before {
		last, ok := s.LastMessage()
		if text := ReplyText(last); ok && last.Role == model.RoleAssistant && text != "" {
			p.mu.Lock()
			defer p.mu.Unlock()
			fmt.Fprintln(p.w, p.render(text))
			return
		}
	}
	p.update(s)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed > 0 {
		fmt.Fprintln(p.w)
	}
}

func (p *replyPrinter) write(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(text) <= p.printed {
		return
	}
	io.WriteString(p.w, text[p.printed:])
	p.printed = len(text)
}

// ReplyText joins a message's text segments. Segments only grow or get
// appended, so earlier output is always a prefix of later output.
func ReplyText(m model.Message) string {
	var b strings.Builder
	for _, seg := range m.Content {
		t, ok := seg.(model.TextSegment)
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(t.Text)
	}
	return b.String()
}
