// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// export.go - "rosemary export" transcript writer.

package cli

import (
	"context"
	"fmt"

	"github.com/Pondsiders/Rosemary-App/internal/export"
)

// RunExport loads a session (from the server, or the local cache when the
// server is unreachable) and writes it as Markdown or JSON. Without
// --output the transcript goes to stdout.
func RunExport(ctx context.Context, app *App, args Args, stdio IO) error {
	opts := export.DefaultOptions()
	opts.IncludeThinking = app.Config.UI.ShowThinking
	opts.IncludeTools = app.Config.UI.ShowTools
	if args.Output != "" {
		opts.OutputDir = args.Output
	}

	exp, err := export.ForFormat(args.Format, opts)
	if err != nil {
		return NewUsageError(err.Error())
	}

	if err := app.Bridge.Open(ctx, args.SessionID); err != nil {
		return &CommandError{Command: "export", Err: err}
	}
	t := app.Bridge.Transcript()
	progress(stdio, args, "Loaded %d messages", len(t.Messages))

	if args.Output == "" {
		data, err := exp.Export(t)
		if err != nil {
			return &CommandError{Command: "export", Err: err}
		}
		_, err = stdio.Out.Write(data)
		return err
	}

	path, err := export.ExportToFile(t, exp, opts)
	if err != nil {
		return &CommandError{Command: "export", Err: err}
	}
	fmt.Fprintln(stdio.Out, path)
	return nil
}
