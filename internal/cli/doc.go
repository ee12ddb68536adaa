// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the non-interactive
// commands for rosemary.
//
// # Key Types
//
//   - Command: the command selected on the command line
//   - Args: parsed global and command-specific flags
//   - App: the wired client (store, turn controller, session bridge, cache)
//     shared by every front end
//
// # Usage
//
//	cmd, args, err := cli.Parse(os.Args[1:])
//	app, err := cli.NewApp(cfg, logger)
//	switch cmd {
//	case cli.CmdAsk:
//	    err = cli.RunAsk(ctx, app, args, cli.StdIO())
//	case cli.CmdSessions:
//	    err = cli.RunSessions(ctx, app, args, cli.StdIO())
//	}
//
// Errors are returned, never printed; GetExitCode maps them to exit codes.
package cli
