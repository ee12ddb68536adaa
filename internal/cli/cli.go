// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing for rosemary.
package cli

import (
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdSessions
	CmdExport
	CmdVersion
	CmdHelp
)

// String returns the command name as typed on the command line.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdAsk:
		return "ask"
	case CmdSessions:
		return "sessions"
	case CmdExport:
		return "export"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Verbose    bool
	Quiet      bool
	JSON       bool
	ConfigPath string

	// ask
	Query     string
	SessionID string
	Images    []string
	Files     []string
	Stream    bool

	// sessions
	Limit int

	// export
	Format string
	Output string
}

const usageText = `rosemary - terminal client for the Rosemary agent

Usage:
  rosemary                          Start the chat TUI (default)
  rosemary ask [flags] TEXT         Send one message and print the reply
  rosemary sessions [--limit N]     List recent sessions
  rosemary export [flags] ID        Write a session transcript
  rosemary version                  Show version information
  rosemary help                     Show this help

Ask flags:
  --session ID                      Continue an existing session
  --image PATH                      Attach an image inline (repeatable)
  --file PATH                       Upload a file and reference it (repeatable)
  --stream                          Print the raw reply as it arrives

  TEXT may also be piped on stdin.

Sessions flags:
  --limit N                         Number of sessions to list (1-100, default 20)

Export flags:
  --format md|json                  Output format (default md)
  --output DIR                      Write a file into DIR instead of stdout

Global flags:
  -v, --verbose                     Debug logging
  -q, --quiet                       Suppress progress output on stderr
  --json                            JSON output (sessions, version)
  --config PATH                     Use this config file instead of ~/.rosemary/config.toml

TUI keys:
  enter     send          esc      stop the running reply
  ctrl+n    new session   ctrl+o   open most recent session
  ctrl+r    refresh list  /attach  PATH stages a file or image
  ctrl+c    quit

Environment:
  ROSEMARY_SERVER_URL               Backend base URL
  ROSEMARY_LOG_LEVEL                debug, info, warn or error
  ROSEMARY_SESSION_CACHE            true/false, or a path for the local cache
  NO_COLOR                          Disable colored output
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "rosemary version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses command-line arguments (without the program name).
func Parse(argv []string) (Command, Args, error) {
	remaining, args, err := parseGlobalFlags(argv)
	if err != nil {
		return CmdHelp, args, err
	}

	if len(remaining) == 0 {
		return CmdTUI, args, nil
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]

	switch cmd {
	case "tui", "chat":
		return CmdTUI, args, nil

	case "ask", "a":
		err := parseAskArgs(&args, remaining)
		return CmdAsk, args, err

	case "sessions", "session", "ls":
		err := parseSessionsArgs(&args, remaining)
		return CmdSessions, args, err

	case "export", "x":
		err := parseExportArgs(&args, remaining)
		return CmdExport, args, err

	case "version", "--version":
		return CmdVersion, args, nil

	case "help", "-h", "--help":
		return CmdHelp, args, nil

	default:
		return CmdHelp, args, NewUsageError(fmt.Sprintf("unknown command %q", cmd))
	}
}

// parseGlobalFlags pulls global flags out of args wherever they appear.
func parseGlobalFlags(argv []string) ([]string, Args, error) {
	var remaining []string
	var args Args

	for i := 0; i < len(argv); i++ {
		arg := argv[i]

		switch {
		case arg == "-v" || arg == "--verbose":
			args.Verbose = true
		case arg == "-q" || arg == "--quiet":
			args.Quiet = true
		case arg == "--json":
			args.JSON = true
		case arg == "--config":
			if i+1 >= len(argv) {
				return nil, args, NewUsageError("--config requires a path")
			}
			i++
			args.ConfigPath = argv[i]
		case strings.HasPrefix(arg, "--config="):
			args.ConfigPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--":
			// Everything after -- is positional.
			remaining = append(remaining, argv[i:]...)
			return remaining, args, nil
		default:
			remaining = append(remaining, arg)
		}
	}

	return remaining, args, nil
}

// parseAskArgs parses ask command specific arguments.
func parseAskArgs(args *Args, remaining []string) error {
	var query []string

	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]

		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "-s", "--session", "-i", "--image", "-f", "--file":
			if !hasValue {
				if i+1 >= len(remaining) {
					return NewUsageError(name + " requires a value")
				}
				i++
				value = remaining[i]
			}
			switch name {
			case "-s", "--session":
				args.SessionID = value
			case "-i", "--image":
				args.Images = append(args.Images, value)
			default:
				args.Files = append(args.Files, value)
			}
		case "--stream":
			args.Stream = true
		case "--":
			query = append(query, remaining[i+1:]...)
			i = len(remaining)
		default:
			if strings.HasPrefix(arg, "-") && len(arg) > 1 {
				return NewUsageError(fmt.Sprintf("unknown ask flag %q", arg))
			}
			query = append(query, arg)
		}
	}

	args.Query = strings.Join(query, " ")
	return nil
}

// parseSessionsArgs parses sessions command specific arguments.
func parseSessionsArgs(args *Args, remaining []string) error {
	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]

		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "-n", "--limit":
			if !hasValue {
				if i+1 >= len(remaining) {
					return NewUsageError(name + " requires a number")
				}
				i++
				value = remaining[i]
			}
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 || n > 100 {
				return NewUsageError(fmt.Sprintf("--limit must be between 1 and 100, got %q", value))
			}
			args.Limit = n
		default:
			return NewUsageError(fmt.Sprintf("unexpected argument %q", arg))
		}
	}
	return nil
}

// parseExportArgs parses export command specific arguments.
func parseExportArgs(args *Args, remaining []string) error {
	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]

		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--format", "-o", "--output":
			if !hasValue {
				if i+1 >= len(remaining) {
					return NewUsageError(name + " requires a value")
				}
				i++
				value = remaining[i]
			}
			if name == "--format" {
				args.Format = strings.ToLower(value)
			} else {
				args.Output = value
			}
		default:
			if strings.HasPrefix(arg, "-") && len(arg) > 1 {
				return NewUsageError(fmt.Sprintf("unknown export flag %q", arg))
			}
			if args.SessionID != "" {
				return NewUsageError(fmt.Sprintf("unexpected argument %q", arg))
			}
			args.SessionID = arg
		}
	}

	if args.SessionID == "" {
		return NewUsageError("export requires a session ID")
	}
	switch args.Format {
	case "":
		args.Format = "md"
	case "md", "markdown", "json":
	default:
		return NewUsageError(fmt.Sprintf("--format must be md or json, got %q", args.Format))
	}
	return nil
}
