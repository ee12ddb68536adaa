// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types and exit codes for rosemary commands.
//
// Commands always return errors; main decides how to display them and which
// exit code to use.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/Pondsiders/Rosemary-App/internal/api"
	"github.com/Pondsiders/Rosemary-App/internal/config"
	"github.com/Pondsiders/Rosemary-App/internal/turn"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitNetworkError = 5
	ExitNotFound     = 7
	// ExitInterrupted follows the shell convention for SIGINT.
	ExitInterrupted = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError is an invalid command line.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string {
	return e.Reason
}

// NewUsageError creates a UsageError.
func NewUsageError(reason string) error {
	return &UsageError{Reason: reason}
}

// CommandError wraps a failure with the command that produced it.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ErrNoQuery is returned by ask when there is nothing to send.
var ErrNoQuery = errors.New(`no message provided. Usage: rosemary ask "your message"`)

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err to w with the error style.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %v\n", ErrorStyle.Render("Error:"), err)

	var ue *UsageError
	if errors.As(err, &ue) {
		fmt.Fprintln(w, DimStyle.Render(`Run "rosemary help" for usage.`))
	}
}

// GetExitCode maps an error to a process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		ue   *UsageError
		ve   config.ValidationError
		ves  config.ValidateErrors
		se   *api.StatusError
		nerr net.Error
	)
	switch {
	case errors.As(err, &ue), errors.Is(err, ErrNoQuery), errors.Is(err, turn.ErrEmptyInput):
		return ExitUsageError
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.As(err, &ve), errors.As(err, &ves):
		return ExitConfigError
	case errors.Is(err, api.ErrNotFound):
		return ExitNotFound
	case errors.As(err, &se):
		return ExitNetworkError
	case errors.As(err, &nerr):
		return ExitNetworkError
	default:
		return ExitGeneralError
	}
}
