// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/jeranaias/studio-tui/internal/api"
	"github.com/jeranaias/studio-tui/internal/config"
	"github.com/jeranaias/studio-tui/internal/session"
	"github.com/jeranaias/studio-tui/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates any failure
	ExitGeneralError = 1
)

// errAborted is returned when the user declines a confirmation.
var errAborted = errors.New("aborted")

// =============================================================================
// ERROR OUTPUT
// =============================================================================

// PrintError writes "Error: ..." and, when one applies, a hint line.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", ErrorStyle.Render("Error:"), err)
	if hint := hintFor(err); hint != "" {
		fmt.Fprintln(w, MutedStyle.Render("Hint: "+hint))
	}
}

// hintFor suggests a next step for the errors users hit most.
func hintFor(err error) string {
	var validateErrs config.ValidateErrors
	switch {
	case isConnRefused(err):
		return `is the backend running? "studio devserver" starts a local one`
	case errors.Is(err, api.ErrNotFound):
		return "check the id with the matching list command"
	case errors.Is(err, storage.ErrNotFound):
		return `"studio history list" shows saved conversations`
	case errors.As(err, &validateErrs):
		return `"studio config path" shows which file was loaded`
	case errors.Is(err, session.ErrBusy):
		return "wait for the current response to finish"
	}
	return ""
}

func isConnRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
