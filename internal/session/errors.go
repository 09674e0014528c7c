// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"

	"github.com/jeranaias/studio-tui/internal/stream"
)

var (
	// ErrBusy is returned when a stream or reset is already in flight.
	ErrBusy = errors.New("a response is still streaming")

	// ErrEmptyMessage is returned for blank sends.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

// ResetError reports a failed conversation reset. Local state is unchanged.
type ResetError struct {
	ConversationID string
	Err            error
}

// Error implements the error interface.
func (e *ResetError) Error() string {
	return fmt.Sprintf("failed to reset conversation %s: %v", e.ConversationID, e.Err)
}

// Unwrap returns the transport error.
func (e *ResetError) Unwrap() error {
	return e.Err
}

// ProtocolError is an error reported by the server inside the stream. The
// stream keeps running after it; Send returns the last one once the stream
// has ended.
type ProtocolError struct {
	Message string
	Details any
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return "server error: " + e.Message
}

func protocolErrorFrom(ev stream.Event) *ProtocolError {
	pe := &ProtocolError{Message: ev.ErrorMessage()}
	if ev.Data != nil {
		pe.Details = ev.Data["details"]
	}
	return pe
}

// userMessage renders an error for the session error banner.
func userMessage(err error) string {
	var te *stream.TransportError
	if errors.As(err, &te) {
		if te.StatusCode != 0 {
			if detail := te.Detail(); detail != "" {
				return fmt.Sprintf("Request failed (%d): %s", te.StatusCode, detail)
			}
			return fmt.Sprintf("Request failed with status %d", te.StatusCode)
		}
		return "Connection failed: " + te.Err.Error()
	}
	return err.Error()
}
