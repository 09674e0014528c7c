// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the state of one chat conversation.
//
// A Controller sequences send and reset operations for a single
// (target, conversation) pair. Each send opens one event stream; its events
// are folded into the transcript and trace timeline by the pure Reducer.
//
// # Key Types
//
//   - Controller: per-conversation owner of transcript, trace, loading and error state
//   - State: value folded by the Reducer; Snapshot is its read-only copy for views
//   - Reducer: pure transition function over stream events
//   - ResetError, ProtocolError: errors surfaced by Reset and Send
//
// # Usage
//
//	ctrl := session.NewController(transport, session.Options{
//	    TargetID: agentID,
//	    Kind:     stream.ChatTypeAgent,
//	})
//	defer ctrl.Close()
//
//	unsubscribe := ctrl.Subscribe(func(s session.Snapshot) { render(s) })
//	defer unsubscribe()
//
//	if err := ctrl.Send(ctx, "hello"); err != nil {
//	    // TransportError, ProtocolError, ErrBusy ...
//	}
//
// The loading flag is both the progress indicator and the mutual-exclusion
// gate: a second Send while a stream is open fails with ErrBusy, and so does
// Reset.
package session
