// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"time"

	"github.com/jeranaias/studio-tui/internal/model"
	"github.com/jeranaias/studio-tui/internal/stream"
)

// =============================================================================
// PHASE
// =============================================================================

// Phase is the stream lifecycle state of a conversation.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStreaming
	PhaseErrored
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStreaming:
		return "streaming"
	case PhaseErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// =============================================================================
// STATE
// =============================================================================

// State is the value folded by the Reducer. A State is never modified in
// place: every transition returns a new value whose slices do not share
// writable backing arrays with the input.
type State struct {
	Phase      Phase
	Transcript []model.Message
	Trace      []model.TraceEntry
	Loading    bool
	Error      string

	// open is the index+1 of the open assistant entry, 0 when none.
	open int
}

// OpenEntry returns the assistant entry currently receiving deltas.
func (s State) OpenEntry() (model.Message, bool) {
	if s.open == 0 {
		return model.Message{}, false
	}
	return s.Transcript[s.open-1], true
}

func (s State) cloneTranscript() []model.Message {
	out := make([]model.Message, len(s.Transcript), len(s.Transcript)+1)
	copy(out, s.Transcript)
	return out
}

func (s State) appendTrace(entry model.TraceEntry) State {
	trace := make([]model.TraceEntry, len(s.Trace), len(s.Trace)+1)
	copy(trace, s.Trace)
	s.Trace = append(trace, entry)
	return s
}

// =============================================================================
// REDUCER
// =============================================================================

// Reducer applies stream events to a State. The zero value uses random
// UUIDs and the wall clock; tests inject deterministic generators.
type Reducer struct {
	NewID func() string
	Now   func() time.Time
}

// Reduce applies one event using the default Reducer.
func Reduce(s State, ev stream.Event) State {
	return Reducer{}.Apply(s, ev)
}

func (r Reducer) id() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return model.NewID()
}

func (r Reducer) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// eventTime prefers the server timestamp.
func (r Reducer) eventTime(ev stream.Event) time.Time {
	if t := ev.Time(); !t.IsZero() {
		return t
	}
	return r.now()
}

// Apply folds one event into s.
//
// Message events only touch the open assistant entry and are ignored when no
// stream is open. Every other event, including unknown kinds, is appended to
// the trace.
func (r Reducer) Apply(s State, ev stream.Event) State {
	switch ev.Type {
	case stream.EventMessageDelta:
		if s.Phase != PhaseStreaming || s.open == 0 {
			return s
		}
		transcript := s.cloneTranscript()
		transcript[s.open-1].Content += ev.Delta()
		s.Transcript = transcript
		return s

	case stream.EventMessageComplete:
		if s.Phase != PhaseStreaming || s.open == 0 {
			return s
		}
		if content, ok := ev.Content(); ok {
			transcript := s.cloneTranscript()
			transcript[s.open-1].Content = content
			s.Transcript = transcript
		}
		return s
	}

	s = s.appendTrace(model.TraceEntry{
		ID:        r.id(),
		Type:      string(ev.Type),
		Payload:   ev.Data,
		Timestamp: r.eventTime(ev),
		SessionID: ev.SessionID,
	})

	switch ev.Type {
	case stream.EventStreamStart:
		transcript := s.cloneTranscript()
		if s.open != 0 {
			transcript[s.open-1].Open = false
		}
		s.Transcript = append(transcript, model.NewAssistantMessage(r.id(), r.eventTime(ev)))
		s.open = len(s.Transcript)
		s.Phase = PhaseStreaming
		s.Loading = true

	case stream.EventError:
		s.Error = ev.ErrorMessage()
		if s.Phase != PhaseStreaming {
			s.Phase = PhaseErrored
		}

	case stream.EventStreamEnd:
		s = s.closeOpen()
		s.Loading = false
		if s.Phase == PhaseStreaming {
			s.Phase = PhaseIdle
			if s.Error != "" {
				s.Phase = PhaseErrored
			}
		}
	}
	return s
}

// Begin appends the user's entry and raises the loading flag. The previous
// error is cleared.
func (r Reducer) Begin(s State, text string) State {
	msg := model.Message{
		ID:        r.id(),
		Role:      model.RoleUser,
		Content:   text,
		Timestamp: r.now(),
	}
	s.Transcript = append(s.cloneTranscript(), msg)
	s.Loading = true
	s.Error = ""
	if s.Phase == PhaseErrored {
		s.Phase = PhaseIdle
	}
	return s
}

// Finish handles a body that ended, with or without stream_end. Content
// received so far is kept.
func (r Reducer) Finish(s State) State {
	s = s.closeOpen()
	s.Loading = false
	if s.Phase == PhaseStreaming {
		s.Phase = PhaseIdle
		if s.Error != "" {
			s.Phase = PhaseErrored
		}
	}
	return s
}

// Fail records a transport failure. Partial content and trace are retained.
func (r Reducer) Fail(s State, message string) State {
	s = s.closeOpen()
	s.Loading = false
	s.Error = message
	s.Phase = PhaseErrored
	return s
}

// Clear returns the empty state used after a successful reset.
func (r Reducer) Clear(State) State {
	return State{Phase: PhaseIdle}
}

func (s State) closeOpen() State {
	if s.open == 0 {
		return s
	}
	transcript := s.cloneTranscript()
	transcript[s.open-1].Open = false
	s.Transcript = transcript
	s.open = 0
	return s
}
