// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/studio-tui/internal/model"
	"github.com/jeranaias/studio-tui/internal/stream"
)

// testReducer returns a reducer with sequential ids and a fixed clock.
func testReducer() Reducer {
	n := 0
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return Reducer{
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
		Now: func() time.Time { return fixed },
	}
}

func ev(t stream.EventType, data map[string]any) stream.Event {
	return stream.Event{Type: t, Data: data}
}

func delta(s string) stream.Event {
	return ev(stream.EventMessageDelta, map[string]any{"delta": s})
}

func applyAll(r Reducer, s State, events ...stream.Event) State {
	for _, e := range events {
		s = r.Apply(s, e)
	}
	return s
}

func traceTypes(s State) []string {
	out := make([]string, len(s.Trace))
	for i, t := range s.Trace {
		out[i] = t.Type
	}
	return out
}

// =============================================================================
// MESSAGE ASSEMBLY
// =============================================================================

func TestReduce_DeltasConcatenate(t *testing.T) {
	deltas := []string{"Hel", "lo, ", "wor", "ld ", "世界"}
	events := []stream.Event{ev(stream.EventStreamStart, nil)}
	for _, d := range deltas {
		events = append(events, delta(d))
	}
	events = append(events, ev(stream.EventMessageComplete, map[string]any{}))

	s := applyAll(testReducer(), State{}, events...)

	require.Len(t, s.Transcript, 1)
	assert.Equal(t, model.RoleAssistant, s.Transcript[0].Role)
	assert.Equal(t, "Hello, world 世界", s.Transcript[0].Content)
	assert.Equal(t, PhaseStreaming, s.Phase)
}

func TestReduce_ExplicitContentOverridesDeltas(t *testing.T) {
	s := applyAll(testReducer(), State{},
		ev(stream.EventStreamStart, nil),
		delta("Hi"),
		ev(stream.EventMessageComplete, map[string]any{"content": "Hi!"}),
	)
	require.Len(t, s.Transcript, 1)
	assert.Equal(t, "Hi!", s.Transcript[0].Content)
}

func TestReduce_CompleteWithoutDeltas(t *testing.T) {
	s := applyAll(testReducer(), State{},
		ev(stream.EventStreamStart, nil),
		ev(stream.EventMessageComplete, map[string]any{"content": "single shot"}),
		ev(stream.EventStreamEnd, nil),
	)
	require.Len(t, s.Transcript, 1)
	assert.Equal(t, "single shot", s.Transcript[0].Content)
	assert.False(t, s.Transcript[0].Open)
}

func TestReduce_EmptyAssistantEntryKeptAtStreamEnd(t *testing.T) {
	s := applyAll(testReducer(), State{Loading: true},
		ev(stream.EventStreamStart, nil),
		ev(stream.EventStreamEnd, nil),
	)
	require.Len(t, s.Transcript, 1)
	assert.Equal(t, "", s.Transcript[0].Content)
	assert.False(t, s.Loading)
	assert.Equal(t, PhaseIdle, s.Phase)
	_, open := s.OpenEntry()
	assert.False(t, open)
}

func TestReduce_MessageEventsOutsideStreamIgnored(t *testing.T) {
	s := applyAll(testReducer(), State{},
		delta("stray"),
		ev(stream.EventMessageComplete, map[string]any{"content": "stray"}),
	)
	assert.Empty(t, s.Transcript)
	assert.Empty(t, s.Trace)
	assert.Equal(t, PhaseIdle, s.Phase)
}

func TestReduce_StreamStartAssignsFreshID(t *testing.T) {
	s := applyAll(testReducer(), State{}, ev(stream.EventStreamStart, nil))
	entry, ok := s.OpenEntry()
	require.True(t, ok)
	assert.NotEmpty(t, entry.ID)
	assert.NotEqual(t, s.Trace[0].ID, entry.ID)
	assert.True(t, entry.Open)
}

func TestReduce_SecondStreamStartOpensNewEntry(t *testing.T) {
	s := applyAll(testReducer(), State{},
		ev(stream.EventStreamStart, nil),
		delta("first"),
		ev(stream.EventStreamStart, nil),
		delta("second"),
	)
	require.Len(t, s.Transcript, 2)
	assert.Equal(t, "first", s.Transcript[0].Content)
	assert.False(t, s.Transcript[0].Open)
	assert.Equal(t, "second", s.Transcript[1].Content)
}

// =============================================================================
// TRACE CLASSIFICATION
// =============================================================================

func TestReduce_TraceFiltering(t *testing.T) {
	s := applyAll(testReducer(), State{},
		ev(stream.EventStreamStart, nil),
		ev(stream.EventAgentUpdated, map[string]any{"agent_name": "planner"}),
		delta("a"),
		ev(stream.EventToolCall, map[string]any{"tool_name": "search"}),
		delta("b"),
		ev(stream.EventToolOutput, map[string]any{"output": "42"}),
		ev(stream.EventHandoff, map[string]any{"to": "writer"}),
		ev(stream.EventError, map[string]any{"message": "quota"}),
		ev(stream.EventMessageComplete, map[string]any{}),
		ev("reasoning", map[string]any{"step": 1.0}),
		ev(stream.EventStreamEnd, nil),
	)

	assert.Equal(t, []string{
		"stream_start", "agent_updated", "tool_call", "tool_output",
		"handoff", "error", "reasoning", "stream_end",
	}, traceTypes(s))
	assert.Equal(t, "ab", s.Transcript[0].Content)
	assert.Equal(t, map[string]any{"step": 1.0}, s.Trace[6].Payload)
}

func TestReduce_TraceUsesServerTimestamp(t *testing.T) {
	e := ev(stream.EventToolCall, nil)
	e.Timestamp = "2024-06-01T12:00:00Z"
	e.SessionID = "sess-9"

	s := testReducer().Apply(State{Phase: PhaseStreaming}, e)
	require.Len(t, s.Trace, 1)
	assert.Equal(t, 2024, s.Trace[0].Timestamp.Year())
	assert.Equal(t, "sess-9", s.Trace[0].SessionID)
}

// =============================================================================
// ERRORS AND LIFECYCLE
// =============================================================================

func TestReduce_ErrorEventDoesNotEndStream(t *testing.T) {
	s := applyAll(testReducer(), State{Loading: true},
		ev(stream.EventStreamStart, nil),
		ev(stream.EventError, map[string]any{}),
		delta("still here"),
	)
	assert.Equal(t, stream.DefaultErrorMessage, s.Error)
	assert.Equal(t, PhaseStreaming, s.Phase)
	assert.True(t, s.Loading)
	assert.Equal(t, "still here", s.Transcript[0].Content)

	s = testReducer().Apply(s, ev(stream.EventStreamEnd, nil))
	assert.Equal(t, PhaseErrored, s.Phase)
	assert.False(t, s.Loading)
}

func TestReduce_ErrorWhileIdle(t *testing.T) {
	s := testReducer().Apply(State{}, ev(stream.EventError, map[string]any{"message": "boom"}))
	assert.Equal(t, PhaseErrored, s.Phase)
	assert.Equal(t, "boom", s.Error)
	assert.Equal(t, []string{"error"}, traceTypes(s))
}

func TestReducer_BeginFinishFail(t *testing.T) {
	r := testReducer()

	s := r.Begin(State{Phase: PhaseErrored, Error: "old"}, "hello")
	require.Len(t, s.Transcript, 1)
	assert.Equal(t, model.RoleUser, s.Transcript[0].Role)
	assert.True(t, s.Loading)
	assert.Empty(t, s.Error)
	assert.Equal(t, PhaseIdle, s.Phase)

	s = applyAll(r, s, ev(stream.EventStreamStart, nil), delta("part"))
	failed := r.Fail(s, "connection lost")
	assert.Equal(t, PhaseErrored, failed.Phase)
	assert.False(t, failed.Loading)
	assert.Equal(t, "connection lost", failed.Error)
	assert.Equal(t, "part", failed.Transcript[1].Content)
	assert.False(t, failed.Transcript[1].Open)

	finished := r.Finish(s)
	assert.Equal(t, PhaseIdle, finished.Phase)
	assert.False(t, finished.Loading)

	cleared := r.Clear(failed)
	assert.Empty(t, cleared.Transcript)
	assert.Empty(t, cleared.Trace)
	assert.Empty(t, cleared.Error)
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	r := testReducer()
	base := applyAll(r, State{}, ev(stream.EventStreamStart, nil), delta("a"))
	before := base.Transcript[0].Content
	traceLen := len(base.Trace)

	_ = applyAll(r, base, delta("b"), ev(stream.EventToolCall, nil))

	assert.Equal(t, before, base.Transcript[0].Content)
	assert.Len(t, base.Trace, traceLen)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "streaming", PhaseStreaming.String())
	assert.Equal(t, "errored", PhaseErrored.String())
	assert.Equal(t, "unknown", Phase(9).String())
}
