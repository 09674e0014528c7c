// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream implements the client side of the chat event stream.
//
// A chat turn is a single POST whose response body is a server-sent event
// stream. Each "data: " line carries one JSON encoded Event. The Transport
// opens the stream, the Parser turns raw bytes into Events, and the session
// package folds those Events into transcript and trace state.
package stream

import (
	"strings"
	"time"
)

// =============================================================================
// EVENT TYPES
// =============================================================================

// EventType is the kind tag carried in the event_type field.
type EventType string

const (
	EventStreamStart     EventType = "stream_start"
	EventMessageDelta    EventType = "message_delta"
	EventMessageComplete EventType = "message_complete"
	EventToolCall        EventType = "tool_call"
	EventToolOutput      EventType = "tool_output"
	EventAgentUpdated    EventType = "agent_updated"
	EventHandoff         EventType = "handoff"
	EventError           EventType = "error"
	EventStreamEnd       EventType = "stream_end"
)

// knownTypes lists every event kind the server is documented to send.
var knownTypes = map[EventType]bool{
	EventStreamStart:     true,
	EventMessageDelta:    true,
	EventMessageComplete: true,
	EventToolCall:        true,
	EventToolOutput:      true,
	EventAgentUpdated:    true,
	EventHandoff:         true,
	EventError:           true,
	EventStreamEnd:       true,
}

// String returns the wire name of the event type.
func (t EventType) String() string {
	return string(t)
}

// Known reports whether t is one of the documented event kinds.
func (t EventType) Known() bool {
	return knownTypes[t]
}

// IsMessage reports whether events of this kind carry assistant text.
// Message events feed the open transcript entry and never reach the trace.
func (t EventType) IsMessage() bool {
	return t == EventMessageDelta || t == EventMessageComplete
}

// DefaultErrorMessage is used when an error event carries no message.
const DefaultErrorMessage = "An error occurred"

// =============================================================================
// EVENT
// =============================================================================

// Event is one decoded server-sent event.
type Event struct {
	Type      EventType      `json:"event_type"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
	SessionID string         `json:"session_id,omitempty"`
}

// Delta returns data.delta for message_delta events.
func (e Event) Delta() string {
	s, _ := e.stringField("delta")
	return s
}

// Content returns data.content and whether the field was present.
// A present but empty content is still authoritative.
func (e Event) Content() (string, bool) {
	return e.stringField("content")
}

// ErrorMessage returns data.message, falling back to DefaultErrorMessage.
func (e Event) ErrorMessage() string {
	msg, ok := e.stringField("message")
	if !ok || strings.TrimSpace(msg) == "" {
		return DefaultErrorMessage
	}
	return msg
}

// Time parses the event timestamp. Unparseable or missing timestamps
// yield the zero time.
func (e Event) Time() time.Time {
	if e.Timestamp == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, e.Timestamp); err == nil {
			return t
		}
	}
	return time.Time{}
}

// timestampLayouts covers RFC 3339 with and without a zone suffix, which is
// how Python's isoformat() renders naive datetimes.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (e Event) stringField(key string) (string, bool) {
	if e.Data == nil {
		return "", false
	}
	v, ok := e.Data[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
