// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// TRACE ENTRY
// =============================================================================

// TraceEntry is one non-message event shown in the trace timeline.
type TraceEntry struct {
	ID        string         `json:"id" yaml:"id"`
	Type      string         `json:"type" yaml:"type"`
	Payload   map[string]any `json:"data" yaml:"data"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
	SessionID string         `json:"session_id,omitempty" yaml:"session_id,omitempty"`
}

// NewTraceEntry creates a trace entry with a fresh id.
func NewTraceEntry(eventType string, payload map[string]any, ts time.Time, sessionID string) TraceEntry {
	return TraceEntry{
		ID:        NewID(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: ts,
		SessionID: sessionID,
	}
}

// Title renders the event type for display: "tool_call" becomes "Tool Call".
func (t TraceEntry) Title() string {
	if t.Type == "" {
		return "Event"
	}
	words := strings.Split(t.Type, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// Field is one rendered payload key.
type Field struct {
	Key   string
	Value string
}

// Fields returns the payload as key/value pairs sorted by key. Scalar values
// are printed as-is; objects and arrays are rendered as indented JSON.
func (t TraceEntry) Fields() []Field {
	keys := make([]string, 0, len(t.Payload))
	for k := range t.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, Field{Key: k, Value: formatValue(t.Payload[k])})
	}
	return fields
}

// Summary returns a one-line description of the payload.
func (t TraceEntry) Summary() string {
	for _, key := range []string{"message", "tool_name", "name", "agent_name", "output"} {
		if s, ok := t.Payload[key].(string); ok && s != "" {
			return strings.Join(strings.Fields(s), " ")
		}
	}
	parts := make([]string, 0, len(t.Payload))
	for _, f := range t.Fields() {
		parts = append(parts, f.Key+"="+strings.Join(strings.Fields(f.Value), " "))
	}
	return strings.Join(parts, " ")
}

// PayloadJSON returns the payload as indented JSON.
func (t TraceEntry) PayloadJSON() string {
	if len(t.Payload) == 0 {
		return "{}"
	}
	b, err := json.MarshalIndent(t.Payload, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", t.Payload)
	}
	return string(b)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case map[string]any, []any:
		b, err := json.MarshalIndent(val, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}
