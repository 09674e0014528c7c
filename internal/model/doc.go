// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat transcripts and traces.
//
// # Key Types
//
//   - Message: one transcript entry (user or assistant) with id, content and time
//   - TraceEntry: one non-message stream event (tool call, handoff, error, ...)
//   - Role: transcript role enumeration (user, assistant)
//
// # Usage
//
//	msg := model.NewUserMessage("What is on my calendar?")
//	entry := model.NewTraceEntry("tool_call", map[string]any{"tool": "calendar"}, time.Now(), "")
//	fmt.Println(entry.Title(), entry.Summary())
package model
