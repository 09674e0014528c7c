// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the full-screen chat view for the studio console.

The view is a Bubble Tea model layered over a session.Controller. The
controller owns the conversation; the view only renders snapshots and turns
key presses into controller calls.

# Layout

	+---------------------------------------------------------------+
	| studio  agent 3f2a...  conversation 9c1e...            live    |
	+--------------------------------------+------------------------+
	| You                                  | [Tool Call]  12:01:03  |
	|   What's the weather?                |   tool: weather        |
	| Assistant                            | [Tool Output] 12:01:04 |
	|   Sunny, 21°C.                       |                        |
	+--------------------------------------+------------------------+
	| > _                                                            |
	| streaming...  Enter send  C-r reset  C-t trace  C-s save       |
	+---------------------------------------------------------------+

The trace panel sits beside the transcript on wide terminals and below it
on narrow ones.

# Event Flow

Send and Reset block, so they run inside tea.Cmds. Every controller state
change is pushed through a one-slot channel that always holds the latest
snapshot; a waiting command turns it into a SnapshotMsg. Intermediate
snapshots may be skipped, never reordered.

# Keys

  - Enter: send the input line
  - Ctrl+R: reset the conversation
  - Ctrl+T: toggle the trace panel
  - Ctrl+S: archive the transcript
  - PgUp/PgDn: scroll the transcript
  - Esc, Ctrl+C: quit (closes the controller)
*/
package chat
