// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the studio command tree.
//
// Every command is a cobra command built by NewRootCommand around an App,
// which carries the I/O streams and lazily loads the config, the logger and
// the REST client. Commands return errors; Execute prints them as
// "Error: ..." on stderr and exits non-zero.
//
// # Commands
//
// Admin (REST):
//   - apikeys, mcp, agents, orchestrators: list, get, create, update, delete
//   - mcp tools ID, agents generate PROMPT
//   - apps list [--agents], version [--all]
//
// Chat:
//   - chat TARGET: full-screen view, or a line REPL with --plain
//   - reset TARGET CONVERSATION
//
// Local:
//   - history list|show|export|rm
//   - config show|get|set|path|init
//   - devserver: in-memory fake backend
//
// Table output is the default; -o json and -o yaml print the raw records.
package cli
