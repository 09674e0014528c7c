// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage archives finished chats in a local SQLite database.
//
// Archiving is explicit: the operator saves a chat from the TUI (Ctrl+S),
// the REPL (/save) or the CLI. Archived records are read-only history; a
// live session is never restored from them.
//
// # Usage
//
//	store, err := storage.Open(cfg.Storage.HistoryPath)
//	id, err := store.Save(ctx, storage.FromSnapshot(ctrl.Snapshot()))
//	metas, err := store.List(ctx, 20)
//	rec, err := store.Get(ctx, metas[0].ID)
//
// # Storage Location
//
// The database lives at ~/.studio/history.db unless storage.history_path
// says otherwise.
package storage
