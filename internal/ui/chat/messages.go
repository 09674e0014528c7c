// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/studio-tui/internal/config"
	"github.com/jeranaias/studio-tui/internal/session"
	"github.com/jeranaias/studio-tui/internal/storage"
)

// =============================================================================
// MESSAGES
// =============================================================================

// SnapshotMsg carries the latest controller state.
type SnapshotMsg struct {
	Snapshot session.Snapshot
}

// SendDoneMsg is sent when Send returns.
type SendDoneMsg struct {
	Err error
}

// ResetDoneMsg is sent when Reset returns.
type ResetDoneMsg struct {
	Err error
}

// SavedMsg is sent after the transcript was archived.
type SavedMsg struct {
	ID  string
	Err error
}

// ConfigReloadedMsg is sent when the config file changed on disk.
type ConfigReloadedMsg struct {
	Config *config.Config
	Err    error
}

// noticeExpiredMsg clears a status notice.
type noticeExpiredMsg struct {
	seq int
}

// =============================================================================
// COMMANDS
// =============================================================================

// sendCmd runs a blocking Send.
func sendCmd(ctx context.Context, ctrl *session.Controller, text string) tea.Cmd {
	return func() tea.Msg {
		return SendDoneMsg{Err: ctrl.Send(ctx, text)}
	}
}

// resetCmd runs a blocking Reset.
func resetCmd(ctx context.Context, ctrl *session.Controller) tea.Cmd {
	return func() tea.Msg {
		return ResetDoneMsg{Err: ctrl.Reset(ctx)}
	}
}

// saveCmd archives a snapshot.
func saveCmd(archive Archive, snap session.Snapshot) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		id, err := archive.Save(ctx, storage.FromSnapshot(snap))
		return SavedMsg{ID: id, Err: err}
	}
}

// expireNoticeCmd clears notice seq after d.
func expireNoticeCmd(seq int, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return noticeExpiredMsg{seq: seq}
	})
}
