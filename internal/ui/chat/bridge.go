// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/studio-tui/internal/config"
	"github.com/jeranaias/studio-tui/internal/session"
)

// bridge forwards controller snapshots and config reloads into the Bubble
// Tea loop. Each channel holds at most one pending value; a newer value
// replaces an unread older one.
type bridge struct {
	snapshots chan session.Snapshot
	configs   chan ConfigReloadedMsg
	done      chan struct{}

	mu          sync.Mutex
	unsubscribe func()
	stopOnce    sync.Once
}

func newBridge() *bridge {
	return &bridge{
		snapshots: make(chan session.Snapshot, 1),
		configs:   make(chan ConfigReloadedMsg, 1),
		done:      make(chan struct{}),
	}
}

// attach subscribes to ctrl.
func (b *bridge) attach(ctrl *session.Controller) {
	unsub := ctrl.Subscribe(b.pushSnapshot)
	b.mu.Lock()
	b.unsubscribe = unsub
	b.mu.Unlock()
}

func (b *bridge) pushSnapshot(s session.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.snapshots:
	default:
	}
	b.snapshots <- s
}

func (b *bridge) pushConfig(cfg *config.Config, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.configs:
	default:
	}
	b.configs <- ConfigReloadedMsg{Config: cfg, Err: err}
}

// waitSnapshot blocks until the next snapshot.
func (b *bridge) waitSnapshot() tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-b.snapshots:
			return SnapshotMsg{Snapshot: s}
		case <-b.done:
			return nil
		}
	}
}

// waitConfig blocks until the next config reload.
func (b *bridge) waitConfig() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.configs:
			return msg
		case <-b.done:
			return nil
		}
	}
}

// stop unsubscribes and releases waiting commands.
func (b *bridge) stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		if b.unsubscribe != nil {
			b.unsubscribe()
		}
		b.mu.Unlock()
		close(b.done)
	})
}
