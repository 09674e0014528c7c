// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/studio-tui/internal/config"
	"github.com/jeranaias/studio-tui/internal/model"
	"github.com/jeranaias/studio-tui/internal/session"
	"github.com/jeranaias/studio-tui/internal/storage"
	"github.com/jeranaias/studio-tui/internal/stream"
	"github.com/jeranaias/studio-tui/internal/ui/styles"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func frame(eventType string, data map[string]any) string {
	b, _ := json.Marshal(map[string]any{"event_type": eventType, "data": data})
	return "data: " + string(b) + "\n\n"
}

// fakeTransport replays a fixed SSE body for every send.
type fakeTransport struct {
	mu       sync.Mutex
	body     string
	openErr  error
	resetErr error
	resets   int
}

func (f *fakeTransport) OpenStream(ctx context.Context, req stream.Request) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	return io.NopCloser(strings.NewReader(f.body)), nil
}

func (f *fakeTransport) Reset(ctx context.Context, targetID, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return f.resetErr
}

type fakeArchive struct {
	saved []*storage.Record
	err   error
}

func (a *fakeArchive) Save(ctx context.Context, rec *storage.Record) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.saved = append(a.saved, rec)
	return rec.ID, nil
}

func replyBody(text string) string {
	return frame("stream_start", map[string]any{}) +
		frame("tool_call", map[string]any{"tool_name": "lookup"}) +
		frame("message_delta", map[string]any{"delta": text}) +
		frame("message_complete", map[string]any{"content": text}) +
		frame("stream_end", map[string]any{})
}

func newTestModel(t *testing.T, tr *fakeTransport, archive Archive) (Model, *session.Controller) {
	t.Helper()
	ctrl := session.NewController(tr, session.Options{
		TargetID:       "agent-1",
		Kind:           stream.ChatTypeAgent,
		ConversationID: "conv-1",
	})
	cfg := config.Default()
	cfg.UI.RenderMarkdown = false
	opts := Options{
		Controller: ctrl,
		Theme:      styles.NewTheme(styles.ThemeDark),
		Config:     cfg,
	}
	if archive != nil {
		opts.Archive = archive
	}
	m := New(opts)
	t.Cleanup(func() {
		ctrl.Close()
		m.bridge.stop()
	})

	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model), ctrl
}

func typeText(m Model, text string) Model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next.(Model)
}

func press(m Model, k tea.KeyType) (Model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: k})
	return next.(Model), cmd
}

// run executes cmd synchronously and feeds its message back.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	return next.(Model)
}

// =============================================================================
// SEND
// =============================================================================

func TestModel_SendRendersReplyAndTrace(t *testing.T) {
	tr := &fakeTransport{body: replyBody("Sunny, **21°C**.")}
	m, _ := newTestModel(t, tr, nil)

	m = typeText(m, "weather?")
	m, cmd := press(m, tea.KeyEnter)
	assert.True(t, m.sending)
	assert.Empty(t, m.input.Value(), "input cleared on send")

	m = run(t, m, cmd)
	assert.False(t, m.sending)

	snap := m.Snapshot()
	require.Len(t, snap.Transcript, 2)
	assert.Equal(t, model.RoleUser, snap.Transcript[0].Role)
	assert.Equal(t, "Sunny, **21°C**.", snap.Transcript[1].Content)
	assert.False(t, snap.Loading)
	assert.NotEmpty(t, snap.Trace)

	view := m.View()
	assert.Contains(t, view, "weather?")
	assert.Contains(t, view, "Sunny")
}

func TestModel_BlankInputIgnored(t *testing.T) {
	m, _ := newTestModel(t, &fakeTransport{}, nil)

	m = typeText(m, "   ")
	m, cmd := press(m, tea.KeyEnter)
	assert.Nil(t, cmd)
	assert.False(t, m.sending)
}

func TestModel_SendWhileSendingRejected(t *testing.T) {
	m, _ := newTestModel(t, &fakeTransport{body: replyBody("ok")}, nil)

	m = typeText(m, "first")
	m, _ = press(m, tea.KeyEnter)
	require.True(t, m.sending)

	m = typeText(m, "second")
	m, _ = press(m, tea.KeyEnter)
	assert.Equal(t, "second", m.input.Value(), "rejected input is kept")
	assert.Contains(t, m.notice, "Still waiting")
}

func TestModel_TransportErrorShowsBanner(t *testing.T) {
	tr := &fakeTransport{openErr: &stream.TransportError{Op: "open", StatusCode: 503}}
	m, _ := newTestModel(t, tr, nil)

	m = typeText(m, "hello")
	m, cmd := press(m, tea.KeyEnter)
	m = run(t, m, cmd)

	snap := m.Snapshot()
	assert.NotEmpty(t, snap.Error)
	assert.False(t, snap.Loading)
	require.Len(t, snap.Transcript, 1, "user entry kept")
	assert.Contains(t, m.View(), styles.StatusIndicators.Error)
}

// =============================================================================
// RESET
// =============================================================================

func TestModel_Reset(t *testing.T) {
	tr := &fakeTransport{body: replyBody("ok")}
	m, _ := newTestModel(t, tr, nil)

	m = typeText(m, "hi")
	m, cmd := press(m, tea.KeyEnter)
	m = run(t, m, cmd)
	require.NotEmpty(t, m.Snapshot().Transcript)

	m, cmd = press(m, tea.KeyCtrlR)
	m = run(t, m, cmd)

	assert.Equal(t, 1, tr.resets)
	assert.Empty(t, m.Snapshot().Transcript)
	assert.Empty(t, m.Snapshot().Trace)
	assert.Equal(t, "Conversation reset", m.notice)
}

func TestModel_ResetFailureKeepsTranscript(t *testing.T) {
	tr := &fakeTransport{body: replyBody("ok"), resetErr: errors.New("boom")}
	m, _ := newTestModel(t, tr, nil)

	m = typeText(m, "hi")
	m, cmd := press(m, tea.KeyEnter)
	m = run(t, m, cmd)

	m, cmd = press(m, tea.KeyCtrlR)
	m = run(t, m, cmd)

	assert.Len(t, m.Snapshot().Transcript, 2)
	assert.NotEmpty(t, m.Snapshot().Error)
}

func TestModel_ResetWhileSendingRejected(t *testing.T) {
	m, _ := newTestModel(t, &fakeTransport{body: replyBody("ok")}, nil)

	m = typeText(m, "hi")
	m, _ = press(m, tea.KeyEnter)
	m, _ = press(m, tea.KeyCtrlR)

	assert.Contains(t, m.notice, "Wait for the response")
}

// =============================================================================
// PANELS, SAVE, QUIT
// =============================================================================

func TestModel_ToggleTrace(t *testing.T) {
	m, _ := newTestModel(t, &fakeTransport{}, nil)
	initial := m.showTrace

	m, _ = press(m, tea.KeyCtrlT)
	assert.NotEqual(t, initial, m.showTrace)
	if m.showTrace {
		assert.Contains(t, m.View(), "Trace")
	}
}

func TestModel_SaveArchivesSnapshot(t *testing.T) {
	archive := &fakeArchive{}
	m, _ := newTestModel(t, &fakeTransport{body: replyBody("ok")}, archive)

	m = typeText(m, "hi")
	m, cmd := press(m, tea.KeyEnter)
	m = run(t, m, cmd)

	m, cmd = press(m, tea.KeyCtrlS)
	m = run(t, m, cmd)

	require.Len(t, archive.saved, 1)
	assert.Equal(t, "chat_conv-1", archive.saved[0].ID)
	assert.Len(t, archive.saved[0].Messages, 2)
	assert.Contains(t, m.notice, "Saved as chat_conv-1")
}

func TestModel_SaveWithoutArchive(t *testing.T) {
	m, _ := newTestModel(t, &fakeTransport{}, nil)

	m, _ = press(m, tea.KeyCtrlS)
	assert.Equal(t, "History is disabled", m.notice)
}

func TestModel_QuitClosesController(t *testing.T) {
	m, ctrl := newTestModel(t, &fakeTransport{}, nil)

	m, cmd := press(m, tea.KeyEsc)
	require.NotNil(t, cmd)
	assert.True(t, m.Closed())
	assert.True(t, ctrl.Closed())

	// Late messages after teardown are ignored.
	next, follow := m.Update(SnapshotMsg{Snapshot: session.Snapshot{Error: "late"}})
	assert.Nil(t, follow)
	assert.Empty(t, next.(Model).Snapshot().Error)
}

func TestModel_ConfigReloadAppliesToggles(t *testing.T) {
	m, _ := newTestModel(t, &fakeTransport{}, nil)

	cfg := config.Default()
	cfg.UI.ShowTrace = !m.showTrace
	cfg.UI.TraceWidth = 30
	next, _ := m.Update(ConfigReloadedMsg{Config: cfg})
	m = next.(Model)

	assert.Equal(t, cfg.UI.ShowTrace, m.showTrace)
	assert.Equal(t, 30, m.traceWidth)
}

// =============================================================================
// BRIDGE
// =============================================================================

func TestBridge_KeepsLatestSnapshot(t *testing.T) {
	b := newBridge()
	defer b.stop()

	b.pushSnapshot(session.Snapshot{Error: "first"})
	b.pushSnapshot(session.Snapshot{Error: "second"})

	msg := b.waitSnapshot()()
	snap, ok := msg.(SnapshotMsg)
	require.True(t, ok)
	assert.Equal(t, "second", snap.Snapshot.Error)
}

func TestBridge_StopReleasesWaiters(t *testing.T) {
	b := newBridge()
	b.stop()
	b.stop()
	assert.Nil(t, b.waitSnapshot()())
	assert.Nil(t, b.waitConfig()())
}

func TestHighlightJSON(t *testing.T) {
	out := highlightJSON(`{"tool": "deploy"}`, "monokai")
	assert.Contains(t, out, "deploy")
}

func TestMarkdownRenderer(t *testing.T) {
	r := newMarkdownRenderer("dark")
	out := r.Render("# Title\n\nsome **bold** text", 60)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "bold")
}
