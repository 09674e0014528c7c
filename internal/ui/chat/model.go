// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/studio-tui/internal/config"
	"github.com/jeranaias/studio-tui/internal/session"
	"github.com/jeranaias/studio-tui/internal/storage"
	"github.com/jeranaias/studio-tui/internal/ui/styles"
)

const (
	noticeDuration    = 4 * time.Second
	defaultTraceWidth = 48
	minTraceWidth     = 24
	inputCharLimit    = 8000
)

// Archive stores finished transcripts. *storage.Store satisfies it.
type Archive interface {
	Save(ctx context.Context, rec *storage.Record) (string, error)
}

// Options configures the chat view.
type Options struct {
	Controller *session.Controller
	Theme      *styles.Theme

	// Config supplies the UI toggles. Defaults are used when nil.
	Config *config.Config

	// ConfigPath is watched for changes when non-empty.
	ConfigPath string

	// Archive enables Ctrl+S and auto-save. Nil disables both.
	Archive Archive

	Logger logrus.FieldLogger
}

// Model is the Bubble Tea model of the chat view.
type Model struct {
	ctrl    *session.Controller
	theme   *styles.Theme
	keys    KeyMap
	archive Archive
	log     logrus.FieldLogger

	// Components
	transcript viewport.Model
	trace      viewport.Model
	input      textinput.Model
	spinner    spinner.Model
	markdown   *markdownRenderer

	// Conversation state as last seen
	snap    session.Snapshot
	sending bool

	// UI toggles, live-reloaded from the config file
	showTrace      bool
	renderMarkdown bool
	traceWidth     int
	autoSave       bool

	// Status notice
	notice    string
	noticeErr bool
	noticeSeq int

	// Lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	bridge  *bridge
	watcher *config.Watcher
	closed  bool

	width  int
	height int
	ready  bool
}

// New creates the chat view for opts.Controller.
func New(opts Options) Model {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme(cfg.UI.Theme)
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Send a message..."
	ti.CharLimit = inputCharLimit
	ti.PromptStyle = theme.InputPrompt
	ti.PlaceholderStyle = theme.InputPlaceholder
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = styles.DotsSpinner.Bubble()
	sp.Style = theme.Spinner

	ctx, cancel := context.WithCancel(context.Background())

	m := Model{
		ctrl:       opts.Controller,
		theme:      theme,
		keys:       DefaultKeyMap(),
		archive:    opts.Archive,
		log:        log.WithField("component", "tui"),
		transcript: viewport.New(0, 0),
		trace:      viewport.New(0, 0),
		input:      ti,
		spinner:    sp,
		markdown:   newMarkdownRenderer(theme.GlamourStyle()),
		snap:       opts.Controller.Snapshot(),
		ctx:        ctx,
		cancel:     cancel,
		bridge:     newBridge(),
	}
	m.applyUIConfig(cfg)
	m.bridge.attach(opts.Controller)

	if opts.ConfigPath != "" {
		w, err := config.Watch(opts.ConfigPath, m.bridge.pushConfig)
		if err != nil {
			m.log.WithError(err).Warn("config watch disabled")
		} else {
			m.watcher = w
		}
	}
	return m
}

// Init starts the cursor blink, the spinner and the event bridge.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick, m.bridge.waitSnapshot()}
	if m.watcher != nil {
		cmds = append(cmds, m.bridge.waitConfig())
	}
	return tea.Batch(cmds...)
}

// Snapshot returns the conversation state the view last rendered.
func (m Model) Snapshot() session.Snapshot {
	return m.snap
}

// Closed reports whether the view has shut the controller down.
func (m Model) Closed() bool {
	return m.closed
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SnapshotMsg:
		if m.closed {
			return m, nil
		}
		m.snap = msg.Snapshot
		m.layout()
		return m, m.bridge.waitSnapshot()

	case SendDoneMsg:
		return m.handleSendDone(msg)

	case ResetDoneMsg:
		return m.handleResetDone(msg)

	case SavedMsg:
		if msg.Err != nil {
			m.log.WithError(msg.Err).Warn("archive failed")
			return m.setNotice("Save failed: "+msg.Err.Error(), true)
		}
		return m.setNotice("Saved as "+msg.ID, false)

	case ConfigReloadedMsg:
		if m.closed {
			return m, nil
		}
		if msg.Err != nil {
			m.log.WithError(msg.Err).Warn("config reload failed")
		} else {
			m.applyUIConfig(msg.Config)
			m.layout()
		}
		return m, m.bridge.waitConfig()

	case noticeExpiredMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
			m.noticeErr = false
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.loading() {
			m.refresh()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the chat view.
func (m Model) View() string {
	if !m.ready {
		return "Starting..."
	}
	return m.render()
}

// =============================================================================
// MESSAGE HANDLERS
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(m.width, m.height)
	m.ready = true
	m.layout()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Send):
		return m.send()

	case key.Matches(msg, m.keys.Reset):
		if m.sending || m.snap.Busy() {
			return m.setNotice("Wait for the response to finish before resetting", true)
		}
		return m, resetCmd(m.ctx, m.ctrl)

	case key.Matches(msg, m.keys.ToggleTrace):
		m.showTrace = !m.showTrace
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.Save):
		if m.archive == nil {
			return m.setNotice("History is disabled", true)
		}
		if len(m.snap.Transcript) == 0 {
			return m.setNotice("Nothing to save yet", false)
		}
		return m, saveCmd(m.archive, m.snap)

	case key.Matches(msg, m.keys.PageUp):
		m.transcript.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.transcript.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) send() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if m.sending || m.snap.Busy() {
		return m.setNotice("Still waiting for the current response", true)
	}
	m.input.Reset()
	m.sending = true
	return m, sendCmd(m.ctx, m.ctrl, text)
}

func (m Model) handleSendDone(msg SendDoneMsg) (tea.Model, tea.Cmd) {
	m.sending = false
	if m.closed {
		return m, nil
	}
	m.snap = m.ctrl.Snapshot()
	m.layout()

	var pe *session.ProtocolError
	switch {
	case msg.Err == nil:
		return m, nil
	case errors.Is(msg.Err, session.ErrBusy):
		return m.setNotice("Still waiting for the current response", true)
	case errors.As(msg.Err, &pe):
		// Shown in the error banner; the stream itself completed.
		m.log.WithError(msg.Err).Debug("stream reported an error")
		return m, nil
	default:
		m.log.WithError(msg.Err).Debug("send failed")
		return m, nil
	}
}

func (m Model) handleResetDone(msg ResetDoneMsg) (tea.Model, tea.Cmd) {
	if m.closed {
		return m, nil
	}
	m.snap = m.ctrl.Snapshot()
	m.layout()

	var re *session.ResetError
	switch {
	case msg.Err == nil:
		return m.setNotice("Conversation reset", false)
	case errors.Is(msg.Err, session.ErrBusy):
		return m.setNotice("Wait for the response to finish before resetting", true)
	case errors.As(msg.Err, &re):
		return m, nil
	default:
		return m.setNotice(msg.Err.Error(), true)
	}
}

// quit tears the view down. The controller is closed first so a stream
// still in flight can no longer change state.
func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.closed {
		return m, tea.Quit
	}
	snap := m.ctrl.Snapshot()
	m.ctrl.Close()
	m.cancel()
	m.bridge.stop()
	if m.watcher != nil {
		if err := m.watcher.Close(); err != nil {
			m.log.WithError(err).Debug("config watcher close failed")
		}
	}
	m.closed = true

	if m.autoSave && m.archive != nil && len(snap.Transcript) > 0 {
		return m, tea.Sequence(saveCmd(m.archive, snap), tea.Quit)
	}
	return m, tea.Quit
}

// =============================================================================
// HELPERS
// =============================================================================

func (m *Model) applyUIConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	m.showTrace = cfg.UI.ShowTrace
	m.renderMarkdown = cfg.UI.RenderMarkdown
	m.autoSave = cfg.Storage.AutoSave
	m.traceWidth = cfg.UI.TraceWidth
	if m.traceWidth <= 0 {
		m.traceWidth = defaultTraceWidth
	}
	if m.traceWidth < minTraceWidth {
		m.traceWidth = minTraceWidth
	}
}

func (m Model) setNotice(text string, isErr bool) (tea.Model, tea.Cmd) {
	m.noticeSeq++
	m.notice = text
	m.noticeErr = isErr
	return m, expireNoticeCmd(m.noticeSeq, noticeDuration)
}

func (m Model) loading() bool {
	return m.sending || m.snap.Loading || m.snap.Resetting
}

// statusText describes the current phase for the status bar.
func (m Model) statusText() string {
	switch {
	case m.snap.Resetting:
		return "resetting"
	case m.loading():
		return m.snap.Phase.String()
	default:
		return fmt.Sprintf("%d messages", len(m.snap.Transcript))
	}
}
