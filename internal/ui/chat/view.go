// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/studio-tui/internal/model"
	"github.com/jeranaias/studio-tui/internal/ui/styles"
	"github.com/jeranaias/studio-tui/internal/util"
)

const (
	headerHeight = 1
	inputHeight  = 2 // border + line
	statusHeight = 1
	bannerHeight = 1
	idPreviewLen = 8
)

// =============================================================================
// LAYOUT
// =============================================================================

// traceBeside reports whether the trace panel sits right of the transcript.
func (m Model) traceBeside() bool {
	return m.theme.GetLayoutMode() == styles.LayoutWide
}

// layout sizes every pane for the current window and re-renders content.
func (m *Model) layout() {
	if !m.ready {
		return
	}
	body := m.height - headerHeight - inputHeight - statusHeight
	if m.snap.Error != "" {
		body -= bannerHeight
	}
	if body < 1 {
		body = 1
	}

	tw, th := m.width, body
	switch {
	case !m.showTrace:
		m.trace.Width, m.trace.Height = 0, 0
	case m.traceBeside():
		traceW := m.traceWidth
		if traceW > m.width/2 {
			traceW = m.width / 2
		}
		tw = m.width - traceW
		m.trace.Width = traceW - 4 // border + padding
		m.trace.Height = body - 2
	default:
		traceH := body * 2 / 5
		if traceH < 3 {
			traceH = 3
		}
		th = body - traceH
		m.trace.Width = m.width - 4
		m.trace.Height = traceH - 2
	}
	if th < 1 {
		th = 1
	}

	m.transcript.Width = tw
	m.transcript.Height = th
	m.input.Width = max(m.width-6, 10)
	m.refresh()
}

// refresh re-renders pane content and follows the bottom of the
// transcript if it was already there.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	follow := m.transcript.AtBottom() || m.loading()
	m.transcript.SetContent(m.renderTranscript(m.transcript.Width - 2))
	if follow {
		m.transcript.GotoBottom()
	}
	if m.showTrace {
		m.trace.SetContent(m.renderTrace(m.trace.Width))
		m.trace.GotoBottom()
	}
}

// =============================================================================
// RENDERING
// =============================================================================

func (m Model) render() string {
	parts := []string{m.renderHeader()}

	transcript := m.theme.TranscriptPane.Render(m.transcript.View())
	switch {
	case !m.showTrace:
		parts = append(parts, transcript)
	case m.traceBeside():
		parts = append(parts, lipgloss.JoinHorizontal(lipgloss.Top, transcript, m.renderTracePane()))
	default:
		parts = append(parts, transcript, m.renderTracePane())
	}

	if m.snap.Error != "" {
		parts = append(parts, m.theme.ErrorBanner.Width(m.width).
			Render(util.TruncateWidth(styles.StatusIndicators.Error+" "+util.SingleLine(m.snap.Error), m.width-2)))
	}
	parts = append(parts, m.theme.InputContainer.Width(m.width).Render(m.input.View()))
	parts = append(parts, m.renderStatusBar())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("studio")
	target := m.theme.HeaderSubtitle.Render(
		string(m.snap.Kind) + " " + util.TruncateRunes(m.snap.TargetID, idPreviewLen+3))
	conv := m.theme.MessageTime.Render("conversation " + util.TruncateRunes(m.snap.ConversationID, idPreviewLen+3))
	left := title + "  " + target + "  " + conv
	right := m.theme.HeaderSubtitle.Render(string(m.snap.Mode))

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderTranscript(width int) string {
	if len(m.snap.Transcript) == 0 {
		return m.theme.Muted.Render("No messages yet. Type below and press Enter.")
	}
	if width < 10 {
		width = 10
	}

	var b strings.Builder
	for i, msg := range m.snap.Transcript {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderMessage(msg, width))
	}
	return b.String()
}

func (m Model) renderMessage(msg model.Message, width int) string {
	label := m.theme.AssistantLabel
	if msg.Role == model.RoleUser {
		label = m.theme.UserLabel
	}
	header := label.Render(msg.Role.DisplayName())
	if !msg.Timestamp.IsZero() {
		header += " " + m.theme.MessageTime.Render(msg.Timestamp.Format("15:04:05"))
	}

	var body string
	switch {
	case msg.Role == model.RoleUser:
		body = m.theme.UserText.Width(width).Render(msg.Content)
	case msg.Open && msg.Content == "":
		body = "  " + m.spinner.View() + m.theme.Muted.Render(" thinking")
	case msg.Open:
		body = lipgloss.NewStyle().Width(width).PaddingLeft(2).Render(msg.Content) + m.theme.Cursor.Render("_")
	case m.renderMarkdown:
		body = m.markdown.Render(msg.Content, width)
	default:
		body = lipgloss.NewStyle().Width(width).PaddingLeft(2).Render(msg.Content)
	}
	return header + "\n" + body
}

func (m Model) renderTracePane() string {
	title := m.theme.TracePaneTitle.Render("Trace")
	count := m.theme.Muted.Render(" (" + strconv.Itoa(len(m.snap.Trace)) + ")")
	return m.theme.TracePane.
		Width(m.trace.Width + 2).
		Render(title + count + "\n" + m.trace.View())
}

func (m Model) renderTrace(width int) string {
	if len(m.snap.Trace) == 0 {
		return m.theme.TraceEmptyState.Render("No events yet")
	}
	if width < 10 {
		width = 10
	}

	sep := m.theme.TraceSeparator.Render(strings.Repeat("-", width))
	var b strings.Builder
	for i, entry := range m.snap.Trace {
		if i > 0 {
			b.WriteString("\n" + sep + "\n")
		}
		b.WriteString(m.renderTraceEntry(entry, width))
	}
	return b.String()
}

func (m Model) renderTraceEntry(entry model.TraceEntry, width int) string {
	line := m.theme.TraceBadge(entry.Type, entry.Title()) + " " +
		m.theme.TraceTime.Render(entry.Timestamp.Format("15:04:05"))
	if len(entry.Payload) == 0 {
		return line
	}
	summary := m.theme.TraceSummary.Render(util.TruncateWidth(entry.Summary(), width))
	payload := lipgloss.NewStyle().Width(width).
		Render(highlightJSON(entry.PayloadJSON(), m.theme.ChromaStyle()))
	return line + "\n" + summary + "\n" + payload
}

func (m Model) renderStatusBar() string {
	var left string
	if m.loading() {
		left = m.spinner.View() + " " + m.theme.StatusValue.Render(m.statusText())
	} else {
		left = m.theme.StatusValue.Render(m.statusText())
	}
	if m.notice != "" {
		if m.noticeErr {
			left += "  " + styles.RenderWarning(m.notice)
		} else {
			left += "  " + m.theme.Notice.Render(m.notice)
		}
	}

	var help []string
	for _, k := range m.keys.ShortHelp() {
		h := k.Help()
		help = append(help, m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
	}
	right := strings.Join(help, "  ")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		right = ""
		gap = 1
	}
	return m.theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}
