// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/studio-tui/internal/config"
	"github.com/jeranaias/studio-tui/internal/model"
	"github.com/jeranaias/studio-tui/internal/session"
	"github.com/jeranaias/studio-tui/internal/storage"
	"github.com/jeranaias/studio-tui/internal/util"
)

// historyFileName holds REPL input history inside the config directory.
const historyFileName = "chat_history"

// =============================================================================
// LINE INPUT
// =============================================================================

// lineReader reads one line of user input.
type lineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// linerInput provides history and line editing on a terminal.
type linerInput struct {
	state       *liner.State
	historyFile string
}

func newLinerInput() *linerInput {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)

	in := &linerInput{state: state}
	if dir, err := config.ConfigDir(); err == nil {
		in.historyFile = filepath.Join(dir, historyFileName)
		if f, err := os.Open(in.historyFile); err == nil {
			state.ReadHistory(f)
			f.Close()
		}
	}
	return in
}

func (l *linerInput) Prompt(prompt string) (string, error) {
	line, err := l.state.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(line) != "" {
		l.state.AppendHistory(line)
	}
	return line, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (l *linerInput) Close() error {
	if l.historyFile != "" {
		if err := os.MkdirAll(filepath.Dir(l.historyFile), 0700); err == nil {
			if f, err := os.OpenFile(l.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
				l.state.WriteHistory(f)
				f.Close()
			}
		}
	}
	return l.state.Close()
}

// scannerInput reads piped input. The prompt is not echoed.
type scannerInput struct {
	scanner *bufio.Scanner
}

func (s *scannerInput) Prompt(string) (string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

func (s *scannerInput) Close() error { return nil }

// =============================================================================
// REPL
// =============================================================================

// repl is the plain chat front-end. Deltas are printed as they arrive by a
// controller subscriber, which runs on the goroutine calling Send.
type repl struct {
	a       *App
	ctrl    *session.Controller
	archive *storage.Store
	cfg     *config.Config
	in      lineReader
	out     io.Writer

	mu        sync.Mutex
	trace     bool
	entryID   string
	printed   string
	midLine   bool
	traceSeen int
}

func newREPL(a *App, ctrl *session.Controller, archive *storage.Store, cfg *config.Config, trace bool) *repl {
	r := &repl{
		a:       a,
		ctrl:    ctrl,
		archive: archive,
		cfg:     cfg,
		out:     a.Stdout,
		trace:   trace,
	}
	if isTerminal(a.Stdin) && isTerminal(a.Stdout) {
		r.in = newLinerInput()
	} else {
		r.in = &scannerInput{scanner: bufio.NewScanner(a.Stdin)}
	}
	return r
}

func (r *repl) run(ctx context.Context) error {
	defer r.in.Close()
	unsubscribe := r.ctrl.Subscribe(r.onSnapshot)
	defer unsubscribe()

	r.printWelcome()
	for {
		line, err := r.in.Prompt(PromptStyle.Render("you> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D and end of piped input all exit.
			if !errors.Is(err, io.EOF) && !errors.Is(err, liner.ErrPromptAborted) {
				return err
			}
			return r.exit(ctx)
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/"):
			if quit := r.command(ctx, line); quit {
				return r.exit(ctx)
			}
		default:
			r.send(ctx, line)
		}
	}
}

func (r *repl) printWelcome() {
	snap := r.ctrl.Snapshot()
	fmt.Fprintf(r.out, "%s %s %s (%s)\n",
		TitleStyle.Render("studio chat"),
		MutedStyle.Render("·"),
		snap.TargetID, snap.Kind)
	fmt.Fprintln(r.out, MutedStyle.Render("conversation "+snap.ConversationID+" · /help for commands"))
}

// send streams one exchange. Ctrl+C cancels the stream but keeps the REPL.
func (r *repl) send(ctx context.Context, text string) {
	sendCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	err := r.ctrl.Send(sendCtx, text)
	r.finishLine()

	switch {
	case err == nil:
	case sendCtx.Err() != nil && ctx.Err() == nil:
		fmt.Fprintln(r.out, WarningStyle.Render("[Cancelled]"))
	default:
		msg := r.ctrl.Snapshot().Error
		if msg == "" {
			msg = err.Error()
		}
		fmt.Fprintln(r.out, ErrorStyle.Render("[Error]")+" "+msg)
	}
}

// command runs a slash command and reports whether the REPL should exit.
func (r *repl) command(ctx context.Context, line string) bool {
	switch strings.ToLower(strings.Fields(line)[0]) {
	case "/quit", "/exit", "/q":
		return true
	case "/reset":
		if err := r.ctrl.Reset(ctx); err != nil {
			fmt.Fprintln(r.out, ErrorStyle.Render("[Error]")+" "+err.Error())
			return false
		}
		r.mu.Lock()
		r.entryID, r.printed, r.traceSeen = "", "", 0
		r.mu.Unlock()
		fmt.Fprintln(r.out, SuccessStyle.Render("Conversation reset"))
	case "/trace":
		r.mu.Lock()
		r.trace = !r.trace
		on := r.trace
		r.mu.Unlock()
		fmt.Fprintln(r.out, MutedStyle.Render("trace "+onOff(on)))
	case "/save":
		r.save(ctx)
	case "/help", "/?":
		fmt.Fprintln(r.out, MutedStyle.Render("/reset  forget the conversation\n/trace  toggle trace lines\n/save   save to history\n/quit   leave"))
	default:
		fmt.Fprintln(r.out, WarningStyle.Render("unknown command "+line+"; try /help"))
	}
	return false
}

func (r *repl) save(ctx context.Context) {
	if r.archive == nil {
		fmt.Fprintln(r.out, WarningStyle.Render("History is disabled"))
		return
	}
	snap := r.ctrl.Snapshot()
	if len(snap.Transcript) == 0 {
		fmt.Fprintln(r.out, MutedStyle.Render("Nothing to save yet"))
		return
	}
	saveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	id, err := r.archive.Save(saveCtx, storage.FromSnapshot(snap))
	if err != nil {
		fmt.Fprintln(r.out, ErrorStyle.Render("[Error]")+" save failed: "+err.Error())
		return
	}
	fmt.Fprintln(r.out, SuccessStyle.Render("Saved as "+id))
}

func (r *repl) exit(ctx context.Context) error {
	if r.cfg.Storage.AutoSave && r.archive != nil && len(r.ctrl.Snapshot().Transcript) > 0 {
		r.save(ctx)
	}
	r.ctrl.Close()
	return nil
}

// =============================================================================
// STREAMED OUTPUT
// =============================================================================

// onSnapshot prints what changed since the previous snapshot: new trace
// entries and the unseen tail of the newest assistant entry.
func (r *repl) onSnapshot(snap session.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.traceSeen > len(snap.Trace) {
		r.traceSeen = 0
	}
	if r.trace {
		for _, entry := range snap.Trace[r.traceSeen:] {
			r.printTrace(entry)
		}
	}
	r.traceSeen = len(snap.Trace)

	n := len(snap.Transcript)
	if n == 0 || snap.Transcript[n-1].Role != model.RoleAssistant {
		return
	}
	msg := snap.Transcript[n-1]
	if msg.ID != r.entryID {
		r.entryID = msg.ID
		r.printed = ""
		r.startReply()
	}

	tail := ""
	switch {
	case strings.HasPrefix(msg.Content, r.printed):
		tail = msg.Content[len(r.printed):]
	default:
		// The final content replaced the streamed text.
		tail = "\n" + msg.Content
	}
	if tail == "" {
		return
	}
	if !r.midLine {
		r.startReply()
	}
	fmt.Fprint(r.out, tail)
	r.printed = msg.Content
}

func (r *repl) startReply() {
	fmt.Fprint(r.out, AssistantStyle.Render(model.RoleAssistant.DisplayName()+"> "))
	r.midLine = true
}

func (r *repl) printTrace(entry model.TraceEntry) {
	if r.midLine {
		fmt.Fprintln(r.out)
		r.midLine = false
	}
	line := fmt.Sprintf("  · %s %s", entry.Title(), util.TruncateWidth(entry.Summary(), 100))
	fmt.Fprintln(r.out, MutedStyle.Render(line))
}

// finishLine ends the streamed reply with a newline. entryID and printed
// are kept so later snapshots of the same transcript print nothing.
func (r *repl) finishLine() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.midLine {
		fmt.Fprintln(r.out)
	}
	r.midLine = false
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
