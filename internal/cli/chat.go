// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jeranaias/studio-tui/internal/config"
	"github.com/jeranaias/studio-tui/internal/session"
	"github.com/jeranaias/studio-tui/internal/storage"
	"github.com/jeranaias/studio-tui/internal/stream"
	"github.com/jeranaias/studio-tui/internal/ui/chat"
	"github.com/jeranaias/studio-tui/internal/ui/styles"
)

// =============================================================================
// CHAT COMMAND
// =============================================================================

type chatOptions struct {
	kind         string
	mode         string
	conversation string
	plain        bool
	trace        bool
}

func newChatCommand(a *App) *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat [TARGET]",
		Short: "Chat with an agent or orchestrator",
		Long: `Open a streaming chat with an agent or orchestrator.

TARGET is the agent or orchestrator id; chat.default_target is used when it
is omitted. The full-screen view shows the transcript next to a trace of tool
calls, handoffs and agent updates. --plain (or a non-terminal stdout) uses a
line REPL instead.

Keys (full screen): enter send, ctrl+r reset, ctrl+t trace, ctrl+s save,
esc quit. REPL commands: /reset, /trace, /save, /quit.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), a, args, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.kind, "kind", "", "target kind: agent or orchestrator (default chat.default_kind)")
	f.StringVar(&opts.mode, "mode", "", "live, or test for an agent's test route (default chat.default_mode)")
	f.StringVar(&opts.conversation, "conversation", "", "conversation id to continue (default: new)")
	f.BoolVar(&opts.plain, "plain", false, "use the line REPL instead of the full-screen view")
	f.BoolVar(&opts.trace, "trace", false, "print trace events in the REPL")
	return cmd
}

// chatTarget resolves the target, kind and mode from args, flags and config.
func chatTarget(cfg *config.Config, args []string, opts chatOptions) (string, stream.ChatType, stream.ChatMode, error) {
	target := cfg.Chat.DefaultTarget
	if len(args) > 0 {
		target = args[0]
	}
	if target == "" {
		return "", "", "", errors.New("no chat target: pass an agent or orchestrator id, or set chat.default_target")
	}

	kindName := opts.kind
	if kindName == "" {
		kindName = cfg.Chat.DefaultKind
	}
	kind, err := stream.ParseChatType(kindName)
	if err != nil {
		return "", "", "", err
	}

	modeName := opts.mode
	if modeName == "" {
		modeName = cfg.Chat.DefaultMode
	}
	mode, err := stream.ParseChatMode(modeName)
	if err != nil {
		return "", "", "", err
	}
	if mode == stream.ChatModeTest && kind != stream.ChatTypeAgent {
		return "", "", "", errors.New("test mode is only available for agents")
	}
	return target, kind, mode, nil
}

func runChat(ctx context.Context, a *App, args []string, opts chatOptions) error {
	cfg, err := a.Config()
	if err != nil {
		return err
	}
	target, kind, mode, err := chatTarget(cfg, args, opts)
	if err != nil {
		return err
	}

	plain := opts.plain || !isTerminal(a.Stdout)
	log, err := a.Logger(!plain)
	if err != nil {
		return err
	}

	tr := stream.NewTransport(cfg.API.BaseURL).
		WithLogger(log.Component("stream")).
		WithResetTimeout(cfg.API.ResetTimeout())
	ctrl := session.NewController(session.StreamTransport{Transport: tr}, session.Options{
		TargetID:       target,
		Kind:           kind,
		Mode:           mode,
		ConversationID: opts.conversation,
		Logger:         log.Logger,
	})
	defer ctrl.Close()

	archive, err := a.Archive()
	if err != nil {
		log.WithError(err).Warn("history unavailable; saving is disabled")
		archive = nil
	}
	if archive != nil {
		defer archive.Close()
	}

	if plain {
		r := newREPL(a, ctrl, archive, cfg, opts.trace)
		return r.run(ctx)
	}
	return runChatTUI(a, ctrl, archive, cfg, log.Component("tui"))
}

// runChatTUI runs the full-screen chat view until the user quits.
func runChatTUI(a *App, ctrl *session.Controller, archive *storage.Store, cfg *config.Config, log logrus.FieldLogger) error {
	opts := chat.Options{
		Controller: ctrl,
		Theme:      styles.NewTheme(cfg.UI.Theme),
		Config:     cfg,
		Logger:     log,
	}
	if archive != nil {
		opts.Archive = archive
	}
	if path, err := a.configFile(); err == nil {
		if _, err := os.Stat(path); err == nil {
			opts.ConfigPath = path
		}
	}

	p := tea.NewProgram(chat.New(opts), tea.WithAltScreen(), tea.WithInput(a.Stdin), tea.WithOutput(a.Stdout))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat view failed: %w", err)
	}
	return nil
}

// =============================================================================
// RESET COMMAND
// =============================================================================

func newResetCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reset TARGET CONVERSATION",
		Short: "Forget a conversation on the backend",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.Config()
			if err != nil {
				return err
			}
			log, err := a.Logger(false)
			if err != nil {
				return err
			}
			tr := stream.NewTransport(cfg.API.BaseURL).
				WithLogger(log.Component("stream")).
				WithResetTimeout(cfg.API.ResetTimeout())
			if err := tr.Reset(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			a.printf("%s conversation %s reset\n", SuccessStyle.Render("✓"), args[1])
			return nil
		},
	}
}
