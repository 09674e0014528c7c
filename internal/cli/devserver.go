// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/studio-tui/internal/devserver"
)

// shutdownTimeout bounds the wait for open streams on exit.
const shutdownTimeout = 5 * time.Second

func newDevserverCommand(a *App) *cobra.Command {
	var (
		addr       string
		frameDelay time.Duration
		noSeed     bool
	)
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local fake backend",
		Long: `Run an in-memory backend that serves the REST and streaming chat API.
Agents answer by echoing the message, with a tool call along the way;
orchestrators add a handoff. Data is lost on exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := a.Logger(false)
			if err != nil {
				return err
			}
			srv := devserver.New(devserver.Options{
				Addr:       addr,
				FrameDelay: frameDelay,
				NoSeed:     noSeed,
				Logger:     log.Component("devserver"),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			fmt.Fprintf(a.Stdout, "%s on http://%s\n", TitleStyle.Render("studio devserver"), srv.Addr())
			fmt.Fprintf(a.Stdout, "%s\n", MutedStyle.Render(fmt.Sprintf(
				"API root http://%s%s · press Ctrl+C to stop", srv.Addr(), devserver.APIPrefix)))

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown failed: %w", err)
			}
			return <-errCh
		},
	}
	cmd.Flags().StringVar(&addr, "addr", devserver.DefaultAddr, "listen address")
	cmd.Flags().DurationVar(&frameDelay, "frame-delay", devserver.DefaultFrameDelay, "pause between streamed frames")
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "start without the demo records")
	return cmd
}
