// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/studio-tui/internal/export"
	"github.com/jeranaias/studio-tui/internal/storage"
)

// =============================================================================
// HISTORY COMMANDS
// =============================================================================

func newHistoryCommand(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse saved conversations",
		Long: `Conversations saved with ctrl+s, /save or storage.auto_save live in a local
SQLite archive (storage.history_path). IDs may be shortened to any unique
prefix.`,
	}
	cmd.AddCommand(
		newHistoryListCommand(a),
		newHistoryShowCommand(a),
		newHistoryExportCommand(a),
		newHistoryRemoveCommand(a),
	)
	return cmd
}

// withArchive opens the archive for the duration of fn.
func withArchive(a *App, fn func(*storage.Store) error) error {
	store, err := a.Archive()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newHistoryListCommand(a *App) *cobra.Command {
	var (
		limit  int
		search string
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved conversations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(a, func(store *storage.Store) error {
				metas, err := store.Search(cmd.Context(), search, limit)
				if err != nil {
					return err
				}
				return a.render(metas, func() *table {
					t := newTable("ID", "TARGET", "MESSAGES", "UPDATED", "SUMMARY")
					for _, m := range metas {
						t.add(m.ID, m.TargetID, strconv.Itoa(m.MessageCount), formatAge(m.UpdatedAt), m.Summary)
					}
					return t
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum records (0 for all)")
	cmd.Flags().StringVarP(&search, "search", "s", "", "only records containing this text")
	return cmd
}

func newHistoryShowCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Print a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(a, func(store *storage.Store) error {
				rec, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if a.output != OutputTable {
					return a.render(rec, nil)
				}
				printRecord(a, rec)
				return nil
			})
		},
	}
}

// printRecord writes a transcript for reading in the terminal.
func printRecord(a *App, rec *storage.Record) {
	fmt.Fprintf(a.Stdout, "%s %s\n", TitleStyle.Render(rec.ID), MutedStyle.Render(
		fmt.Sprintf("%s %s · %s · %d trace events", rec.Kind, rec.TargetID,
			rec.UpdatedAt.Local().Format("2006-01-02 15:04"), len(rec.Trace))))
	for _, m := range rec.Messages {
		label := LabelStyle.Render(m.Role.DisplayName() + ":")
		fmt.Fprintf(a.Stdout, "\n%s %s\n", label, m.Content)
	}
}

func newHistoryExportCommand(a *App) *cobra.Command {
	var (
		format  string
		out     string
		noTrace bool
		open    bool
	)
	cmd := &cobra.Command{
		Use:   "export ID",
		Short: "Export a saved conversation as Markdown, JSON or YAML",
		Long: `Export a saved conversation. Without --out the document is written to
stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := export.DefaultOptions()
			opts.IncludeTrace = !noTrace
			opts.OutputPath = out
			opts.OpenAfterExport = open
			exporter, err := export.ForFormat(format, opts)
			if err != nil {
				return err
			}
			return withArchive(a, func(store *storage.Store) error {
				rec, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if out == "" {
					data, err := exporter.Export(rec)
					if err != nil {
						return err
					}
					_, err = a.Stdout.Write(data)
					return err
				}
				path, err := export.ExportToFile(rec, exporter, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.Stderr, "%s exported to %s\n", SuccessStyle.Render("✓"), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "md", "format: "+strings.Join(export.Formats, ", "))
	cmd.Flags().StringVar(&out, "out", "", "output file")
	cmd.Flags().BoolVar(&noTrace, "no-trace", false, "leave the trace timeline out")
	cmd.Flags().BoolVar(&open, "open", false, "open the file after writing it (with --out)")
	return cmd
}

func newHistoryRemoveCommand(a *App) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"delete"},
		Short:   "Delete a saved conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := a.confirm("Delete saved conversation "+args[0]+"?", yes)
			if err != nil {
				return err
			}
			if !ok {
				return errAborted
			}
			return withArchive(a, func(store *storage.Store) error {
				if err := store.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				a.printf("%s %s deleted\n", SuccessStyle.Render("✓"), args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// formatAge renders how long ago t was, coarsely.
func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
