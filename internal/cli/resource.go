// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/studio-tui/internal/api"
)

// =============================================================================
// GENERIC CRUD COMMANDS
// =============================================================================

// field is one settable attribute of a resource, exposed as a string flag.
type field[T any] struct {
	flag  string
	usage string
	set   func(v *T, value string) error
}

// resource describes one REST collection to newResourceCommand.
type resource[T any] struct {
	use      string
	aliases  []string
	singular string
	short    string

	fields   []field[T]
	defaults func(*T)

	// columns and row lay out the list table; describe lays out get.
	columns  []string
	row      func(T) []string
	describe func(T) *table

	// display is applied before printing, e.g. to mask secrets.
	display func(T) T

	// Client method expressions, e.g. (*api.Client).ListAgents.
	list   func(*api.Client, context.Context) ([]T, error)
	get    func(*api.Client, context.Context, string) (*T, error)
	create func(*api.Client, context.Context, T) (*T, error)
	update func(*api.Client, context.Context, string, T) (*T, error)
	remove func(*api.Client, context.Context, string) error
}

func (r resource[T]) show(v T) T {
	if r.display != nil {
		return r.display(v)
	}
	return v
}

func (r resource[T]) listTable(items []T) func() *table {
	return func() *table {
		t := newTable(r.columns...)
		for _, it := range items {
			t.add(r.row(r.show(it))...)
		}
		return t
	}
}

// newResourceCommand builds "<use> list|get|create|update|delete".
func newResourceCommand[T any](a *App, r resource[T]) *cobra.Command {
	cmd := &cobra.Command{
		Use:     r.use,
		Aliases: r.aliases,
		Short:   r.short,
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List " + r.use,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.Client()
			if err != nil {
				return err
			}
			items, err := r.list(client, cmd.Context())
			if err != nil {
				return err
			}
			shown := make([]T, 0, len(items))
			for _, it := range items {
				shown = append(shown, r.show(it))
			}
			return a.render(shown, r.listTable(items))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get ID",
		Short: "Show one " + r.singular,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.Client()
			if err != nil {
				return err
			}
			v, err := r.get(client, cmd.Context(), args[0])
			if err != nil {
				return err
			}
			shown := r.show(*v)
			return a.render(shown, func() *table { return r.describe(shown) })
		},
	})

	var createFile string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a " + r.singular,
		Long: fmt.Sprintf(`Create a %s from flags, a JSON or YAML file (--from-file), or both.
Flags override values read from the file.`, r.singular),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var v T
			if r.defaults != nil {
				r.defaults(&v)
			}
			if err := loadBody(createFile, &v); err != nil {
				return err
			}
			if err := applyFields(cmd, r.fields, &v); err != nil {
				return err
			}
			client, err := a.Client()
			if err != nil {
				return err
			}
			created, err := r.create(client, cmd.Context(), v)
			if err != nil {
				return err
			}
			shown := r.show(*created)
			return a.render(shown, func() *table { return r.describe(shown) })
		},
	}
	create.Flags().StringVarP(&createFile, "from-file", "f", "", "read the "+r.singular+" from a JSON or YAML file")
	addFieldFlags(create, r.fields)
	cmd.AddCommand(create)

	var updateFile string
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Update a " + r.singular,
		Long: fmt.Sprintf(`Update a %s. The current record is fetched first, so only the given
flags and file fields change.`, r.singular),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.Client()
			if err != nil {
				return err
			}
			current, err := r.get(client, cmd.Context(), args[0])
			if err != nil {
				return err
			}
			v := *current
			if err := loadBody(updateFile, &v); err != nil {
				return err
			}
			if err := applyFields(cmd, r.fields, &v); err != nil {
				return err
			}
			updated, err := r.update(client, cmd.Context(), args[0], v)
			if err != nil {
				return err
			}
			shown := r.show(*updated)
			return a.render(shown, func() *table { return r.describe(shown) })
		},
	}
	update.Flags().StringVarP(&updateFile, "from-file", "f", "", "merge fields from a JSON or YAML file")
	addFieldFlags(update, r.fields)
	cmd.AddCommand(update)

	var yes bool
	del := &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a " + r.singular,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := a.confirm(fmt.Sprintf("Delete %s %s?", r.singular, args[0]), yes)
			if err != nil {
				return err
			}
			if !ok {
				return errAborted
			}
			client, err := a.Client()
			if err != nil {
				return err
			}
			if err := r.remove(client, cmd.Context(), args[0]); err != nil {
				return err
			}
			a.printf("%s %s deleted\n", SuccessStyle.Render("✓"), args[0])
			return nil
		},
	}
	del.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.AddCommand(del)

	return cmd
}

// =============================================================================
// FIELD FLAGS
// =============================================================================

func addFieldFlags[T any](cmd *cobra.Command, fields []field[T]) {
	for _, f := range fields {
		cmd.Flags().String(f.flag, "", f.usage)
	}
}

// applyFields copies every flag the user set into v.
func applyFields[T any](cmd *cobra.Command, fields []field[T], v *T) error {
	for _, f := range fields {
		if !cmd.Flags().Changed(f.flag) {
			continue
		}
		value, _ := cmd.Flags().GetString(f.flag)
		if err := f.set(v, value); err != nil {
			return fmt.Errorf("--%s: %w", f.flag, err)
		}
	}
	return nil
}

func setBool(dst *bool, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("want true or false, got %q", value)
	}
	*dst = b
	return nil
}

// splitList parses a comma separated list, dropping empty items.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// =============================================================================
// FILE BODIES
// =============================================================================

// loadBody merges a JSON or YAML file into v. YAML is converted to JSON
// first so the JSON field names and custom decoders apply to both.
func loadBody(path string, v any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if !strings.HasSuffix(strings.ToLower(path), ".json") {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return fmt.Errorf("failed to convert %s: %w", path, err)
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
