// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/studio-tui/internal/util"
)

// =============================================================================
// STRUCTURED OUTPUT
// =============================================================================

// render prints v as JSON or YAML, or calls table for the default format.
func (a *App) render(v any, table func() *table) error {
	switch a.output {
	case OutputJSON:
		enc := json.NewEncoder(a.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case OutputYAML:
		enc := yaml.NewEncoder(a.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return table().render(a.Stdout, terminalWidth(a.Stdout))
	}
}

// printf writes human-oriented messages. They go to stderr when a structured
// format is selected so stdout stays parseable.
func (a *App) printf(format string, args ...any) {
	w := a.Stdout
	if a.output != OutputTable {
		w = a.Stderr
	}
	fmt.Fprintf(w, format, args...)
}

// =============================================================================
// TABLES
// =============================================================================

// maxCellWidth caps any column but the last.
const maxCellWidth = 36

const columnGap = "  "

// table is a plain column layout. Cells are collapsed to one line and
// truncated by display width, so wide characters line up.
type table struct {
	headers []string
	rows    [][]string
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

// widths sizes every column to its widest cell. Columns are capped at
// maxCellWidth and the last one takes what is left of total.
func (t *table) widths(total int) []int {
	w := make([]int, len(t.headers))
	for i, h := range t.headers {
		w[i] = util.StringWidth(h)
	}
	for _, row := range t.rows {
		for i := range w {
			if i < len(row) {
				if n := util.StringWidth(util.SingleLine(row[i])); n > w[i] {
					w[i] = n
				}
			}
		}
	}

	used := 0
	for i := range w {
		if i < len(w)-1 {
			if w[i] > maxCellWidth {
				w[i] = maxCellWidth
			}
			used += w[i] + len(columnGap)
		}
	}
	if last := len(w) - 1; last >= 0 {
		if rest := total - used; rest > 0 && w[last] > rest {
			w[last] = rest
		}
	}
	return w
}

func (t *table) render(out io.Writer, total int) error {
	if len(t.rows) == 0 {
		_, err := fmt.Fprintln(out, MutedStyle.Render("No results."))
		return err
	}

	widths := t.widths(total)
	line := func(cells []string, style func(string) string) string {
		parts := make([]string, len(widths))
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = util.TruncateWidth(util.SingleLine(cells[i]), w)
			}
			if i < len(widths)-1 {
				cell = util.PadRight(cell, w)
			}
			parts[i] = style(cell)
		}
		return strings.TrimRight(strings.Join(parts, columnGap), " ")
	}

	var b strings.Builder
	b.WriteString(line(t.headers, func(s string) string { return HeaderStyle.Render(s) }))
	b.WriteByte('\n')
	plain := func(s string) string { return s }
	for _, row := range t.rows {
		b.WriteString(line(row, plain))
		b.WriteByte('\n')
	}
	_, err := io.WriteString(out, b.String())
	return err
}

// detail renders one record as aligned "label  value" lines.
func detail(pairs ...string) *table {
	t := newTable("FIELD", "VALUE")
	for i := 0; i+1 < len(pairs); i += 2 {
		t.add(pairs[i], pairs[i+1])
	}
	return t
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
