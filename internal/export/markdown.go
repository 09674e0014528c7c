// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/studio-tui/internal/model"
	"github.com/jeranaias/studio-tui/internal/storage"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports records to Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

type frontmatter struct {
	Title          string `yaml:"title"`
	Target         string `yaml:"target"`
	ChatType       string `yaml:"chat_type"`
	ChatMode       string `yaml:"chat_mode,omitempty"`
	ConversationID string `yaml:"conversation_id"`
	Date           string `yaml:"date"`
	Updated        string `yaml:"updated"`
	Messages       int    `yaml:"messages"`
	TraceEvents    int    `yaml:"trace_events"`
	Exported       string `yaml:"exported"`
	Generator      string `yaml:"generator"`
}

// Export converts a record to Markdown.
func (e *MarkdownExporter) Export(rec *storage.Record) ([]byte, error) {
	if rec == nil {
		return nil, ErrNilRecord
	}
	if len(rec.Messages) == 0 {
		return nil, fmt.Errorf("conversation has no messages")
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		fm, err := yaml.Marshal(frontmatter{
			Title:          rec.Summary,
			Target:         rec.TargetID,
			ChatType:       rec.Kind,
			ChatMode:       rec.Mode,
			ConversationID: rec.ConversationID,
			Date:           rec.CreatedAt.Format(time.RFC3339),
			Updated:        rec.UpdatedAt.Format(time.RFC3339),
			Messages:       len(rec.Messages),
			TraceEvents:    len(rec.Trace),
			Exported:       e.options.clock().Format(time.RFC3339),
			Generator:      "studio",
		})
		if err != nil {
			return nil, fmt.Errorf("encode frontmatter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(fm)
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(singleLine(rec.Summary)))

	if e.options.IncludeMetadata {
		sb.WriteString("## Session Information\n\n")
		fmt.Fprintf(&sb, "- **Target**: %s (%s)\n", rec.TargetID, rec.Kind)
		fmt.Fprintf(&sb, "- **Conversation**: `%s`\n", rec.ConversationID)
		fmt.Fprintf(&sb, "- **Created**: %s\n", formatTimestamp(rec.CreatedAt))
		fmt.Fprintf(&sb, "- **Messages**: %d\n", len(rec.Messages))
		sb.WriteString("\n---\n\n")
	}

	sb.WriteString("## Conversation\n\n")
	for i, msg := range rec.Messages {
		label := roleLabel(msg.Role)
		if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.Timestamp))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		content := strings.TrimSpace(msg.Content)
		if content == "" {
			content = "_(no content)_"
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")

		if i < len(rec.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	if e.options.IncludeTrace && len(rec.Trace) > 0 {
		sb.WriteString("\n## Trace\n\n")
		for _, t := range rec.Trace {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", t.Title(), formatShortTimestamp(t.Timestamp))
			sb.WriteString("```json\n")
			sb.WriteString(t.PayloadJSON())
			sb.WriteString("\n```\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func roleLabel(role model.Role) string {
	switch role {
	case model.RoleUser, model.RoleAssistant:
		return role.DisplayName()
	case "":
		return "Unknown"
	default:
		runes := []rune(string(role))
		return strings.ToUpper(string(runes[0])) + string(runes[1:])
	}
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// escapeMarkdown escapes characters that break headings.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(
		"#", `\#`,
		"*", `\*`,
		"_", `\_`,
		"[", `\[`,
		"]", `\]`,
	)
	return r.Replace(s)
}
