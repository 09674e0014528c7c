// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/studio-tui/internal/model"
	"github.com/jeranaias/studio-tui/internal/storage"
)

func testRecord() *storage.Record {
	ts := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	return &storage.Record{
		ID:             "chat_1",
		ConversationID: "conv-1",
		TargetID:       "agent-1",
		Kind:           "agent",
		Mode:           "live",
		Summary:        "Deploy: the *new* build",
		CreatedAt:      ts,
		UpdatedAt:      ts.Add(time.Minute),
		Messages: []model.Message{
			{ID: "m1", Role: model.RoleUser, Content: "Deploy it", Timestamp: ts},
			{ID: "m2", Role: model.RoleAssistant, Content: "Done. <b>ok</b>", Timestamp: ts.Add(time.Second)},
		},
		Trace: []model.TraceEntry{
			{ID: "t1", Type: "tool_call", Payload: map[string]any{"tool": "deploy"}, Timestamp: ts},
		},
	}
}

func fixedOptions() *Options {
	opts := DefaultOptions()
	opts.now = func() time.Time { return time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC) }
	return opts
}

// =============================================================================
// MARKDOWN
// =============================================================================

func TestMarkdownExporter(t *testing.T) {
	out, err := NewMarkdownExporter(fixedOptions()).Export(testRecord())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	md := string(out)

	if !strings.HasPrefix(md, "---\n") {
		t.Error("expected YAML frontmatter")
	}
	for _, want := range []string{
		"# Deploy: the \\*new\\* build",
		"### You",
		"### Assistant",
		"Done. <b>ok</b>",
		"## Trace",
		"### Tool Call",
		`"tool": "deploy"`,
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}

	parts := strings.SplitN(md, "---\n", 3)
	var fm frontmatter
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		t.Fatalf("frontmatter is not valid YAML: %v", err)
	}
	if fm.Title != "Deploy: the *new* build" || fm.Messages != 2 || fm.TraceEvents != 1 {
		t.Errorf("frontmatter = %+v", fm)
	}
}

func TestMarkdownExporter_FrontmatterInjection(t *testing.T) {
	rec := testRecord()
	rec.Summary = "Test\nInjection: malicious"

	out, err := NewMarkdownExporter(fixedOptions()).Export(rec)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	parts := strings.SplitN(string(out), "---\n", 3)
	var fm map[string]any
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		t.Fatalf("frontmatter is not valid YAML: %v", err)
	}
	if _, ok := fm["Injection"]; ok {
		t.Error("newline in title injected a frontmatter key")
	}
}

func TestMarkdownExporter_Options(t *testing.T) {
	opts := fixedOptions()
	opts.IncludeMetadata = false
	opts.IncludeTimestamps = false
	opts.IncludeTrace = false

	out, err := NewMarkdownExporter(opts).Export(testRecord())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	md := string(out)
	if strings.HasPrefix(md, "---") {
		t.Error("frontmatter written with IncludeMetadata=false")
	}
	if strings.Contains(md, "<sub>") {
		t.Error("timestamps written with IncludeTimestamps=false")
	}
	if strings.Contains(md, "## Trace") {
		t.Error("trace written with IncludeTrace=false")
	}
}

func TestMarkdownExporter_Empty(t *testing.T) {
	rec := testRecord()
	rec.Messages = nil
	if _, err := NewMarkdownExporter(nil).Export(rec); err == nil {
		t.Error("expected error for record without messages")
	}
	if _, err := NewMarkdownExporter(nil).Export(nil); !errors.Is(err, ErrNilRecord) {
		t.Errorf("expected ErrNilRecord, got %v", err)
	}
}

// =============================================================================
// JSON AND YAML
// =============================================================================

func TestJSONExporter(t *testing.T) {
	out, err := NewJSONExporter(nil).Export(testRecord())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !strings.Contains(string(out), "<b>ok</b>") {
		t.Error("HTML characters should not be escaped")
	}

	var decoded storage.Record
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.TargetID != "agent-1" || len(decoded.Messages) != 2 || len(decoded.Trace) != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Trace[0].Payload["tool"] != "deploy" {
		t.Errorf("trace payload = %v", decoded.Trace[0].Payload)
	}
}

func TestJSONExporter_WithoutTrace(t *testing.T) {
	opts := DefaultOptions()
	opts.IncludeTrace = false
	rec := testRecord()

	out, err := NewJSONExporter(opts).Export(rec)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !strings.Contains(string(out), `"trace": null`) {
		t.Errorf("trace should be dropped: %s", out)
	}
	if len(rec.Trace) != 1 {
		t.Error("Export must not modify the record")
	}
}

func TestYAMLExporter(t *testing.T) {
	out, err := NewYAMLExporter(nil).Export(testRecord())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	var decoded map[string]any
	if err := yaml.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if decoded["chat_type"] != "agent" {
		t.Errorf("chat_type = %v", decoded["chat_type"])
	}
	msgs, _ := decoded["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("messages = %v", decoded["messages"])
	}
}

// =============================================================================
// FILES
// =============================================================================

func TestForFormat(t *testing.T) {
	tests := map[string]string{"md": ".md", "Markdown": ".md", "json": ".json", "yml": ".yaml"}
	for name, ext := range tests {
		exp, err := ForFormat(name, nil)
		if err != nil {
			t.Errorf("ForFormat(%q) failed: %v", name, err)
			continue
		}
		if exp.FileExtension() != ext {
			t.Errorf("ForFormat(%q).FileExtension() = %q, want %q", name, exp.FileExtension(), ext)
		}
	}
	if _, err := ForFormat("html", nil); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestExportToFile(t *testing.T) {
	dir := t.TempDir()
	opts := fixedOptions()
	opts.OutputDir = dir

	path, err := ExportToFile(testRecord(), NewJSONExporter(opts), opts)
	if err != nil {
		t.Fatalf("ExportToFile failed: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("path = %q, want inside %q", path, dir)
	}
	if want := "chat_Deploy-_the_-new-_build_20250302_000000.json"; filepath.Base(path) != want {
		t.Errorf("filename = %q, want %q", filepath.Base(path), want)
	}

	opts.OutputPath = filepath.Join(dir, "nested", "out.md")
	path, err = ExportToFile(testRecord(), NewMarkdownExporter(opts), opts)
	if err != nil {
		t.Fatalf("ExportToFile with OutputPath failed: %v", err)
	}
	if path != opts.OutputPath {
		t.Errorf("path = %q, want %q", path, opts.OutputPath)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("output missing: %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", "conversation"},
		{"a/b\\c", "a-b-c"},
		{"hello world", "hello_world"},
		{strings.Repeat("x", 80), strings.Repeat("x", 50)},
		{"tab\there", "tab_here"},
	}
	for _, tc := range tests {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
