// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders archived chats as Markdown, JSON or YAML.
//
// # Usage
//
//	exp, err := export.ForFormat("md", nil)
//	path, err := export.ExportToFile(rec, exp, opts)
//
// Markdown output carries YAML frontmatter and, when IncludeTrace is set,
// an appendix listing every trace event with its payload.
package export
