// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DotEnvFile is read from the working directory when present.
const DotEnvFile = ".env"

// LoadDotEnv loads KEY=VALUE pairs from path (DotEnvFile when empty) into
// the process environment. Variables that are already set win. A missing
// file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = DotEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnvOverrides applies STUDIO_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	// STUDIO_API_URL
	if v := os.Getenv("STUDIO_API_URL"); v != "" {
		c.API.BaseURL = strings.TrimRight(v, "/")
	}

	// STUDIO_API_TIMEOUT (seconds)
	if v := os.Getenv("STUDIO_API_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.API.TimeoutSeconds = n
		}
	}

	// STUDIO_TARGET
	if v := os.Getenv("STUDIO_TARGET"); v != "" {
		c.Chat.DefaultTarget = v
	}

	// STUDIO_TARGET_KIND
	if v := os.Getenv("STUDIO_TARGET_KIND"); v != "" {
		c.Chat.DefaultKind = strings.ToLower(v)
	}

	// STUDIO_CHAT_MODE
	if v := os.Getenv("STUDIO_CHAT_MODE"); v != "" {
		c.Chat.DefaultMode = strings.ToLower(v)
	}

	// STUDIO_HISTORY_PATH
	if v := os.Getenv("STUDIO_HISTORY_PATH"); v != "" {
		c.Storage.HistoryPath = v
	}

	// STUDIO_THEME
	if v := os.Getenv("STUDIO_THEME"); v != "" {
		c.UI.Theme = strings.ToLower(v)
	}

	// STUDIO_LOG_LEVEL
	if v := os.Getenv("STUDIO_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}

	// STUDIO_LOG_FILE
	if v := os.Getenv("STUDIO_LOG_FILE"); v != "" {
		c.Log.File = v
	}
}
