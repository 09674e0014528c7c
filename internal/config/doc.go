// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for studio.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides (optionally read from a .env file), and
// validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.studio/config.toml
//   - ~/.studio/config.json
//   - Built-in defaults
//
// Environment variables:
//   - STUDIO_API_URL: backend API base URL
//   - STUDIO_API_TIMEOUT: REST request timeout in seconds
//   - STUDIO_TARGET, STUDIO_TARGET_KIND, STUDIO_CHAT_MODE: chat defaults
//   - STUDIO_HISTORY_PATH: transcript archive database
//   - STUDIO_THEME: dark, light or auto
//   - STUDIO_LOG_LEVEL, STUDIO_LOG_FILE: logging
//
// The loaded *Config is passed explicitly to the API client and chat
// controllers; there is no process-wide instance.
package config
