// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/studio-tui/internal/util"
)

// DefaultBaseURL is the API root of a locally running backend.
const DefaultBaseURL = "http://localhost:8000/api/v1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete studio configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	API     APIConfig     `toml:"api" json:"api"`
	Chat    ChatConfig    `toml:"chat" json:"chat"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	UI      UIConfig      `toml:"ui" json:"ui"`
	Log     LogConfig     `toml:"log" json:"log"`
}

// APIConfig contains backend connection settings.
type APIConfig struct {
	// BaseURL is the API root, e.g. http://localhost:8000/api/v1
	BaseURL string `toml:"base_url" json:"base_url"`
	// TimeoutSeconds bounds REST calls. Chat streams are not bounded.
	TimeoutSeconds int `toml:"timeout_seconds" json:"timeout_seconds"`
	// ResetTimeoutSeconds bounds the conversation reset call
	ResetTimeoutSeconds int `toml:"reset_timeout_seconds" json:"reset_timeout_seconds"`
	// MaxRetries is the retry budget for idempotent REST calls
	MaxRetries int `toml:"max_retries" json:"max_retries"`
	// RequestsPerSecond throttles REST calls (0 disables throttling)
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	// Burst is the limiter burst size
	Burst int `toml:"burst" json:"burst"`
}

// Timeout returns the REST timeout as a duration.
func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// ResetTimeout returns the reset timeout as a duration.
func (a APIConfig) ResetTimeout() time.Duration {
	return time.Duration(a.ResetTimeoutSeconds) * time.Second
}

// ChatConfig contains chat defaults.
type ChatConfig struct {
	// DefaultTarget is the agent or orchestrator id used when none is given
	DefaultTarget string `toml:"default_target" json:"default_target"`
	// DefaultKind is "agent" or "orchestrator"
	DefaultKind string `toml:"default_kind" json:"default_kind"`
	// DefaultMode is "live" or "test"
	DefaultMode string `toml:"default_mode" json:"default_mode"`
}

// StorageConfig contains transcript archive settings.
type StorageConfig struct {
	// HistoryPath is the sqlite database for saved transcripts
	HistoryPath string `toml:"history_path" json:"history_path"`
	// AutoSave archives every conversation when the chat view closes
	AutoSave bool `toml:"auto_save" json:"auto_save"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// ShowTrace opens the trace panel on start
	ShowTrace bool `toml:"show_trace" json:"show_trace"`
	// RenderMarkdown renders assistant replies with glamour
	RenderMarkdown bool `toml:"render_markdown" json:"render_markdown"`
	// TraceWidth is the trace panel width in columns
	TraceWidth int `toml:"trace_width" json:"trace_width"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error
	Level string `toml:"level" json:"level"`
	// Format is "text" or "json"
	Format string `toml:"format" json:"format"`
	// File receives log output; empty means stderr (or discard in the TUI)
	File string `toml:"file" json:"file"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	historyPath := "studio.db"
	if dir, err := ConfigDir(); err == nil {
		historyPath = filepath.Join(dir, "history.db")
	}

	return &Config{
		Version: "1",
		API: APIConfig{
			BaseURL:             DefaultBaseURL,
			TimeoutSeconds:      30,
			ResetTimeoutSeconds: 30,
			MaxRetries:          3,
			RequestsPerSecond:   10,
			Burst:               5,
		},
		Chat: ChatConfig{
			DefaultKind: "agent",
			DefaultMode: "live",
		},
		Storage: StorageConfig{
			HistoryPath: historyPath,
		},
		UI: UIConfig{
			Theme:          "auto",
			ShowTrace:      true,
			RenderMarkdown: true,
			TraceWidth:     44,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns ~/.studio.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".studio"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	if err := LoadDotEnv(""); err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file. Files ending in
// .json are decoded as JSON, everything else as TOML. Fields missing from
// the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode JSON config %s: %w", path, err)
		}
	} else {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML config %s: %w", path, err)
		}
	}

	if err := LoadDotEnv(""); err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills zero values that would otherwise fail validation.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = d.API.BaseURL
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.Chat.DefaultKind == "" {
		c.Chat.DefaultKind = d.Chat.DefaultKind
	}
	if c.Chat.DefaultMode == "" {
		c.Chat.DefaultMode = d.Chat.DefaultMode
	}
	if c.Storage.HistoryPath == "" {
		c.Storage.HistoryPath = d.Storage.HistoryPath
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.TraceWidth == 0 {
		c.UI.TraceWidth = d.UI.TraceWidth
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# studio configuration file\n")
	buf.WriteString("# Generated by studio - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("api.base_url", "must be an http(s) URL, got '%s'", c.API.BaseURL)
	}
	if c.API.TimeoutSeconds < 0 {
		add("api.timeout_seconds", "must not be negative")
	}
	if c.API.ResetTimeoutSeconds < 0 {
		add("api.reset_timeout_seconds", "must not be negative")
	}
	if c.API.MaxRetries < 0 || c.API.MaxRetries > 10 {
		add("api.max_retries", "must be between 0 and 10, got %d", c.API.MaxRetries)
	}
	if c.API.RequestsPerSecond < 0 {
		add("api.requests_per_second", "must not be negative")
	}
	if c.API.Burst < 0 {
		add("api.burst", "must not be negative")
	}

	switch strings.ToLower(c.Chat.DefaultKind) {
	case "agent", "orchestrator":
	default:
		add("chat.default_kind", "invalid kind '%s', must be one of: agent, orchestrator", c.Chat.DefaultKind)
	}
	switch strings.ToLower(c.Chat.DefaultMode) {
	case "live", "test":
	default:
		add("chat.default_mode", "invalid mode '%s', must be one of: live, test", c.Chat.DefaultMode)
	}

	switch strings.ToLower(c.UI.Theme) {
	case "dark", "light", "auto":
	default:
		add("ui.theme", "invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme)
	}
	if c.UI.TraceWidth < 20 || c.UI.TraceWidth > 120 {
		add("ui.trace_width", "must be between 20 and 120, got %d", c.UI.TraceWidth)
	}

	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		add("log.level", "invalid level '%s', must be one of: trace, debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format", "invalid format '%s', must be one of: text, json", c.Log.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders the configuration as TOML.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return buf.String()
}
