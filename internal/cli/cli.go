// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/studio-tui/internal/api"
	"github.com/jeranaias/studio-tui/internal/config"
	"github.com/jeranaias/studio-tui/internal/logging"
	"github.com/jeranaias/studio-tui/internal/storage"
)

// Version information, set at build time.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Output formats.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// =============================================================================
// APP
// =============================================================================

// App is the state shared by every command of one invocation.
type App struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Flags
	configPath string
	apiURL     string
	logLevel   string
	output     string

	cfg    *config.Config
	logger *logging.Logger
}

// NewApp creates an App bound to the process streams.
func NewApp() *App {
	return &App{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Config loads the configuration once. --config selects the file and
// --api-url and --log-level override it.
func (a *App) Config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFromPath(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if a.apiURL != "" {
		cfg.API.BaseURL = strings.TrimRight(a.apiURL, "/")
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg
	return cfg, nil
}

// Logger builds the logger on first use. quiet discards output unless a log
// file is configured; the full-screen chat view needs that.
func (a *App) Logger(quiet bool) (*logging.Logger, error) {
	if a.logger != nil {
		return a.logger, nil
	}
	cfg, err := a.Config()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log, logging.Options{Quiet: quiet, Stderr: a.Stderr})
	if err != nil {
		return nil, err
	}
	a.logger = log
	return log, nil
}

// Client returns a REST client for the configured backend.
func (a *App) Client() (*api.Client, error) {
	cfg, err := a.Config()
	if err != nil {
		return nil, err
	}
	log, err := a.Logger(false)
	if err != nil {
		return nil, err
	}
	return api.NewClientFromConfig(cfg.API).WithLogger(log.Component("api")), nil
}

// Archive opens the transcript archive.
func (a *App) Archive() (*storage.Store, error) {
	cfg, err := a.Config()
	if err != nil {
		return nil, err
	}
	return storage.Open(cfg.Storage.HistoryPath)
}

// configFile returns the file config commands read and write.
func (a *App) configFile() (string, error) {
	if a.configPath != "" {
		return a.configPath, nil
	}
	return config.ConfigPathTOML()
}

// Close releases the logger.
func (a *App) Close() {
	if a.logger != nil {
		a.logger.Close()
	}
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// NewRootCommand builds the full command tree around a.
func NewRootCommand(a *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "studio",
		Short: "Terminal console for an agent studio backend",
		Long: `studio manages the API keys, MCP servers, agents and orchestrators of an
agent studio backend, and chats with them over the streaming chat API.

Start a local fake backend with "studio devserver", then try:
  studio agents list
  studio chat demo-agent`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch a.output {
			case OutputTable, OutputJSON, OutputYAML:
				return nil
			}
			return fmt.Errorf("unsupported output format %q (want table, json or yaml)", a.output)
		},
	}
	root.SetIn(a.Stdin)
	root.SetOut(a.Stdout)
	root.SetErr(a.Stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default ~/.studio/config.toml)")
	pf.StringVar(&a.apiURL, "api-url", "", "backend API root, e.g. "+config.DefaultBaseURL)
	pf.StringVar(&a.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	pf.StringVarP(&a.output, "output", "o", OutputTable, "output format (table, json, yaml)")

	root.AddCommand(
		newApiKeysCommand(a),
		newMcpCommand(a),
		newAgentsCommand(a),
		newOrchestratorsCommand(a),
		newAppsCommand(a),
		newVersionCommand(a),
		newChatCommand(a),
		newResetCommand(a),
		newHistoryCommand(a),
		newConfigCommand(a),
		newDevserverCommand(a),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	a := NewApp()
	defer a.Close()

	if err := NewRootCommand(a).Execute(); err != nil {
		PrintError(a.Stderr, err)
		return ExitGeneralError
	}
	return ExitSuccess
}
