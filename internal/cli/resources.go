// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/studio-tui/internal/api"
)

// =============================================================================
// API KEYS
// =============================================================================

func newApiKeysCommand(a *App) *cobra.Command {
	return newResourceCommand(a, resource[api.ApiKey]{
		use:      "apikeys",
		aliases:  []string{"apikey", "keys"},
		singular: "API key",
		short:    "Manage provider API keys",
		fields: []field[api.ApiKey]{
			{"name", "display name", func(k *api.ApiKey, v string) error { k.Name = v; return nil }},
			{"provider", "provider name, e.g. openai", func(k *api.ApiKey, v string) error { k.ProviderName = v; return nil }},
			{"model", "model name", func(k *api.ApiKey, v string) error { k.ModelName = v; return nil }},
			{"base-url", "provider base URL", func(k *api.ApiKey, v string) error { k.BaseURL = v; return nil }},
			{"secret", "secret key", func(k *api.ApiKey, v string) error { k.SecretKey = v; return nil }},
		},
		columns: []string{"ID", "NAME", "PROVIDER", "MODEL", "SECRET"},
		row: func(k api.ApiKey) []string {
			return []string{k.ID, k.Name, k.ProviderName, k.ModelName, k.SecretKey}
		},
		describe: func(k api.ApiKey) *table {
			return detail(
				"id", k.ID,
				"name", k.Name,
				"provider", k.ProviderName,
				"model", k.ModelName,
				"base url", k.BaseURL,
				"secret", k.SecretKey,
			)
		},
		display: api.ApiKey.Masked,
		list:    (*api.Client).ListApiKeys,
		get:     (*api.Client).GetApiKey,
		create:  (*api.Client).CreateApiKey,
		update:  (*api.Client).UpdateApiKey,
		remove:  (*api.Client).DeleteApiKey,
	})
}

// =============================================================================
// MCP SERVERS
// =============================================================================

func newMcpCommand(a *App) *cobra.Command {
	cmd := newResourceCommand(a, resource[api.McpServer]{
		use:      "mcp",
		aliases:  []string{"mcp-servers"},
		singular: "MCP server",
		short:    "Manage MCP tool servers",
		fields: []field[api.McpServer]{
			{"name", "display name", func(s *api.McpServer, v string) error { s.Name = v; return nil }},
			{"description", "description", func(s *api.McpServer, v string) error { s.Description = v; return nil }},
			{"transport", "stdio or streamable-http", func(s *api.McpServer, v string) error { s.Transport = v; return nil }},
			{"mode", "autonomous or supervised", func(s *api.McpServer, v string) error { s.Mode = v; return nil }},
			{"command", "launch command", func(s *api.McpServer, v string) error { s.ConfigJSON.Command = v; return nil }},
			{"args", "comma separated launch arguments", func(s *api.McpServer, v string) error {
				s.ConfigJSON.Args = splitList(v)
				return nil
			}},
		},
		defaults: func(s *api.McpServer) {
			s.Transport = api.TransportStdio
			s.Mode = api.ModeAutonomous
		},
		columns: []string{"ID", "NAME", "TRANSPORT", "MODE", "COMMAND"},
		row: func(s api.McpServer) []string {
			return []string{s.ID, s.Name, s.Transport, s.Mode, mcpCommandLine(s.ConfigJSON)}
		},
		describe: func(s api.McpServer) *table {
			return detail(
				"id", s.ID,
				"name", s.Name,
				"description", s.Description,
				"transport", s.Transport,
				"mode", s.Mode,
				"command", mcpCommandLine(s.ConfigJSON),
			)
		},
		list:   (*api.Client).ListMcpServers,
		get:    (*api.Client).GetMcpServer,
		create: (*api.Client).CreateMcpServer,
		update: (*api.Client).UpdateMcpServer,
		remove: (*api.Client).DeleteMcpServer,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "tools ID",
		Short: "List the tools an MCP server exposes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.Client()
			if err != nil {
				return err
			}
			tools, err := client.McpServerTools(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(tools, func() *table {
				t := newTable("TOOL", "DESCRIPTION")
				for _, tool := range tools {
					t.add(tool.Name, tool.Description)
				}
				return t
			})
		},
	})
	return cmd
}

func mcpCommandLine(c api.McpConfig) string {
	return strings.TrimSpace(c.Command + " " + strings.Join(c.Args, " "))
}

// =============================================================================
// AGENTS
// =============================================================================

func agentFields() []field[api.Agent] {
	return []field[api.Agent]{
		{"name", "display name", func(x *api.Agent, v string) error { x.Name = v; return nil }},
		{"description", "description", func(x *api.Agent, v string) error { x.Description = v; return nil }},
		{"role", "role the agent plays", func(x *api.Agent, v string) error { x.Role = v; return nil }},
		{"task", "task the agent performs", func(x *api.Agent, v string) error { x.Task = v; return nil }},
		{"instructions", "system instructions", func(x *api.Agent, v string) error { x.Instructions = v; return nil }},
		{"app-type", "app category", func(x *api.Agent, v string) error { x.AppType = v; return nil }},
		{"api-key", "API key id", func(x *api.Agent, v string) error { x.ApiKeyID = v; return nil }},
		{"publish", "publish as an app (true or false)", func(x *api.Agent, v string) error {
			return setBool(&x.PublishAsApp, v)
		}},
		{"mcp-servers", "comma separated MCP server ids", func(x *api.Agent, v string) error {
			x.McpServers = nil
			for _, id := range splitList(v) {
				x.McpServers = append(x.McpServers, api.McpServerRef{McpServerID: id})
			}
			return nil
		}},
	}
}

func newAgentsCommand(a *App) *cobra.Command {
	cmd := newResourceCommand(a, resource[api.Agent]{
		use:      "agents",
		aliases:  []string{"agent"},
		singular: "agent",
		short:    "Manage agents",
		fields:   agentFields(),
		defaults: func(x *api.Agent) { x.AppType = api.DefaultAppType },
		columns:  []string{"ID", "NAME", "ROLE", "APP TYPE", "APP", "API KEY"},
		row: func(x api.Agent) []string {
			return []string{x.ID, x.Name, x.Role, x.AppType, yesNo(x.PublishAsApp), x.ApiKeyID}
		},
		describe: describeAgent,
		display:  maskAgent,
		list:     (*api.Client).ListAgents,
		get:      (*api.Client).GetAgent,
		create:   (*api.Client).CreateAgent,
		update:   (*api.Client).UpdateAgent,
		remove:   (*api.Client).DeleteAgent,
	})

	var save bool
	generate := &cobra.Command{
		Use:   "generate PROMPT",
		Short: "Draft an agent from a description",
		Long: `Ask the backend to draft an agent from a plain-language description.
The draft is printed; --save creates it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.Client()
			if err != nil {
				return err
			}
			draft, err := client.GenerateAgent(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if save {
				if draft, err = client.CreateAgent(cmd.Context(), *draft); err != nil {
					return err
				}
			}
			shown := maskAgent(*draft)
			return a.render(shown, func() *table { return describeAgent(shown) })
		},
	}
	generate.Flags().BoolVar(&save, "save", false, "create the generated agent")
	cmd.AddCommand(generate)
	return cmd
}

func describeAgent(x api.Agent) *table {
	servers := make([]string, 0, len(x.McpServers))
	for _, ref := range x.McpServers {
		servers = append(servers, ref.McpServerID)
	}
	return detail(
		"id", x.ID,
		"name", x.Name,
		"description", x.Description,
		"role", x.Role,
		"task", x.Task,
		"instructions", x.Instructions,
		"app type", x.AppType,
		"published", yesNo(x.PublishAsApp),
		"api key", x.ApiKeyID,
		"mcp servers", strings.Join(servers, ", "),
	)
}

func maskAgent(x api.Agent) api.Agent {
	if x.ApiKey != nil {
		k := x.ApiKey.Masked()
		x.ApiKey = &k
	}
	return x
}

// =============================================================================
// ORCHESTRATORS
// =============================================================================

func newOrchestratorsCommand(a *App) *cobra.Command {
	return newResourceCommand(a, resource[api.Orchestrator]{
		use:      "orchestrators",
		aliases:  []string{"orchestrator", "orc"},
		singular: "orchestrator",
		short:    "Manage orchestrators",
		fields: []field[api.Orchestrator]{
			{"name", "display name", func(o *api.Orchestrator, v string) error { o.Name = v; return nil }},
			{"description", "description", func(o *api.Orchestrator, v string) error { o.Description = v; return nil }},
			{"instructions", "routing instructions", func(o *api.Orchestrator, v string) error { o.Instructions = v; return nil }},
			{"app-type", "app category", func(o *api.Orchestrator, v string) error { o.AppType = v; return nil }},
			{"api-key", "API key id", func(o *api.Orchestrator, v string) error { o.ApiKeyID = v; return nil }},
			{"publish", "publish as an app (true or false)", func(o *api.Orchestrator, v string) error {
				return setBool(&o.PublishAsApp, v)
			}},
			{"agents", "comma separated agent ids", func(o *api.Orchestrator, v string) error {
				o.Agents = nil
				for _, id := range splitList(v) {
					o.Agents = append(o.Agents, api.AgentRef{AgentID: id})
				}
				return nil
			}},
		},
		defaults: func(o *api.Orchestrator) { o.AppType = api.DefaultAppType },
		columns:  []string{"ID", "NAME", "AGENTS", "APP TYPE", "APP"},
		row: func(o api.Orchestrator) []string {
			return []string{o.ID, o.Name, strconv.Itoa(len(o.Agents)), o.AppType, yesNo(o.PublishAsApp)}
		},
		describe: func(o api.Orchestrator) *table {
			agents := make([]string, 0, len(o.Agents))
			for _, ref := range o.Agents {
				name := ref.AgentID
				if ref.Agent != nil {
					name = ref.Agent.Name + " (" + ref.AgentID + ")"
				}
				agents = append(agents, name)
			}
			return detail(
				"id", o.ID,
				"name", o.Name,
				"description", o.Description,
				"instructions", o.Instructions,
				"app type", o.AppType,
				"published", yesNo(o.PublishAsApp),
				"api key", o.ApiKeyID,
				"agents", strings.Join(agents, ", "),
			)
		},
		display: func(o api.Orchestrator) api.Orchestrator {
			if o.ApiKey != nil {
				k := o.ApiKey.Masked()
				o.ApiKey = &k
			}
			return o
		},
		list:   (*api.Client).ListOrchestrators,
		get:    (*api.Client).GetOrchestrator,
		create: (*api.Client).CreateOrchestrator,
		update: (*api.Client).UpdateOrchestrator,
		remove: (*api.Client).DeleteOrchestrator,
	})
}

// =============================================================================
// APPS AND VERSIONS
// =============================================================================

func newAppsCommand(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "List published apps",
	}

	var agentsOnly bool
	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List published orchestrators and agents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.Client()
			if err != nil {
				return err
			}
			fetch := client.ListApps
			if agentsOnly {
				fetch = client.ListAgentApps
			}
			apps, err := fetch(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(apps, func() *table {
				t := newTable("ID", "NAME", "APP TYPE", "DESCRIPTION")
				for _, app := range apps {
					t.add(app.ID, app.Name, app.AppType, app.Description)
				}
				return t
			})
		},
	}
	list.Flags().BoolVar(&agentsOnly, "agents", false, "list every agent app")
	cmd.AddCommand(list)
	return cmd
}

// versionInfo is the -o json/yaml shape of "studio version".
type versionInfo struct {
	Client  string        `json:"client" yaml:"client"`
	Backend *api.Version  `json:"backend,omitempty" yaml:"backend,omitempty"`
	History []api.Version `json:"history,omitempty" yaml:"history,omitempty"`
}

func newVersionCommand(a *App) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the client and backend versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.Client()
			if err != nil {
				return err
			}
			info, err := fetchVersions(cmd.Context(), client, all)
			if err != nil {
				return err
			}
			return a.render(info, func() *table {
				t := newTable("COMPONENT", "VERSION", "RELEASED", "NOTES")
				t.add("studio", Version, BuildDate, GitCommit)
				if info.Backend != nil {
					b := info.Backend
					t.add("backend", b.VersionNumber, b.ReleaseDate, b.ReleaseDescription)
				}
				for _, v := range info.History {
					t.add("", v.VersionNumber, v.ReleaseDate, v.ReleaseDescription)
				}
				return t
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list every backend release")
	return cmd
}

func fetchVersions(ctx context.Context, client *api.Client, all bool) (versionInfo, error) {
	info := versionInfo{Client: Version}
	cur, err := client.CurrentVersion(ctx)
	if err != nil {
		return info, err
	}
	info.Backend = cur
	if all {
		if info.History, err = client.ListVersions(ctx); err != nil {
			return info, err
		}
	}
	return info, nil
}
