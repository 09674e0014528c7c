// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"strings"
)

const (
	apiKeysPath       = "/api-keys"
	mcpServersPath    = "/mcp-servers"
	agentsPath        = "/agents"
	orchestratorsPath = "/orchestrators"
	appsPath          = "/apps"
)

// =============================================================================
// API KEYS
// =============================================================================

// ListApiKeys returns every stored API key.
func (c *Client) ListApiKeys(ctx context.Context) ([]ApiKey, error) {
	var out []ApiKey
	err := c.get(ctx, apiKeysPath+"/", &out)
	return out, err
}

// GetApiKey fetches one API key.
func (c *Client) GetApiKey(ctx context.Context, id string) (*ApiKey, error) {
	path, err := resourcePath(apiKeysPath, id)
	if err != nil {
		return nil, err
	}
	var out ApiKey
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateApiKey stores a new API key.
func (c *Client) CreateApiKey(ctx context.Context, k ApiKey) (*ApiKey, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	k.ID = ""
	var out ApiKey
	if err := c.post(ctx, apiKeysPath+"/", k, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateApiKey replaces an API key.
func (c *Client) UpdateApiKey(ctx context.Context, id string, k ApiKey) (*ApiKey, error) {
	path, err := resourcePath(apiKeysPath, id)
	if err != nil {
		return nil, err
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	k.ID = ""
	var out ApiKey
	if err := c.put(ctx, path, k, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteApiKey removes an API key.
func (c *Client) DeleteApiKey(ctx context.Context, id string) error {
	path, err := resourcePath(apiKeysPath, id)
	if err != nil {
		return err
	}
	return c.delete(ctx, path, nil)
}

// =============================================================================
// MCP SERVERS
// =============================================================================

// ListMcpServers returns every registered MCP server.
func (c *Client) ListMcpServers(ctx context.Context) ([]McpServer, error) {
	var out []McpServer
	err := c.get(ctx, mcpServersPath+"/", &out)
	return out, err
}

// GetMcpServer fetches one MCP server.
func (c *Client) GetMcpServer(ctx context.Context, id string) (*McpServer, error) {
	path, err := resourcePath(mcpServersPath, id)
	if err != nil {
		return nil, err
	}
	var out McpServer
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// McpServerTools lists the tools a server exposes. The backend connects to
// the server to answer, so this can be slow.
func (c *Client) McpServerTools(ctx context.Context, id string) ([]McpTool, error) {
	path, err := resourcePath(mcpServersPath, id)
	if err != nil {
		return nil, err
	}
	var out []McpTool
	err = c.get(ctx, path+"/tools", &out)
	return out, err
}

// CreateMcpServer registers a new MCP server.
func (c *Client) CreateMcpServer(ctx context.Context, s McpServer) (*McpServer, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s.ID = ""
	var out McpServer
	if err := c.post(ctx, mcpServersPath+"/", s, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMcpServer replaces an MCP server.
func (c *Client) UpdateMcpServer(ctx context.Context, id string, s McpServer) (*McpServer, error) {
	path, err := resourcePath(mcpServersPath, id)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s.ID = ""
	var out McpServer
	if err := c.put(ctx, path, s, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMcpServer removes an MCP server.
func (c *Client) DeleteMcpServer(ctx context.Context, id string) error {
	path, err := resourcePath(mcpServersPath, id)
	if err != nil {
		return err
	}
	return c.delete(ctx, path, nil)
}

// =============================================================================
// AGENTS
// =============================================================================

// ListAgents returns every agent.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var out []Agent
	err := c.get(ctx, agentsPath+"/", &out)
	return out, err
}

// GetAgent fetches one agent with its key and MCP servers expanded.
func (c *Client) GetAgent(ctx context.Context, id string) (*Agent, error) {
	path, err := resourcePath(agentsPath, id)
	if err != nil {
		return nil, err
	}
	var out Agent
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAgent creates an agent.
func (c *Client) CreateAgent(ctx context.Context, a Agent) (*Agent, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	var out Agent
	if err := c.post(ctx, agentsPath+"/", a.payload(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAgent replaces an agent.
func (c *Client) UpdateAgent(ctx context.Context, id string, a Agent) (*Agent, error) {
	path, err := resourcePath(agentsPath, id)
	if err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	var out Agent
	if err := c.put(ctx, path, a.payload(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAgent removes an agent.
func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	path, err := resourcePath(agentsPath, id)
	if err != nil {
		return err
	}
	return c.delete(ctx, path, nil)
}

// GenerateAgent asks the backend to draft an agent from a prompt.
func (c *Client) GenerateAgent(ctx context.Context, prompt string) (*Agent, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, &ValidationError{Fields: []FieldError{{Field: "user_prompt", Message: "is required"}}}
	}
	var out Agent
	body := map[string]string{"user_prompt": prompt}
	if err := c.post(ctx, agentsPath+"/ai-generate", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// ORCHESTRATORS
// =============================================================================

// ListOrchestrators returns every orchestrator.
func (c *Client) ListOrchestrators(ctx context.Context) ([]Orchestrator, error) {
	var out []Orchestrator
	err := c.get(ctx, orchestratorsPath+"/", &out)
	return out, err
}

// GetOrchestrator fetches one orchestrator with its agents expanded.
func (c *Client) GetOrchestrator(ctx context.Context, id string) (*Orchestrator, error) {
	path, err := resourcePath(orchestratorsPath, id)
	if err != nil {
		return nil, err
	}
	var out Orchestrator
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrchestrator creates an orchestrator.
func (c *Client) CreateOrchestrator(ctx context.Context, o Orchestrator) (*Orchestrator, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	var out Orchestrator
	if err := c.post(ctx, orchestratorsPath+"/", o.payload(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateOrchestrator replaces an orchestrator.
func (c *Client) UpdateOrchestrator(ctx context.Context, id string, o Orchestrator) (*Orchestrator, error) {
	path, err := resourcePath(orchestratorsPath, id)
	if err != nil {
		return nil, err
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	var out Orchestrator
	if err := c.put(ctx, path, o.payload(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteOrchestrator removes an orchestrator.
func (c *Client) DeleteOrchestrator(ctx context.Context, id string) error {
	path, err := resourcePath(orchestratorsPath, id)
	if err != nil {
		return err
	}
	return c.delete(ctx, path, nil)
}

// =============================================================================
// APPS AND VERSIONS
// =============================================================================

// ListApps returns published orchestrators followed by published agents.
func (c *Client) ListApps(ctx context.Context) ([]App, error) {
	var out []App
	err := c.get(ctx, appsPath+"/", &out)
	return out, err
}

// ListAgentApps returns every agent presented as an app.
func (c *Client) ListAgentApps(ctx context.Context) ([]App, error) {
	var out []App
	err := c.get(ctx, appsPath+"/agents", &out)
	return out, err
}

// ListVersions returns every release.
func (c *Client) ListVersions(ctx context.Context) ([]Version, error) {
	var out []Version
	err := c.do(ctx, http.MethodGet, c.rootURL()+"/versions", nil, &out)
	return out, err
}

// CurrentVersion returns the latest release.
func (c *Client) CurrentVersion(ctx context.Context) (*Version, error) {
	var out Version
	if err := c.do(ctx, http.MethodGet, c.rootURL()+"/versions/current", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
