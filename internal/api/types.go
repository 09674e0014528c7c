// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Field limits enforced before a create or update is sent.
const (
	MaxAgentName         = 100
	MaxAgentDescription  = 500
	MaxAgentRole         = 500
	MaxAgentTask         = 2000
	MaxAgentInstructions = 8000
	MaxAppType           = 50
	MaxOrchestratorName  = 255
	MaxOrchestratorDesc  = 1000

	DefaultAppType = "Productivity"
)

// MCP transports and modes.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"

	ModeAutonomous = "autonomous"
	ModeSupervised = "supervised"
)

// =============================================================================
// API KEYS
// =============================================================================

// ApiKey holds the credentials and model an agent uses.
type ApiKey struct {
	ID           string `json:"id,omitempty" yaml:"id,omitempty"`
	Name         string `json:"name" yaml:"name"`
	ProviderName string `json:"provider_name" yaml:"provider_name"`
	ModelName    string `json:"model_name" yaml:"model_name"`
	BaseURL      string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	SecretKey    string `json:"secret_key" yaml:"secret_key"`
}

// Validate checks the fields a create or update requires.
func (k ApiKey) Validate() error {
	var v validator
	v.required("name", k.Name)
	v.required("provider_name", k.ProviderName)
	v.required("model_name", k.ModelName)
	v.required("secret_key", k.SecretKey)
	if v.required("base_url", k.BaseURL) {
		u, err := url.Parse(k.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			v.add("base_url", "must be a valid URL")
		}
	}
	return v.err()
}

// Masked returns a copy safe to print.
func (k ApiKey) Masked() ApiKey {
	k.SecretKey = MaskSecret(k.SecretKey)
	return k
}

// MaskSecret hides all but the last four characters of a secret.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	r := []rune(s)
	if len(r) <= 8 {
		return "****"
	}
	return "****" + string(r[len(r)-4:])
}

// =============================================================================
// MCP SERVERS
// =============================================================================

// McpConfig is the launch configuration of an MCP server. Keys other than
// command and args are preserved as-is.
type McpConfig struct {
	Command string
	Args    []string
	Extra   map[string]any
}

// MarshalJSON flattens Extra next to command and args.
func (m McpConfig) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+2)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["command"] = m.Command
	args := m.Args
	if args == nil {
		args = []string{}
	}
	out["args"] = args
	return json.Marshal(out)
}

// UnmarshalJSON splits command and args from the remaining keys.
func (m *McpConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = McpConfig{}
	if cmd, ok := raw["command"].(string); ok {
		m.Command = cmd
	}
	if args, ok := raw["args"].([]any); ok {
		for _, a := range args {
			m.Args = append(m.Args, fmt.Sprint(a))
		}
	}
	delete(raw, "command")
	delete(raw, "args")
	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}

// MarshalYAML mirrors MarshalJSON.
func (m McpConfig) MarshalYAML() (any, error) {
	out := make(map[string]any, len(m.Extra)+2)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["command"] = m.Command
	out["args"] = m.Args
	return out, nil
}

// McpServer is a registered MCP tool server.
type McpServer struct {
	ID          string    `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Transport   string    `json:"transport" yaml:"transport"`
	Mode        string    `json:"mode" yaml:"mode"`
	ConfigJSON  McpConfig `json:"config_json" yaml:"config_json"`
}

// Validate checks the fields a create or update requires.
func (s McpServer) Validate() error {
	var v validator
	v.required("name", s.Name)
	if v.required("transport", s.Transport) &&
		s.Transport != TransportStdio && s.Transport != TransportStreamableHTTP {
		v.add("transport", "must be stdio or streamable-http")
	}
	if v.required("mode", s.Mode) && s.Mode != ModeAutonomous && s.Mode != ModeSupervised {
		v.add("mode", "must be autonomous or supervised")
	}
	v.required("config_json.command", s.ConfigJSON.Command)
	if len(s.ConfigJSON.Args) == 0 {
		v.add("config_json.args", "at least one argument is required")
	}
	return v.err()
}

// McpTool describes one tool exposed by an MCP server.
type McpTool struct {
	Name        string `json:"tool_name" yaml:"tool_name"`
	Description string `json:"tool_description" yaml:"tool_description"`
}

// =============================================================================
// AGENTS
// =============================================================================

// McpServerRef links an agent to an MCP server.
type McpServerRef struct {
	McpServerID string     `json:"mcp_server_id" yaml:"mcp_server_id"`
	McpServer   *McpServer `json:"mcp_server,omitempty" yaml:"mcp_server,omitempty"`
}

// Agent is a single LLM agent definition.
type Agent struct {
	ID           string         `json:"id,omitempty" yaml:"id,omitempty"`
	Name         string         `json:"name" yaml:"name"`
	Description  string         `json:"description,omitempty" yaml:"description,omitempty"`
	Role         string         `json:"role" yaml:"role"`
	Task         string         `json:"task" yaml:"task"`
	Instructions string         `json:"instructions" yaml:"instructions"`
	PublishAsApp bool           `json:"publish_as_app" yaml:"publish_as_app"`
	AppType      string         `json:"app_type" yaml:"app_type"`
	ApiKeyID     string         `json:"api_key_id" yaml:"api_key_id"`
	ApiKey       *ApiKey        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	McpServers   []McpServerRef `json:"mcp_servers" yaml:"mcp_servers"`
}

// Validate checks the fields a create or update requires.
func (a Agent) Validate() error {
	var v validator
	v.requiredMax("name", a.Name, MaxAgentName)
	v.max("description", a.Description, MaxAgentDescription)
	v.requiredMax("role", a.Role, MaxAgentRole)
	v.requiredMax("task", a.Task, MaxAgentTask)
	v.requiredMax("instructions", a.Instructions, MaxAgentInstructions)
	v.requiredMax("app_type", a.AppType, MaxAppType)
	v.required("api_key_id", a.ApiKeyID)
	return v.err()
}

// payload strips the expanded relations the server returns.
func (a Agent) payload() Agent {
	a.ID = ""
	a.ApiKey = nil
	refs := make([]McpServerRef, 0, len(a.McpServers))
	for _, r := range a.McpServers {
		refs = append(refs, McpServerRef{McpServerID: r.McpServerID})
	}
	a.McpServers = refs
	return a
}

// =============================================================================
// ORCHESTRATORS
// =============================================================================

// AgentRef links an orchestrator to one of its agents.
type AgentRef struct {
	AgentID string `json:"agent_id" yaml:"agent_id"`
	Agent   *Agent `json:"agent,omitempty" yaml:"agent,omitempty"`
}

// Orchestrator coordinates a set of agents.
type Orchestrator struct {
	ID           string     `json:"id,omitempty" yaml:"id,omitempty"`
	Name         string     `json:"name" yaml:"name"`
	Description  string     `json:"description" yaml:"description"`
	Instructions string     `json:"instructions" yaml:"instructions"`
	PublishAsApp bool       `json:"publish_as_app" yaml:"publish_as_app"`
	AppType      string     `json:"app_type" yaml:"app_type"`
	ApiKeyID     string     `json:"api_key_id" yaml:"api_key_id"`
	ApiKey       *ApiKey    `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Agents       []AgentRef `json:"agents" yaml:"agents"`
}

// Validate checks the fields a create or update requires.
func (o Orchestrator) Validate() error {
	var v validator
	v.requiredMax("name", o.Name, MaxOrchestratorName)
	v.max("description", o.Description, MaxOrchestratorDesc)
	v.required("instructions", o.Instructions)
	v.requiredMax("app_type", o.AppType, MaxAppType)
	v.required("api_key_id", o.ApiKeyID)
	return v.err()
}

func (o Orchestrator) payload() Orchestrator {
	o.ID = ""
	o.ApiKey = nil
	refs := make([]AgentRef, 0, len(o.Agents))
	for _, r := range o.Agents {
		refs = append(refs, AgentRef{AgentID: r.AgentID})
	}
	o.Agents = refs
	return o
}

// =============================================================================
// APPS AND VERSIONS
// =============================================================================

// App is a published agent or orchestrator.
type App struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Icon        string `json:"icon,omitempty" yaml:"icon,omitempty"`
	AppType     string `json:"app_type" yaml:"app_type"`
}

// Version is a backend release.
type Version struct {
	ID                 string `json:"id" yaml:"id"`
	VersionNumber      string `json:"version_number" yaml:"version_number"`
	ReleaseDate        string `json:"release_date" yaml:"release_date"`
	ReleaseDescription string `json:"release_description" yaml:"release_description"`
}

// =============================================================================
// VALIDATION
// =============================================================================

// FieldError is one failed field check.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every failed check of a resource.
type ValidationError struct {
	Fields []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrValidation) match local failures.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type validator struct {
	fields []FieldError
}

func (v *validator) add(field, msg string) {
	v.fields = append(v.fields, FieldError{Field: field, Message: msg})
}

func (v *validator) required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		v.add(field, "is required")
		return false
	}
	return true
}

func (v *validator) max(field, value string, n int) {
	if utf8.RuneCountInString(value) > n {
		v.add(field, fmt.Sprintf("must be at most %d characters", n))
	}
}

func (v *validator) requiredMax(field, value string, n int) {
	if v.required(field, value) {
		v.max(field, value, n)
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}
