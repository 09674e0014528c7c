// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jeranaias/studio-tui/internal/api"
)

// seed inserts the demo records.
func (s *Server) seed() {
	s.apiKeys.insert(DemoApiKeyID, api.ApiKey{
		ID:           DemoApiKeyID,
		Name:         "Demo key",
		ProviderName: "openai",
		ModelName:    "gpt-4o-mini",
		BaseURL:      "https://api.openai.com/v1",
		SecretKey:    "sk-demo-0000000000000000",
	})
	s.agents.insert(DemoAgentID, api.Agent{
		ID:           DemoAgentID,
		Name:         "Echo",
		Description:  "Repeats what you say, one word at a time.",
		Role:         "Echo assistant",
		Task:         "Repeat the user's message.",
		Instructions: "Answer with the user's message.",
		PublishAsApp: true,
		AppType:      api.DefaultAppType,
		ApiKeyID:     DemoApiKeyID,
		McpServers:   []api.McpServerRef{},
	})
	s.orchestrators.insert(DemoOrchestratorID, api.Orchestrator{
		ID:           DemoOrchestratorID,
		Name:         "Echo team",
		Description:  "Hands every request to the Echo agent.",
		Instructions: "Delegate to Echo.",
		PublishAsApp: true,
		AppType:      api.DefaultAppType,
		ApiKeyID:     DemoApiKeyID,
		Agents:       []api.AgentRef{{AgentID: DemoAgentID}},
	})
}

// ============================================================================
// API KEYS
// ============================================================================

func (s *Server) listApiKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.apiKeys.list())
}

func (s *Server) getApiKey(w http.ResponseWriter, r *http.Request) {
	k, ok := s.apiKeys.get(mux.Vars(r)["id"])
	if !ok {
		writeDetail(w, http.StatusNotFound, "API key not found")
		return
	}
	writeJSON(w, http.StatusOK, k)
}

func (s *Server) createApiKey(w http.ResponseWriter, r *http.Request) {
	var k api.ApiKey
	if !decodeBody(w, r, &k) {
		return
	}
	if err := k.Validate(); err != nil {
		writeValidation(w, err)
		return
	}
	k.ID = uuid.NewString()
	s.apiKeys.insert(k.ID, k)
	writeJSON(w, http.StatusOK, k)
}

func (s *Server) updateApiKey(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.apiKeys.get(id); !ok {
		writeDetail(w, http.StatusNotFound, "API key not found")
		return
	}
	var k api.ApiKey
	if !decodeBody(w, r, &k) {
		return
	}
	if err := k.Validate(); err != nil {
		writeValidation(w, err)
		return
	}
	k.ID = id
	s.apiKeys.replace(id, k)
	writeJSON(w, http.StatusOK, k)
}

func (s *Server) deleteApiKey(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	for _, a := range s.agents.list() {
		if a.ApiKeyID == id {
			writeDetail(w, http.StatusBadRequest, "API key is in use by agent "+a.Name)
			return
		}
	}
	if !s.apiKeys.remove(id) {
		writeDetail(w, http.StatusNotFound, "API key not found")
		return
	}
	writeDeleted(w, "API key")
}

// ============================================================================
// MCP SERVERS
// ============================================================================

func (s *Server) listMcpServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mcpServers.list())
}

func (s *Server) getMcpServer(w http.ResponseWriter, r *http.Request) {
	m, ok := s.mcpServers.get(mux.Vars(r)["id"])
	if !ok {
		writeDetail(w, http.StatusNotFound, "MCP server not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) createMcpServer(w http.ResponseWriter, r *http.Request) {
	var m api.McpServer
	if !decodeBody(w, r, &m) {
		return
	}
	if err := m.Validate(); err != nil {
		writeValidation(w, err)
		return
	}
	m.ID = uuid.NewString()
	s.mcpServers.insert(m.ID, m)
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) updateMcpServer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.mcpServers.get(id); !ok {
		writeDetail(w, http.StatusNotFound, "MCP server not found")
		return
	}
	var m api.McpServer
	if !decodeBody(w, r, &m) {
		return
	}
	if err := m.Validate(); err != nil {
		writeValidation(w, err)
		return
	}
	m.ID = id
	s.mcpServers.replace(id, m)
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) deleteMcpServer(w http.ResponseWriter, r *http.Request) {
	if !s.mcpServers.remove(mux.Vars(r)["id"]) {
		writeDetail(w, http.StatusNotFound, "MCP server not found")
		return
	}
	writeDeleted(w, "MCP server")
}

// mcpServerTools reports one tool per configured argument, which is enough
// to exercise the listing.
func (s *Server) mcpServerTools(w http.ResponseWriter, r *http.Request) {
	m, ok := s.mcpServers.get(mux.Vars(r)["id"])
	if !ok {
		writeDetail(w, http.StatusNotFound, "MCP server not found")
		return
	}
	tools := make([]api.McpTool, 0, len(m.ConfigJSON.Args))
	for _, arg := range m.ConfigJSON.Args {
		name := strings.TrimLeft(arg, "-")
		if name == "" {
			continue
		}
		tools = append(tools, api.McpTool{Name: name, Description: "Provided by " + m.Name})
	}
	writeJSON(w, http.StatusOK, tools)
}

// ============================================================================
// AGENTS
// ============================================================================

// expandAgent fills in the relations the real backend joins.
func (s *Server) expandAgent(a api.Agent) api.Agent {
	if k, ok := s.apiKeys.get(a.ApiKeyID); ok {
		k = k.Masked()
		a.ApiKey = &k
	}
	refs := make([]api.McpServerRef, 0, len(a.McpServers))
	for _, ref := range a.McpServers {
		if m, ok := s.mcpServers.get(ref.McpServerID); ok {
			ref.McpServer = &m
		}
		refs = append(refs, ref)
	}
	a.McpServers = refs
	return a
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.agents.list()
	for i := range agents {
		agents[i] = s.expandAgent(agents[i])
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := s.agents.get(mux.Vars(r)["id"])
	if !ok {
		writeDetail(w, http.StatusNotFound, "Agent not found")
		return
	}
	writeJSON(w, http.StatusOK, s.expandAgent(a))
}

// checkAgentRefs reports the first dangling reference of a.
func (s *Server) checkAgentRefs(a api.Agent) string {
	if _, ok := s.apiKeys.get(a.ApiKeyID); !ok {
		return "API key not found"
	}
	for _, ref := range a.McpServers {
		if _, ok := s.mcpServers.get(ref.McpServerID); !ok {
			return "MCP server " + ref.McpServerID + " not found"
		}
	}
	return ""
}

func (s *Server) createAgent(w http.ResponseWriter, r *http.Request) {
	var a api.Agent
	if !decodeBody(w, r, &a) {
		return
	}
	if err := a.Validate(); err != nil {
		writeValidation(w, err)
		return
	}
	if msg := s.checkAgentRefs(a); msg != "" {
		writeDetail(w, http.StatusBadRequest, msg)
		return
	}
	a.ID = uuid.NewString()
	s.agents.insert(a.ID, a)
	writeJSON(w, http.StatusOK, s.expandAgent(a))
}

func (s *Server) updateAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.agents.get(id); !ok {
		writeDetail(w, http.StatusNotFound, "Agent not found")
		return
	}
	var a api.Agent
	if !decodeBody(w, r, &a) {
		return
	}
	if err := a.Validate(); err != nil {
		writeValidation(w, err)
		return
	}
	if msg := s.checkAgentRefs(a); msg != "" {
		writeDetail(w, http.StatusBadRequest, msg)
		return
	}
	a.ID = id
	s.agents.replace(id, a)
	writeJSON(w, http.StatusOK, s.expandAgent(a))
}

func (s *Server) deleteAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.agents.remove(id) {
		writeDetail(w, http.StatusNotFound, "Agent not found")
		return
	}
	// Orchestrators lose the link, as with ON DELETE CASCADE on the join table.
	for _, o := range s.orchestrators.list() {
		kept := o.Agents[:0:0]
		for _, ref := range o.Agents {
			if ref.AgentID != id {
				kept = append(kept, ref)
			}
		}
		if len(kept) != len(o.Agents) {
			o.Agents = kept
			s.orchestrators.replace(o.ID, o)
		}
	}
	writeDeleted(w, "Agent")
}

// generateAgent drafts an agent from the prompt without storing it.
func (s *Server) generateAgent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserPrompt string `json:"user_prompt"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	prompt := strings.TrimSpace(body.UserPrompt)
	keys := s.apiKeys.list()
	if prompt == "" || len(keys) == 0 {
		writeDetail(w, http.StatusNotFound, "Agent generation failed")
		return
	}

	name := prompt
	if words := strings.Fields(prompt); len(words) > 4 {
		name = strings.Join(words[:4], " ")
	}
	writeJSON(w, http.StatusOK, api.Agent{
		Name:         name,
		Description:  prompt,
		Role:         "Assistant",
		Task:         prompt,
		Instructions: "Help the user with: " + prompt,
		AppType:      api.DefaultAppType,
		ApiKeyID:     keys[0].ID,
		McpServers:   []api.McpServerRef{},
	})
}

// ============================================================================
// ORCHESTRATORS
// ============================================================================

func (s *Server) expandOrchestrator(o api.Orchestrator) api.Orchestrator {
	if k, ok := s.apiKeys.get(o.ApiKeyID); ok {
		k = k.Masked()
		o.ApiKey = &k
	}
	refs := make([]api.AgentRef, 0, len(o.Agents))
	for _, ref := range o.Agents {
		if a, ok := s.agents.get(ref.AgentID); ok {
			ref.Agent = &a
		}
		refs = append(refs, ref)
	}
	o.Agents = refs
	return o
}

func (s *Server) checkOrchestratorRefs(o api.Orchestrator) string {
	if _, ok := s.apiKeys.get(o.ApiKeyID); !ok {
		return "API key not found"
	}
	for _, ref := range o.Agents {
		if _, ok := s.agents.get(ref.AgentID); !ok {
			return "Agent " + ref.AgentID + " not found"
		}
	}
	return ""
}

func (s *Server) listOrchestrators(w http.ResponseWriter, r *http.Request) {
	orcs := s.orchestrators.list()
	for i := range orcs {
		orcs[i] = s.expandOrchestrator(orcs[i])
	}
	writeJSON(w, http.StatusOK, orcs)
}

func (s *Server) getOrchestrator(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrators.get(mux.Vars(r)["id"])
	if !ok {
		writeDetail(w, http.StatusNotFound, "Orchestrator not found")
		return
	}
	writeJSON(w, http.StatusOK, s.expandOrchestrator(o))
}

func (s *Server) createOrchestrator(w http.ResponseWriter, r *http.Request) {
	var o api.Orchestrator
	if !decodeBody(w, r, &o) {
		return
	}
	if err := o.Validate(); err != nil {
		writeValidation(w, err)
		return
	}
	if msg := s.checkOrchestratorRefs(o); msg != "" {
		writeDetail(w, http.StatusBadRequest, msg)
		return
	}
	o.ID = uuid.NewString()
	s.orchestrators.insert(o.ID, o)
	writeJSON(w, http.StatusOK, s.expandOrchestrator(o))
}

func (s *Server) updateOrchestrator(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.orchestrators.get(id); !ok {
		writeDetail(w, http.StatusNotFound, "Orchestrator not found")
		return
	}
	var o api.Orchestrator
	if !decodeBody(w, r, &o) {
		return
	}
	if err := o.Validate(); err != nil {
		writeValidation(w, err)
		return
	}
	if msg := s.checkOrchestratorRefs(o); msg != "" {
		writeDetail(w, http.StatusBadRequest, msg)
		return
	}
	o.ID = id
	s.orchestrators.replace(id, o)
	writeJSON(w, http.StatusOK, s.expandOrchestrator(o))
}

func (s *Server) deleteOrchestrator(w http.ResponseWriter, r *http.Request) {
	if !s.orchestrators.remove(mux.Vars(r)["id"]) {
		writeDetail(w, http.StatusNotFound, "Orchestrator not found")
		return
	}
	writeDeleted(w, "Orchestrator")
}

// ============================================================================
// APPS
// ============================================================================

// listApps returns published orchestrators followed by published agents.
func (s *Server) listApps(w http.ResponseWriter, r *http.Request) {
	apps := []api.App{}
	for _, o := range s.orchestrators.list() {
		if o.PublishAsApp {
			apps = append(apps, api.App{ID: o.ID, Name: o.Name, Description: o.Description, AppType: o.AppType})
		}
	}
	for _, a := range s.agents.list() {
		if a.PublishAsApp {
			apps = append(apps, api.App{ID: a.ID, Name: a.Name, Description: a.Description, AppType: a.AppType})
		}
	}
	writeJSON(w, http.StatusOK, apps)
}

func (s *Server) listAgentApps(w http.ResponseWriter, r *http.Request) {
	apps := []api.App{}
	for _, a := range s.agents.list() {
		apps = append(apps, api.App{ID: a.ID, Name: a.Name, Description: a.Description, AppType: a.AppType})
	}
	writeJSON(w, http.StatusOK, apps)
}
