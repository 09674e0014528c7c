// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/studio-tui/internal/api"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8000"

	// APIPrefix is the path prefix of the REST and chat routes.
	APIPrefix = "/api/v1"

	// MaxRequestBodySize caps JSON request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// DefaultFrameDelay is the pause between streamed frames.
	DefaultFrameDelay = 40 * time.Millisecond

	// Seeded demo ids.
	DemoApiKeyID       = "demo-key"
	DemoAgentID        = "demo-agent"
	DemoOrchestratorID = "demo-orchestrator"
)

// ============================================================================
// SERVER
// ============================================================================

// Options configures a Server.
type Options struct {
	Addr string

	// FrameDelay is the pause between streamed frames. Zero streams as fast
	// as possible; negative uses DefaultFrameDelay.
	FrameDelay time.Duration

	// NoSeed skips the demo records.
	NoSeed bool

	Logger logrus.FieldLogger
}

// Server is the fake backend.
type Server struct {
	addr       string
	frameDelay time.Duration
	log        logrus.FieldLogger
	router     *mux.Router
	server     *http.Server

	apiKeys       *collection[api.ApiKey]
	mcpServers    *collection[api.McpServer]
	agents        *collection[api.Agent]
	orchestrators *collection[api.Orchestrator]
	chats         *conversations
}

// New creates a Server with its routes registered.
func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.FrameDelay < 0 {
		opts.FrameDelay = DefaultFrameDelay
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	s := &Server{
		addr:          opts.Addr,
		frameDelay:    opts.FrameDelay,
		log:           log.WithField("component", "devserver"),
		apiKeys:       newCollection[api.ApiKey](),
		mcpServers:    newCollection[api.McpServer](),
		agents:        newCollection[api.Agent](),
		orchestrators: newCollection[api.Orchestrator](),
		chats:         newConversations(),
	}
	if !opts.NoSeed {
		s.seed()
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	router := mux.NewRouter()
	router.Use(RecoveryMiddleware(s.log), LoggingMiddleware(s.log))

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/versions", s.handleVersions).Methods(http.MethodGet)
	router.HandleFunc("/versions/current", s.handleCurrentVersion).Methods(http.MethodGet)

	r := router.PathPrefix(APIPrefix).Subrouter()

	r.HandleFunc("/api-keys/", s.listApiKeys).Methods(http.MethodGet)
	r.HandleFunc("/api-keys/", s.createApiKey).Methods(http.MethodPost)
	r.HandleFunc("/api-keys/{id}", s.getApiKey).Methods(http.MethodGet)
	r.HandleFunc("/api-keys/{id}", s.updateApiKey).Methods(http.MethodPut)
	r.HandleFunc("/api-keys/{id}", s.deleteApiKey).Methods(http.MethodDelete)

	r.HandleFunc("/mcp-servers/", s.listMcpServers).Methods(http.MethodGet)
	r.HandleFunc("/mcp-servers/", s.createMcpServer).Methods(http.MethodPost)
	r.HandleFunc("/mcp-servers/{id}", s.getMcpServer).Methods(http.MethodGet)
	r.HandleFunc("/mcp-servers/{id}", s.updateMcpServer).Methods(http.MethodPut)
	r.HandleFunc("/mcp-servers/{id}", s.deleteMcpServer).Methods(http.MethodDelete)
	r.HandleFunc("/mcp-servers/{id}/tools", s.mcpServerTools).Methods(http.MethodGet)

	r.HandleFunc("/agents/", s.listAgents).Methods(http.MethodGet)
	r.HandleFunc("/agents/", s.createAgent).Methods(http.MethodPost)
	r.HandleFunc("/agents/ai-generate", s.generateAgent).Methods(http.MethodPost)
	r.HandleFunc("/agents/{id}", s.getAgent).Methods(http.MethodGet)
	r.HandleFunc("/agents/{id}", s.updateAgent).Methods(http.MethodPut)
	r.HandleFunc("/agents/{id}", s.deleteAgent).Methods(http.MethodDelete)

	r.HandleFunc("/orchestrators/", s.listOrchestrators).Methods(http.MethodGet)
	r.HandleFunc("/orchestrators/", s.createOrchestrator).Methods(http.MethodPost)
	r.HandleFunc("/orchestrators/{id}", s.getOrchestrator).Methods(http.MethodGet)
	r.HandleFunc("/orchestrators/{id}", s.updateOrchestrator).Methods(http.MethodPut)
	r.HandleFunc("/orchestrators/{id}", s.deleteOrchestrator).Methods(http.MethodDelete)

	r.HandleFunc("/apps/", s.listApps).Methods(http.MethodGet)
	r.HandleFunc("/apps/agents", s.listAgentApps).Methods(http.MethodGet)

	r.HandleFunc("/chat/stream", s.handleChatStream).Methods(http.MethodPost)
	r.HandleFunc("/chat/stream/test/{agentId}", s.handleTestStream).Methods(http.MethodPost)
	r.HandleFunc("/chat/reset/{agentId}/{conversationId}", s.handleReset).Methods(http.MethodDelete)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	s.router = router
}

// Handler returns the routed handler, for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.log.WithField("addr", ln.Addr().String()).Info("devserver listening")
	err := s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown gracefully shuts down the server. Open streams are given until
// ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.log.Info("devserver shutting down")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HEALTH AND VERSIONS
// ============================================================================

var versions = []api.Version{
	{ID: "v1", VersionNumber: "0.1.0", ReleaseDate: "2025-01-15", ReleaseDescription: "Agents, orchestrators and MCP servers"},
	{ID: "v2", VersionNumber: "0.2.0", ReleaseDate: "2025-03-01", ReleaseDescription: "Streaming chat with trace events"},
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, versions)
}

func (s *Server) handleCurrentVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, versions[len(versions)-1])
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeDetail writes a FastAPI style {"detail": "..."} error.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeValidation writes a 422 with one entry per failed field.
func writeValidation(w http.ResponseWriter, err error) {
	type item struct {
		Loc  []string `json:"loc"`
		Msg  string   `json:"msg"`
		Type string   `json:"type"`
	}
	var ve *api.ValidationError
	if !errors.As(err, &ve) {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	items := make([]item, 0, len(ve.Fields))
	for _, f := range ve.Fields {
		items = append(items, item{Loc: []string{"body", f.Field}, Msg: f.Message, Type: "value_error"})
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": items})
}

// decodeBody reads a JSON request body into v. It writes the error response
// and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeDeleted(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusOK, map[string]string{"message": what + " deleted successfully"})
}
