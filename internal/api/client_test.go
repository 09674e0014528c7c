// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/studio-tui/internal/config"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)

	c := NewClient(srv.URL + "/api/v1/").WithLogger(log)
	c.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return c
}

func validAgent() Agent {
	return Agent{
		Name:         "Researcher",
		Role:         "Research assistant",
		Task:         "Find sources",
		Instructions: "Cite everything.",
		AppType:      DefaultAppType,
		ApiKeyID:     "key-1",
	}
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNewClientFromConfig(t *testing.T) {
	cfg := config.Default().API
	cfg.BaseURL = "http://studio.test/api/v1/"
	cfg.TimeoutSeconds = 7
	cfg.MaxRetries = 0

	c := NewClientFromConfig(cfg)
	assert.Equal(t, "http://studio.test/api/v1", c.BaseURL())
	assert.Equal(t, 7*time.Second, c.httpClient.Timeout)
	assert.Equal(t, 1, c.maxRetries)
	require.NotNil(t, c.limiter)
	assert.Equal(t, "http://studio.test", c.rootURL())
}

func TestCalculateBackoff(t *testing.T) {
	c := NewClient("http://x")
	assert.Equal(t, 500*time.Millisecond, c.calculateBackoff(1))
	assert.Equal(t, time.Second, c.calculateBackoff(2))
	assert.Equal(t, 2*time.Second, c.calculateBackoff(3))
	assert.Equal(t, retryMaxDelay, c.calculateBackoff(10))
}

// =============================================================================
// RESOURCES
// =============================================================================

func TestListAgents(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/agents/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`[{"id":"a1","name":"Researcher","role":"r","task":"t","instructions":"i",
			"publish_as_app":true,"app_type":"Productivity","api_key_id":"k1",
			"api_key":{"id":"k1","name":"main","provider_name":"openai","model_name":"gpt-4o","secret_key":"sk-123456789"},
			"mcp_servers":[{"mcp_server_id":"m1","mcp_server":{"id":"m1","name":"fs","transport":"stdio","mode":"autonomous",
			"config_json":{"command":"npx","args":["-y","server-fs"],"env":{"ROOT":"/tmp"}}}}]}]`))
	}))

	agents, err := c.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 1)
	a := agents[0]
	assert.Equal(t, "a1", a.ID)
	assert.True(t, a.PublishAsApp)
	require.NotNil(t, a.ApiKey)
	assert.Equal(t, "gpt-4o", a.ApiKey.ModelName)
	require.Len(t, a.McpServers, 1)
	cfg := a.McpServers[0].McpServer.ConfigJSON
	assert.Equal(t, "npx", cfg.Command)
	assert.Equal(t, []string{"-y", "server-fs"}, cfg.Args)
	assert.Equal(t, map[string]any{"ROOT": "/tmp"}, cfg.Extra["env"])
}

func TestCreateAgent_SendsReferencesOnly(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/agents/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"id":"new-agent","name":"Researcher"}`))
	}))

	a := validAgent()
	a.ID = "ignored"
	a.ApiKey = &ApiKey{ID: "key-1", SecretKey: "sk-secret"}
	a.McpServers = []McpServerRef{{McpServerID: "m1", McpServer: &McpServer{Name: "fs"}}}

	got, err := c.CreateAgent(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, "new-agent", got.ID)

	assert.NotContains(t, body, "id")
	assert.NotContains(t, body, "api_key")
	assert.Equal(t, "key-1", body["api_key_id"])
	assert.Equal(t, []any{map[string]any{"mcp_server_id": "m1"}}, body["mcp_servers"])
}

func TestCreateAgent_ValidationStopsRequest(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	a := validAgent()
	a.Name = strings.Repeat("n", MaxAgentName+1)
	_, err := c.CreateAgent(context.Background(), a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Zero(t, calls.Load())
}

func TestUpdateAndDeleteOrchestrator(t *testing.T) {
	var methods []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPut {
			var o Orchestrator
			require.NoError(t, json.NewDecoder(r.Body).Decode(&o))
			assert.Equal(t, []AgentRef{{AgentID: "a1"}}, o.Agents)
			w.Write([]byte(`{"id":"o1","name":"Team"}`))
			return
		}
		w.Write([]byte(`{"message":"Orchestrator deleted successfully"}`))
	}))

	o := Orchestrator{
		Name:         "Team",
		Description:  "Research team",
		Instructions: "Coordinate.",
		AppType:      DefaultAppType,
		ApiKeyID:     "k1",
		Agents:       []AgentRef{{AgentID: "a1", Agent: &Agent{Name: "x"}}},
	}
	got, err := c.UpdateOrchestrator(context.Background(), "o1", o)
	require.NoError(t, err)
	assert.Equal(t, "o1", got.ID)
	require.NoError(t, c.DeleteOrchestrator(context.Background(), "o1"))

	assert.Equal(t, []string{"PUT /api/v1/orchestrators/o1", "DELETE /api/v1/orchestrators/o1"}, methods)
}

func TestMcpServerTools(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/mcp-servers/m%201/tools", r.URL.EscapedPath())
		w.Write([]byte(`[{"tool_name":"read_file","tool_description":"Read a file"}]`))
	}))

	tools, err := c.McpServerTools(context.Background(), "m 1")
	require.NoError(t, err)
	assert.Equal(t, []McpTool{{Name: "read_file", Description: "Read a file"}}, tools)
}

func TestVersionsUseServerRoot(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/versions":
			w.Write([]byte(`[{"id":"v1","version_number":"1.0.0","release_date":"2025-01-10","release_description":"first"}]`))
		case "/versions/current":
			w.Write([]byte(`{"id":"v1","version_number":"1.0.0","release_date":"2025-01-10","release_description":"first"}`))
		default:
			http.NotFound(w, r)
		}
	}))

	all, err := c.ListVersions(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	cur, err := c.CurrentVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", cur.VersionNumber)
}

func TestGenerateAgent(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/agents/ai-generate", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "summarize news", body["user_prompt"])
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Agent generation failed"}`))
	}))

	_, err := c.GenerateAgent(context.Background(), "summarize news")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "Agent generation failed")

	_, err = c.GenerateAgent(context.Background(), "  ")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestEmptyIDRejected(t *testing.T) {
	c := NewClient("http://unused")
	_, err := c.GetApiKey(context.Background(), "")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.True(t, errors.Is(c.DeleteMcpServer(context.Background(), " "), ErrValidation))
}

// =============================================================================
// ERRORS AND RETRIES
// =============================================================================

func TestErrorDetailDecoding(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		detail   string
	}{
		{"string detail", 404, `{"detail":"Agent not found"}`, ErrNotFound, "Agent not found"},
		{"validation list", 422, `{"detail":[{"loc":["body","name"],"msg":"field required"}]}`, ErrValidation, "body.name: field required"},
		{"plain text", 400, "bad input\n", ErrValidation, "bad input"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			_, err := c.GetAgent(context.Background(), "a1")
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Equal(t, tc.detail, apiErr.Detail)
			assert.True(t, errors.Is(err, tc.sentinel))
		})
	}
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))

	apps, err := c.ListApps(context.Background())
	require.NoError(t, err)
	assert.Empty(t, apps)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.ListApiKeys(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(DefaultMaxRetries), calls.Load())
}

func TestPostIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.CreateAgent(context.Background(), validAgent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServer))
	assert.Equal(t, int32(1), calls.Load())
}

func TestPutAndDeleteRetryServerErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		call   func(*Client) error
	}{
		{"put", http.MethodPut, func(c *Client) error {
			_, err := c.UpdateAgent(context.Background(), "a1", validAgent())
			return err
		}},
		{"delete", http.MethodDelete, func(c *Client) error {
			return c.DeleteAgent(context.Background(), "a1")
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tc.method, r.Method)
				if calls.Add(1) == 1 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				w.Write([]byte(`{"id":"a1"}`))
			}))

			require.NoError(t, tc.call(c))
			assert.Equal(t, int32(2), calls.Load())
		})
	}
}

func TestNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))

	_, err := c.GetOrchestrator(context.Background(), "o1")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(1), calls.Load())
}

func TestOversizedResponse(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("["))
		w.Write([]byte(strings.Repeat(" ", MaxResponseSize)))
		w.Write([]byte("]"))
	}))

	_, err := c.ListApps(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum size")
}

func TestRateLimiterHonorsContext(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	c.WithRateLimit(0.001, 1)

	_, err := c.ListApps(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.ListApps(ctx)
	assert.Error(t, err)
}
