// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package devserver is an in-memory stand-in for the studio backend.
//
// It serves the REST resources under /api/v1 and the chat stream routes
// with real text/event-stream framing, so the console can be demoed and
// integration-tested without the Python service.
//
// Endpoints:
//   - GET|POST /api/v1/{api-keys,mcp-servers,agents,orchestrators}/
//   - GET|PUT|DELETE /api/v1/{collection}/{id}
//   - GET  /api/v1/mcp-servers/{id}/tools
//   - POST /api/v1/agents/ai-generate
//   - GET  /api/v1/apps/, /api/v1/apps/agents
//   - POST /api/v1/chat/stream, /api/v1/chat/stream/test/{agentId}
//   - DELETE /api/v1/chat/reset/{agentId}/{conversationId}
//   - GET  /versions, /versions/current, /health
//
// A demo API key, agent and orchestrator are seeded on start.
package devserver
