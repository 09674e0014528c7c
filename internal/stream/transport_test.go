// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func liveRequest() Request {
	return Request{
		TargetID:       "agent-1",
		Kind:           ChatTypeAgent,
		Mode:           ChatModeLive,
		ConversationID: "conv-1",
		Message:        "hello",
	}
}

// =============================================================================
// REQUEST VALIDATION
// =============================================================================

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr bool
	}{
		{"valid", func(r *Request) {}, false},
		{"blank message", func(r *Request) { r.Message = "   " }, true},
		{"missing target", func(r *Request) { r.TargetID = "" }, true},
		{"slash in conversation", func(r *Request) { r.ConversationID = "a/b" }, true},
		{"unknown kind", func(r *Request) { r.Kind = "team" }, true},
		{"unknown mode", func(r *Request) { r.Mode = "replay" }, true},
		{"test mode orchestrator", func(r *Request) { r.Kind = ChatTypeOrchestrator; r.Mode = ChatModeTest }, true},
		{"test mode agent", func(r *Request) { r.Mode = ChatModeTest }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := liveRequest()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseChatTypeAndMode(t *testing.T) {
	kind, err := ParseChatType(" Orchestrator ")
	require.NoError(t, err)
	assert.Equal(t, ChatTypeOrchestrator, kind)
	_, err = ParseChatType("team")
	assert.Error(t, err)

	mode, err := ParseChatMode("")
	require.NoError(t, err)
	assert.Equal(t, ChatModeLive, mode)
	mode, err = ParseChatMode("TEST")
	require.NoError(t, err)
	assert.Equal(t, ChatModeTest, mode)
}

// =============================================================================
// OPEN
// =============================================================================

func TestTransport_OpenLive(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/chat/stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sampleStream)
	}))
	defer srv.Close()

	tr := NewTransport(srv.URL + "/api/v1/")
	s, err := tr.Open(context.Background(), liveRequest())
	require.NoError(t, err)
	defer s.Close()

	r := NewEventReader(s, nil)
	var n int
	for {
		_, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 5, n)
	assert.Equal(t, map[string]any{
		"id":              "agent-1",
		"chat_type":       "agent",
		"chat_mode":       "live",
		"conversation_id": "conv-1",
		"message":         "hello",
	}, gotBody)
}

func TestTransport_OpenTestRoute(t *testing.T) {
	var gotBody map[string]any
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req := liveRequest()
	req.Mode = ChatModeTest
	s, err := NewTransport(srv.URL).Open(context.Background(), req)
	require.NoError(t, err)
	s.Close()

	assert.Equal(t, "/chat/stream/test/agent-1", gotPath)
	assert.Equal(t, map[string]any{"conversation_id": "conv-1", "message": "hello"}, gotBody)
}

func TestTransport_OpenNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"detail":"Agent not found"}`)
	}))
	defer srv.Close()

	s, err := NewTransport(srv.URL).Open(context.Background(), liveRequest())
	require.Nil(t, s)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusNotFound, te.StatusCode)
	assert.Equal(t, "Agent not found", te.Detail())
	assert.Contains(t, te.Error(), "404")
}

func TestTransport_OpenConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewTransport(url).Open(context.Background(), liveRequest())
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.StatusCode)
	assert.NotNil(t, te.Unwrap())
}

func TestTransport_OpenInvalidRequestSendsNothing(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	req := liveRequest()
	req.Message = ""
	_, err := NewTransport(srv.URL).Open(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.False(t, called)
}

func TestTransport_MidStreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Promise more bytes than are sent so the client sees a truncated body.
		w.Header().Set("Content-Length", "100000")
		io.WriteString(w, "data: {\"event_type\":\"stream_start\",\"data\":{}}\n")
	}))
	defer srv.Close()

	s, err := NewTransport(srv.URL).Open(context.Background(), liveRequest())
	require.NoError(t, err)
	defer s.Close()

	r := NewEventReader(s, nil)
	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, EventStreamStart, ev.Type)

	_, err = r.Next()
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.StatusCode)
}

// =============================================================================
// RESET
// =============================================================================

func TestTransport_Reset(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"no content", http.StatusNoContent, false},
		{"server error", http.StatusInternalServerError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotMethod, gotPath string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod, gotPath = r.Method, r.URL.Path
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := NewTransport(srv.URL).Reset(context.Background(), "agent-1", "conv-1")
			assert.Equal(t, http.MethodDelete, gotMethod)
			assert.Equal(t, "/chat/reset/agent-1/conv-1", gotPath)
			if tt.wantErr {
				var te *TransportError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, tt.status, te.StatusCode)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
