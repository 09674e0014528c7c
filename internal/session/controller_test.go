// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/studio-tui/internal/model"
	"github.com/jeranaias/studio-tui/internal/stream"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func frame(eventType string, data map[string]any) string {
	if data == nil {
		data = map[string]any{}
	}
	b, _ := json.Marshal(map[string]any{
		"event_type": eventType,
		"data":       data,
		"timestamp":  "2025-01-01T00:00:00Z",
	})
	return "data: " + string(b) + "\n\n"
}

// sseServer replays frames, flushing after each one.
func sseServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range frames {
			io.WriteString(w, f)
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestController(baseURL string) *Controller {
	return NewController(StreamTransport{stream.NewTransport(baseURL)}, Options{
		TargetID:       "agent-1",
		Kind:           stream.ChatTypeAgent,
		ConversationID: "conv-1",
	})
}

func roles(msgs []model.Message) []model.Role {
	out := make([]model.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

// =============================================================================
// SEND
// =============================================================================

func TestController_SendAssemblesReply(t *testing.T) {
	srv := sseServer(t,
		frame("stream_start", nil),
		frame("message_delta", map[string]any{"delta": "Hel"}),
		frame("tool_call", map[string]any{"tool_name": "lookup"}),
		frame("message_delta", map[string]any{"delta": "lo"}),
		frame("message_complete", nil),
		frame("stream_end", nil),
	)
	ctrl := newTestController(srv.URL)
	defer ctrl.Close()

	require.NoError(t, ctrl.Send(context.Background(), "  hi  "))

	snap := ctrl.Snapshot()
	assert.Equal(t, []model.Role{model.RoleUser, model.RoleAssistant}, roles(snap.Transcript))
	assert.Equal(t, "hi", snap.Transcript[0].Content)
	assert.Equal(t, "Hello", snap.Transcript[1].Content)
	assert.False(t, snap.Transcript[1].Open)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Error)
	assert.Equal(t, PhaseIdle, snap.Phase)
	require.Len(t, snap.Trace, 3)
	assert.Equal(t, "tool_call", snap.Trace[1].Type)
}

func TestController_SendEmptyRejected(t *testing.T) {
	ctrl := newTestController("http://127.0.0.1:1")
	assert.ErrorIs(t, ctrl.Send(context.Background(), " \n\t"), ErrEmptyMessage)
	assert.Empty(t, ctrl.Snapshot().Transcript)
}

func TestController_UserEntryVisibleBeforeNetwork(t *testing.T) {
	var sawUser atomic.Bool
	var ctrl *Controller
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := ctrl.Snapshot()
		sawUser.Store(len(snap.Transcript) == 1 && snap.Transcript[0].Role == model.RoleUser && snap.Loading)
		io.WriteString(w, frame("stream_start", nil)+frame("stream_end", nil))
	}))
	defer srv.Close()

	ctrl = newTestController(srv.URL)
	require.NoError(t, ctrl.Send(context.Background(), "hello"))
	assert.True(t, sawUser.Load())
}

func TestController_ReentrantSendRejected(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		io.WriteString(w, frame("stream_start", nil))
		io.WriteString(w, frame("message_delta", map[string]any{"delta": "working"}))
		flusher.Flush()
		<-release
		io.WriteString(w, frame("stream_end", nil))
	}))
	defer srv.Close()

	ctrl := newTestController(srv.URL)
	defer ctrl.Close()

	done := make(chan error, 1)
	go func() { done <- ctrl.Send(context.Background(), "first") }()

	require.Eventually(t, func() bool {
		s := ctrl.Snapshot()
		return len(s.Transcript) == 2 && s.Transcript[1].Content == "working"
	}, 5*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, ctrl.Send(context.Background(), "second"), ErrBusy)
	assert.ErrorIs(t, ctrl.Reset(context.Background()), ErrBusy)

	snap := ctrl.Snapshot()
	assert.True(t, snap.Loading)
	assert.True(t, snap.Busy())
	assert.Equal(t, []model.Role{model.RoleUser, model.RoleAssistant}, roles(snap.Transcript))

	close(release)
	require.NoError(t, <-done)

	snap = ctrl.Snapshot()
	assert.False(t, snap.Loading)
	assert.Len(t, snap.Transcript, 2)
}

func TestController_MalformedFrameSkipped(t *testing.T) {
	srv := sseServer(t,
		frame("stream_start", nil),
		"data: {\"event_type\": \"message_delta\", \"data\": {\"delta\": \n\n",
		frame("message_delta", map[string]any{"delta": "ok"}),
		frame("stream_end", nil),
	)
	ctrl := newTestController(srv.URL)

	require.NoError(t, ctrl.Send(context.Background(), "hi"))
	snap := ctrl.Snapshot()
	assert.Equal(t, "ok", snap.Transcript[1].Content)
	assert.Empty(t, snap.Error)
}

func TestController_TransportErrorBeforeFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"detail":"orchestrator unavailable"}`)
	}))
	defer srv.Close()

	ctrl := newTestController(srv.URL)
	err := ctrl.Send(context.Background(), "hi")

	var te *stream.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusInternalServerError, te.StatusCode)

	snap := ctrl.Snapshot()
	assert.Equal(t, []model.Role{model.RoleUser}, roles(snap.Transcript))
	assert.False(t, snap.Loading)
	assert.Contains(t, snap.Error, "orchestrator unavailable")
	assert.Equal(t, PhaseErrored, snap.Phase)

	// The controller stays usable.
	assert.NotErrorIs(t, ctrl.Send(context.Background(), "again"), ErrBusy)
}

func TestController_MidStreamFailureKeepsPartialReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100000")
		io.WriteString(w, frame("stream_start", nil)+frame("message_delta", map[string]any{"delta": "partial"}))
	}))
	defer srv.Close()

	ctrl := newTestController(srv.URL)
	err := ctrl.Send(context.Background(), "hi")

	var te *stream.TransportError
	require.ErrorAs(t, err, &te)

	snap := ctrl.Snapshot()
	require.Len(t, snap.Transcript, 2)
	assert.Equal(t, "partial", snap.Transcript[1].Content)
	assert.False(t, snap.Loading)
	assert.NotEmpty(t, snap.Error)
}

func TestController_ProtocolErrorReturnedAfterStream(t *testing.T) {
	srv := sseServer(t,
		frame("stream_start", nil),
		frame("error", map[string]any{"message": "tool crashed", "details": "trace"}),
		frame("message_delta", map[string]any{"delta": "recovered"}),
		frame("stream_end", nil),
	)
	ctrl := newTestController(srv.URL)

	err := ctrl.Send(context.Background(), "hi")
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "tool crashed", pe.Message)
	assert.Equal(t, "trace", pe.Details)

	snap := ctrl.Snapshot()
	assert.Equal(t, "tool crashed", snap.Error)
	assert.Equal(t, "recovered", snap.Transcript[1].Content)
	assert.False(t, snap.Loading)
}

func TestController_BodyEndsWithoutStreamEnd(t *testing.T) {
	srv := sseServer(t,
		frame("stream_start", nil),
		frame("message_delta", map[string]any{"delta": "cut"}),
	)
	ctrl := newTestController(srv.URL)

	require.NoError(t, ctrl.Send(context.Background(), "hi"))
	snap := ctrl.Snapshot()
	assert.False(t, snap.Loading)
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.False(t, snap.Transcript[1].Open)
}

func TestController_TestModeRoute(t *testing.T) {
	var path string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
		io.WriteString(w, frame("stream_start", map[string]any{"agent_name": "helper"})+
			frame("message_delta", map[string]any{"delta": "pong"})+
			frame("stream_end", nil))
	}))
	defer srv.Close()

	ctrl := NewController(StreamTransport{stream.NewTransport(srv.URL)}, Options{
		TargetID: "agent-7",
		Mode:     stream.ChatModeTest,
	})
	require.NoError(t, ctrl.Send(context.Background(), "ping"))

	assert.Equal(t, "/chat/stream/test/agent-7", path)
	assert.Equal(t, ctrl.ConversationID(), body["conversation_id"])
	assert.NotEmpty(t, ctrl.ConversationID())
	assert.Equal(t, "pong", ctrl.Snapshot().Transcript[1].Content)
}

func TestController_ConversationIDStableAcrossSends(t *testing.T) {
	var ids []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		ids = append(ids, fmt.Sprint(body["conversation_id"]))
		mu.Unlock()
		io.WriteString(w, frame("stream_start", nil)+frame("stream_end", nil))
	}))
	defer srv.Close()

	ctrl := NewController(StreamTransport{stream.NewTransport(srv.URL)}, Options{TargetID: "agent-1"})
	require.NoError(t, ctrl.Send(context.Background(), "one"))
	require.NoError(t, ctrl.Send(context.Background(), "two"))

	require.Len(t, ids, 2)
	assert.Equal(t, ids[0], ids[1])
	assert.Len(t, ctrl.Snapshot().Transcript, 4)
}

// =============================================================================
// RESET
// =============================================================================

func TestController_Reset(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantErr    bool
		wantEmpty  bool
		wantErrMsg bool
	}{
		{"success clears", http.StatusOK, false, true, false},
		{"failure keeps state", http.StatusBadGateway, true, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resetPath string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodDelete {
					resetPath = r.URL.Path
					w.WriteHeader(tt.status)
					return
				}
				io.WriteString(w, frame("stream_start", nil)+
					frame("message_delta", map[string]any{"delta": "reply"})+
					frame("tool_call", nil)+
					frame("error", map[string]any{"message": "soft failure"})+
					frame("stream_end", nil))
			}))
			defer srv.Close()

			ctrl := newTestController(srv.URL)
			_ = ctrl.Send(context.Background(), "hi")
			before := ctrl.Snapshot()
			require.Len(t, before.Transcript, 2)

			err := ctrl.Reset(context.Background())
			after := ctrl.Snapshot()
			assert.Equal(t, "/chat/reset/agent-1/conv-1", resetPath)

			if tt.wantErr {
				var re *ResetError
				require.ErrorAs(t, err, &re)
				var te *stream.TransportError
				assert.True(t, errors.As(err, &te))
				assert.Equal(t, before.Transcript, after.Transcript)
				assert.Equal(t, before.Trace, after.Trace)
			} else {
				require.NoError(t, err)
			}
			if tt.wantEmpty {
				assert.Empty(t, after.Transcript)
				assert.Empty(t, after.Trace)
				assert.Empty(t, after.Error)
				assert.Equal(t, PhaseIdle, after.Phase)
			}
			if tt.wantErrMsg {
				assert.NotEmpty(t, after.Error)
			}
			assert.False(t, after.Resetting)
			assert.Equal(t, "conv-1", ctrl.ConversationID())
		})
	}
}

// =============================================================================
// TEARDOWN
// =============================================================================

func TestController_CloseDuringStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		io.WriteString(w, frame("stream_start", nil))
		flusher.Flush()
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		io.WriteString(w, frame("message_delta", map[string]any{"delta": "late"}))
		flusher.Flush()
	}))
	defer srv.Close()
	defer close(release)

	ctrl := newTestController(srv.URL)
	var calls atomic.Int32
	ctrl.Subscribe(func(Snapshot) { calls.Add(1) })

	done := make(chan error, 1)
	go func() { done <- ctrl.Send(context.Background(), "hi") }()

	// Begin and stream_start have both been delivered.
	require.Eventually(t, func() bool {
		return calls.Load() == 2
	}, 5*time.Second, 10*time.Millisecond)

	ctrl.Close()
	seen := calls.Load()
	frozen := ctrl.Snapshot()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Send did not return after Close")
	}

	assert.Equal(t, seen, calls.Load())
	assert.Equal(t, frozen.Transcript, ctrl.Snapshot().Transcript)
	assert.True(t, ctrl.Closed())
	assert.ErrorIs(t, ctrl.Send(context.Background(), "again"), ErrClosed)
	assert.ErrorIs(t, ctrl.Reset(context.Background()), ErrClosed)
}

func TestController_SubscribeAndUnsubscribe(t *testing.T) {
	srv := sseServer(t, frame("stream_start", nil), frame("stream_end", nil))
	ctrl := newTestController(srv.URL)

	var mu sync.Mutex
	var loading []bool
	unsubscribe := ctrl.Subscribe(func(s Snapshot) {
		mu.Lock()
		loading = append(loading, s.Loading)
		mu.Unlock()
	})

	require.NoError(t, ctrl.Send(context.Background(), "hi"))
	mu.Lock()
	require.NotEmpty(t, loading)
	assert.True(t, loading[0])
	assert.False(t, loading[len(loading)-1])
	n := len(loading)
	mu.Unlock()

	unsubscribe()
	require.NoError(t, ctrl.Send(context.Background(), "again"))
	mu.Lock()
	assert.Len(t, loading, n)
	mu.Unlock()
}
