// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jeranaias/studio-tui/internal/stream"
)

// ============================================================================
// REQUESTS
// ============================================================================

type chatRequest struct {
	ID             string `json:"id"`
	ChatType       string `json:"chat_type"`
	ChatMode       string `json:"chat_mode"`
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

type testChatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

var titleCase = cases.Title(language.English)

// target is a resolved chat target.
type target struct {
	id   string
	name string
	kind stream.ChatType

	// agent answers for orchestrators; equals name for agents.
	agent string
}

func (s *Server) resolveTarget(id string, kind stream.ChatType) (target, bool) {
	switch kind {
	case stream.ChatTypeAgent:
		a, ok := s.agents.get(id)
		if !ok {
			return target{}, false
		}
		return target{id: id, name: a.Name, kind: kind, agent: a.Name}, true
	case stream.ChatTypeOrchestrator:
		o, ok := s.orchestrators.get(id)
		if !ok {
			return target{}, false
		}
		t := target{id: id, name: o.Name, kind: kind, agent: o.Name}
		for _, ref := range o.Agents {
			if a, ok := s.agents.get(ref.AgentID); ok {
				t.agent = a.Name
				break
			}
		}
		return t, true
	}
	return target{}, false
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	kind, err := stream.ParseChatType(req.ChatType)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if req.ChatMode != "" && req.ChatMode != string(stream.ChatModeLive) {
		writeDetail(w, http.StatusUnprocessableEntity, "chat_mode must be live on this route")
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "conversation_id is required")
		return
	}
	t, ok := s.resolveTarget(req.ID, kind)
	if !ok {
		writeDetail(w, http.StatusNotFound, titleCase.String(string(kind))+" not found")
		return
	}
	s.streamReply(w, r, t, req.ConversationID, req.Message)
}

func (s *Server) handleTestStream(w http.ResponseWriter, r *http.Request) {
	var req testChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "conversation_id is required")
		return
	}
	t, ok := s.resolveTarget(mux.Vars(r)["agentId"], stream.ChatTypeAgent)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Agent not found")
		return
	}
	s.streamReply(w, r, t, req.ConversationID, req.Message)
}

// handleReset forgets a conversation. Unknown conversations succeed.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.chats.reset(vars["agentId"], vars["conversationId"])
	s.log.WithFields(logrus.Fields{
		"target_id":       vars["agentId"],
		"conversation_id": vars["conversationId"],
	}).Debug("conversation reset")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Conversation reset successfully"})
}

// ============================================================================
// SCRIPTED STREAM
// ============================================================================

// script builds the event sequence answering message.
func script(t target, turn int, message string) []stream.Event {
	reply := fmt.Sprintf("%s heard (turn %d): %s", t.agent, turn, strings.TrimSpace(message))
	events := []stream.Event{
		{Type: stream.EventStreamStart, Data: map[string]any{"target_id": t.id, "chat_type": string(t.kind)}},
		{Type: stream.EventAgentUpdated, Data: map[string]any{"agent_name": t.agent}},
	}
	if t.kind == stream.ChatTypeOrchestrator && t.agent != t.name {
		events = append(events, stream.Event{
			Type: stream.EventHandoff,
			Data: map[string]any{"from_agent": t.name, "to_agent": t.agent},
		})
	}
	callID := uuid.NewString()
	events = append(events,
		stream.Event{Type: stream.EventToolCall, Data: map[string]any{
			"tool_name": "echo",
			"call_id":   callID,
			"arguments": map[string]any{"text": message},
		}},
		stream.Event{Type: stream.EventToolOutput, Data: map[string]any{
			"call_id": callID,
			"output":  strings.ToUpper(message),
		}},
	)
	for _, word := range splitKeepSpaces(reply) {
		events = append(events, stream.Event{Type: stream.EventMessageDelta, Data: map[string]any{"delta": word}})
	}
	events = append(events,
		stream.Event{Type: stream.EventMessageComplete, Data: map[string]any{"content": reply}},
		stream.Event{Type: stream.EventStreamEnd, Data: map[string]any{}},
	)
	return events
}

// splitKeepSpaces splits s into words, each keeping its trailing space, so
// the pieces concatenate back to s.
func splitKeepSpaces(s string) []string {
	var out []string
	for len(s) > 0 {
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			out = append(out, s)
			break
		}
		out = append(out, s[:i+1])
		s = s[i+1:]
	}
	return out
}

// streamReply writes the scripted reply as text/event-stream frames,
// flushing after each one. It stops early if the client goes away.
func (s *Server) streamReply(w http.ResponseWriter, r *http.Request, t target, conversationID, message string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeDetail(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	turn := s.chats.append(t.id, conversationID, message)
	sessionID := uuid.NewString()
	log := s.log.WithFields(logrus.Fields{
		"target_id":       t.id,
		"conversation_id": conversationID,
		"turn":            turn,
	})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	for i, ev := range script(t, turn, message) {
		if i > 0 && s.frameDelay > 0 {
			select {
			case <-ctx.Done():
				log.Debug("client went away")
				return
			case <-time.After(s.frameDelay):
			}
		}
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
		ev.SessionID = sessionID
		data, err := json.Marshal(ev)
		if err != nil {
			log.WithError(err).Warn("frame encode failed")
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
	log.Debug("stream finished")
}
