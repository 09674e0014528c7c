// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// =============================================================================
// TRANSPORT CONSTANTS
// =============================================================================

const (
	// DefaultResetTimeout bounds the reset request. Streams have no deadline.
	DefaultResetTimeout = 30 * time.Second

	// maxErrorBody limits how much of a failed response body is kept.
	maxErrorBody = 64 * 1024
)

// ErrInvalidRequest is returned for requests that fail local validation.
var ErrInvalidRequest = errors.New("invalid chat request")

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChatType selects which kind of target receives the message.
type ChatType string

const (
	ChatTypeAgent        ChatType = "agent"
	ChatTypeOrchestrator ChatType = "orchestrator"
)

// ParseChatType converts user input into a ChatType.
func ParseChatType(s string) (ChatType, error) {
	switch ChatType(strings.ToLower(strings.TrimSpace(s))) {
	case ChatTypeAgent:
		return ChatTypeAgent, nil
	case ChatTypeOrchestrator:
		return ChatTypeOrchestrator, nil
	}
	return "", fmt.Errorf("unknown chat type %q (want agent or orchestrator)", s)
}

// ChatMode selects the live route or the agent test route.
type ChatMode string

const (
	ChatModeLive ChatMode = "live"
	ChatModeTest ChatMode = "test"
)

// ParseChatMode converts user input into a ChatMode.
func ParseChatMode(s string) (ChatMode, error) {
	switch ChatMode(strings.ToLower(strings.TrimSpace(s))) {
	case ChatModeLive, "":
		return ChatModeLive, nil
	case ChatModeTest:
		return ChatModeTest, nil
	}
	return "", fmt.Errorf("unknown chat mode %q (want live or test)", s)
}

// Request describes one chat turn.
type Request struct {
	TargetID       string
	Kind           ChatType
	Mode           ChatMode
	ConversationID string
	Message        string
}

// liveBody is the JSON body of POST /chat/stream.
type liveBody struct {
	ID             string   `json:"id"`
	ChatType       ChatType `json:"chat_type"`
	ChatMode       ChatMode `json:"chat_mode"`
	ConversationID string   `json:"conversation_id"`
	Message        string   `json:"message"`
}

// testBody is the JSON body of POST /chat/stream/test/{agentId}.
type testBody struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

// Validate checks the request before any network activity.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("%w: message is empty", ErrInvalidRequest)
	}
	if err := validateID("target id", r.TargetID); err != nil {
		return err
	}
	if err := validateID("conversation id", r.ConversationID); err != nil {
		return err
	}
	switch r.Kind {
	case ChatTypeAgent, ChatTypeOrchestrator:
	default:
		return fmt.Errorf("%w: unknown chat type %q", ErrInvalidRequest, r.Kind)
	}
	switch r.Mode {
	case ChatModeLive:
	case ChatModeTest:
		if r.Kind != ChatTypeAgent {
			return fmt.Errorf("%w: test mode is only available for agents", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown chat mode %q", ErrInvalidRequest, r.Mode)
	}
	return nil
}

func validateID(name, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidRequest, name)
	}
	if strings.ContainsAny(id, "/\\?#") {
		return fmt.Errorf("%w: %s %q contains reserved characters", ErrInvalidRequest, name, id)
	}
	return nil
}

// =============================================================================
// TRANSPORT ERROR
// =============================================================================

// TransportError reports a failed stream or reset request. StatusCode is zero
// when the failure happened below HTTP (connection refused, body read error).
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		if detail := e.Detail(); detail != "" {
			return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.StatusCode, detail)
		}
		return fmt.Sprintf("%s failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying network error, if any.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Detail extracts a readable message from the response body. FastAPI style
// {"detail": "..."} bodies are unwrapped; anything else is returned trimmed.
func (e *TransportError) Detail() string {
	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal([]byte(e.Body), &body); err == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(body.Detail); err == nil {
			return string(b)
		}
	}
	return strings.TrimSpace(e.Body)
}

// =============================================================================
// TRANSPORT
// =============================================================================

// Transport opens chat streams and issues conversation resets.
type Transport struct {
	baseURL      string
	client       *http.Client
	resetTimeout time.Duration
	log          logrus.FieldLogger
}

// NewTransport creates a transport for the API rooted at baseURL
// (for example http://localhost:8000/api/v1).
func NewTransport(baseURL string) *Transport {
	return &Transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No client timeout: stream duration is bounded by the caller's context.
		client:       &http.Client{},
		resetTimeout: DefaultResetTimeout,
		log:          discardLogger(),
	}
}

// WithHTTPClient replaces the HTTP client. Its Timeout should be zero.
func (t *Transport) WithHTTPClient(c *http.Client) *Transport {
	t.client = c
	return t
}

// WithLogger sets the logger.
func (t *Transport) WithLogger(log logrus.FieldLogger) *Transport {
	t.log = log.WithField("component", "stream")
	return t
}

// WithResetTimeout sets the deadline applied to reset requests.
func (t *Transport) WithResetTimeout(d time.Duration) *Transport {
	t.resetTimeout = d
	return t
}

// BaseURL returns the API base URL.
func (t *Transport) BaseURL() string {
	return t.baseURL
}

// Open issues the chat POST and returns the response stream. A non-2xx reply
// fails here with a *TransportError before any chunk is read.
func (t *Transport) Open(ctx context.Context, req Request) (*Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	endpoint, payload := t.route(req)
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	log := t.log.WithFields(logrus.Fields{
		"target_id":       req.TargetID,
		"conversation_id": req.ConversationID,
		"mode":            req.Mode,
	})
	log.Debug("opening chat stream")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "chat stream", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.WithField("status", resp.StatusCode).Warn("chat stream rejected")
		return nil, &TransportError{Op: "chat stream", StatusCode: resp.StatusCode, Body: string(body)}
	}

	return &Stream{
		body:    resp.Body,
		decoded: transform.NewReader(resp.Body, unicode.UTF8.NewDecoder()),
		started: time.Now(),
		log:     log,
	}, nil
}

// route picks the endpoint and JSON body for the request mode.
func (t *Transport) route(req Request) (string, any) {
	if req.Mode == ChatModeTest {
		return t.baseURL + "/chat/stream/test/" + url.PathEscape(req.TargetID), testBody{
			ConversationID: req.ConversationID,
			Message:        req.Message,
		}
	}
	return t.baseURL + "/chat/stream", liveBody{
		ID:             req.TargetID,
		ChatType:       req.Kind,
		ChatMode:       ChatModeLive,
		ConversationID: req.ConversationID,
		Message:        req.Message,
	}
}

// Reset asks the server to forget a conversation. Any 2xx is success.
func (t *Transport) Reset(ctx context.Context, targetID, conversationID string) error {
	if err := validateID("target id", targetID); err != nil {
		return err
	}
	if err := validateID("conversation id", conversationID); err != nil {
		return err
	}

	if t.resetTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.resetTimeout)
		defer cancel()
	}

	endpoint := fmt.Sprintf("%s/chat/reset/%s/%s", t.baseURL, url.PathEscape(targetID), url.PathEscape(conversationID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return &TransportError{Op: "conversation reset", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &TransportError{Op: "conversation reset", StatusCode: resp.StatusCode, Body: string(body)}
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	t.log.WithFields(logrus.Fields{
		"target_id":       targetID,
		"conversation_id": conversationID,
	}).Debug("conversation reset")
	return nil
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is an open chat response body. Read yields UTF-8 text in arbitrary
// chunk sizes; a partial multi-byte character is held back until the rest
// of it arrives. Read failures are reported as *TransportError.
type Stream struct {
	body    io.ReadCloser
	decoded io.Reader
	started time.Time
	read    int64
	log     logrus.FieldLogger
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.decoded.Read(p)
	s.read += int64(n)
	if err != nil && err != io.EOF {
		return n, &TransportError{Op: "chat stream read", Err: err}
	}
	return n, err
}

// Close releases the connection.
func (s *Stream) Close() error {
	s.log.WithFields(logrus.Fields{
		"bytes":    s.read,
		"duration": time.Since(s.started).Round(time.Millisecond),
	}).Debug("chat stream closed")
	return s.body.Close()
}
