// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/studio-tui/internal/model"
	"github.com/jeranaias/studio-tui/internal/stream"
)

// =============================================================================
// TRANSPORT INTERFACE
// =============================================================================

// Transport opens chat streams and resets conversations.
// *stream.Transport satisfies it through StreamTransport.
type Transport interface {
	OpenStream(ctx context.Context, req stream.Request) (io.ReadCloser, error)
	Reset(ctx context.Context, targetID, conversationID string) error
}

// StreamTransport adapts *stream.Transport to Transport.
type StreamTransport struct {
	*stream.Transport
}

// OpenStream opens the stream, returning a nil interface on failure.
func (t StreamTransport) OpenStream(ctx context.Context, req stream.Request) (io.ReadCloser, error) {
	s, err := t.Open(ctx, req)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a Controller.
type Options struct {
	TargetID string
	Kind     stream.ChatType
	Mode     stream.ChatMode

	// ConversationID is generated when empty.
	ConversationID string

	Logger  logrus.FieldLogger
	Reducer Reducer
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is a read-only copy of the conversation state.
type Snapshot struct {
	TargetID       string
	Kind           stream.ChatType
	Mode           stream.ChatMode
	ConversationID string

	Phase      Phase
	Transcript []model.Message
	Trace      []model.TraceEntry
	Loading    bool
	Resetting  bool
	Error      string
}

// Busy reports whether Send and Reset would be rejected.
func (s Snapshot) Busy() bool {
	return s.Loading || s.Resetting
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns one conversation. Its methods are safe for concurrent use;
// Send and Reset serialize through the loading flag.
type Controller struct {
	transport Transport
	reducer   Reducer
	log       logrus.FieldLogger

	targetID       string
	kind           stream.ChatType
	mode           stream.ChatMode
	conversationID string

	mu        sync.Mutex
	state     State
	sending   bool
	resetting bool
	closed    bool
	cancel    context.CancelFunc
	gen       uint64
	subs      map[int]func(Snapshot)
	nextSub   int
}

// NewController creates a controller for one (target, conversation) pair.
func NewController(t Transport, opts Options) *Controller {
	if opts.ConversationID == "" {
		opts.ConversationID = model.NewID()
	}
	if opts.Kind == "" {
		opts.Kind = stream.ChatTypeAgent
	}
	if opts.Mode == "" {
		opts.Mode = stream.ChatModeLive
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	return &Controller{
		transport:      t,
		reducer:        opts.Reducer,
		targetID:       opts.TargetID,
		kind:           opts.Kind,
		mode:           opts.Mode,
		conversationID: opts.ConversationID,
		subs:           make(map[int]func(Snapshot)),
		log: log.WithFields(logrus.Fields{
			"component":       "session",
			"target_id":       opts.TargetID,
			"conversation_id": opts.ConversationID,
		}),
	}
}

// ConversationID returns the conversation id used for every send and reset.
func (c *Controller) ConversationID() string {
	return c.conversationID
}

// TargetID returns the agent or orchestrator id.
func (c *Controller) TargetID() string {
	return c.targetID
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	transcript := make([]model.Message, len(c.state.Transcript))
	copy(transcript, c.state.Transcript)
	trace := make([]model.TraceEntry, len(c.state.Trace))
	copy(trace, c.state.Trace)

	return Snapshot{
		TargetID:       c.targetID,
		Kind:           c.kind,
		Mode:           c.mode,
		ConversationID: c.conversationID,
		Phase:          c.state.Phase,
		Transcript:     transcript,
		Trace:          trace,
		Loading:        c.state.Loading || c.sending,
		Resetting:      c.resetting,
		Error:          c.state.Error,
	}
}

// Subscribe registers fn to receive a snapshot after every state change.
// fn runs on the goroutine that made the change and must not call back into
// Send or Reset.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// update applies fn to the state and notifies subscribers. fn runs with the
// lock held. It is a no-op once the controller is closed.
func (c *Controller) update(fn func(State) State) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.state = fn(c.state)
	snap := c.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
	return true
}

// =============================================================================
// SEND
// =============================================================================

// Send submits text and blocks until the stream ends.
//
// The user entry is appended before any network activity. A transport
// failure is recorded as the session error, clears loading, and is returned.
// If the server reported an error inside an otherwise complete stream, the
// last one is returned as a *ProtocolError.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.sending || c.resetting:
		c.mu.Unlock()
		return ErrBusy
	}
	c.sending = true
	c.gen++
	gen := c.gen
	streamCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	// The final state update releases the gate; this only covers paths where
	// that update was skipped because the controller closed.
	defer func() {
		cancel()
		c.mu.Lock()
		if c.gen == gen {
			c.sending = false
			c.cancel = nil
		}
		c.mu.Unlock()
	}()

	c.update(func(s State) State { return c.reducer.Begin(s, text) })

	started := time.Now()
	log := c.log.WithField("mode", c.mode)
	log.Debug("sending message")

	body, err := c.transport.OpenStream(streamCtx, stream.Request{
		TargetID:       c.targetID,
		Kind:           c.kind,
		Mode:           c.mode,
		ConversationID: c.conversationID,
		Message:        text,
	})
	if err != nil {
		return c.fail(log, err)
	}
	defer body.Close()

	reader := stream.NewEventReader(body, log)
	var protoErr *ProtocolError
	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return c.fail(log, err)
		}

		if !c.update(func(s State) State { return c.reducer.Apply(s, ev) }) {
			return ErrClosed
		}
		if ev.Type == stream.EventError {
			protoErr = protocolErrorFrom(ev)
			log.WithField("event_type", ev.Type).Warn(protoErr.Message)
		}
	}

	c.update(func(s State) State {
		c.sending = false
		return c.reducer.Finish(s)
	})
	log.WithFields(logrus.Fields{
		"duration": time.Since(started).Round(time.Millisecond),
		"dropped":  reader.Dropped(),
	}).Debug("stream finished")

	if protoErr != nil {
		return protoErr
	}
	return nil
}

func (c *Controller) fail(log logrus.FieldLogger, err error) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	log.WithError(err).Warn("chat stream failed")
	msg := userMessage(err)
	c.update(func(s State) State {
		c.sending = false
		return c.reducer.Fail(s, msg)
	})
	return err
}

// =============================================================================
// RESET
// =============================================================================

// Reset clears the conversation on the server and then locally. It is
// rejected with ErrBusy while a stream is open. On failure the transcript and
// trace are left as they were, the session error is set, and a *ResetError
// is returned.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.sending || c.resetting:
		c.mu.Unlock()
		return ErrBusy
	}
	c.resetting = true
	c.mu.Unlock()

	c.update(func(s State) State { return s })

	err := c.transport.Reset(ctx, c.targetID, c.conversationID)

	var applied bool
	if err != nil {
		c.log.WithError(err).Warn("conversation reset failed")
		applied = c.update(func(s State) State {
			c.resetting = false
			s.Error = userMessage(err)
			return s
		})
		err = &ResetError{ConversationID: c.conversationID, Err: err}
	} else {
		c.log.Info("conversation reset")
		applied = c.update(func(s State) State {
			c.resetting = false
			return c.reducer.Clear(s)
		})
	}
	if !applied {
		c.mu.Lock()
		c.resetting = false
		c.mu.Unlock()
	}
	return err
}

// =============================================================================
// TEARDOWN
// =============================================================================

// Close cancels any open stream. Events that arrive afterwards are discarded
// and subscribers are no longer called. Close is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.subs = nil
	if c.cancel != nil {
		c.cancel()
	}
}

// Closed reports whether Close has been called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
