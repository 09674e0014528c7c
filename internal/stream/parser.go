// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// PARSER CONSTANTS
// =============================================================================

// MaxLineSize bounds a single buffered line (1MB). A line that grows past it
// without a terminator is discarded as malformed.
const MaxLineSize = 1024 * 1024

var dataPrefix = []byte("data: ")

// =============================================================================
// PARSE ERROR
// =============================================================================

// ParseError describes a data line that could not be decoded. It is recovered
// inside the parser and never surfaced to the session.
type ParseError struct {
	Line string
	Err  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed event line (%d bytes): %v", len(e.Line), e.Err)
}

// Unwrap returns the underlying decode error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// =============================================================================
// PARSER
// =============================================================================

// Parser converts arbitrarily chunked stream bytes into Events.
//
// Bytes are held until a line feed arrives, so a line (or a multi-byte UTF-8
// character inside it) may be split across any number of Feed calls. The
// resulting events do not depend on where the chunk boundaries fall.
type Parser struct {
	buf      []byte
	skipping bool // remainder of an oversized line
	dropped  int
	log      logrus.FieldLogger
}

// NewParser creates a parser. A nil logger discards parse diagnostics.
func NewParser(log logrus.FieldLogger) *Parser {
	if log == nil {
		log = discardLogger()
	}
	return &Parser{log: log}
}

// Feed appends a chunk and returns every event completed by it.
func (p *Parser) Feed(chunk []byte) []Event {
	var events []Event
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			if !p.skipping {
				p.buf = append(p.buf, chunk...)
				if len(p.buf) > MaxLineSize {
					p.drop(&ParseError{Line: string(p.buf[:64]), Err: fmt.Errorf("line exceeds %d bytes", MaxLineSize)})
					p.buf = p.buf[:0]
					p.skipping = true
				}
			}
			break
		}
		if p.skipping {
			p.skipping = false
			chunk = chunk[i+1:]
			continue
		}

		var line []byte
		if len(p.buf) > 0 {
			p.buf = append(p.buf, chunk[:i]...)
			line = p.buf
		} else {
			line = chunk[:i]
		}
		if ev, ok := p.parseLine(line); ok {
			events = append(events, ev)
		}
		p.buf = p.buf[:0]
		chunk = chunk[i+1:]
	}
	return events
}

// Flush parses any trailing unterminated line. Call it once the body ends.
func (p *Parser) Flush() []Event {
	if len(p.buf) == 0 {
		return nil
	}
	line := p.buf
	p.buf = nil
	if p.skipping {
		p.skipping = false
		return nil
	}
	if ev, ok := p.parseLine(line); ok {
		return []Event{ev}
	}
	return nil
}

// Dropped returns how many data lines were discarded as malformed.
func (p *Parser) Dropped() int {
	return p.dropped
}

// Reset discards buffered bytes and counters.
func (p *Parser) Reset() {
	p.buf = nil
	p.skipping = false
	p.dropped = 0
}

func (p *Parser) parseLine(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))

	// Blank lines, comments, and event:/id:/retry: fields carry nothing
	// for this protocol.
	if !bytes.HasPrefix(line, dataPrefix) {
		return Event{}, false
	}

	ev, err := DecodeEvent(line[len(dataPrefix):])
	if err != nil {
		p.drop(err)
		return Event{}, false
	}
	return ev, true
}

func (p *Parser) drop(err error) {
	p.dropped++
	p.log.WithError(err).Debug("dropping malformed stream line")
}

// DecodeEvent decodes the JSON payload of one data line.
func DecodeEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, &ParseError{Line: string(payload), Err: err}
	}
	return ev, nil
}

// =============================================================================
// EVENT READER
// =============================================================================

// readBufferSize is the read size used by EventReader.
const readBufferSize = 4096

// EventReader yields the events of a stream body one at a time. The sequence
// is finite and cannot be restarted; Next returns io.EOF once the body ends.
type EventReader struct {
	src     io.Reader
	parser  *Parser
	buf     []byte
	pending []Event
	err     error
}

// NewEventReader wraps r, which should yield raw stream bytes.
func NewEventReader(r io.Reader, log logrus.FieldLogger) *EventReader {
	return &EventReader{
		src:    r,
		parser: NewParser(log),
		buf:    make([]byte, readBufferSize),
	}
}

// Next returns the next event. Errors other than io.EOF come from the
// underlying reader.
func (r *EventReader) Next() (Event, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return Event{}, r.err
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.pending = append(r.pending, r.parser.Feed(r.buf[:n])...)
		}
		if err != nil {
			if err == io.EOF {
				r.pending = append(r.pending, r.parser.Flush()...)
			}
			r.err = err
		}
	}

	ev := r.pending[0]
	r.pending = r.pending[1:]
	return ev, nil
}

// Dropped returns how many malformed lines were skipped so far.
func (r *EventReader) Dropped() int {
	return r.parser.Dropped()
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
