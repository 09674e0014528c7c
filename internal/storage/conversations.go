// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/studio-tui/internal/model"
	"github.com/jeranaias/studio-tui/internal/session"
)

// =============================================================================
// RECORD TYPES
// =============================================================================

// Record is an archived chat: the transcript and trace as they stood when
// the operator saved them.
type Record struct {
	ID             string             `json:"id" yaml:"id"`
	ConversationID string             `json:"conversation_id" yaml:"conversation_id"`
	TargetID       string             `json:"target_id" yaml:"target_id"`
	Kind           string             `json:"chat_type" yaml:"chat_type"`
	Mode           string             `json:"chat_mode" yaml:"chat_mode"`
	Summary        string             `json:"summary" yaml:"summary"`
	CreatedAt      time.Time          `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" yaml:"updated_at"`
	Messages       []model.Message    `json:"messages" yaml:"messages"`
	Trace          []model.TraceEntry `json:"trace" yaml:"trace"`
}

// Meta is the listing view of a record.
type Meta struct {
	ID             string    `json:"id" yaml:"id"`
	ConversationID string    `json:"conversation_id" yaml:"conversation_id"`
	TargetID       string    `json:"target_id" yaml:"target_id"`
	Kind           string    `json:"chat_type" yaml:"chat_type"`
	Summary        string    `json:"summary" yaml:"summary"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" yaml:"updated_at"`
	MessageCount   int       `json:"message_count" yaml:"message_count"`
	TraceCount     int       `json:"trace_count" yaml:"trace_count"`
}

// FromSnapshot builds a record from a live session. Saving the same
// conversation twice updates the existing record.
func FromSnapshot(snap session.Snapshot) *Record {
	return &Record{
		ID:             "chat_" + snap.ConversationID,
		ConversationID: snap.ConversationID,
		TargetID:       snap.TargetID,
		Kind:           string(snap.Kind),
		Mode:           string(snap.Mode),
		Messages:       snap.Transcript,
		Trace:          snap.Trace,
	}
}

// =============================================================================
// STORE
// =============================================================================

// ErrNotFound is returned when a record doesn't exist.
var ErrNotFound = errors.New("record not found")

// DefaultMaxRecords caps the archive; the oldest records are dropped first.
const DefaultMaxRecords = 500

// Store is the SQLite-backed transcript archive.
type Store struct {
	db *sql.DB

	// MaxRecords limits stored records (0 = unlimited).
	MaxRecords int

	now func() time.Time
}

// Open opens or creates the archive at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, MaxRecords: DefaultMaxRecords, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes the record, replacing any earlier version with the same ID,
// and returns the ID.
func (s *Store) Save(ctx context.Context, rec *Record) (string, error) {
	if rec.ID == "" {
		rec.ID = "chat_" + model.NewID()
	}
	if rec.Summary == "" {
		rec.Summary = summarize(rec.Messages)
	}
	now := s.now().UTC()
	rec.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	// Keep the original creation time across re-saves.
	var created string
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM conversations WHERE id = ?`, rec.ID).Scan(&created)
	switch {
	case err == nil:
		rec.CreatedAt = parseTime(created)
	case errors.Is(err, sql.ErrNoRows):
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
	default:
		return "", err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, rec.ID); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, conversation_id, target_id, chat_type, chat_mode, summary, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ConversationID, rec.TargetID, rec.Kind, rec.Mode, rec.Summary,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	); err != nil {
		return "", fmt.Errorf("failed to insert record: %w", err)
	}

	for i, m := range rec.Messages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (record_id, seq, id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, i, m.ID, string(m.Role), m.Content, formatTime(m.Timestamp),
		); err != nil {
			return "", fmt.Errorf("failed to insert message: %w", err)
		}
	}

	for i, t := range rec.Trace {
		payload, err := json.Marshal(t.Payload)
		if err != nil {
			return "", fmt.Errorf("failed to encode trace payload: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO traces (record_id, seq, id, event_type, payload, session_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, t.ID, t.Type, string(payload), t.SessionID, formatTime(t.Timestamp),
		); err != nil {
			return "", fmt.Errorf("failed to insert trace entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}

	if s.MaxRecords > 0 {
		if err := s.enforceLimit(ctx); err != nil {
			return rec.ID, err
		}
	}
	return rec.ID, nil
}

// enforceLimit removes the oldest records beyond MaxRecords.
func (s *Store) enforceLimit(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE id IN (
			SELECT id FROM conversations ORDER BY updated_at DESC LIMIT -1 OFFSET ?
		)`, s.MaxRecords)
	return err
}

// List returns record metadata, most recently updated first. A limit of 0
// returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Meta, error) {
	return s.queryMeta(ctx, "", nil, limit)
}

// Search returns records whose summary or any message contains query,
// case-insensitively.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Meta, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.List(ctx, limit)
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	where := `WHERE lower(c.summary) LIKE ? ESCAPE '\'
		OR EXISTS (SELECT 1 FROM messages m WHERE m.record_id = c.id AND lower(m.content) LIKE ? ESCAPE '\')`
	return s.queryMeta(ctx, where, []any{pattern, pattern}, limit)
}

func (s *Store) queryMeta(ctx context.Context, where string, args []any, limit int) ([]Meta, error) {
	q := `SELECT c.id, c.conversation_id, c.target_id, c.chat_type, c.summary, c.created_at, c.updated_at,
		(SELECT COUNT(*) FROM messages m WHERE m.record_id = c.id),
		(SELECT COUNT(*) FROM traces t WHERE t.record_id = c.id)
		FROM conversations c ` + where + ` ORDER BY c.updated_at DESC`
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metas := []Meta{}
	for rows.Next() {
		var m Meta
		var created, updated string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.TargetID, &m.Kind, &m.Summary,
			&created, &updated, &m.MessageCount, &m.TraceCount); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(created)
		m.UpdatedAt = parseTime(updated)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// Get loads a full record. An unambiguous ID prefix is accepted.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	id, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	rec := &Record{ID: id}
	var created, updated string
	err = s.db.QueryRowContext(ctx,
		`SELECT conversation_id, target_id, chat_type, chat_mode, summary, created_at, updated_at
		 FROM conversations WHERE id = ?`, id,
	).Scan(&rec.ConversationID, &rec.TargetID, &rec.Kind, &rec.Mode, &rec.Summary, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)

	if rec.Messages, err = s.loadMessages(ctx, id); err != nil {
		return nil, err
	}
	if rec.Trace, err = s.loadTrace(ctx, id); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) loadMessages(ctx context.Context, id string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_at FROM messages WHERE record_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var role, ts string
		if err := rows.Scan(&m.ID, &role, &m.Content, &ts); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		m.Timestamp = parseTime(ts)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) loadTrace(ctx context.Context, id string) ([]model.TraceEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_type, payload, session_id, created_at FROM traces WHERE record_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TraceEntry
	for rows.Next() {
		var t model.TraceEntry
		var payload, ts string
		if err := rows.Scan(&t.ID, &t.Type, &payload, &t.SessionID, &ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &t.Payload); err != nil {
			return nil, fmt.Errorf("corrupt trace payload in %s: %w", id, err)
		}
		t.Timestamp = parseTime(ts)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Delete removes a record. An unambiguous ID prefix is accepted.
func (s *Store) Delete(ctx context.Context, id string) error {
	id, err := s.resolve(ctx, id)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// resolve expands an ID prefix to a full record ID.
func (s *Store) resolve(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM conversations WHERE id = ? OR id LIKE ? ESCAPE '\' ORDER BY id = ? DESC LIMIT 2`,
		id, escapeLike(id)+"%", id)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return "", err
		}
		if m == id {
			return m, nil
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous record id %q", id)
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// summarize uses the first user message, truncated to 50 runes.
func summarize(msgs []model.Message) string {
	for _, m := range msgs {
		if m.Role == model.RoleUser && strings.TrimSpace(m.Content) != "" {
			return m.Preview(50)
		}
	}
	return "New conversation"
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
