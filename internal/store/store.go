// Package store provides SQLite persistence for audit records,
// conversation history, notes, and settings.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     TEXT NOT NULL,
	trace_id    TEXT DEFAULT '',
	command     TEXT NOT NULL,
	action      TEXT NOT NULL,
	parameters  TEXT DEFAULT '{}',
	result      TEXT DEFAULT '',
	success     INTEGER NOT NULL DEFAULT 1,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_log(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_trace ON audit_log(trace_id);

CREATE TABLE IF NOT EXISTS conversations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     TEXT NOT NULL,
	role        TEXT NOT NULL CHECK(role IN ('user', 'assistant')),
	message     TEXT NOT NULL,
	action      TEXT DEFAULT NULL,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_conv_user ON conversations(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS notes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     TEXT NOT NULL,
	title       TEXT NOT NULL,
	content     TEXT DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
	key         TEXT PRIMARY KEY,
	value       TEXT NOT NULL,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Service wraps the SQLite database.
type Service struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath and applies the schema.
func Open(dbPath string) (*Service, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Service{db: db}, nil
}

// DB exposes the underlying handle for diagnostics.
func (s *Service) DB() *sql.DB { return s.db }

func (s *Service) Close() error { return s.db.Close() }

// AuditEntry is one persisted routing/dispatch outcome.
type AuditEntry struct {
	ID         int64
	UserID     string
	TraceID    string
	Command    string
	Action     string
	Parameters map[string]any
	Result     string
	Success    bool
	CreatedAt  time.Time
}

// InsertAudit appends an audit entry. Oversized fields are truncated.
func (s *Service) InsertAudit(e *AuditEntry) error {
	params, _ := json.Marshal(e.Parameters)
	if e.Parameters == nil {
		params = []byte("{}")
	}
	success := 0
	if e.Success {
		success = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO audit_log (user_id, trace_id, command, action, parameters, result, success)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.TraceID, truncate(e.Command, 2000), e.Action,
		string(params), truncate(e.Result, 5000), success,
	)
	return err
}

// ListAudit returns recent audit entries, newest first. userID filters when
// non-empty.
func (s *Service) ListAudit(userID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, user_id, trace_id, command, action, parameters, result, success, created_at
	          FROM audit_log`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var params string
		var success int
		if err := rows.Scan(&e.ID, &e.UserID, &e.TraceID, &e.Command, &e.Action, &params, &e.Result, &success, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Success = success == 1
		_ = json.Unmarshal([]byte(params), &e.Parameters)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CommandStats summarizes a user's audit history.
type CommandStats struct {
	Total      int
	Successes  int
	Failures   int
	TopActions []ActionCount
}

// ActionCount is one action's usage count.
type ActionCount struct {
	Action string
	Count  int
}

// Stats returns usage statistics for a user.
func (s *Service) Stats(userID string) (*CommandStats, error) {
	var total, successes int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM audit_log WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM audit_log WHERE user_id = ? AND success = 1`, userID).Scan(&successes); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT action, COUNT(*) AS cnt FROM audit_log WHERE user_id = ?
		 GROUP BY action ORDER BY cnt DESC LIMIT 5`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &CommandStats{Total: total, Successes: successes, Failures: total - successes}
	for rows.Next() {
		var ac ActionCount
		if err := rows.Scan(&ac.Action, &ac.Count); err != nil {
			return nil, err
		}
		stats.TopActions = append(stats.TopActions, ac)
	}
	return stats, rows.Err()
}

// Message is one conversation turn.
type Message struct {
	Role      string
	Content   string
	Action    string
	CreatedAt time.Time
}

// SaveMessage appends a conversation message. action may be empty.
func (s *Service) SaveMessage(userID, role, content, action string) error {
	var act any
	if action != "" {
		act = action
	}
	_, err := s.db.Exec(
		`INSERT INTO conversations (user_id, role, message, action) VALUES (?, ?, ?, ?)`,
		userID, role, truncate(content, 10000), act,
	)
	return err
}

// RecentMessages returns the user's latest messages in chronological order.
func (s *Service) RecentMessages(userID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT role, message, COALESCE(action, ''), created_at FROM conversations
		 WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content, &m.Action, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse to chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ClearHistory deletes a user's conversation history, returning the count.
func (s *Service) ClearHistory(userID string) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM conversations WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Note is a saved user note.
type Note struct {
	ID        int64
	Title     string
	Content   string
	CreatedAt time.Time
}

// SaveNote stores a note and returns its ID.
func (s *Service) SaveNote(userID, title, content string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO notes (user_id, title, content) VALUES (?, ?, ?)`,
		userID, title, content,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListNotes returns the user's most recent notes.
func (s *Service) ListNotes(userID string, limit int) ([]Note, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, title, content, created_at FROM notes
		 WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// DeleteNote removes one of the user's notes, reporting whether it existed.
func (s *Service) DeleteNote(userID string, id int64) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM notes WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetSetting returns a setting value, empty when missing.
func (s *Service) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetSetting upserts a setting value.
func (s *Service) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	return err
}

// truncate caps s at max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
