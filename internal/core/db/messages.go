package db

import (
	"database/sql"
	"fmt"

	"github.com/mnemo-cli/mnemo/internal/core/models"
)

// AddMessage appends a message to a session. The owning session's token
// count, updated_at and sync version move in the same transaction as the
// insert, so a reader never sees the message without the session update.
func (db *DB) AddMessage(m *models.Message) error {
	if !models.ValidRole(m.Role) {
		return fmt.Errorf("invalid role %q", m.Role)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin add message: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRow("SELECT EXISTS(SELECT 1 FROM sessions WHERE id = ?)", m.SessionID).Scan(&exists); err != nil {
		return fmt.Errorf("check session %s: %w", m.SessionID, err)
	}
	if !exists {
		return fmt.Errorf("add message to %s: %w", m.SessionID, ErrUnknownSession)
	}

	content, err := db.sealContent(m.Content)
	if err != nil {
		return fmt.Errorf("seal message content: %w", err)
	}

	res, err := tx.Exec(`
		INSERT INTO messages (session_id, role, content, token_count, timestamp, has_code, code_language)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.SessionID, string(m.Role), content, m.TokenCount, m.Timestamp, m.HasCode, m.CodeLanguage)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE sessions SET
			token_count = token_count + ?,
			updated_at = ?,
			sync_status = 'local',
			sync_version = sync_version + 1
		WHERE id = ?
	`, m.TokenCount, m.Timestamp, m.SessionID)
	if err != nil {
		return fmt.Errorf("update session counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add message: %w", err)
	}

	m.ID, _ = res.LastInsertId()
	return nil
}

// GetMessages returns a session's messages in chronological order.
func (db *DB) GetMessages(sessionID string, limit, offset int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := db.conn.Query(`
		SELECT id, session_id, role, content, token_count, timestamp, has_code, code_language
		FROM messages
		WHERE session_id = ?
		ORDER BY timestamp, id
		LIMIT ? OFFSET ?
	`, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get messages %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()
	return db.scanMessages(rows)
}

// RecentMessages returns the last n messages of a session, oldest first.
func (db *DB) RecentMessages(sessionID string, n int) ([]*models.Message, error) {
	if n <= 0 {
		n = 3
	}
	rows, err := db.conn.Query(`
		SELECT id, session_id, role, content, token_count, timestamp, has_code, code_language
		FROM messages
		WHERE session_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("recent messages %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	msgs, err := db.scanMessages(rows)
	if err != nil {
		return nil, err
	}
	// Back into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MessageCount returns the number of messages in a session.
func (db *DB) MessageCount(sessionID string) (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).Scan(&count)
	return count, err
}

func (db *DB) scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	var msgs []*models.Message
	for rows.Next() {
		var m models.Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.TokenCount,
			&m.Timestamp, &m.HasCode, &m.CodeLanguage); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = models.Role(role)
		content, err := db.openContent(m.Content)
		if err != nil {
			return nil, fmt.Errorf("open message content: %w", err)
		}
		m.Content = content
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}
