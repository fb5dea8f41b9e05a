package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mnemo-cli/mnemo/internal/core/models"
)

const sessionColumns = `id, title, summary, keywords, created_at, updated_at,
	token_count, work_dir, is_archived, sync_status, sync_version,
	indexed_at, indexed_message_count`

// CreateSession inserts a new session. The lexical projection is populated
// by trigger in the same statement's transaction.
func (db *DB) CreateSession(s *models.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}

	var exists bool
	if err := db.conn.QueryRow("SELECT EXISTS(SELECT 1 FROM sessions WHERE id = ?)", s.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check session %s: %w", s.ID, err)
	}
	if exists {
		return fmt.Errorf("create session %s: %w", s.ID, ErrDuplicateID)
	}

	_, err := db.conn.Exec(`
		INSERT INTO sessions
		(id, title, summary, keywords, created_at, updated_at, token_count,
		 work_dir, is_archived, sync_status, sync_version, indexed_at, indexed_message_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Title, s.Summary, marshalKeywords(s.Keywords), s.CreatedAt, s.UpdatedAt,
		s.TokenCount, s.WorkDir, s.IsArchived, string(s.SyncStatus), s.SyncVersion,
		s.IndexedAt, s.IndexedMessageCount)
	if err != nil {
		return fmt.Errorf("create session %s: %w", s.ID, err)
	}
	return nil
}

// GetSession loads a session by id.
func (db *DB) GetSession(id string) (*models.Session, error) {
	row := db.conn.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, ErrUnknownSession)
	}
	return s, err
}

// HasSession reports whether a session exists without loading it.
func (db *DB) HasSession(id string) (bool, error) {
	var exists bool
	err := db.conn.QueryRow("SELECT EXISTS(SELECT 1 FROM sessions WHERE id = ?)", id).Scan(&exists)
	return exists, err
}

// UpdateSession writes a session's mutable fields. Any accepted local write
// strictly increases sync_version and drops the session back to local sync
// state; updated_at is taken from the struct so callers control recency.
func (db *DB) UpdateSession(s *models.Session) error {
	res, err := db.conn.Exec(`
		UPDATE sessions SET
			title = ?, summary = ?, keywords = ?, updated_at = ?,
			token_count = ?, work_dir = ?, is_archived = ?,
			sync_status = 'local', sync_version = sync_version + 1
		WHERE id = ?
	`, s.Title, s.Summary, marshalKeywords(s.Keywords), s.UpdatedAt,
		s.TokenCount, s.WorkDir, s.IsArchived, s.ID)
	if err != nil {
		return fmt.Errorf("update session %s: %w", s.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update session %s: %w", s.ID, ErrUnknownSession)
	}
	s.SyncStatus = models.SyncLocal
	s.SyncVersion++
	return nil
}

// MarkIndexed records the outcome of an indexing run: derived summary and
// keywords plus bookkeeping. The lexical projection follows by trigger.
// updated_at is deliberately untouched so indexing does not distort recency.
func (db *DB) MarkIndexed(id, summary string, keywords []string, tokenCount, messageCount int, at int64) error {
	res, err := db.conn.Exec(`
		UPDATE sessions SET
			summary = ?, keywords = ?, token_count = ?,
			indexed_at = ?, indexed_message_count = ?,
			sync_version = sync_version + 1
		WHERE id = ?
	`, summary, marshalKeywords(keywords), tokenCount, at, messageCount, id)
	if err != nil {
		return fmt.Errorf("mark indexed %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark indexed %s: %w", id, ErrUnknownSession)
	}
	return nil
}

// SetArchived flips the archive flag.
func (db *DB) SetArchived(id string, archived bool) error {
	res, err := db.conn.Exec(`
		UPDATE sessions SET is_archived = ?, sync_status = 'local',
			sync_version = sync_version + 1
		WHERE id = ?
	`, archived, id)
	if err != nil {
		return fmt.Errorf("archive session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("archive session %s: %w", id, ErrUnknownSession)
	}
	return nil
}

// SetSyncState updates sync bookkeeping without counting as a content write:
// the version is only overwritten when the sync protocol assigns one.
func (db *DB) SetSyncState(id string, status models.SyncStatus, version int64) error {
	var err error
	if version > 0 {
		_, err = db.conn.Exec("UPDATE sessions SET sync_status = ?, sync_version = ? WHERE id = ?",
			string(status), version, id)
	} else {
		_, err = db.conn.Exec("UPDATE sessions SET sync_status = ? WHERE id = ?", string(status), id)
	}
	if err != nil {
		return fmt.Errorf("set sync state %s: %w", id, err)
	}
	return nil
}

// DeleteSession removes a session with its messages, lexical entry and
// vector entry as one transaction; no partial deletes are observable.
func (db *DB) DeleteSession(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete session %s: %w", id, ErrUnknownSession)
	}
	// Messages and vectors cascade via foreign keys; the FTS row goes by
	// trigger. Run the deletes explicitly anyway so the cascade does not
	// depend on pragma state.
	if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("delete messages %s: %w", id, err)
	}
	if _, err := tx.Exec("DELETE FROM session_vectors WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("delete vector %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete %s: %w", id, err)
	}

	db.vmu.Lock()
	delete(db.vectors, id)
	db.vmu.Unlock()
	return nil
}

// ListOptions filters ListSessions.
type ListOptions struct {
	Limit        int
	Offset       int
	Archived     *bool
	UpdatedSince int64
	WorkDir      string
}

// ListSessions returns sessions in reverse chronological order.
func (db *DB) ListSessions(opts ListOptions) ([]*models.Session, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}

	query := "SELECT " + sessionColumns + " FROM sessions WHERE 1=1"
	args := []any{}
	if opts.Archived != nil {
		query += " AND is_archived = ?"
		args = append(args, *opts.Archived)
	}
	if opts.UpdatedSince > 0 {
		query += " AND updated_at >= ?"
		args = append(args, opts.UpdatedSince)
	}
	if opts.WorkDir != "" {
		query += " AND work_dir LIKE ?"
		args = append(args, "%"+opts.WorkDir+"%")
	}
	query += " ORDER BY updated_at DESC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSessions(rows)
}

// PendingSyncSessions returns sessions with local changes or failed syncs,
// oldest first so retries do not starve.
func (db *DB) PendingSyncSessions(limit int) ([]*models.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.Query(
		"SELECT "+sessionColumns+" FROM sessions WHERE sync_status IN ('local', 'error') ORDER BY updated_at ASC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("pending sync sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSessions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var keywords, status string
	err := row.Scan(&s.ID, &s.Title, &s.Summary, &keywords, &s.CreatedAt, &s.UpdatedAt,
		&s.TokenCount, &s.WorkDir, &s.IsArchived, &status, &s.SyncVersion,
		&s.IndexedAt, &s.IndexedMessageCount)
	if err != nil {
		return nil, err
	}
	s.SyncStatus = models.SyncStatus(status)
	s.Keywords = unmarshalKeywords(keywords)
	return &s, nil
}

func scanSessions(rows *sql.Rows) ([]*models.Session, error) {
	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func marshalKeywords(keywords []string) string {
	if len(keywords) == 0 {
		return "[]"
	}
	data, err := json.Marshal(keywords)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func unmarshalKeywords(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var keywords []string
	if err := json.Unmarshal([]byte(raw), &keywords); err != nil {
		return nil
	}
	return keywords
}

// nowUnix is a seam for tests that need deterministic timestamps.
var nowUnix = func() int64 { return time.Now().Unix() }
