package db

import (
	"fmt"

	"github.com/mnemo-cli/mnemo/internal/core/models"
)

// AppendSyncLog writes one immutable audit record for a sync attempt.
func (db *DB) AppendSyncLog(entry *models.SyncLogEntry) error {
	if entry.Timestamp == 0 {
		entry.Timestamp = nowUnix()
	}
	res, err := db.conn.Exec(`
		INSERT INTO sync_log (sync_type, session_id, status, error_message, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, string(entry.Type), entry.SessionID, entry.Status, entry.Error, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("append sync log: %w", err)
	}
	entry.ID, _ = res.LastInsertId()
	return nil
}

// SyncLog returns the most recent sync log entries, newest first. An empty
// logType returns all types.
func (db *DB) SyncLog(logType models.SyncLogType, limit int) ([]*models.SyncLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT id, sync_type, session_id, status, error_message, timestamp FROM sync_log"
	args := []any{}
	if logType != "" {
		query += " WHERE sync_type = ?"
		args = append(args, string(logType))
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("read sync log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*models.SyncLogEntry
	for rows.Next() {
		var e models.SyncLogEntry
		var t string
		if err := rows.Scan(&e.ID, &t, &e.SessionID, &e.Status, &e.Error, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan sync log: %w", err)
		}
		e.Type = models.SyncLogType(t)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
