package db

import (
	"fmt"
	"os"

	"github.com/mnemo-cli/mnemo/internal/core/models"
)

// Stats summarizes the store for status reporting.
type Stats struct {
	TotalSessions    int
	ArchivedSessions int
	TotalMessages    int
	TotalTokens      int64
	IndexedVectors   int
	StorageBytes     int64
	SyncStates       map[models.SyncStatus]int
}

// GetStats gathers counts and the on-disk size of the database.
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{
		IndexedVectors: db.VectorCount(),
		SyncStates:     make(map[models.SyncStatus]int),
	}

	if err := db.conn.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&stats.TotalSessions); err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM sessions WHERE is_archived = 1").Scan(&stats.ArchivedSessions); err != nil {
		return nil, fmt.Errorf("count archived: %w", err)
	}
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM messages").Scan(&stats.TotalMessages); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	if err := db.conn.QueryRow("SELECT COALESCE(SUM(token_count), 0) FROM sessions").Scan(&stats.TotalTokens); err != nil {
		return nil, fmt.Errorf("sum tokens: %w", err)
	}

	rows, err := db.conn.Query("SELECT sync_status, COUNT(*) FROM sessions GROUP BY sync_status")
	if err != nil {
		return nil, fmt.Errorf("count sync states: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.SyncStates[models.SyncStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if info, err := os.Stat(db.path); err == nil {
		stats.StorageBytes = info.Size()
	}
	return stats, nil
}
