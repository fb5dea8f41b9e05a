package models

import (
	"errors"
	"time"
)

// SyncStatus tracks where a session stands relative to the remote replica.
type SyncStatus string

const (
	SyncLocal   SyncStatus = "local"   // has changes not yet uploaded
	SyncSyncing SyncStatus = "syncing" // upload or download in flight
	SyncSynced  SyncStatus = "synced"  // matches the remote copy
	SyncError   SyncStatus = "error"   // last sync attempt failed
)

// Session is one persisted conversation, the unit of indexing, recall and sync.
type Session struct {
	ID          string
	Title       string
	Summary     string
	Keywords    []string
	CreatedAt   int64 // unix seconds
	UpdatedAt   int64
	TokenCount  int
	WorkDir     string
	IsArchived  bool
	SyncStatus  SyncStatus
	SyncVersion int64

	// Index bookkeeping: how much of the session the index manager has seen.
	IndexedAt           int64
	IndexedMessageCount int
}

// NewSession creates a session with timestamps set to now.
func NewSession(id, title, workDir string) *Session {
	now := time.Now().Unix()
	return &Session{
		ID:          id,
		Title:       title,
		WorkDir:     workDir,
		CreatedAt:   now,
		UpdatedAt:   now,
		SyncStatus:  SyncLocal,
		SyncVersion: 1,
	}
}

// Validate checks that the session has required fields.
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}
	if s.Title == "" {
		return errors.New("session title is required")
	}
	return nil
}

// AgeDays returns how old the session's last update is, in days.
func (s *Session) AgeDays(now time.Time) float64 {
	return now.Sub(time.Unix(s.UpdatedAt, 0)).Hours() / 24
}
