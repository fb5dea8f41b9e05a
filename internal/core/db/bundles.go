package db

import (
	"fmt"

	"github.com/mnemo-cli/mnemo/internal/core/models"
)

// ExportBundle loads a session with its complete message history.
func (db *DB) ExportBundle(sessionID string) (*models.SessionBundle, error) {
	session, err := db.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	messages, err := db.GetMessages(sessionID, 0, 0)
	if err != nil {
		return nil, err
	}
	return &models.SessionBundle{Session: session, Messages: messages}, nil
}

// ApplyBundles applies a downloaded batch of session bundles in a single
// transaction: either every bundle lands or none does, so a failure mid-batch
// cannot leave partially-updated local state. Applied sessions are marked
// synced with the version the remote assigned, and flagged for reindexing
// (embeddings are recomputed locally, never transferred).
func (db *DB) ApplyBundles(bundles []*models.SessionBundle) error {
	if len(bundles) == 0 {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin apply: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, b := range bundles {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("apply bundle: %w", err)
		}
		s := b.Session

		_, err := tx.Exec(`
			INSERT INTO sessions
			(id, title, summary, keywords, created_at, updated_at, token_count,
			 work_dir, is_archived, sync_status, sync_version, indexed_at, indexed_message_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'synced', ?, 0, 0)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				summary = excluded.summary,
				keywords = excluded.keywords,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at,
				token_count = excluded.token_count,
				work_dir = excluded.work_dir,
				is_archived = excluded.is_archived,
				sync_status = 'synced',
				sync_version = excluded.sync_version,
				indexed_at = 0,
				indexed_message_count = 0
		`, s.ID, s.Title, s.Summary, marshalKeywords(s.Keywords), s.CreatedAt, s.UpdatedAt,
			s.TokenCount, s.WorkDir, s.IsArchived, s.SyncVersion)
		if err != nil {
			return fmt.Errorf("apply session %s: %w", s.ID, err)
		}

		// Replace the message history wholesale; messages are immutable so
		// the remote copy is authoritative after a download.
		if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", s.ID); err != nil {
			return fmt.Errorf("clear messages %s: %w", s.ID, err)
		}
		for _, m := range b.Messages {
			content, err := db.sealContent(m.Content)
			if err != nil {
				return fmt.Errorf("seal message content: %w", err)
			}
			_, err = tx.Exec(`
				INSERT INTO messages (session_id, role, content, token_count, timestamp, has_code, code_language)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, m.SessionID, string(m.Role), content, m.TokenCount, m.Timestamp, m.HasCode, m.CodeLanguage)
			if err != nil {
				return fmt.Errorf("apply message for %s: %w", s.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit apply: %w", err)
	}
	return nil
}
