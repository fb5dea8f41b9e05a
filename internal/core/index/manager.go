// Package index derives the searchable projection of a session: keywords,
// summary and embedding. Indexing runs in the background, off the message
// ingest path, and is idempotent per session.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/mnemo-cli/mnemo/internal/core/config"
	"github.com/mnemo-cli/mnemo/internal/core/db"
	"github.com/mnemo-cli/mnemo/internal/core/embedding"
	"github.com/mnemo-cli/mnemo/internal/core/models"
)

const (
	embedAttempts   = 3
	embedRetryDelay = 500 * time.Millisecond
	embedInputMax   = 4000
)

// Manager runs the indexing pipeline. Concurrent requests for the same
// session collapse into one run.
type Manager struct {
	store    *db.DB
	provider embedding.Provider
	cfg      config.IndexConfig
	privacy  config.PrivacyConfig
	group    singleflight.Group

	// retryDelay is a seam for tests; production keeps the default.
	retryDelay time.Duration
}

func NewManager(store *db.DB, provider embedding.Provider, cfg config.IndexConfig, privacy config.PrivacyConfig) *Manager {
	return &Manager{
		store:      store,
		provider:   provider,
		cfg:        cfg,
		privacy:    privacy,
		retryDelay: embedRetryDelay,
	}
}

// NeedsIndex reports whether a session is due for reindexing: enough new
// messages since the last run, or activity left unindexed past the idle
// window. A session with no messages never needs indexing.
func (m *Manager) NeedsIndex(s *models.Session, messageCount int, now time.Time) bool {
	if messageCount == 0 {
		return false
	}
	newMessages := messageCount - s.IndexedMessageCount
	if newMessages <= 0 {
		return false
	}
	threshold := m.cfg.MessageThreshold
	if threshold <= 0 {
		threshold = 5
	}
	if newMessages >= threshold {
		return true
	}
	idle := time.Duration(m.cfg.IdleIntervalMinutes) * time.Minute
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return now.Unix()-s.UpdatedAt >= int64(idle.Seconds())
}

// IndexSession runs the full pipeline for one session. Safe to call
// concurrently; duplicate in-flight requests share a single run. The
// lexical projection (keywords, summary) always lands before the embedding
// step, so a failed embed still leaves the session findable by keyword.
func (m *Manager) IndexSession(ctx context.Context, sessionID string) error {
	_, err, _ := m.group.Do(sessionID, func() (any, error) {
		return nil, m.indexSession(ctx, sessionID)
	})
	return err
}

func (m *Manager) indexSession(ctx context.Context, sessionID string) error {
	session, err := m.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	messages, err := m.store.GetMessages(sessionID, 0, 0)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	// Messages touching excluded topics contribute nothing to the
	// derived projection.
	visible := m.filterExcluded(messages)

	texts := make([]string, 0, len(visible)+1)
	texts = append(texts, session.Title)
	for _, msg := range visible {
		texts = append(texts, msg.Content)
	}
	keywords := ExtractKeywords(texts, m.cfg.MaxKeywords)
	summary := Summarize(visible)

	tokens := 0
	for _, msg := range messages {
		tokens += msg.TokenCount
	}

	now := time.Now().Unix()
	if err := m.store.MarkIndexed(sessionID, summary, keywords, tokens, len(messages), now); err != nil {
		return fmt.Errorf("store index result: %w", err)
	}
	log.Debug("indexed session", "session", sessionID, "keywords", len(keywords), "messages", len(messages))

	if m.provider == nil {
		return nil
	}

	input := m.embedInput(session, summary, keywords, visible)
	if strings.TrimSpace(input) == "" {
		return nil
	}
	vector, err := m.embedWithRetry(ctx, input)
	if err != nil {
		log.Warn("embedding failed, session remains keyword-searchable", "session", sessionID, "err", err)
		return fmt.Errorf("embed session %s: %w", sessionID, err)
	}
	if err := m.store.UpdateEmbedding(sessionID, vector, m.provider.ModelName()); err != nil {
		return fmt.Errorf("store embedding %s: %w", sessionID, err)
	}
	return nil
}

// BatchIndex reindexes every session whose stored projection is stale,
// regardless of trigger thresholds. Used after imports and downloads.
// Returns how many sessions were reindexed; per-session failures are
// logged and skipped so one bad session cannot stall the batch.
func (m *Manager) BatchIndex(ctx context.Context) (int, error) {
	sessions, err := m.store.ListSessions(db.ListOptions{Limit: 100000})
	if err != nil {
		return 0, err
	}

	indexed := 0
	for _, s := range sessions {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		count, err := m.store.MessageCount(s.ID)
		if err != nil {
			return indexed, err
		}
		if count == 0 || count == s.IndexedMessageCount {
			continue
		}
		if err := m.IndexSession(ctx, s.ID); err != nil {
			log.Warn("batch index skipped session", "session", s.ID, "err", err)
			continue
		}
		indexed++
	}
	return indexed, nil
}

// filterExcluded drops messages whose content matches a configured
// sensitive keyword. Matching is case-insensitive substring.
func (m *Manager) filterExcluded(messages []*models.Message) []*models.Message {
	if len(m.privacy.ExcludeKeywords) == 0 {
		return messages
	}
	visible := make([]*models.Message, 0, len(messages))
outer:
	for _, msg := range messages {
		lower := strings.ToLower(msg.Content)
		for _, kw := range m.privacy.ExcludeKeywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				continue outer
			}
		}
		visible = append(visible, msg)
	}
	return visible
}

// embedInput assembles the text the session vector is computed from:
// title, derived summary and keywords, then leading user content up to a
// size cap.
func (m *Manager) embedInput(session *models.Session, summary string, keywords []string, messages []*models.Message) string {
	var b strings.Builder
	b.WriteString(session.Title)
	b.WriteString("\n")
	b.WriteString(summary)
	b.WriteString("\n")
	b.WriteString(strings.Join(keywords, " "))
	for _, msg := range messages {
		if msg.Role != models.RoleUser {
			continue
		}
		if b.Len() >= embedInputMax {
			break
		}
		b.WriteString("\n")
		b.WriteString(msg.Content)
	}
	input := b.String()
	if len(input) > embedInputMax {
		input = input[:embedInputMax]
	}
	return input
}

// embedWithRetry retries transient provider failures with doubling delay.
// Invalid input is permanent and returns immediately.
func (m *Manager) embedWithRetry(ctx context.Context, input string) ([]float32, error) {
	delay := m.retryDelay
	var lastErr error
	for attempt := 0; attempt < embedAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		vector, err := m.provider.Embed(ctx, input)
		if err == nil {
			return vector, nil
		}
		if !errors.Is(err, embedding.ErrUnavailable) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
