// Package recall ranks past sessions against a query by combining vector
// and lexical similarity, with recency decay and a relevance floor.
package recall

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mnemo-cli/mnemo/internal/core/config"
	"github.com/mnemo-cli/mnemo/internal/core/db"
	"github.com/mnemo-cli/mnemo/internal/core/embedding"
	"github.com/mnemo-cli/mnemo/internal/core/models"
)

// ErrUnavailable means no search family could run: embeddings are down or
// disabled and the query has no usable text.
var ErrUnavailable = errors.New("recall unavailable")

// Request describes one recall. Query may be empty when SessionID names an
// active session; the query is then derived from that session's recent
// user messages.
type Request struct {
	Query     string
	SessionID string // active session, excluded from results
	Limit     int    // 0 means the configured max
}

// Engine executes recall requests against the store.
type Engine struct {
	store    *db.DB
	provider embedding.Provider
	cfg      config.RecallConfig

	// now is a seam for decay tests.
	now func() time.Time
}

func NewEngine(store *db.DB, provider embedding.Provider, cfg config.RecallConfig) *Engine {
	return &Engine{store: store, provider: provider, cfg: cfg, now: time.Now}
}

// Recall returns up to Limit past sessions relevant to the request, best
// first. Results below the configured relevance floor are dropped entirely;
// an empty result is a valid answer.
func (e *Engine) Recall(ctx context.Context, req Request) ([]*models.RecallResult, error) {
	query, err := e.resolveQuery(req)
	if err != nil {
		return nil, err
	}

	sq := models.SearchQuery{
		Text:             query,
		ExcludeSessionID: req.SessionID,
		TopK:             e.cfg.CandidateK,
	}

	if e.provider != nil {
		vector, err := e.provider.Embed(ctx, query)
		if err != nil {
			if !errors.Is(err, embedding.ErrUnavailable) {
				return nil, fmt.Errorf("embed query: %w", err)
			}
			// Provider down: lexical search still answers.
			log.Debug("query embedding unavailable, lexical-only recall", "err", err)
		} else {
			sq.Embedding = vector
		}
	}

	candidates, err := e.store.SearchHybrid(sq)
	if err != nil {
		if errors.Is(err, db.ErrInvalidQuery) {
			return nil, ErrUnavailable
		}
		return nil, err
	}

	results := e.rank(candidates)

	limit := req.Limit
	if limit <= 0 || limit > e.cfg.MaxResults {
		limit = e.cfg.MaxResults
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	if err := e.attachContext(results); err != nil {
		return nil, err
	}
	return results, nil
}

// resolveQuery returns the effective query text: the explicit one, or a
// digest of the active session's recent user messages.
func (e *Engine) resolveQuery(req Request) (string, error) {
	if q := strings.TrimSpace(req.Query); q != "" {
		return q, nil
	}
	if req.SessionID == "" {
		return "", ErrUnavailable
	}
	recent, err := e.store.RecentMessages(req.SessionID, 5)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, m := range recent {
		if m.Role == models.RoleUser {
			parts = append(parts, m.Content)
		}
	}
	derived := strings.TrimSpace(strings.Join(parts, " "))
	if derived == "" {
		return "", ErrUnavailable
	}
	const maxDerived = 1000
	if len(derived) > maxDerived {
		derived = derived[len(derived)-maxDerived:]
	}
	return derived, nil
}

// rank turns raw candidates into scored results: weighted sum of the two
// sub-scores, multiplied by exponential recency decay, filtered by the
// relevance floor, in a deterministic total order.
func (e *Engine) rank(candidates []models.Candidate) []*models.RecallResult {
	now := e.now()
	results := make([]*models.RecallResult, 0, len(candidates))
	for _, c := range candidates {
		combined := e.cfg.VectorWeight*c.VectorScore + e.cfg.KeywordWeight*c.KeywordScore
		if e.cfg.DecayRate > 0 {
			age := c.Session.AgeDays(now)
			if age > 0 {
				combined *= math.Exp(-e.cfg.DecayRate * age)
			}
		}
		if combined < e.cfg.MinScore {
			continue
		}
		results = append(results, &models.RecallResult{
			Session:       c.Session,
			VectorScore:   c.VectorScore,
			KeywordScore:  c.KeywordScore,
			CombinedScore: combined,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].CombinedScore != results[j].CombinedScore {
			return results[i].CombinedScore > results[j].CombinedScore
		}
		if results[i].Session.UpdatedAt != results[j].Session.UpdatedAt {
			return results[i].Session.UpdatedAt > results[j].Session.UpdatedAt
		}
		return results[i].Session.ID < results[j].Session.ID
	})
	return results
}

// attachContext pulls the trailing messages of each surviving result so a
// caller can show what the recalled session was about.
func (e *Engine) attachContext(results []*models.RecallResult) error {
	n := e.cfg.ContextMessages
	if n <= 0 {
		return nil
	}
	for _, r := range results {
		msgs, err := e.store.RecentMessages(r.Session.ID, n)
		if err != nil {
			return fmt.Errorf("context for %s: %w", r.Session.ID, err)
		}
		r.ContextMessages = msgs
	}
	return nil
}
