package db

import (
	"fmt"
	"strings"

	"github.com/mnemo-cli/mnemo/internal/core/models"
)

// SearchByKeywords runs a lexical query against the sessions FTS index and
// returns sessions with a 0-1 similarity. FTS5 rank is BM25 (lower is
// better), mapped onto 0-1 via 1/(1+|rank|).
func (db *DB) SearchByKeywords(query string, topK int) ([]Scored, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 10
	}

	rows, err := db.conn.Query(`
		SELECT s.id, rank
		FROM sessions_fts fts
		JOIN sessions s ON s.rowid = fts.rowid
		WHERE sessions_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, ftsQuery(query), topK)
	if err != nil {
		// Queries full of FTS syntax characters can still fail; treat as
		// no lexical hits rather than a search error.
		return nil, nil
	}
	defer func() { _ = rows.Close() }()

	var results []Scored
	for rows.Next() {
		var id string
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("scan keyword hit: %w", err)
		}
		if rank < 0 {
			rank = -rank
		}
		results = append(results, Scored{SessionID: id, Score: 1.0 / (1.0 + rank)})
	}
	return results, rows.Err()
}

// SearchHybrid retrieves candidate sessions for a query, with separate
// vector and keyword sub-scores. Sessions found by only one family keep a
// zero score in the other. Ranking, weighting and thresholding are the
// recall engine's job; this only fails on an empty query.
func (db *DB) SearchHybrid(q models.SearchQuery) ([]models.Candidate, error) {
	if q.Text == "" && len(q.Embedding) == 0 {
		return nil, ErrInvalidQuery
	}
	if q.TopK <= 0 {
		q.TopK = 20
	}

	type scores struct{ vector, keyword float64 }
	merged := make(map[string]*scores)

	if q.Text != "" {
		hits, err := db.SearchByKeywords(q.Text, q.TopK)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			if hit.SessionID == q.ExcludeSessionID {
				continue
			}
			merged[hit.SessionID] = &scores{keyword: hit.Score}
		}
	}

	if len(q.Embedding) > 0 {
		hits, err := db.SearchByVector(q.Embedding, q.TopK)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			if hit.SessionID == q.ExcludeSessionID {
				continue
			}
			if s, ok := merged[hit.SessionID]; ok {
				s.vector = hit.Score
			} else {
				merged[hit.SessionID] = &scores{vector: hit.Score}
			}
		}
	}

	candidates := make([]models.Candidate, 0, len(merged))
	for id, s := range merged {
		session, err := db.GetSession(id)
		if err != nil {
			// Index hit for a session deleted since the query started;
			// skip rather than fail the whole search.
			continue
		}
		candidates = append(candidates, models.Candidate{
			Session:      session,
			VectorScore:  s.vector,
			KeywordScore: s.keyword,
		})
	}
	return candidates, nil
}

// ftsQuery turns free text into an FTS5 OR-query of quoted terms, so user
// input can never be parsed as FTS syntax.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " OR ")
}
