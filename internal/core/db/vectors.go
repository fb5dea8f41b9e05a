package db

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"math"
)

// Scored pairs a session id with a 0-1 similarity score.
type Scored struct {
	SessionID string
	Score     float64
}

// UpdateEmbedding upserts the vector entry for a session. Vectors are
// normalized on write so dot product equals cosine similarity. Recomputing
// replaces the prior entry; a session never has more than one.
func (db *DB) UpdateEmbedding(sessionID string, vector []float32, model string) error {
	if len(vector) != db.dims {
		return fmt.Errorf("vector for %s has %d dims, store configured for %d: %w",
			sessionID, len(vector), db.dims, ErrDimensionMismatch)
	}
	exists, err := db.HasSession(sessionID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("update embedding %s: %w", sessionID, ErrUnknownSession)
	}

	normalized := normalize(vector)

	db.vmu.Lock()
	defer db.vmu.Unlock()

	_, err = db.conn.Exec(`
		INSERT INTO session_vectors (session_id, embedding, dims, model, computed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			embedding = excluded.embedding,
			dims = excluded.dims,
			model = excluded.model,
			computed_at = excluded.computed_at
	`, sessionID, vectorToBlob(normalized), len(normalized), model, nowUnix())
	if err != nil {
		return fmt.Errorf("upsert embedding %s: %w", sessionID, err)
	}

	db.vectors[sessionID] = normalized
	return nil
}

// HasEmbedding reports whether a session has a vector entry.
func (db *DB) HasEmbedding(sessionID string) bool {
	db.vmu.RLock()
	defer db.vmu.RUnlock()
	_, ok := db.vectors[sessionID]
	return ok
}

// VectorCount returns the number of indexed vectors.
func (db *DB) VectorCount() int {
	db.vmu.RLock()
	defer db.vmu.RUnlock()
	return len(db.vectors)
}

// SearchByVector returns the top-K sessions by cosine similarity, scores
// clamped to [0,1]. Brute force over the in-memory cache; exact, and fast
// well past the session counts a single machine accumulates.
func (db *DB) SearchByVector(query []float32, topK int) ([]Scored, error) {
	if len(query) != db.dims {
		return nil, fmt.Errorf("query vector has %d dims, store configured for %d: %w",
			len(query), db.dims, ErrDimensionMismatch)
	}
	if topK <= 0 {
		topK = 10
	}
	normalized := normalize(query)

	db.vmu.RLock()
	h := &scoredHeap{}
	heap.Init(h)
	for id, vec := range db.vectors {
		score := dot(normalized, vec)
		if score < 0 {
			score = 0
		} else if score > 1 {
			score = 1
		}
		if h.Len() < topK {
			heap.Push(h, Scored{SessionID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = Scored{SessionID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	db.vmu.RUnlock()

	results := make([]Scored, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(h).(Scored)
	}
	return results, nil
}

func (db *DB) loadVectors() error {
	rows, err := db.conn.Query("SELECT session_id, embedding, dims FROM session_vectors")
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		var blob []byte
		var dims int
		if err := rows.Scan(&id, &blob, &dims); err != nil {
			return err
		}
		db.vectors[id] = blobToVector(blob, dims)
	}
	return rows.Err()
}

// scoredHeap is a min-heap for top-K selection (worst score at the root).
type scoredHeap []Scored

func (h scoredHeap) Len() int            { return len(h) }
func (h scoredHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h scoredHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x any)         { *h = append(*h, x.(Scored)) }
func (h *scoredHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return append([]float32(nil), vec...)
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func vectorToBlob(vec []float32) []byte {
	blob := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

func blobToVector(blob []byte, dims int) []float32 {
	if len(blob) < dims*4 {
		dims = len(blob) / 4
	}
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
