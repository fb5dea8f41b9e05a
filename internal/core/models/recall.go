package models

// SearchQuery describes one hybrid search against the store. At least one of
// Text and Embedding must be set.
type SearchQuery struct {
	Text      string
	Embedding []float32

	// ExcludeSessionID drops the currently active session from candidates.
	ExcludeSessionID string

	TopK int
}

// Candidate is a raw hybrid-search hit with its per-family sub-scores, both
// already on a 0-1 scale. A session missing from one family scores 0 there.
type Candidate struct {
	Session      *Session
	VectorScore  float64
	KeywordScore float64
}

// RecallResult pairs a ranked session with its scores and context window.
type RecallResult struct {
	Session         *Session
	VectorScore     float64
	KeywordScore    float64
	CombinedScore   float64
	ContextMessages []*Message
}

// SyncLogType classifies a sync log entry.
type SyncLogType string

const (
	SyncLogUpload   SyncLogType = "upload"
	SyncLogDownload SyncLogType = "download"
	SyncLogConflict SyncLogType = "conflict"
)

// SyncLogEntry is an append-only audit record of one sync attempt.
type SyncLogEntry struct {
	ID        int64
	Type      SyncLogType
	SessionID string
	Status    string // "success" | "failed"
	Error     string
	Timestamp int64
}
