package db

import "errors"

// Sentinel errors surfaced by the storage backend. Callers classify with
// errors.Is; none of these are retryable.
var (
	// ErrDuplicateID means a session with the same id already exists.
	ErrDuplicateID = errors.New("session id already exists")

	// ErrUnknownSession means the referenced session does not exist.
	ErrUnknownSession = errors.New("unknown session")

	// ErrDimensionMismatch means a vector's length disagrees with the
	// configured embedding dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidQuery means a hybrid search had neither query text nor a
	// query vector.
	ErrInvalidQuery = errors.New("hybrid search requires query text or a query vector")
)
