package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DB is the SQLite-backed storage backend. It owns the sessions, messages,
// lexical (FTS5) and vector projections, the sync log, and a small key-value
// meta table. Writes that touch a session row update its lexical projection
// in the same transaction; vector writes go through the in-memory cache in
// vectors.go.
type DB struct {
	conn *sql.DB
	path string
	dims int

	cipher *Cipher // optional at-rest encryption for message content

	// Normalized session embeddings, kept in memory for brute-force cosine
	// search. Guarded by vmu; loaded once at open.
	vmu     sync.RWMutex
	vectors map[string][]float32
}

// Option configures the database on open.
type Option func(*DB)

// WithCipher enables transparent encryption of message content at rest.
func WithCipher(c *Cipher) Option {
	return func(db *DB) { db.cipher = c }
}

// New opens (creating if needed) the database at dbPath, configured for
// embeddings of the given dimension, and initializes the schema.
func New(dbPath string, dims int, opts ...Option) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL allows concurrent readers while a writer is active.
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite supports a single writer; readers go through WAL snapshots.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	db := &DB{
		conn:    conn,
		path:    dbPath,
		dims:    dims,
		vectors: make(map[string][]float32),
	}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	if err := db.loadVectors(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("load vectors: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Dimensions returns the configured embedding dimension.
func (db *DB) Dimensions() int {
	return db.dims
}

// Vacuum compacts the database file.
func (db *DB) Vacuum() error {
	_, err := db.conn.Exec("VACUUM")
	return err
}

// GetMeta reads a value from the meta table; missing keys return "".
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetMeta upserts a value in the meta table.
func (db *DB) SetMeta(key, value string) error {
	_, err := db.conn.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
