// Package memory is the engine facade: one Service owns the store, the
// embedding provider and the index, recall and sync machinery, and exposes
// the operations the interfaces (CLI, MCP) are built from.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/mnemo-cli/mnemo/internal/core/config"
	"github.com/mnemo-cli/mnemo/internal/core/db"
	"github.com/mnemo-cli/mnemo/internal/core/embedding"
	"github.com/mnemo-cli/mnemo/internal/core/index"
	"github.com/mnemo-cli/mnemo/internal/core/models"
	"github.com/mnemo-cli/mnemo/internal/core/recall"
	syncengine "github.com/mnemo-cli/mnemo/internal/core/sync"
)

// Service is the process-scoped engine instance. Construct with Open and
// release with Close; background indexing started by the ingest path is
// flushed before Close returns.
type Service struct {
	cfg      *config.Config
	store    *db.DB
	provider embedding.Provider
	indexer  *index.Manager
	recaller *recall.Engine
	syncer   *syncengine.Manager

	bg sync.WaitGroup
}

// Open wires the engine from configuration.
func Open(cfg *config.Config) (*Service, error) {
	provider, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	var opts []db.Option
	if cfg.Privacy.Encrypt {
		cipher, err := db.NewCipher(cfg.Privacy.Passphrase)
		if err != nil {
			return nil, err
		}
		opts = append(opts, db.WithCipher(cipher))
	}

	store, err := db.New(cfg.Storage.Path, cfg.Embedding.Dimensions, opts...)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		provider: provider,
		indexer:  index.NewManager(store, provider, cfg.Index, cfg.Privacy),
		recaller: recall.NewEngine(store, provider, cfg.Recall),
	}

	if cfg.Sync.Mode != "disabled" {
		backend, err := newBackend(cfg.Sync)
		if err != nil {
			store.Close()
			return nil, err
		}
		s.syncer = syncengine.NewManager(store, backend, nil, cfg.Sync, cfg.Privacy)
	}
	return s, nil
}

func newBackend(cfg config.SyncConfig) (syncengine.Backend, error) {
	switch cfg.Mode {
	case "local":
		return syncengine.NewLocalDir(cfg.Endpoint)
	case "remote", "saas":
		return syncengine.NewRemote(cfg)
	default:
		return nil, fmt.Errorf("unknown sync mode %q", cfg.Mode)
	}
}

// Close waits for in-flight background indexing, then closes the store.
func (s *Service) Close() error {
	s.bg.Wait()
	return s.store.Close()
}

// Store exposes the underlying database for read-side interface code.
func (s *Service) Store() *db.DB { return s.store }

// Config returns the configuration the service was opened with.
func (s *Service) Config() *config.Config { return s.cfg }

// SyncEnabled reports whether a sync backend is configured.
func (s *Service) SyncEnabled() bool { return s.syncer != nil }

// StartSession creates a new session. An empty id gets a generated one.
func (s *Service) StartSession(id, title, workDir string) (*models.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	session := models.NewSession(id, title, workDir)
	if err := session.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// AddMessage appends a message to a session and, when the session crosses
// an index trigger, kicks off background reindexing. Never blocks on
// indexing or embedding.
func (s *Service) AddMessage(sessionID string, role models.Role, content string) (*models.Message, error) {
	if !models.ValidRole(role) {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	m := models.NewMessage(sessionID, role, content)
	if err := s.store.AddMessage(m); err != nil {
		return nil, err
	}

	session, err := s.store.GetSession(sessionID)
	if err != nil {
		return m, err
	}
	count, err := s.store.MessageCount(sessionID)
	if err != nil {
		return m, err
	}
	if s.indexer.NeedsIndex(session, count, time.Now()) {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			if err := s.indexer.IndexSession(context.Background(), sessionID); err != nil {
				log.Warn("background index failed", "session", sessionID, "err", err)
			}
		}()
	}
	return m, nil
}

// CloseSession indexes a session immediately, the explicit end-of-session
// trigger.
func (s *Service) CloseSession(ctx context.Context, sessionID string) error {
	return s.indexer.IndexSession(ctx, sessionID)
}

// Recall finds past sessions relevant to a query or to the active session.
func (s *Service) Recall(ctx context.Context, req recall.Request) ([]*models.RecallResult, error) {
	return s.recaller.Recall(ctx, req)
}

// IndexSession reindexes one session on demand.
func (s *Service) IndexSession(ctx context.Context, sessionID string) error {
	return s.indexer.IndexSession(ctx, sessionID)
}

// IndexAll reindexes every stale session.
func (s *Service) IndexAll(ctx context.Context) (int, error) {
	return s.indexer.BatchIndex(ctx)
}

// ListSessions lists stored sessions.
func (s *Service) ListSessions(opts db.ListOptions) ([]*models.Session, error) {
	return s.store.ListSessions(opts)
}

// GetSession loads one session.
func (s *Service) GetSession(id string) (*models.Session, error) {
	return s.store.GetSession(id)
}

// ArchiveSession marks a session archived (or restores it).
func (s *Service) ArchiveSession(id string, archived bool) error {
	return s.store.SetArchived(id, archived)
}

// DeleteSession permanently removes a session with all its data.
func (s *Service) DeleteSession(id string) error {
	return s.store.DeleteSession(id)
}

// Status reports store statistics.
func (s *Service) Status() (*db.Stats, error) {
	return s.store.GetStats()
}

// Sync runs a full sync cycle. Fails when sync is disabled.
func (s *Service) Sync(ctx context.Context) (syncengine.Report, error) {
	if s.syncer == nil {
		return syncengine.Report{}, fmt.Errorf("sync is disabled")
	}
	return s.syncer.Sync(ctx)
}

// SyncSession uploads a single session immediately.
func (s *Service) SyncSession(ctx context.Context, sessionID string) error {
	if s.syncer == nil {
		return fmt.Errorf("sync is disabled")
	}
	return s.syncer.UploadSession(ctx, sessionID)
}

// SyncLog returns recent sync log entries of one type.
func (s *Service) SyncLog(logType models.SyncLogType, limit int) ([]*models.SyncLogEntry, error) {
	return s.store.SyncLog(logType, limit)
}
