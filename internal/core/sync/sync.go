package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/mnemo-cli/mnemo/internal/core/config"
	"github.com/mnemo-cli/mnemo/internal/core/db"
	"github.com/mnemo-cli/mnemo/internal/core/models"
)

const watermarkKey = "sync.watermark"

// Report summarizes one sync run.
type Report struct {
	Uploaded   int
	Downloaded int
	Conflicts  int
	Failed     int
}

// Manager drives replication: uploads locally-changed sessions, downloads
// remote changes, and resolves version conflicts through a Resolver.
type Manager struct {
	store    *db.DB
	backend  Backend
	resolver Resolver
	cfg      config.SyncConfig
	privacy  config.PrivacyConfig
	group    singleflight.Group

	retryDelay time.Duration
}

func NewManager(store *db.DB, backend Backend, resolver Resolver, cfg config.SyncConfig, privacy config.PrivacyConfig) *Manager {
	if resolver == nil {
		resolver = LastWriteWins{}
	}
	return &Manager{
		store:      store,
		backend:    backend,
		resolver:   resolver,
		cfg:        cfg,
		privacy:    privacy,
		retryDelay: time.Second,
	}
}

// UploadSession replicates one session to the backend. Concurrent calls
// for the same session collapse into a single upload. Exactly one
// upload row lands in the sync log per attempt, whatever the outcome.
func (m *Manager) UploadSession(ctx context.Context, sessionID string) error {
	_, err, _ := m.group.Do(sessionID, func() (any, error) {
		return nil, m.uploadSession(ctx, sessionID)
	})
	return err
}

func (m *Manager) uploadSession(ctx context.Context, sessionID string) error {
	bundle, err := m.store.ExportBundle(sessionID)
	if err != nil {
		return err
	}
	if m.excluded(bundle.Session.WorkDir) {
		log.Debug("session excluded from sync by path", "session", sessionID, "work_dir", bundle.Session.WorkDir)
		return nil
	}

	if err := m.store.SetSyncState(sessionID, models.SyncSyncing, 0); err != nil {
		return err
	}

	newVersion, uploadErr := m.pushResolving(ctx, bundle)

	entry := &models.SyncLogEntry{Type: models.SyncLogUpload, SessionID: sessionID, Status: "success"}
	if uploadErr != nil {
		entry.Status = "failed"
		entry.Error = uploadErr.Error()
	}
	if logErr := m.store.AppendSyncLog(entry); logErr != nil {
		log.Warn("sync log write failed", "session", sessionID, "err", logErr)
	}

	if uploadErr != nil {
		if stateErr := m.store.SetSyncState(sessionID, models.SyncError, 0); stateErr != nil {
			return stateErr
		}
		return uploadErr
	}

	if newVersion > 0 {
		if err := m.setBaseVersion(sessionID, newVersion); err != nil {
			return err
		}
		if err := m.store.SetSyncState(sessionID, models.SyncSynced, newVersion); err != nil {
			return err
		}
	}
	return nil
}

// pushResolving pushes a bundle and resolves at most one version conflict.
// Returns the version the remote now holds, or 0 when the remote copy won
// and was applied locally instead.
func (m *Manager) pushResolving(ctx context.Context, bundle *models.SessionBundle) (int64, error) {
	sessionID := bundle.Session.ID
	base, err := m.baseVersion(sessionID)
	if err != nil {
		return 0, err
	}

	newVersion, err := m.pushWithRetry(ctx, bundle, base)
	var conflict *Conflict
	if !errors.As(err, &conflict) {
		return newVersion, err
	}

	remote := conflict.Remote
	resolution := m.resolver.Resolve(bundle, remote)
	if logErr := m.store.AppendSyncLog(&models.SyncLogEntry{
		Type:      models.SyncLogConflict,
		SessionID: sessionID,
		Status:    "success",
		Error: fmt.Sprintf("local v%d (updated %d) vs remote v%d (updated %d): %s",
			bundle.Session.SyncVersion, bundle.Session.UpdatedAt,
			remote.Session.SyncVersion, remote.Session.UpdatedAt, resolution),
	}); logErr != nil {
		log.Warn("sync log write failed", "session", sessionID, "err", logErr)
	}
	log.Info("sync conflict resolved", "session", sessionID, "decision", resolution.String())

	if resolution == KeepRemote {
		if err := m.store.ApplyBundles([]*models.SessionBundle{remote}); err != nil {
			return 0, fmt.Errorf("apply remote winner: %w", err)
		}
		if err := m.setBaseVersion(sessionID, remote.Session.SyncVersion); err != nil {
			return 0, err
		}
		return 0, nil
	}

	// Local wins: push again against the version the remote reported.
	return m.pushWithRetry(ctx, bundle, remote.Session.SyncVersion)
}

// pushWithRetry retries transient push failures with doubling delay.
// Conflicts are not transient and return immediately.
func (m *Manager) pushWithRetry(ctx context.Context, bundle *models.SessionBundle, base int64) (int64, error) {
	attempts := m.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}
	delay := m.retryDelay
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		opCtx, cancel := m.opContext(ctx)
		version, err := m.backend.Push(opCtx, bundle, base)
		cancel()
		if err == nil {
			return version, nil
		}
		if errors.Is(err, ErrConflict) {
			return 0, err
		}
		lastErr = err
	}
	return 0, lastErr
}

// UploadPending uploads every session with unsynced local changes.
func (m *Manager) UploadPending(ctx context.Context) (Report, error) {
	var report Report
	pending, err := m.store.PendingSyncSessions(0)
	if err != nil {
		return report, err
	}
	for _, s := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := m.UploadSession(ctx, s.ID); err != nil {
			report.Failed++
			log.Warn("upload failed", "session", s.ID, "err", err)
			continue
		}
		report.Uploaded++
	}
	return report, nil
}

// Download applies every remote change after the stored watermark as one
// atomic batch. The watermark only advances after the batch commits, so a
// failed apply is retried in full next time.
func (m *Manager) Download(ctx context.Context) (int, error) {
	since, err := m.watermark()
	if err != nil {
		return 0, err
	}

	opCtx, cancel := m.opContext(ctx)
	bundles, newWatermark, err := m.backend.Pull(opCtx, since)
	cancel()
	if err != nil {
		return 0, err
	}

	apply := make([]*models.SessionBundle, 0, len(bundles))
	for _, b := range bundles {
		if m.excluded(b.Session.WorkDir) {
			continue
		}
		apply = append(apply, b)
	}

	if len(apply) > 0 {
		if err := m.store.ApplyBundles(apply); err != nil {
			if logErr := m.store.AppendSyncLog(&models.SyncLogEntry{
				Type: models.SyncLogDownload, Status: "failed", Error: err.Error(),
			}); logErr != nil {
				log.Warn("sync log write failed", "err", logErr)
			}
			return 0, err
		}
		for _, b := range apply {
			if err := m.setBaseVersion(b.Session.ID, b.Session.SyncVersion); err != nil {
				return 0, err
			}
			if logErr := m.store.AppendSyncLog(&models.SyncLogEntry{
				Type: models.SyncLogDownload, SessionID: b.Session.ID, Status: "success",
			}); logErr != nil {
				log.Warn("sync log write failed", "err", logErr)
			}
		}
	}

	if newWatermark > since {
		if err := m.store.SetMeta(watermarkKey, fmt.Sprintf("%d", newWatermark)); err != nil {
			return 0, err
		}
	}
	return len(apply), nil
}

// Sync runs a full cycle: upload everything pending, then download.
func (m *Manager) Sync(ctx context.Context) (Report, error) {
	report, err := m.UploadPending(ctx)
	if err != nil {
		return report, err
	}
	downloaded, err := m.Download(ctx)
	report.Downloaded = downloaded
	return report, err
}

// Ping checks backend reachability.
func (m *Manager) Ping(ctx context.Context) error {
	opCtx, cancel := m.opContext(ctx)
	defer cancel()
	return m.backend.Ping(opCtx)
}

func (m *Manager) excluded(workDir string) bool {
	if workDir == "" {
		return false
	}
	for _, pattern := range m.privacy.ExcludePaths {
		if pattern == "" {
			continue
		}
		if ok, _ := filepath.Match(pattern, workDir); ok {
			return true
		}
		if strings.Contains(workDir, pattern) {
			return true
		}
	}
	return false
}

func (m *Manager) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(m.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (m *Manager) baseVersion(sessionID string) (int64, error) {
	raw, err := m.store.GetMeta("sync.base." + sessionID)
	if err != nil || raw == "" {
		return 0, err
	}
	var v int64
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return 0, fmt.Errorf("parse base version for %s: %w", sessionID, err)
	}
	return v, nil
}

func (m *Manager) setBaseVersion(sessionID string, version int64) error {
	return m.store.SetMeta("sync.base."+sessionID, fmt.Sprintf("%d", version))
}

func (m *Manager) watermark() (int64, error) {
	raw, err := m.store.GetMeta(watermarkKey)
	if err != nil || raw == "" {
		return 0, err
	}
	var v int64
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return 0, fmt.Errorf("parse sync watermark: %w", err)
	}
	return v, nil
}
