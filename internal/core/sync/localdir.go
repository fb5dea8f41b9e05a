package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	stdsync "sync"

	"golang.org/x/sync/errgroup"

	"github.com/mnemo-cli/mnemo/internal/core/models"
)

// LocalDir replicates sessions into a directory of JSON files, one per
// session, with a shared sequence counter for pull watermarks. It is the
// "local" sync mode: a synced folder (Dropbox, NFS, a USB stick) acts as
// the remote.
type LocalDir struct {
	dir string
	mu  stdsync.Mutex
}

type localEntry struct {
	Seq     int64                 `json:"seq"`
	Version int64                 `json:"version"`
	Bundle  *models.SessionBundle `json:"bundle"`
}

type localState struct {
	Seq int64 `json:"seq"`
}

func NewLocalDir(dir string) (*LocalDir, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create sync directory: %w", err)
	}
	return &LocalDir{dir: dir}, nil
}

func (l *LocalDir) Ping(_ context.Context) error {
	info, err := os.Stat(l.dir)
	if err != nil {
		return fmt.Errorf("sync directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("sync path %s is not a directory", l.dir)
	}
	return nil
}

func (l *LocalDir) Push(_ context.Context, bundle *models.SessionBundle, baseVersion int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := bundle.Session.ID
	existing, err := l.readEntry(l.entryPath(id))
	if err != nil && !os.IsNotExist(err) {
		return 0, err
	}

	// A stale base against an empty replica is not a conflict: there is no
	// remote copy to lose, so the push proceeds. This happens when the sync
	// directory is repointed while base versions persist in the store.
	var storedVersion int64
	if existing != nil {
		storedVersion = existing.Version
	}
	if existing != nil && storedVersion != baseVersion {
		remote := existing.Bundle
		remote.Session.SyncVersion = existing.Version
		return 0, &Conflict{Remote: remote}
	}

	state, err := l.readState()
	if err != nil {
		return 0, err
	}
	state.Seq++
	newVersion := storedVersion + 1

	entry := &localEntry{Seq: state.Seq, Version: newVersion, Bundle: bundle}
	if err := l.writeJSON(l.entryPath(id), entry); err != nil {
		return 0, err
	}
	if err := l.writeJSON(l.statePath(), state); err != nil {
		return 0, err
	}
	return newVersion, nil
}

func (l *LocalDir) Pull(ctx context.Context, since int64) ([]*models.SessionBundle, int64, error) {
	l.mu.Lock()
	paths, err := filepath.Glob(filepath.Join(l.dir, "*.json"))
	l.mu.Unlock()
	if err != nil {
		return nil, since, fmt.Errorf("scan sync directory: %w", err)
	}

	entries := make([]*localEntry, len(paths))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, path := range paths {
		if strings.HasSuffix(path, stateFileName) {
			continue
		}
		i, path := i, path
		g.Go(func() error {
			entry, err := l.readEntry(path)
			if err != nil {
				return err
			}
			if entry.Seq > since {
				entries[i] = entry
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, since, err
	}

	var changed []*localEntry
	for _, e := range entries {
		if e != nil {
			changed = append(changed, e)
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].Seq < changed[j].Seq })

	watermark := since
	bundles := make([]*models.SessionBundle, 0, len(changed))
	for _, e := range changed {
		e.Bundle.Session.SyncVersion = e.Version
		bundles = append(bundles, e.Bundle)
		if e.Seq > watermark {
			watermark = e.Seq
		}
	}
	return bundles, watermark, nil
}

const stateFileName = "_state.json"

func (l *LocalDir) entryPath(sessionID string) string {
	return filepath.Join(l.dir, sessionID+".json")
}

func (l *LocalDir) statePath() string {
	return filepath.Join(l.dir, stateFileName)
}

func (l *LocalDir) readEntry(path string) (*localEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry localEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parse sync entry %s: %w", path, err)
	}
	return &entry, nil
}

func (l *LocalDir) readState() (*localState, error) {
	data, err := os.ReadFile(l.statePath())
	if os.IsNotExist(err) {
		return &localState{}, nil
	}
	if err != nil {
		return nil, err
	}
	var state localState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse sync state: %w", err)
	}
	return &state, nil
}

// writeJSON lands atomically via rename so a reader on the shared folder
// never sees a torn file.
func (l *LocalDir) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
