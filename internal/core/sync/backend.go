// Package sync replicates sessions between the local store and a remote
// copy using optimistic versioning: every accepted local write bumps the
// session's version, and an upload against a stale version is a conflict.
package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/mnemo-cli/mnemo/internal/core/models"
)

// ErrConflict reports that the remote holds a version the local write was
// not based on. Returned wrapped in a *Conflict carrying the remote copy.
var ErrConflict = errors.New("sync conflict")

// Conflict is an ErrConflict with the remote bundle attached, so a
// resolver can decide without a second round trip.
type Conflict struct {
	Remote *models.SessionBundle
}

func (c *Conflict) Error() string {
	return fmt.Sprintf("sync conflict: remote has version %d", c.Remote.Session.SyncVersion)
}

func (c *Conflict) Unwrap() error { return ErrConflict }

// Backend is one replication target.
//
// Push uploads a bundle. baseVersion is the remote version this write is
// based on (0 for a first upload); a mismatch returns *Conflict. On success
// the returned version is the one the remote now holds.
//
// Pull returns every bundle whose version changed after the given watermark.
type Backend interface {
	Push(ctx context.Context, bundle *models.SessionBundle, baseVersion int64) (int64, error)
	Pull(ctx context.Context, since int64) ([]*models.SessionBundle, int64, error)
	Ping(ctx context.Context) error
}
