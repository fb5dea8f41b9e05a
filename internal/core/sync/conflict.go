package sync

import "github.com/mnemo-cli/mnemo/internal/core/models"

// Resolution is a conflict verdict.
type Resolution int

const (
	KeepLocal Resolution = iota
	KeepRemote
)

func (r Resolution) String() string {
	if r == KeepLocal {
		return "kept local"
	}
	return "kept remote"
}

// Resolver decides which side of a version conflict survives.
type Resolver interface {
	Resolve(local, remote *models.SessionBundle) Resolution
}

// LastWriteWins keeps whichever side was updated most recently. Ties go to
// the local copy, which avoids overwriting work the user can currently see.
type LastWriteWins struct{}

func (LastWriteWins) Resolve(local, remote *models.SessionBundle) Resolution {
	if local.Session.UpdatedAt >= remote.Session.UpdatedAt {
		return KeepLocal
	}
	return KeepRemote
}
