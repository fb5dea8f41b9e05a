package memory

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/mnemo-cli/mnemo/internal/core/db"
)

// CleanupReport summarizes one retention pass.
type CleanupReport struct {
	Archived int
	Deleted  int
	Vacuumed bool
}

// Cleanup applies the retention policy: archive sessions idle past
// archive_after_days, delete archived sessions idle past delete_after_days,
// and vacuum when the database file exceeds the size cap. Either retention
// window set to zero disables that step.
func (s *Service) Cleanup() (*CleanupReport, error) {
	report := &CleanupReport{}
	now := time.Now().Unix()

	if days := s.cfg.Storage.ArchiveAfterDays; days > 0 {
		cutoff := now - int64(days)*86400
		active := false
		sessions, err := s.store.ListSessions(db.ListOptions{Archived: &active, Limit: 100000})
		if err != nil {
			return nil, err
		}
		for _, session := range sessions {
			if session.UpdatedAt >= cutoff {
				continue
			}
			if err := s.store.SetArchived(session.ID, true); err != nil {
				return report, err
			}
			report.Archived++
		}
	}

	if days := s.cfg.Storage.DeleteAfterDays; days > 0 {
		cutoff := now - int64(days)*86400
		archived := true
		sessions, err := s.store.ListSessions(db.ListOptions{Archived: &archived, Limit: 100000})
		if err != nil {
			return nil, err
		}
		for _, session := range sessions {
			if session.UpdatedAt >= cutoff {
				continue
			}
			if err := s.store.DeleteSession(session.ID); err != nil {
				return report, err
			}
			report.Deleted++
		}
	}

	if cap := s.cfg.Storage.MaxSizeMB; cap > 0 {
		stats, err := s.store.GetStats()
		if err != nil {
			return report, err
		}
		if stats.StorageBytes > cap*1024*1024 {
			log.Info("database over size cap, vacuuming", "bytes", stats.StorageBytes, "cap_mb", cap)
			if err := s.store.Vacuum(); err != nil {
				return report, err
			}
			report.Vacuumed = true
		}
	}
	return report, nil
}
