package models

// SessionBundle is a session with its full message history, the unit moved
// by the sync protocol and by import/export.
type SessionBundle struct {
	Session  *Session   `json:"session"`
	Messages []*Message `json:"messages"`
}

// Validate checks the bundle's referential integrity.
func (b *SessionBundle) Validate() error {
	if b.Session == nil {
		return ErrBundleNoSession
	}
	if err := b.Session.Validate(); err != nil {
		return err
	}
	for _, m := range b.Messages {
		if m.SessionID != b.Session.ID {
			return ErrBundleMixedSessions
		}
		if !ValidRole(m.Role) {
			return ErrBundleBadRole
		}
	}
	return nil
}
