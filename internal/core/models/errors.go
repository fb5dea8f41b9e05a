package models

import "errors"

var (
	ErrBundleNoSession     = errors.New("bundle has no session")
	ErrBundleMixedSessions = errors.New("bundle message belongs to a different session")
	ErrBundleBadRole       = errors.New("bundle message has an invalid role")
)
