package models

import (
	"regexp"
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn within a session. Immutable once written; it is only
// ever removed by the owning session's delete cascade.
type Message struct {
	ID           int64
	SessionID    string
	Role         Role
	Content      string
	TokenCount   int
	Timestamp    int64 // unix seconds
	HasCode      bool
	CodeLanguage string
}

var fenceRe = regexp.MustCompile("(?m)^```([a-zA-Z0-9+_-]*)")

// NewMessage builds a message, deriving the code flags and a token estimate
// from the content at write time.
func NewMessage(sessionID string, role Role, content string) *Message {
	m := &Message{
		SessionID:  sessionID,
		Role:       role,
		Content:    content,
		TokenCount: EstimateTokens(content),
		Timestamp:  time.Now().Unix(),
	}
	if match := fenceRe.FindStringSubmatch(content); match != nil {
		m.HasCode = true
		m.CodeLanguage = strings.ToLower(match[1])
	}
	return m
}

// EstimateTokens gives a rough token count for text (~4 chars per token).
func EstimateTokens(text string) int {
	return len(text) / 4
}

// ValidRole reports whether r is one of the three accepted roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}
