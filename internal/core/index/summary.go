package index

import (
	"strings"

	"github.com/mnemo-cli/mnemo/internal/core/models"
)

const (
	summaryMaxMessages = 3
	summaryMaxLen      = 500
)

// Summarize builds a short extractive digest from the earliest user
// messages, which in practice state what the session is about. Code fences
// are dropped; a session with no usable user text gets an empty summary,
// which is fine, the digest is an aid, not a requirement.
func Summarize(messages []*models.Message) string {
	var parts []string
	for _, m := range messages {
		if m.Role != models.RoleUser {
			continue
		}
		text := firstProse(m.Content)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		if len(parts) >= summaryMaxMessages {
			break
		}
	}

	summary := strings.Join(parts, " ")
	if len(summary) > summaryMaxLen {
		cut := strings.LastIndex(summary[:summaryMaxLen], " ")
		if cut < summaryMaxLen/2 {
			cut = summaryMaxLen
		}
		summary = summary[:cut] + "…"
	}
	return summary
}

// firstProse returns the first non-empty line outside a code fence.
func firstProse(content string) string {
	inFence := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence || trimmed == "" {
			continue
		}
		return trimmed
	}
	return ""
}
