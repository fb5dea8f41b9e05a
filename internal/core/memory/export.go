package memory

import (
	"time"

	"github.com/cbroglie/mustache"

	"github.com/mnemo-cli/mnemo/internal/core/models"
)

const exportTemplate = `# {{title}}

{{#summary}}> {{summary}}
{{/summary}}
- **Created:** {{created}}
- **Updated:** {{updated}}
- **Messages:** {{message_count}}
- **Tokens:** {{token_count}}
{{#keywords}}- **Keywords:** {{keywords}}
{{/keywords}}
---
{{#messages}}

## {{role}}

{{content}}
{{/messages}}
`

// ExportMarkdown renders a session with its full history as a markdown
// document.
func (s *Service) ExportMarkdown(sessionID string) (string, error) {
	bundle, err := s.store.ExportBundle(sessionID)
	if err != nil {
		return "", err
	}
	return renderBundle(bundle)
}

func renderBundle(bundle *models.SessionBundle) (string, error) {
	session := bundle.Session

	msgs := make([]map[string]string, 0, len(bundle.Messages))
	for _, m := range bundle.Messages {
		msgs = append(msgs, map[string]string{
			"role":    string(m.Role),
			"content": m.Content,
		})
	}

	keywords := ""
	for i, kw := range session.Keywords {
		if i > 0 {
			keywords += ", "
		}
		keywords += kw
	}

	return mustache.Render(exportTemplate, map[string]any{
		"title":         session.Title,
		"summary":       session.Summary,
		"created":       time.Unix(session.CreatedAt, 0).Format("2006-01-02 15:04"),
		"updated":       time.Unix(session.UpdatedAt, 0).Format("2006-01-02 15:04"),
		"message_count": len(bundle.Messages),
		"token_count":   session.TokenCount,
		"keywords":      keywords,
		"messages":      msgs,
	})
}
