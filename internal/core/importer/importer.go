// Package importer backfills the store from on-disk transcript archives:
// one directory per workspace, one subdirectory per session, messages as
// JSONL wire records.
package importer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/mnemo-cli/mnemo/internal/core/db"
	"github.com/mnemo-cli/mnemo/internal/core/models"
)

const titleMaxLen = 50

// Stats reports what one import run did.
type Stats struct {
	TotalSessions    int
	Imported         int
	Skipped          int
	ImportedMessages int
	Errors           []string
}

// Importer reads transcript archives into the store.
type Importer struct {
	store *db.DB
}

func New(store *db.DB) *Importer {
	return &Importer{store: store}
}

// ImportAll walks root (workspace dirs, each holding session dirs), parses
// every session concurrently, and writes them into the store. Sessions
// already present are skipped. With dryRun the store is never touched and
// the stats report what would have happened.
func (imp *Importer) ImportAll(ctx context.Context, root string, dryRun bool) (*Stats, error) {
	stats := &Stats{}
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("sessions directory: %w", err)
	}

	var dirs []sessionDir
	workDirs, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	for _, wd := range workDirs {
		if !wd.IsDir() {
			continue
		}
		workPath := filepath.Join(root, wd.Name())
		sessions, err := os.ReadDir(workPath)
		if err != nil {
			return nil, err
		}
		for _, sd := range sessions {
			if sd.IsDir() {
				dirs = append(dirs, sessionDir{path: filepath.Join(workPath, sd.Name()), workDir: workPath})
			}
		}
	}
	stats.TotalSessions = len(dirs)

	// Parse in parallel; parsed results land in order for a stable report.
	parsed := make([]*parsedSession, len(dirs))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, d := range dirs {
		i, d := i, d
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			session, err := parseSessionDir(d)
			if err != nil {
				mu.Lock()
				stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", filepath.Base(d.path), err))
				mu.Unlock()
				return nil
			}
			parsed[i] = session
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	for _, p := range parsed {
		if p == nil {
			continue
		}
		exists, err := imp.store.HasSession(p.session.ID)
		if err != nil {
			return stats, err
		}
		if exists {
			stats.Skipped++
			continue
		}
		if dryRun {
			stats.Imported++
			stats.ImportedMessages += len(p.messages)
			continue
		}
		if err := imp.writeSession(p); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", p.session.ID, err))
			continue
		}
		stats.Imported++
		stats.ImportedMessages += len(p.messages)
	}

	log.Info("import finished", "found", stats.TotalSessions, "imported", stats.Imported,
		"skipped", stats.Skipped, "errors", len(stats.Errors))
	return stats, nil
}

func (imp *Importer) writeSession(p *parsedSession) error {
	if err := imp.store.CreateSession(p.session); err != nil {
		return err
	}
	for _, m := range p.messages {
		if err := imp.store.AddMessage(m); err != nil {
			return err
		}
	}
	return nil
}

type sessionDir struct {
	path    string
	workDir string
}

type parsedSession struct {
	session  *models.Session
	messages []*models.Message
}

// wireRecord is one transcript line. Lines with a metadata type, unknown
// message types, or broken JSON are skipped, not errors.
type wireRecord struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Message   struct {
		Type      string          `json:"type"`
		UserInput json.RawMessage `json:"user_input"`
		Text      string          `json:"text"`
		Result    json.RawMessage `json:"result"`
	} `json:"message"`
}

func parseSessionDir(d sessionDir) (*parsedSession, error) {
	wires, err := filepath.Glob(filepath.Join(d.path, "*.wire"))
	if err != nil {
		return nil, err
	}
	if len(wires) == 0 {
		return nil, fmt.Errorf("no wire file")
	}
	sort.Strings(wires)

	f, err := os.Open(wires[0])
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sessionID := filepath.Base(d.path)
	var messages []*models.Message
	title := ""

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record wireRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			continue
		}
		if record.Type == "metadata" {
			continue
		}
		m := parseWireRecord(sessionID, &record)
		if m == nil {
			continue
		}
		messages = append(messages, m)
		if title == "" && m.Role == models.RoleUser {
			title = deriveTitle(m.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("no importable messages")
	}
	if title == "" {
		short := sessionID
		if len(short) > 8 {
			short = short[:8]
		}
		title = "Imported (" + short + ")"
	}

	session := models.NewSession(sessionID, title, d.workDir)
	session.CreatedAt = messages[0].Timestamp
	session.UpdatedAt = messages[len(messages)-1].Timestamp
	return &parsedSession{session: session, messages: messages}, nil
}

func parseWireRecord(sessionID string, record *wireRecord) *models.Message {
	var role models.Role
	var content string

	switch record.Message.Type {
	case "turn_begin":
		role = models.RoleUser
		content = extractUserInput(record.Message.UserInput)
	case "text":
		role = models.RoleAssistant
		content = record.Message.Text
	case "tool_result":
		role = models.RoleAssistant
		result := string(record.Message.Result)
		if len(result) > 200 {
			result = result[:200]
		}
		content = "[Tool Result] " + result
	default:
		return nil
	}
	if strings.TrimSpace(content) == "" {
		return nil
	}

	m := models.NewMessage(sessionID, role, content)
	if record.Timestamp > 0 {
		m.Timestamp = record.Timestamp
	}
	return m
}

// extractUserInput handles both wire encodings of user input: a plain
// string or a list of typed content parts.
func extractUserInput(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var texts []string
	for _, p := range parts {
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}

func deriveTitle(content string) string {
	content = strings.TrimSpace(strings.Split(content, "\n")[0])
	if len(content) > titleMaxLen {
		return content[:titleMaxLen] + "..."
	}
	return content
}
