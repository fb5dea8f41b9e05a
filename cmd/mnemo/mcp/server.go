// Package mcp exposes the memory engine to agents over the Model Context
// Protocol (stdio transport).
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mnemo-cli/mnemo/internal/core/db"
	"github.com/mnemo-cli/mnemo/internal/core/memory"
	"github.com/mnemo-cli/mnemo/internal/core/models"
	"github.com/mnemo-cli/mnemo/internal/core/recall"
)

// RecallMemoryArgs defines arguments for the recall_memory tool
type RecallMemoryArgs struct {
	Query            string `json:"query"`
	CurrentSessionID string `json:"current_session_id,omitempty"`
	Limit            int    `json:"limit,omitempty"`
}

// SearchSessionsArgs defines arguments for the search_sessions tool
type SearchSessionsArgs struct {
	Query    string `json:"query,omitempty"`
	Archived bool   `json:"archived,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// RecalledSession is one recall result on the wire
type RecalledSession struct {
	SessionID string   `json:"session_id"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
	Score     float64  `json:"score"`
	UpdatedAt string   `json:"updated_at"`
	Context   []string `json:"context,omitempty"`
}

// SessionSummary is one session in the search_sessions list
type SessionSummary struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	Summary   string `json:"summary,omitempty"`
	UpdatedAt string `json:"updated_at"`
	Archived  bool   `json:"archived"`
}

// StartServer runs the MCP server over stdio until the client disconnects.
func StartServer(svc *memory.Service) error {
	s := server.NewMCPServer("mnemo", "1.0.0")

	recallTool := mcp.NewTool("recall_memory",
		mcp.WithDescription("Find past conversation sessions relevant to a query, ranked by combined semantic and keyword similarity. Returns session summaries with their most recent messages as context."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What to look for, in natural language")),
		mcp.WithString("current_session_id",
			mcp.Description("Active session ID, excluded from results")),
		mcp.WithNumber("limit",
			mcp.Description("Max sessions to return (default from config)")),
	)
	s.AddTool(recallTool, makeRecallHandler(svc))

	searchTool := mcp.NewTool("search_sessions",
		mcp.WithDescription("List stored sessions, newest first, optionally filtered by a keyword query"),
		mcp.WithString("query",
			mcp.Description("Keyword filter; empty lists everything")),
		mcp.WithBoolean("archived",
			mcp.Description("List archived sessions instead of active ones")),
		mcp.WithNumber("limit",
			mcp.Description("Max sessions to return (default: 20)")),
	)
	s.AddTool(searchTool, makeSearchHandler(svc))

	statusTool := mcp.NewTool("memory_status",
		mcp.WithDescription("Report memory store statistics: session and message counts, index coverage, storage size, sync states"),
	)
	s.AddTool(statusTool, makeStatusHandler(svc))

	return server.ServeStdio(s)
}

func makeRecallHandler(svc *memory.Service) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args RecallMemoryArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		results, err := svc.Recall(ctx, recall.Request{
			Query:     args.Query,
			SessionID: args.CurrentSessionID,
			Limit:     args.Limit,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("recall failed: %v", err)), nil
		}

		out := make([]RecalledSession, 0, len(results))
		for _, r := range results {
			item := RecalledSession{
				SessionID: r.Session.ID,
				Title:     r.Session.Title,
				Summary:   r.Session.Summary,
				Keywords:  r.Session.Keywords,
				Score:     r.CombinedScore,
				UpdatedAt: time.Unix(r.Session.UpdatedAt, 0).Format(time.RFC3339),
			}
			for _, m := range r.ContextMessages {
				item.Context = append(item.Context, string(m.Role)+": "+m.Content)
			}
			out = append(out, item)
		}
		return jsonResult(out)
	}
}

func makeSearchHandler(svc *memory.Service) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args SearchSessionsArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		limit := args.Limit
		if limit == 0 {
			limit = 20
		}

		var sessions []*SessionSummary
		if args.Query != "" {
			hits, err := svc.Store().SearchByKeywords(args.Query, limit)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
			}
			for _, hit := range hits {
				s, err := svc.GetSession(hit.SessionID)
				if err != nil {
					continue
				}
				sessions = append(sessions, summarize(s))
			}
		} else {
			list, err := svc.ListSessions(db.ListOptions{Limit: limit, Archived: &args.Archived})
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
			}
			for _, s := range list {
				sessions = append(sessions, summarize(s))
			}
		}
		return jsonResult(sessions)
	}
}

func makeStatusHandler(svc *memory.Service) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := svc.Status()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("status failed: %v", err)), nil
		}
		return jsonResult(map[string]any{
			"sessions":      stats.TotalSessions,
			"archived":      stats.ArchivedSessions,
			"messages":      stats.TotalMessages,
			"tokens":        stats.TotalTokens,
			"embedded":      stats.IndexedVectors,
			"storage_bytes": stats.StorageBytes,
			"sync_states":   stats.SyncStates,
			"sync_enabled":  svc.SyncEnabled(),
		})
	}
}

func summarize(s *models.Session) *SessionSummary {
	return &SessionSummary{
		SessionID: s.ID,
		Title:     s.Title,
		Summary:   s.Summary,
		UpdatedAt: time.Unix(s.UpdatedAt, 0).Format(time.RFC3339),
		Archived:  s.IsArchived,
	}
}

func decodeArgs(request mcp.CallToolRequest, out any) error {
	raw, err := json.Marshal(request.Params.Arguments)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
