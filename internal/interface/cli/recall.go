package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mnemo-cli/mnemo/internal/core/recall"
)

var (
	recallLimit       int
	recallShowContext bool
	recallSessionID   string
)

var recallCmd = &cobra.Command{
	Use:   "recall [query...]",
	Short: "Find past sessions relevant to a query",
	Long: `Search past sessions by meaning and by keyword, ranked together.

With no query, the recent messages of the session given by --session are
used as the query.

Examples:
  mnemo recall "how did we fix the flaky deploy"
  mnemo recall redis eviction --limit 3 --context`,
	RunE: runRecall,
}

func init() {
	rootCmd.AddCommand(recallCmd)
	recallCmd.Flags().IntVar(&recallLimit, "limit", 0, "Maximum results (default from config)")
	recallCmd.Flags().BoolVar(&recallShowContext, "context", false, "Show the recent messages of each result")
	recallCmd.Flags().StringVar(&recallSessionID, "session", "", "Active session: excluded from results, used for query derivation")
}

func runRecall(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	results, err := svc.Recall(cmd.Context(), recall.Request{
		Query:     strings.Join(args, " "),
		SessionID: recallSessionID,
		Limit:     recallLimit,
	})
	if err != nil {
		if errors.Is(err, recall.ErrUnavailable) {
			return fmt.Errorf("nothing to search with: give a query or --session")
		}
		return fmt.Errorf("recall failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("No relevant sessions found")
		return nil
	}

	for i, r := range results {
		updated := humanize.Time(time.Unix(r.Session.UpdatedAt, 0))
		fmt.Printf("%d. %s  %s\n", i+1, headerStyle.Render(r.Session.Title), dimStyle.Render(updated))
		fmt.Printf("   %s\n", dimStyle.Render(fmt.Sprintf("score=%.2f (vector %.2f, keyword %.2f)  id=%s",
			r.CombinedScore, r.VectorScore, r.KeywordScore, r.Session.ID)))
		if r.Session.Summary != "" {
			fmt.Printf("   %s\n", r.Session.Summary)
		}
		if recallShowContext {
			for _, m := range r.ContextMessages {
				content := m.Content
				if len(content) > 120 {
					content = content[:120] + "…"
				}
				fmt.Printf("   %s %s\n", dimStyle.Render(string(m.Role)+":"), content)
			}
		}
	}
	return nil
}
