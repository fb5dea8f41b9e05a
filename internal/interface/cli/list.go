package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/mnemo-cli/mnemo/internal/core/db"
)

var (
	listArchived bool
	listSince    string
	listLimit    int
	listWorkDir  string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	Long: `List stored sessions, newest first.

The --since flag accepts natural language:
  mnemo list --since "last monday"
  mnemo list --since "3 days ago"`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listArchived, "archived", false, "Show archived sessions instead of active ones")
	listCmd.Flags().StringVar(&listSince, "since", "", "Only sessions updated since this time")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum number of sessions to show")
	listCmd.Flags().StringVar(&listWorkDir, "workdir", "", "Filter by working directory substring")
}

func runList(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	opts := db.ListOptions{
		Limit:    listLimit,
		Archived: &listArchived,
		WorkDir:  listWorkDir,
	}
	if listSince != "" {
		since, err := parseSince(listSince)
		if err != nil {
			return err
		}
		opts.UpdatedSince = since.Unix()
	}

	sessions, err := svc.ListSessions(opts)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found")
		return nil
	}

	for _, s := range sessions {
		updated := humanize.Time(time.Unix(s.UpdatedAt, 0))
		fmt.Printf("%s  %s\n", headerStyle.Render(s.Title), dimStyle.Render(updated))
		fmt.Printf("  %s\n", dimStyle.Render(fmt.Sprintf("id=%s  messages indexed=%d  tokens=%d  sync=%s",
			s.ID, s.IndexedMessageCount, s.TokenCount, s.SyncStatus)))
		if s.Summary != "" {
			fmt.Printf("  %s\n", s.Summary)
		}
	}
	return nil
}

// parseSince understands both natural language ("last friday") and RFC3339
// timestamps.
func parseSince(input string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t, nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(input, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", input, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("could not understand time %q", input)
	}
	return result.Time, nil
}
