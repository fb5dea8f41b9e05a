package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mnemo-cli/mnemo/internal/core/models"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(16)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show memory store statistics",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	stats, err := svc.Status()
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}
	cfg := svc.Config()

	fmt.Println(headerStyle.Render("Memory Store"))
	fmt.Printf("%s %s\n", labelStyle.Render("Database:"), cfg.Storage.Path)
	fmt.Printf("%s %s\n", labelStyle.Render("Size:"), humanize.Bytes(uint64(stats.StorageBytes)))
	fmt.Printf("%s %d (%d archived)\n", labelStyle.Render("Sessions:"), stats.TotalSessions, stats.ArchivedSessions)
	fmt.Printf("%s %s\n", labelStyle.Render("Messages:"), humanize.Comma(int64(stats.TotalMessages)))
	fmt.Printf("%s %s\n", labelStyle.Render("Tokens:"), humanize.Comma(stats.TotalTokens))
	fmt.Printf("%s %d of %d sessions\n", labelStyle.Render("Embedded:"), stats.IndexedVectors, stats.TotalSessions)

	fmt.Println()
	fmt.Println(headerStyle.Render("Sync"))
	if !svc.SyncEnabled() {
		fmt.Println(dimStyle.Render("disabled"))
		return nil
	}
	fmt.Printf("%s %s (%s)\n", labelStyle.Render("Mode:"), cfg.Sync.Mode, cfg.Sync.Endpoint)
	for _, state := range []models.SyncStatus{models.SyncLocal, models.SyncSyncing, models.SyncSynced, models.SyncError} {
		if n := stats.SyncStates[state]; n > 0 {
			fmt.Printf("%s %d\n", labelStyle.Render(string(state)+":"), n)
		}
	}
	return nil
}
