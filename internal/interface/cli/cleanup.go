package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Apply the retention policy",
	Long: `Archive sessions idle past archive_after_days, delete archived
sessions idle past delete_after_days, and compact the database when it
exceeds max_size_mb.`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	report, err := svc.Cleanup()
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	fmt.Printf("Archived %d, deleted %d", report.Archived, report.Deleted)
	if report.Vacuumed {
		fmt.Print(", vacuumed")
	}
	fmt.Println()
	return nil
}
