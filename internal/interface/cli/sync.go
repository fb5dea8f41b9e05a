package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mnemo-cli/mnemo/internal/core/memory"
	"github.com/mnemo-cli/mnemo/internal/core/models"
)

var (
	syncForce  string
	syncStatus bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replicate sessions with the configured sync backend",
	Long: `Upload locally-changed sessions and download remote changes.

  mnemo sync                  full cycle
  mnemo sync --force <id>     upload one session immediately
  mnemo sync --status         show recent sync activity`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVar(&syncForce, "force", "", "Upload this session immediately")
	syncCmd.Flags().BoolVar(&syncStatus, "status", false, "Show recent sync log entries")
}

func runSync(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if syncStatus {
		return printSyncLog(svc)
	}

	if syncForce != "" {
		if err := svc.SyncSession(cmd.Context(), syncForce); err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		fmt.Printf("Synced session %s\n", syncForce)
		return nil
	}

	report, err := svc.Sync(cmd.Context())
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	fmt.Printf("Uploaded %d, downloaded %d", report.Uploaded, report.Downloaded)
	if report.Failed > 0 {
		fmt.Printf(", %d failed", report.Failed)
	}
	fmt.Println()
	return nil
}

func printSyncLog(svc *memory.Service) error {
	for _, logType := range []models.SyncLogType{models.SyncLogUpload, models.SyncLogDownload, models.SyncLogConflict} {
		entries, err := svc.SyncLog(logType, 10)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			continue
		}
		fmt.Println(headerStyle.Render(string(logType)))
		for _, e := range entries {
			line := fmt.Sprintf("  %s  %s  %s", humanize.Time(time.Unix(e.Timestamp, 0)), e.SessionID, e.Status)
			if e.Error != "" {
				line += "  " + dimStyle.Render(e.Error)
			}
			fmt.Println(line)
		}
	}
	return nil
}
