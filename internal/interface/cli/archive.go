package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var archiveRestore bool

var archiveCmd = &cobra.Command{
	Use:   "archive <session-id>",
	Short: "Archive a session (or restore it with --restore)",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.Flags().BoolVar(&archiveRestore, "restore", false, "Restore an archived session")
}

func runArchive(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if err := svc.ArchiveSession(args[0], !archiveRestore); err != nil {
		return fmt.Errorf("archive failed: %w", err)
	}
	if archiveRestore {
		fmt.Printf("Restored session %s\n", args[0])
	} else {
		fmt.Printf("Archived session %s\n", args[0])
	}
	return nil
}
