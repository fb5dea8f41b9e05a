package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemo-cli/mnemo/internal/core/importer"
)

var importDryRun bool

var importCmd = &cobra.Command{
	Use:   "import <transcripts-dir>",
	Short: "Import existing chat transcripts into the store",
	Long: `Import transcript archives laid out as one directory per workspace
with one subdirectory per session, each holding a JSONL wire file.

Already-imported sessions are skipped. After a real import the new
sessions are indexed for search.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Parse and report without writing")
}

func runImport(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	stats, err := importer.New(svc.Store()).ImportAll(cmd.Context(), args[0], importDryRun)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	verb := "Imported"
	if importDryRun {
		verb = "Would import"
	}
	fmt.Printf("%s %d of %d session(s) (%d messages), skipped %d\n",
		verb, stats.Imported, stats.TotalSessions, stats.ImportedMessages, stats.Skipped)
	for _, e := range stats.Errors {
		fmt.Printf("  error: %s\n", e)
	}

	if !importDryRun && stats.Imported > 0 {
		n, err := svc.IndexAll(cmd.Context())
		if err != nil {
			return fmt.Errorf("indexing imported sessions failed: %w", err)
		}
		fmt.Printf("Indexed %d session(s)\n", n)
	}
	return nil
}
