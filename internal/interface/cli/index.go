package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexAll bool

var indexCmd = &cobra.Command{
	Use:   "index [session-id]",
	Short: "Reindex sessions for search",
	Long: `Rebuild the search projection (keywords, summary, embedding) for one
session, or for every stale session with --all.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexAll, "all", false, "Reindex every stale session")
}

func runIndex(cmd *cobra.Command, args []string) error {
	if !indexAll && len(args) == 0 {
		return fmt.Errorf("give a session id or --all")
	}

	svc, err := openService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if indexAll {
		n, err := svc.IndexAll(cmd.Context())
		if err != nil {
			return fmt.Errorf("batch index failed: %w", err)
		}
		fmt.Printf("Indexed %d session(s)\n", n)
		return nil
	}

	if err := svc.IndexSession(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("index failed: %w", err)
	}
	fmt.Printf("Indexed session %s\n", args[0])
	return nil
}
