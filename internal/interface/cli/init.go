package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemo-cli/mnemo/internal/core/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file and create the database",
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	svc, err := openService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	fmt.Printf("Initialized memory store at %s\n", svc.Config().Storage.Path)
	return nil
}
