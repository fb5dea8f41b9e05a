// Package cli implements the mnemo command surface on top of the memory
// service.
package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mnemo-cli/mnemo/internal/core/config"
	"github.com/mnemo-cli/mnemo/internal/core/memory"
)

var (
	configPath  string
	verbose     bool
	versionInfo string
)

// SetVersion sets the version information from build-time ldflags
func SetVersion(version, commit, date string) {
	versionInfo = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	rootCmd.Version = versionInfo
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Conversational memory for CLI agents",
	Long: `mnemo - persistent memory and recall for conversational sessions

Stores sessions locally in SQLite, indexes them with hybrid vector and
keyword search, and optionally syncs them across machines.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default ~/.config/mnemo/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// loadConfig reads the configured or default config file.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// openService wires the full engine for one command invocation.
func openService() (*memory.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	svc, err := memory.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}
	return svc, nil
}
