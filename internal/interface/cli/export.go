package cli

import (
	"fmt"
	"os"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

var (
	exportOutput string
	exportCopy   bool
)

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a session as markdown",
	Long: `Render a session with its full message history as a markdown document.

  mnemo export <id>                 print to stdout
  mnemo export <id> -o session.md   write to a file
  mnemo export <id> --copy          copy to the clipboard`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to this file instead of stdout")
	exportCmd.Flags().BoolVar(&exportCopy, "copy", false, "Copy the markdown to the clipboard")
}

func runExport(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	md, err := svc.ExportMarkdown(args[0])
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	if exportCopy {
		if err := clipboard.WriteAll(md); err != nil {
			return fmt.Errorf("failed to copy to clipboard: %w", err)
		}
		fmt.Println("Copied to clipboard")
		return nil
	}
	if exportOutput != "" {
		if err := os.WriteFile(exportOutput, []byte(md), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", exportOutput, err)
		}
		fmt.Printf("Wrote %s\n", exportOutput)
		return nil
	}
	fmt.Print(md)
	return nil
}
