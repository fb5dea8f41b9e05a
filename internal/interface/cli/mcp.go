package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemo-cli/mnemo/cmd/mnemo/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server over stdio so an agent
can recall past sessions and inspect the store.

Example agent config:
  {
    "mcpServers": {
      "mnemo": {
        "command": "mnemo",
        "args": ["mcp"]
      }
    }
  }
`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if err := mcp.StartServer(svc); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}
