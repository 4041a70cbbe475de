package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/ppiankov/factloop/internal/mcp"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server on stdio",
	Long: `Run factloop as a Model Context Protocol server so LLM agents can
call the fact_check tool. Sessions run without prompting; archived
sessions are available through get_session and list_sessions.`,
	Example: `  # Configure in an MCP client:
  # {
  #   "mcpServers": {
  #     "factloop": {
  #       "command": "factloop",
  #       "args": ["mcp"]
  #     }
  #   }
  # }`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := setup(ctx, nil)
	if err != nil {
		return err
	}
	defer deps.Close()

	var archive mcp.Archive
	if deps.archive != nil {
		archive = deps.archive
	}

	server := mcpserver.NewMCPServer("factloop", version, mcpserver.WithToolCapabilities(false))
	mcp.RegisterTools(server, mcp.NewHandlers(deps.pipeline, archive, deps.logger.Named("mcp")))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}
