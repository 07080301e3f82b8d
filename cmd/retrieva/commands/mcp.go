package commands

import (
	"fmt"
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/retrieva/internal/mcp"
)

func NewMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve document tools over MCP stdio",
		Long: `Run Retrieva as a Model Context Protocol server on stdio so agents can
index documents and ask questions about them. Sessions last as long as the
process.`,
		Example: `  # claude_desktop_config.json
  # { "mcpServers": { "retrieva": { "command": "retrieva", "args": ["mcp"] } } }`,
		RunE: runMCP,
	}
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := buildApp(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Config.Embedding.Prewarm {
		a.Embedder.Prewarm(ctx)
	}
	go a.Sessions.Run(ctx)

	server := mcpserver.NewMCPServer("Retrieva", versionInfo.Version)
	mcp.RegisterTools(server, a.Pipeline)

	slog.Info("MCP server starting on stdio")
	if err := mcpserver.ServeStdio(server); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
