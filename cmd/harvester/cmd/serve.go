package cmd

import (
	"fmt"

	"github.com/mfenderov/blog-harvester/internal/mcp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the MCP server for chunk retrieval.

The server communicates via stdio and provides two tools:
  - search_chunks: Search indexed chunks by query
  - get_chunk: Get a specific chunk by ID

Example:
  harvester serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	esClient, err := newIndex(&cfg)
	if err != nil {
		return err
	}

	server := mcp.NewServer(mcp.Config{
		Name:    cfg.MCP.Name,
		Version: cfg.MCP.Version,
	}, esClient)

	fmt.Fprintln(cmd.ErrOrStderr(), "Starting MCP server...")

	return server.ServeStdio()
}
