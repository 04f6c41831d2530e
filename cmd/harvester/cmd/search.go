package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	searchLimit  int
	searchFormat string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed chunks",
	Long: `Search the indexed article chunks.

Examples:
  # Basic search
  harvester search "heart health"

  # Limit results
  harvester search "sleep" --limit 5

  # JSON output for scripting
  harvester search "blood pressure" --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of results")
	searchCmd.Flags().StringVar(&searchFormat, "format", "text", "Output format: text or json")
}

func runSearch(cmd *cobra.Command, args []string) error {
	// Setup context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if searchFormat != "text" && searchFormat != "json" {
		return fmt.Errorf("unknown format %q: want text or json", searchFormat)
	}

	query := args[0]
	cfg := GetConfig()

	esClient, err := newIndex(&cfg)
	if err != nil {
		return err
	}

	chunks, err := esClient.Search(ctx, query, searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(chunks) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	if searchFormat == "json" {
		output, err := json.MarshalIndent(chunks, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Found %d results:\n\n", len(chunks))
	for i, chunk := range chunks {
		fmt.Printf("─── Result %d ───\n", i+1)
		fmt.Printf("URL:      %s\n", chunk.URL)
		fmt.Printf("ID:       %s\n", chunk.ID)
		fmt.Printf("Position: %d\n", chunk.Position)

		// Truncate content for display
		content := []rune(chunk.Content)
		if len(content) > 500 {
			content = append(content[:500], []rune("...")...)
		}
		fmt.Printf("Content:\n%s\n\n", string(content))
	}

	return nil
}
