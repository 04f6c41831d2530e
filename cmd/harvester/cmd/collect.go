package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var collectStartURL string

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect article links from the blog listing",
	Long: `Crawl the paginated blog listing and write every article link to the
link store. The store is emptied before the crawl starts.

Examples:
  # Collect from the configured start URL
  harvester collect

  # Collect from another listing
  harvester collect --start-url https://example.com/blog`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().StringVar(&collectStartURL, "start-url", "", "listing URL to start from (default from config)")
}

func runCollect(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	startURL := cfg.Collector.StartURL
	if collectStartURL != "" {
		startURL = collectStartURL
	}
	slog.Debug("collect command starting", "url", startURL, "backend", cfg.Links.Backend)

	store, err := openLinkStore(&cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	fmt.Printf("Collecting: %s\n", startURL)

	result, err := newCollector(&cfg, store).Collect(ctx, startURL)
	if result != nil {
		printCollectResult(result)
	}
	if err != nil {
		return fmt.Errorf("collection failed: %w", err)
	}

	return nil
}
