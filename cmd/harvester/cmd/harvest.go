package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var harvestConcurrency int

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Fetch collected links and index their chunks",
	Long: `Load the link collection, fetch every article, split its text into
overlapping chunks and upsert the chunks into Elasticsearch.

Examples:
  # Harvest with the configured worker count
  harvester harvest

  # Use eight workers
  harvester harvest --concurrency 8`,
	RunE: runHarvest,
}

func init() {
	rootCmd.AddCommand(harvestCmd)

	harvestCmd.Flags().IntVar(&harvestConcurrency, "concurrency", 0, "pages processed at once (default from config)")
}

func runHarvest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	if harvestConcurrency > 0 {
		cfg.Harvester.Concurrency = harvestConcurrency
	}
	slog.Debug("harvest command starting", "concurrency", cfg.Harvester.Concurrency, "backend", cfg.Links.Backend)

	store, err := openLinkStore(&cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	esClient, err := newIndex(&cfg)
	if err != nil {
		return err
	}

	h, err := newHarvester(&cfg, esClient, progressObserver())
	if err != nil {
		return err
	}

	fmt.Printf("Harvesting into index %s\n", cfg.Elasticsearch.Index)

	result, err := h.Run(ctx, store)
	if result != nil {
		printHarvestResult(result)
		refreshIndex(ctx, esClient)
	}
	if err != nil {
		return fmt.Errorf("harvest failed: %w", err)
	}

	return nil
}
