package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/mfenderov/blog-harvester/internal/events"
	"github.com/mfenderov/blog-harvester/internal/pipeline"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect links, then harvest them",
	Long: `Run both stages in order over the same link store. Listing page errors
do not stop the harvest unless no link was collected.

Example:
  harvester run --start-url https://example.com/blog`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&collectStartURL, "start-url", "", "listing URL to start from (default from config)")
	runCmd.Flags().IntVar(&harvestConcurrency, "concurrency", 0, "pages processed at once (default from config)")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	startURL := cfg.Collector.StartURL
	if collectStartURL != "" {
		startURL = collectStartURL
	}
	if harvestConcurrency > 0 {
		cfg.Harvester.Concurrency = harvestConcurrency
	}

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

	p := pipeline.New(newCollector(&cfg, store), h, store, cfg.Links.Backend)
	p.OnCollectionComplete = func(e events.CollectionCompleteEvent) {
		fmt.Printf("Collected: %d links from %d pages in %v\n", e.LinkCount, e.PageCount, e.Duration)
		for _, msg := range e.Errors {
			fmt.Printf("  Warning: %s\n", msg)
		}
		fmt.Printf("Harvesting into index %s\n", cfg.Elasticsearch.Index)
	}

	fmt.Printf("Collecting: %s\n", startURL)

	result, err := p.Run(ctx, startURL)
	if result != nil && result.Harvest != nil {
		printHarvestResult(result.Harvest)
		refreshIndex(ctx, esClient)
	}
	if err != nil {
		return err
	}

	fmt.Printf("\nTotal: %d links, %d chunks indexed in %v\n",
		result.Collection.Links, result.Harvest.ChunksIndexed, result.Duration)
	return nil
}
