package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mfenderov/blog-harvester/internal/collector"
	"github.com/mfenderov/blog-harvester/internal/config"
	"github.com/mfenderov/blog-harvester/internal/elasticsearch"
	"github.com/mfenderov/blog-harvester/internal/embeddings"
	"github.com/mfenderov/blog-harvester/internal/events"
	"github.com/mfenderov/blog-harvester/internal/extract"
	"github.com/mfenderov/blog-harvester/internal/fetcher"
	"github.com/mfenderov/blog-harvester/internal/harvester"
	"github.com/mfenderov/blog-harvester/internal/links"
	"github.com/mfenderov/blog-harvester/internal/retry"
	"github.com/mfenderov/blog-harvester/internal/splitter"
	"github.com/mfenderov/blog-harvester/internal/storage"
)

func fetchConfig(cfg *config.Config) fetcher.Config {
	return fetcher.Config{
		UserAgent:   cfg.Fetch.UserAgent,
		Timeout:     cfg.Fetch.Timeout,
		Delay:       cfg.Fetch.Delay,
		Parallelism: cfg.Fetch.Parallelism,
	}
}

func retryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   cfg.Retry.Multiplier,
	}
}

// openLinkStore opens the configured link store. The s3 backend creates its
// bucket on first use.
func openLinkStore(cfg *config.Config) (links.Store, error) {
	storeConfig := links.Config{
		Backend:    cfg.Links.Backend,
		Path:       cfg.Links.Path,
		SQLitePath: cfg.Links.SQLitePath,
		ObjectKey:  cfg.Links.ObjectKey,
	}

	if cfg.Links.Backend == links.BackendS3 {
		storageClient, err := storage.New(storage.Config{
			Endpoint:        cfg.Storage.Endpoint,
			Bucket:          cfg.Storage.Bucket,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			UseSSL:          cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		storeConfig.Storage = storageClient
	}

	store, err := links.Open(storeConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open link store: %w", err)
	}
	return store, nil
}

func newIndex(cfg *config.Config) (*elasticsearch.Client, error) {
	dims := 0
	if cfg.Embeddings.Enabled {
		dims = embeddings.Dimensions(cfg.Embeddings.Model)
	}

	esClient, err := elasticsearch.New(elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Index:     cfg.Elasticsearch.Index,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
		APIKey:    cfg.Elasticsearch.APIKey,
		Dims:      dims,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}
	return esClient, nil
}

func newCollector(cfg *config.Config, store links.Store) *collector.Collector {
	return collector.New(collector.Config{
		Fetch: fetchConfig(cfg),
		Retry: retryPolicy(cfg),
		Rules: extract.ListingRules{
			Region:          cfg.Collector.Region,
			PathPrefix:      cfg.Collector.PathPrefix,
			PaginationParam: cfg.Collector.PaginationParam,
			NextSelector:    cfg.Collector.NextSelector,
		},
	}, store)
}

func newHarvester(cfg *config.Config, index harvester.Index, opts ...harvester.Option) (*harvester.Harvester, error) {
	if cfg.Embeddings.Enabled {
		embedClient, err := embeddings.New(embeddings.Config{
			BaseURL:    cfg.Embeddings.BaseURL,
			SocketPath: cfg.Embeddings.SocketPath,
			Model:      cfg.Embeddings.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings client: %w", err)
		}
		slog.Info("embeddings enabled", "model", cfg.Embeddings.Model)
		opts = append(opts, harvester.WithEmbedder(embedClient))
	}

	policy := retryPolicy(cfg)
	return harvester.New(harvester.Config{
		Content: extract.ContentRules{
			Container: cfg.Harvester.Container,
			Items:     cfg.Harvester.Items,
			Mode:      extract.Mode(cfg.Harvester.Mode),
		},
		Splitter: splitter.Config{
			ChunkSize:    cfg.Harvester.ChunkSize,
			ChunkOverlap: cfg.Harvester.ChunkOverlap,
		},
		Concurrency: cfg.Harvester.Concurrency,
		Retry:       policy,
	}, fetcher.New(fetchConfig(cfg), policy), index, opts...)
}

func printCollectResult(result *collector.Result) {
	fmt.Printf("  Pages: %d, Links stored: %d, Duration: %v\n", result.Pages, result.Links, result.Duration)
	for _, e := range result.Errors {
		fmt.Printf("  Warning: %s\n", e)
	}
}

func printHarvestResult(result *harvester.Result) {
	fmt.Printf("  Pages: %d, Skipped: %d, Chunks indexed: %d, Duration: %v\n",
		result.Pages, result.Skipped, result.ChunksIndexed, result.Duration)
	for _, e := range result.Errors {
		fmt.Printf("  Warning: %s\n", e)
	}
}

func closeStore(store links.Store) {
	if err := store.Close(); err != nil {
		slog.Warn("failed to close link store", "error", err)
	}
}

// refreshIndex makes freshly written chunks searchable.
func refreshIndex(ctx context.Context, esClient *elasticsearch.Client) {
	if err := esClient.Refresh(ctx); err != nil {
		slog.Warn("failed to refresh index", "error", err)
	}
}

// progressObserver logs every page outcome.
func progressObserver() harvester.Option {
	return harvester.WithObserver(events.ObserverFunc(func(e events.PageHarvestedEvent) {
		switch {
		case e.Err != nil:
			slog.Debug("page failed", "url", e.URL, "error", e.Err, "duration", e.Duration)
		case e.Skipped:
			slog.Debug("page skipped", "url", e.URL, "duration", e.Duration)
		default:
			slog.Debug("page indexed", "url", e.URL, "chunks", e.Chunks, "duration", e.Duration)
		}
	}))
}
