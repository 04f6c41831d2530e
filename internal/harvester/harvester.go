package harvester

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mfenderov/blog-harvester/internal/events"
	"github.com/mfenderov/blog-harvester/internal/extract"
	"github.com/mfenderov/blog-harvester/internal/fetcher"
	"github.com/mfenderov/blog-harvester/internal/markdown"
	"github.com/mfenderov/blog-harvester/internal/retry"
	"github.com/mfenderov/blog-harvester/internal/splitter"
	"github.com/mfenderov/blog-harvester/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Fetcher retrieves a parsed page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Page, error)
}

// Index stores page chunks.
type Index interface {
	CreateIndex(ctx context.Context) error
	UpsertChunks(ctx context.Context, batch models.ChunkBatch) error
}

// Embedder turns chunk text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LinkSource yields the links to harvest.
type LinkSource interface {
	Load(ctx context.Context) ([]models.Link, error)
}

// Config holds harvester configuration.
type Config struct {
	Content     extract.ContentRules
	Splitter    splitter.Config
	Concurrency int          // Pages processed at once
	Retry       retry.Policy // Applied to index writes
}

// Result holds the outcome of one harvest.
type Result struct {
	Pages         int // Pages whose chunks were stored
	Skipped       int // Pages without usable text
	ChunksIndexed int
	Duration      time.Duration
	Errors        []string // Per-page failures; the run continued past them
}

// Option configures optional harvester collaborators.
type Option func(*Harvester)

// WithEmbedder attaches an embedding vector to every chunk.
func WithEmbedder(e Embedder) Option {
	return func(h *Harvester) { h.embedder = e }
}

// WithObserver reports every page outcome to o.
func WithObserver(o events.Observer) Option {
	return func(h *Harvester) { h.observer = o }
}

// Harvester fetches article pages, chunks their text and stores the chunks.
type Harvester struct {
	config   Config
	fetcher  Fetcher
	index    Index
	content  *extract.Content
	splitter *splitter.Splitter
	embedder Embedder        // nil if embeddings disabled
	observer events.Observer // nil if nobody listens
}

// New creates a Harvester.
func New(config Config, f Fetcher, index Index, opts ...Option) (*Harvester, error) {
	content, err := extract.NewContent(config.Content)
	if err != nil {
		return nil, err
	}
	split, err := splitter.New(config.Splitter)
	if err != nil {
		return nil, err
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}

	h := &Harvester{
		config:   config,
		fetcher:  f,
		index:    index,
		content:  content,
		splitter: split,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Run loads the links from source, ensures the index exists and harvests
// every link. Load and index creation failures abort the run.
func (h *Harvester) Run(ctx context.Context, source LinkSource) (*Result, error) {
	collected, err := source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load links: %w", err)
	}

	if err := h.index.CreateIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure index: %w", err)
	}

	return h.Harvest(ctx, collected)
}

// Harvest processes links with a bounded worker pool. Duplicate URLs are
// fetched once. Per-page failures are collected in the result; only context
// cancellation is returned as an error.
func (h *Harvester) Harvest(ctx context.Context, collected []models.Link) (*Result, error) {
	start := time.Now()
	result := &Result{}
	var mu sync.Mutex

	seen := make(map[string]bool, len(collected))
	var pending []string
	for _, link := range collected {
		u := strings.TrimSpace(link.URL)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		pending = append(pending, u)
	}

	slog.Debug("starting harvest", "links", len(collected), "unique", len(pending), "concurrency", h.config.Concurrency)

	var g errgroup.Group
	g.SetLimit(h.config.Concurrency)

	for _, pageURL := range pending {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			event := h.harvestPage(ctx, pageURL)

			mu.Lock()
			switch {
			case event.Err != nil:
				if ctx.Err() == nil {
					result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", pageURL, event.Err))
				}
			case event.Skipped:
				result.Skipped++
			default:
				result.Pages++
				result.ChunksIndexed += event.Chunks
			}
			mu.Unlock()

			if h.observer != nil {
				h.observer.PageHarvested(event)
			}
			return nil
		})
	}
	g.Wait()

	result.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		slog.Info("harvest cancelled by context", "pages", result.Pages, "chunks", result.ChunksIndexed)
		return result, err
	}

	slog.Debug("harvest complete", "pages", result.Pages, "skipped", result.Skipped, "chunks", result.ChunksIndexed, "errors", len(result.Errors))
	return result, nil
}

func (h *Harvester) harvestPage(ctx context.Context, pageURL string) events.PageHarvestedEvent {
	start := time.Now()
	event := events.PageHarvestedEvent{URL: pageURL}
	done := func() events.PageHarvestedEvent {
		event.Duration = time.Since(start)
		return event
	}

	page, err := h.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		slog.Warn("failed to fetch page", "url", pageURL, "error", err)
		event.Err = err
		return done()
	}
	event.URL = page.URL

	text, err := h.pageText(page)
	if err != nil {
		slog.Warn("failed to extract page", "url", page.URL, "error", err)
		event.Err = err
		return done()
	}

	if strings.TrimSpace(text) == "" {
		slog.Warn("no valid text found on page", "url", page.URL)
		event.Skipped = true
		return done()
	}

	chunks := h.splitter.Split(text)
	if len(chunks) == 0 {
		slog.Warn("no chunks produced for page", "url", page.URL)
		event.Skipped = true
		return done()
	}

	batch := models.NewChunkBatch(page.URL, chunks)
	if h.embedder != nil {
		batch.Embeddings = h.embed(ctx, page.URL, chunks)
	}

	err = retry.Do(ctx, h.config.Retry, func(ctx context.Context) error {
		return h.index.UpsertChunks(ctx, batch)
	})
	if err != nil {
		slog.Warn("failed to store chunks", "url", page.URL, "chunks", batch.Len(), "error", err)
		event.Err = fmt.Errorf("failed to store chunks: %w", err)
		return done()
	}

	slog.Debug("page harvested", "url", page.URL, "title", extract.Title(page.Document.Selection), "chunks", batch.Len())
	event.Chunks = batch.Len()
	return done()
}

// pageText returns the body of markdown responses as-is and the configured
// article content otherwise.
func (h *Harvester) pageText(page *fetcher.Page) (string, error) {
	body := string(page.Body)
	if markdown.Detect(page.URL, page.ContentType, body) {
		return body, nil
	}
	return h.content.Extract(page.Document.Selection)
}

// embed returns one vector per chunk, or nil if any chunk fails so the batch
// is stored without vectors.
func (h *Harvester) embed(ctx context.Context, pageURL string, chunks []string) [][]float32 {
	vectors := make([][]float32, len(chunks))
	for i, chunk := range chunks {
		v, err := h.embedder.Embed(ctx, chunk)
		if err != nil {
			slog.Warn("failed to generate embedding", "url", pageURL, "chunk", i, "error", err)
			return nil
		}
		vectors[i] = v
	}
	return vectors
}
