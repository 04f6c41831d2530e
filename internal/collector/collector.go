package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/mfenderov/blog-harvester/internal/extract"
	"github.com/mfenderov/blog-harvester/internal/fetcher"
	"github.com/mfenderov/blog-harvester/internal/links"
	"github.com/mfenderov/blog-harvester/internal/retry"
	"github.com/mfenderov/blog-harvester/pkg/models"
)

// Config holds link collector configuration.
type Config struct {
	Fetch fetcher.Config
	Retry retry.Policy
	Rules extract.ListingRules
}

// Result holds the outcome of one crawl.
type Result struct {
	Pages    int // Listing pages parsed
	Links    int // Links written to the store
	Duration time.Duration
	Errors   []string // Per-page failures; the crawl continued past them
}

// Collector walks a paginated listing and stores the article links it finds.
type Collector struct {
	config Config
	store  links.Store
}

// New creates a Collector writing to store.
func New(config Config, store links.Store) *Collector {
	return &Collector{config: config, store: store}
}

// Collect resets the store and crawls from startURL, following the next-page
// link until there is none. Listing pages are visited at most once.
func (c *Collector) Collect(ctx context.Context, startURL string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	if err := c.store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset link store: %w", err)
	}

	var mu sync.Mutex
	record := func(pageURL string, err error) {
		mu.Lock()
		defer mu.Unlock()
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", pageURL, err))
	}
	failures := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(result.Errors)
	}

	cc := fetcher.NewCollector(c.config.Fetch)

	// Check for cancellation before each request
	cc.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			slog.Debug("collection cancelled", "url", r.URL.String())
			r.Abort()
		}
	})

	fetcher.RetryOnError(cc, c.config.Retry, func(r *colly.Response, err error) {
		slog.Warn("listing page failed", "url", r.Request.URL.String(), "error", err)
		record(r.Request.URL.String(), err)
	})

	// visit reports errors the error hook did not already record
	visit := func(pageURL string, fn func() error) {
		before := failures()
		err := fn()
		var revisit *colly.AlreadyVisitedError
		if err == nil || errors.As(err, &revisit) || ctx.Err() != nil {
			return
		}
		if failures() == before {
			record(pageURL, err)
		}
	}

	cc.OnHTML("html", func(e *colly.HTMLElement) {
		pageURL := e.Request.URL.String()
		listing := extract.ExtractListing(e.DOM, e.Request.AbsoluteURL, c.config.Rules)

		mu.Lock()
		result.Pages++
		mu.Unlock()

		slog.Debug("parsed listing page", "url", pageURL, "links", len(listing.Links), "next", listing.Next)

		if len(listing.Links) > 0 {
			batch := make([]models.Link, len(listing.Links))
			for i, link := range listing.Links {
				batch[i] = models.Link{URL: link}
			}
			if err := c.store.Append(ctx, batch...); err != nil {
				slog.Warn("failed to store links", "url", pageURL, "error", err)
				record(pageURL, fmt.Errorf("failed to store links: %w", err))
			} else {
				mu.Lock()
				result.Links += len(batch)
				mu.Unlock()
			}
		}

		if listing.Next != "" {
			visit(listing.Next, func() error { return e.Request.Visit(listing.Next) })
		}
	})

	slog.Debug("starting collection", "url", startURL)
	visit(startURL, func() error { return cc.Visit(startURL) })

	// Wait for all requests to finish
	cc.Wait()

	result.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		slog.Info("collection cancelled by context", "pages", result.Pages, "links", result.Links)
		return result, err
	}

	slog.Debug("collection complete", "url", startURL, "pages", result.Pages, "links", result.Links)
	return result, nil
}
