package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfenderov/blog-harvester/internal/collector"
	"github.com/mfenderov/blog-harvester/internal/events"
	"github.com/mfenderov/blog-harvester/internal/harvester"
	"github.com/mfenderov/blog-harvester/internal/links"
)

// ErrNoLinks is returned when collection stored nothing to harvest.
var ErrNoLinks = errors.New("no links collected")

// Collector is the link collection stage.
type Collector interface {
	Collect(ctx context.Context, startURL string) (*collector.Result, error)
}

// Harvester is the content harvest stage.
type Harvester interface {
	Run(ctx context.Context, source harvester.LinkSource) (*harvester.Result, error)
}

// Result holds pipeline execution results.
type Result struct {
	Collection *collector.Result
	Harvest    *harvester.Result // nil if the harvest did not start
	Duration   time.Duration
}

// Pipeline runs collection and then harvest over the same link store.
type Pipeline struct {
	collector Collector
	harvester Harvester
	store     links.Store
	backend   string

	// OnCollectionComplete, when set, receives the collection summary before
	// the harvest starts.
	OnCollectionComplete func(events.CollectionCompleteEvent)
}

// New creates a Pipeline. backend names the store for reporting.
func New(c Collector, h Harvester, store links.Store, backend string) *Pipeline {
	return &Pipeline{collector: c, harvester: h, store: store, backend: backend}
}

// Run collects links from startURL and harvests them. Collection page errors
// do not stop the harvest unless no link was stored at all.
func (p *Pipeline) Run(ctx context.Context, startURL string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	collected, err := p.collector.Collect(ctx, startURL)
	if err != nil {
		result.Collection = collected
		result.Duration = time.Since(start)
		return result, fmt.Errorf("collection failed: %w", err)
	}
	result.Collection = collected

	event := events.CollectionCompleteEvent{
		StartURL:   startURL,
		Store:      p.backend,
		PageCount:  collected.Pages,
		LinkCount:  collected.Links,
		Duration:   collected.Duration,
		Errors:     collected.Errors,
		FinishedAt: time.Now(),
	}
	slog.Debug("collection complete", "url", startURL, "pages", event.PageCount, "links", event.LinkCount, "errors", len(event.Errors))
	if p.OnCollectionComplete != nil {
		p.OnCollectionComplete(event)
	}

	if collected.Links == 0 {
		result.Duration = time.Since(start)
		return result, fmt.Errorf("%w from %s", ErrNoLinks, startURL)
	}

	harvested, err := p.harvester.Run(ctx, p.store)
	result.Harvest = harvested
	result.Duration = time.Since(start)
	if err != nil {
		return result, fmt.Errorf("harvest failed: %w", err)
	}

	return result, nil
}
