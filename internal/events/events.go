package events

import "time"

// CollectionCompleteEvent is sent when the link collector finishes a crawl.
type CollectionCompleteEvent struct {
	StartURL   string        // Listing page the crawl started from
	Store      string        // Link store backend (file, sqlite, s3)
	PageCount  int           // Listing pages visited
	LinkCount  int           // Links written to the store
	Duration   time.Duration // How long collection took
	Errors     []string      // Per-page failures (non-fatal)
	FinishedAt time.Time
}

// PageHarvestedEvent reports the outcome of harvesting one link.
type PageHarvestedEvent struct {
	URL      string        // Final page URL used as chunk metadata
	Chunks   int           // Chunks written for the page
	Skipped  bool          // True when the page had no usable text
	Err      error         // Non-nil when fetch or store failed
	Duration time.Duration // Time spent on the page
}

// Observer receives per-page harvest events. Implementations must be safe for
// concurrent use.
type Observer interface {
	PageHarvested(PageHarvestedEvent)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(PageHarvestedEvent)

// PageHarvested calls f(e).
func (f ObserverFunc) PageHarvested(e PageHarvestedEvent) { f(e) }
