// Package fetcher wraps colly as the fetch substrate shared by both stages.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/mfenderov/blog-harvester/internal/retry"
)

// Config holds fetch configuration.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	Delay       time.Duration // Politeness delay between requests to a domain
	Parallelism int           // Concurrent requests per domain
}

// Page is a fetched and parsed HTML response.
type Page struct {
	URL         string // Final URL after redirects
	StatusCode  int
	ContentType string
	Body        []byte
	Document    *goquery.Document
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "blog-harvester/1.0"
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 1
	}
	return c
}

// NewCollector builds a colly collector carrying the shared fetch settings.
func NewCollector(config Config, options ...colly.CollectorOption) *colly.Collector {
	config = config.withDefaults()

	options = append([]colly.CollectorOption{colly.UserAgent(config.UserAgent)}, options...)
	c := colly.NewCollector(options...)
	c.SetRequestTimeout(config.Timeout)

	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       config.Delay,
		Parallelism: config.Parallelism,
	}); err != nil {
		slog.Warn("failed to set limit rule", "error", err)
	}

	return c
}

// Fetcher fetches single pages with retry on transient failures.
type Fetcher struct {
	base   *colly.Collector
	policy retry.Policy
}

// New creates a Fetcher. Revisits are allowed so a retried or repeated URL is
// fetched again.
func New(config Config, policy retry.Policy) *Fetcher {
	return &Fetcher{
		base:   NewCollector(config, colly.AllowURLRevisit()),
		policy: policy,
	}
}

// Fetch retrieves pageURL and parses it.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	var page *Page
	err := retry.Do(ctx, f.policy, func(ctx context.Context) error {
		p, err := f.fetchOnce(ctx, pageURL)
		if err != nil {
			slog.Debug("fetch attempt failed", "url", pageURL, "error", err, "class", retry.Classify(err))
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, pageURL string) (*Page, error) {
	c := f.base.Clone()

	var page *Page
	var parseErr error
	status := 0

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	c.OnResponse(func(r *colly.Response) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		if err != nil {
			parseErr = retry.Permanent(fmt.Errorf("failed to parse %s: %w", pageURL, err))
			return
		}
		page = &Page{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        r.Body,
			Document:    doc,
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		status = r.StatusCode
	})

	err := c.Visit(pageURL)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		if status >= 400 {
			return nil, &retry.StatusError{Code: status, URL: pageURL}
		}
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	if page == nil {
		return nil, retry.Permanent(fmt.Errorf("failed to fetch %s: %w", pageURL, errNoResponse))
	}
	return page, nil
}

var errNoResponse = errors.New("no response received")

// colly hands a request's context on to the requests it spawns, so the
// attempt counter is keyed by URL to give every page its own budget.
func attemptKey(u string) string {
	return "retry_attempt " + u
}

// RetryOnError installs an error hook on c that re-issues transiently failed
// requests with backoff. onGiveUp receives failures that are permanent or out
// of attempts.
func RetryOnError(c *colly.Collector, policy retry.Policy, onGiveUp func(r *colly.Response, err error)) {
	c.OnError(func(r *colly.Response, err error) {
		if r.StatusCode >= 400 {
			err = &retry.StatusError{Code: r.StatusCode, URL: r.Request.URL.String()}
		}

		key := attemptKey(r.Request.URL.String())
		attempt := 1
		if n, ok := r.Ctx.GetAny(key).(int); ok {
			attempt = n
		}

		if retry.IsTransient(err) && attempt < policy.Attempts() {
			delay := policy.Backoff(attempt)
			slog.Debug("retrying request", "url", r.Request.URL.String(), "attempt", attempt, "delay", delay, "error", err)
			time.Sleep(delay)
			r.Ctx.Put(key, attempt+1)
			// A failed retry re-enters this hook, which reports the final outcome.
			if retryErr := r.Request.Retry(); retryErr != nil {
				slog.Debug("retry attempt failed", "url", r.Request.URL.String(), "attempt", attempt+1, "error", retryErr)
			}
			return
		}

		onGiveUp(r, err)
	})
}
