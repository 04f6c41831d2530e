package fetcher

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/mfenderov/blog-harvester/internal/retry"
)

var testPolicy = retry.Policy{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     5 * time.Millisecond,
	Multiplier:   2,
}

func TestFetcher_FetchParsesPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Post</title></head><body><p>Hello</p></body></html>`))
	}))
	defer server.Close()

	f := New(Config{UserAgent: "test-agent"}, testPolicy)

	page, err := f.Fetch(t.Context(), server.URL+"/blog/post")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if page.URL != server.URL+"/blog/post" {
		t.Errorf("URL = %q", page.URL)
	}
	if page.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", page.StatusCode)
	}
	if got := page.Document.Find("p").Text(); got != "Hello" {
		t.Errorf("paragraph = %q, want %q", got, "Hello")
	}
	if page.ContentType != "text/html" {
		t.Errorf("ContentType = %q", page.ContentType)
	}
}

func TestFetcher_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><p>Finally</p></body></html>`))
	}))
	defer server.Close()

	f := New(Config{UserAgent: "test-agent"}, testPolicy)

	page, err := f.Fetch(t.Context(), server.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("server hits = %d, want 3", hits.Load())
	}
	if got := page.Document.Find("p").Text(); got != "Finally" {
		t.Errorf("paragraph = %q", got)
	}
}

func TestFetcher_DoesNotRetryNotFound(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := New(Config{UserAgent: "test-agent"}, testPolicy)

	_, err := f.Fetch(t.Context(), server.URL)
	if err == nil {
		t.Fatal("Fetch() expected error for 404")
	}

	var se *retry.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Errorf("error = %v, want StatusError 404", err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestFetcher_SetsUserAgent(t *testing.T) {
	var receivedUA atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedUA.Store(r.Header.Get("User-Agent"))
		w.Write([]byte(`<html><body>Test</body></html>`))
	}))
	defer server.Close()

	f := New(Config{UserAgent: "harvester-test/1.0"}, testPolicy)
	if _, err := f.Fetch(t.Context(), server.URL); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if ua, _ := receivedUA.Load().(string); ua != "harvester-test/1.0" {
		t.Errorf("User-Agent = %q, want %q", ua, "harvester-test/1.0")
	}
}

func TestFetcher_SameURLTwice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>Again</body></html>`))
	}))
	defer server.Close()

	f := New(Config{}, testPolicy)
	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(t.Context(), server.URL); err != nil {
			t.Fatalf("Fetch() #%d error = %v", i+1, err)
		}
	}
}

func TestRetryOnError_RetriesThenGivesUp(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewCollector(Config{UserAgent: "test-agent"})

	var gaveUp []error
	RetryOnError(c, testPolicy, func(r *colly.Response, err error) {
		gaveUp = append(gaveUp, err)
	})

	c.Visit(server.URL)
	c.Wait()

	if hits.Load() != 3 {
		t.Errorf("server hits = %d, want 3", hits.Load())
	}
	if len(gaveUp) != 1 {
		t.Fatalf("onGiveUp called %d times, want 1", len(gaveUp))
	}
	var se *retry.StatusError
	if !errors.As(gaveUp[0], &se) || se.Code != http.StatusBadGateway {
		t.Errorf("give-up error = %v, want StatusError 502", gaveUp[0])
	}
}

func TestRetryOnError_ChildPageGetsOwnBudget(t *testing.T) {
	var first, second atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/first", func(w http.ResponseWriter, r *http.Request) {
		if first.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><a href="/second">next</a></body></html>`))
	})
	mux.HandleFunc("/second", func(w http.ResponseWriter, r *http.Request) {
		if second.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>done</body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewCollector(Config{UserAgent: "test-agent"})

	var gaveUp []error
	RetryOnError(c, testPolicy, func(r *colly.Response, err error) {
		gaveUp = append(gaveUp, err)
	})
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		e.Request.Visit(e.Attr("href"))
	})

	c.Visit(server.URL + "/first")
	c.Wait()

	if len(gaveUp) != 0 {
		t.Errorf("onGiveUp called with %v, want no failures", gaveUp)
	}
	if first.Load() != 3 || second.Load() != 3 {
		t.Errorf("hits first=%d second=%d, want 3 each", first.Load(), second.Load())
	}
}
