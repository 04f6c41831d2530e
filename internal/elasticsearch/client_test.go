package elasticsearch

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mfenderov/blog-harvester/internal/retry"
	"github.com/mfenderov/blog-harvester/pkg/models"
)

// bulkServer is a minimal _bulk endpoint that records the NDJSON lines it receives.
type bulkServer struct {
	mu       sync.Mutex
	lines    []map[string]any
	response string
	status   int
}

func (b *bulkServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	if !strings.HasSuffix(r.URL.Path, "/_bulk") {
		w.Write([]byte(`{}`))
		return
	}

	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	b.mu.Lock()
	for scanner.Scan() {
		var line map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &line); err == nil {
			b.lines = append(b.lines, line)
		}
	}
	b.mu.Unlock()

	if b.status != 0 {
		w.WriteHeader(b.status)
	}
	if b.response != "" {
		w.Write([]byte(b.response))
		return
	}
	w.Write([]byte(`{"took":1,"errors":false,"items":[]}`))
}

func newMockClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{Addresses: []string{server.URL}, Index: "chunks-test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	client.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return client
}

func TestNew_RequiresIndex(t *testing.T) {
	if _, err := New(Config{Addresses: []string{"http://localhost:9200"}}); err == nil {
		t.Fatal("New() without index should fail")
	}
}

func TestIndexMapping(t *testing.T) {
	tests := []struct {
		name       string
		dims       int
		wantVector bool
	}{
		{"text only", 0, false},
		{"with embeddings", 768, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{index: "x", dims: tt.dims}
			data, err := c.indexMapping()
			if err != nil {
				t.Fatalf("indexMapping() error = %v", err)
			}

			var m struct {
				Mappings struct {
					Properties map[string]map[string]any `json:"properties"`
				} `json:"mappings"`
			}
			if err := json.Unmarshal(data, &m); err != nil {
				t.Fatalf("unmarshal mapping: %v", err)
			}

			for _, field := range []string{"id", "url", "content", "position", "indexed_at"} {
				if _, ok := m.Mappings.Properties[field]; !ok {
					t.Errorf("mapping missing field %q", field)
				}
			}

			emb, ok := m.Mappings.Properties["embedding"]
			if ok != tt.wantVector {
				t.Fatalf("embedding field present = %v, want %v", ok, tt.wantVector)
			}
			if ok && emb["dims"] != float64(tt.dims) {
				t.Errorf("dims = %v, want %d", emb["dims"], tt.dims)
			}
		})
	}
}

func TestUpsertChunks_WritesBulkBody(t *testing.T) {
	srv := &bulkServer{}
	client := newMockClient(t, srv)

	batch := models.NewChunkBatch("https://example.com/blog/a", []string{"first chunk", "second chunk"})
	if err := client.UpsertChunks(context.Background(), batch); err != nil {
		t.Fatalf("UpsertChunks() error = %v", err)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if len(srv.lines) != 4 {
		t.Fatalf("bulk lines = %d, want 4", len(srv.lines))
	}

	for i := 0; i < 2; i++ {
		action, ok := srv.lines[i*2]["index"].(map[string]any)
		if !ok {
			t.Fatalf("line %d is not an index action: %v", i*2, srv.lines[i*2])
		}
		if action["_id"] != batch.IDs[i] {
			t.Errorf("action _id = %v, want %s", action["_id"], batch.IDs[i])
		}

		doc := srv.lines[i*2+1]
		if doc["url"] != "https://example.com/blog/a" {
			t.Errorf("doc url = %v", doc["url"])
		}
		if doc["content"] != batch.Documents[i] {
			t.Errorf("doc content = %v, want %q", doc["content"], batch.Documents[i])
		}
		if doc["position"] != float64(i) {
			t.Errorf("doc position = %v, want %d", doc["position"], i)
		}
		if doc["indexed_at"] != "2026-01-02T03:04:05Z" {
			t.Errorf("doc indexed_at = %v", doc["indexed_at"])
		}
	}
}

func TestUpsertChunks_EmptyBatch(t *testing.T) {
	srv := &bulkServer{}
	client := newMockClient(t, srv)

	batch := models.NewChunkBatch("https://example.com/blog/a", nil)
	if err := client.UpsertChunks(context.Background(), batch); err != nil {
		t.Fatalf("UpsertChunks() error = %v", err)
	}
	if len(srv.lines) != 0 {
		t.Errorf("empty batch sent %d lines", len(srv.lines))
	}
}

func TestUpsertChunks_InvalidBatchIsPermanent(t *testing.T) {
	client := newMockClient(t, &bulkServer{})

	batch := models.ChunkBatch{
		SourceURL: "https://example.com/blog/a",
		IDs:       []string{"only-one"},
		Documents: []string{"a", "b"},
	}
	err := client.UpsertChunks(context.Background(), batch)
	if err == nil {
		t.Fatal("mismatched batch should fail")
	}
	if retry.IsTransient(err) {
		t.Error("invalid batch error should be permanent")
	}
}

func TestUpsertChunks_ItemErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{"rejected by queue", http.StatusTooManyRequests, true},
		{"mapping error", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &bulkServer{}
			srv.response = fmt.Sprintf(`{"errors":true,"items":[`+
				`{"index":{"_id":"a","status":201}},`+
				`{"index":{"_id":"b","status":%d,"error":{"type":"some_exception","reason":"boom"}}}]}`, tt.status)
			client := newMockClient(t, srv)

			batch := models.NewChunkBatch("https://example.com/blog/a", []string{"one", "two"})
			err := client.UpsertChunks(context.Background(), batch)
			if err == nil {
				t.Fatal("UpsertChunks() should report item errors")
			}

			var se *retry.StatusError
			if !errors.As(err, &se) {
				t.Fatalf("error should wrap StatusError, got %v", err)
			}
			if se.Code != tt.status {
				t.Errorf("status = %d, want %d", se.Code, tt.status)
			}
			if !strings.Contains(err.Error(), "1 of 2 chunks failed") {
				t.Errorf("error = %q, want failure count", err)
			}
			if got := retry.IsTransient(err); got != tt.wantTransient {
				t.Errorf("IsTransient() = %v, want %v", got, tt.wantTransient)
			}
		})
	}
}

func TestUpsertChunks_RequestRejected(t *testing.T) {
	srv := &bulkServer{status: http.StatusServiceUnavailable, response: `{"error":"unavailable"}`}
	client := newMockClient(t, srv)

	batch := models.NewChunkBatch("https://example.com/blog/a", []string{"one"})
	err := client.UpsertChunks(context.Background(), batch)
	if err == nil {
		t.Fatal("UpsertChunks() should fail on 503")
	}
	if !retry.IsTransient(err) {
		t.Errorf("503 should be transient, got %v", err)
	}
}

func skipIfNoES(t *testing.T) {
	if os.Getenv("SKIP_ES_TESTS") == "1" {
		t.Skip("Skipping ES tests (SKIP_ES_TESTS=1)")
	}

	// Try to connect to ES
	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     "test-skip-check",
	})
	if err != nil {
		t.Skipf("Skipping ES tests: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !client.Ping(ctx) {
		t.Skip("Skipping ES tests: Elasticsearch not available")
	}
}

func TestClient_CreateIndex(t *testing.T) {
	skipIfNoES(t)

	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     "blog-harvester-test-create",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()

	// Delete index if exists (cleanup from previous test)
	client.DeleteIndex(ctx)

	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}

	// Creating again should not error (idempotent)
	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() second call error = %v", err)
	}

	client.DeleteIndex(ctx)
}

func TestClient_UpsertAndSearch(t *testing.T) {
	skipIfNoES(t)

	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     "blog-harvester-test-search",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()

	client.DeleteIndex(ctx)
	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}

	sleep := models.NewChunkBatch("https://example.com/blog/sleep", []string{
		"Getting enough sleep helps your heart stay healthy.",
		"Adults should aim for seven hours of sleep each night.",
	})
	walking := models.NewChunkBatch("https://example.com/blog/walking", []string{
		"A brisk daily walk lowers blood pressure.",
	})

	for _, batch := range []models.ChunkBatch{sleep, walking} {
		if err := client.UpsertChunks(ctx, batch); err != nil {
			t.Fatalf("UpsertChunks() error = %v", err)
		}
	}
	if err := client.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	results, err := client.Search(ctx, "walk", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	found := false
	for _, r := range results {
		if r.ID == walking.IDs[0] {
			found = true
			if r.URL != "https://example.com/blog/walking" {
				t.Errorf("URL = %q", r.URL)
			}
		}
	}
	if !found {
		t.Error("Search('walk') should include the walking chunk")
	}

	got, err := client.GetChunk(ctx, sleep.IDs[1])
	if err != nil {
		t.Fatalf("GetChunk() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetChunk() returned nil")
	}
	if got.Content != sleep.Documents[1] || got.Position != 1 {
		t.Errorf("GetChunk() = %+v", got)
	}

	missing, err := client.GetChunk(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("GetChunk(missing) error = %v", err)
	}
	if missing != nil {
		t.Error("GetChunk(missing) should return nil")
	}

	client.DeleteIndex(ctx)
}
