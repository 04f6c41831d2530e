package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/mfenderov/blog-harvester/internal/retry"
	"github.com/mfenderov/blog-harvester/pkg/models"
)

// Config holds Elasticsearch client configuration.
type Config struct {
	Addresses []string
	Index     string
	Username  string
	Password  string
	APIKey    string // Takes precedence over Username/Password
	Dims      int    // Embedding dimensions; 0 disables the vector field
}

// Client stores page chunks in an Elasticsearch index.
type Client struct {
	es    *elasticsearch.Client
	index string
	dims  int
	now   func() time.Time
}

// New creates a new Elasticsearch client.
func New(config Config) (*Client, error) {
	if config.Index == "" {
		return nil, fmt.Errorf("index name is required")
	}

	cfg := elasticsearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
		APIKey:    config.APIKey,
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}

	return &Client{
		es:    es,
		index: config.Index,
		dims:  config.Dims,
		now:   time.Now,
	}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) bool {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return !res.IsError()
}

// indexMapping returns the chunk mapping, with a dense_vector field when
// embeddings are configured.
func (c *Client) indexMapping() ([]byte, error) {
	properties := map[string]any{
		"id":         map[string]any{"type": "keyword"},
		"url":        map[string]any{"type": "keyword"},
		"content":    map[string]any{"type": "text", "analyzer": "english"},
		"position":   map[string]any{"type": "integer"},
		"indexed_at": map[string]any{"type": "date"},
	}
	if c.dims > 0 {
		properties["embedding"] = map[string]any{
			"type":       "dense_vector",
			"dims":       c.dims,
			"index":      true,
			"similarity": "cosine",
		}
	}
	return json.Marshal(map[string]any{
		"mappings": map[string]any{"properties": properties},
	})
}

// CreateIndex creates the index with the chunk mapping if it doesn't exist.
func (c *Client) CreateIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}

	mapping, err := c.indexMapping()
	if err != nil {
		return fmt.Errorf("failed to build mapping: %w", err)
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index: %w", statusError(res.StatusCode, res.Body))
	}

	return nil
}

// DeleteIndex removes the index (for testing/cleanup).
func (c *Client) DeleteIndex(ctx context.Context) error {
	res, err := c.es.Indices.Delete([]string{c.index}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// bulkResponse is the subset of the _bulk response we inspect.
type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// UpsertChunks writes every chunk of the batch in one _bulk request. Chunks
// are indexed by id, so an existing id is overwritten. Every chunk carries the
// batch's source URL.
func (c *Client) UpsertChunks(ctx context.Context, batch models.ChunkBatch) error {
	if err := batch.Validate(); err != nil {
		return retry.Permanent(fmt.Errorf("invalid chunk batch: %w", err))
	}
	if batch.Len() == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, chunk := range batch.Chunks(c.now().UTC()) {
		action := map[string]any{"index": map[string]any{"_index": c.index, "_id": chunk.ID}}
		if err := enc.Encode(action); err != nil {
			return retry.Permanent(fmt.Errorf("failed to encode bulk action: %w", err))
		}
		if err := enc.Encode(chunk); err != nil {
			return retry.Permanent(fmt.Errorf("failed to encode chunk %s: %w", chunk.ID, err))
		}
	}

	res, err := c.es.Bulk(
		bytes.NewReader(body.Bytes()),
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithIndex(c.index),
	)
	if err != nil {
		return fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk request rejected: %w", statusError(res.StatusCode, res.Body))
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if !br.Errors {
		return nil
	}

	failed := 0
	var first error
	for _, item := range br.Items {
		for _, result := range item {
			if result.Error == nil {
				continue
			}
			failed++
			if first == nil {
				first = &retry.StatusError{
					Code: result.Status,
					Body: fmt.Sprintf("chunk %s: %s: %s", result.ID, result.Error.Type, result.Error.Reason),
				}
			}
		}
	}
	if first == nil {
		return nil
	}
	return fmt.Errorf("%d of %d chunks failed for %s: %w", failed, batch.Len(), batch.SourceURL, first)
}

// Refresh forces an index refresh (useful for testing).
func (c *Client) Refresh(ctx context.Context) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(c.index),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// searchResponse represents ES search response structure.
type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.Chunk `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search performs a BM25 text search on chunk content.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]models.Chunk, error) {
	searchQuery := map[string]any{
		"query": map[string]any{
			"match": map[string]any{
				"content": query,
			},
		},
		"_source": map[string]any{"excludes": []string{"embedding"}},
		"size":    limit,
	}

	data, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %w", statusError(res.StatusCode, res.Body))
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	chunks := make([]models.Chunk, len(sr.Hits.Hits))
	for i, hit := range sr.Hits.Hits {
		chunks[i] = hit.Source
	}

	return chunks, nil
}

// getResponse represents ES get response structure.
type getResponse struct {
	Found  bool         `json:"found"`
	Source models.Chunk `json:"_source"`
}

// GetChunk retrieves a chunk by ID. It returns nil when the chunk is missing.
func (c *Client) GetChunk(ctx context.Context, id string) (*models.Chunk, error) {
	res, err := c.es.Get(
		c.index,
		id,
		c.es.Get.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	if res.IsError() {
		return nil, fmt.Errorf("get error: %w", statusError(res.StatusCode, res.Body))
	}

	var gr getResponse
	if err := json.NewDecoder(res.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if !gr.Found {
		return nil, nil
	}

	return &gr.Source, nil
}

func statusError(code int, body io.Reader) error {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	return &retry.StatusError{Code: code, Body: string(bytes.TrimSpace(data))}
}
