package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Link is a single article URL discovered on a listing page.
type Link struct {
	URL string `json:"url"`
}

// Chunk is a bounded piece of article text as stored in the vector index.
// URL is the page the chunk was cut from and Position its order within that
// page. Embedding is an optional vector of Content.
type Chunk struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Content   string    `json:"content"`
	Position  int       `json:"position"`
	IndexedAt time.Time `json:"indexed_at"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// ChunkBatch is the unit of one index upsert: parallel ids and documents
// sharing a single source URL.
type ChunkBatch struct {
	SourceURL  string
	IDs        []string
	Documents  []string
	Embeddings [][]float32 // nil, or one entry per document
}

// NewChunkBatch assigns a fresh identifier to every document.
func NewChunkBatch(sourceURL string, documents []string) ChunkBatch {
	ids := make([]string, len(documents))
	for i := range documents {
		ids[i] = NewChunkID()
	}
	return ChunkBatch{
		SourceURL: sourceURL,
		IDs:       ids,
		Documents: documents,
	}
}

// Len returns the number of chunks in the batch.
func (b ChunkBatch) Len() int {
	return len(b.Documents)
}

// Validate checks that the parallel sequences line up.
func (b ChunkBatch) Validate() error {
	if b.SourceURL == "" {
		return fmt.Errorf("source url is required")
	}
	if len(b.IDs) != len(b.Documents) {
		return fmt.Errorf("ids and documents differ in length: %d != %d", len(b.IDs), len(b.Documents))
	}
	if b.Embeddings != nil && len(b.Embeddings) != len(b.Documents) {
		return fmt.Errorf("embeddings and documents differ in length: %d != %d", len(b.Embeddings), len(b.Documents))
	}
	return nil
}

// Chunks expands the batch into stored chunk records.
func (b ChunkBatch) Chunks(indexedAt time.Time) []Chunk {
	chunks := make([]Chunk, len(b.Documents))
	for i, doc := range b.Documents {
		chunks[i] = Chunk{
			ID:        b.IDs[i],
			URL:       b.SourceURL,
			Content:   doc,
			Position:  i,
			IndexedAt: indexedAt,
		}
		if b.Embeddings != nil {
			chunks[i].Embedding = b.Embeddings[i]
		}
	}
	return chunks
}

// NewChunkID returns a random UUIDv4 string.
// Identifiers are not derived from content, so re-harvesting a page adds new
// entries instead of replacing old ones.
func NewChunkID() string {
	return uuid.NewString()
}
