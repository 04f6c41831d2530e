package links

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mfenderov/blog-harvester/internal/storage"
	"github.com/mfenderov/blog-harvester/pkg/models"
)

// S3Store keeps links as a JSON array object in a bucket. Appends extend the
// collection started by this writer's Reset.
type S3Store struct {
	client *storage.Client
	key    string

	mu    sync.Mutex
	links []models.Link
}

// NewS3Store creates a store writing to key in the client's bucket.
func NewS3Store(client *storage.Client, key string) (*S3Store, error) {
	if key == "" {
		return nil, fmt.Errorf("object key is required")
	}
	return &S3Store{client: client, key: key}, nil
}

func (s *S3Store) Reset(ctx context.Context) error {
	if err := s.client.EnsureBucket(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.links = []models.Link{}
	return s.client.PutJSON(ctx, s.key, s.links)
}

func (s *S3Store) Append(ctx context.Context, links ...models.Link) error {
	if len(links) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.links = append(s.links, links...)
	if err := s.client.PutJSON(ctx, s.key, s.links); err != nil {
		s.links = s.links[:len(s.links)-len(links)]
		return err
	}
	return nil
}

func (s *S3Store) Load(ctx context.Context) ([]models.Link, error) {
	var links []models.Link
	if err := s.client.GetJSON(ctx, s.key, &links); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%s/%s: %w", s.client.Bucket(), s.key, ErrNotFound)
		}
		return nil, err
	}
	if links == nil {
		links = []models.Link{}
	}
	return links, nil
}

func (s *S3Store) Close() error {
	return nil
}
