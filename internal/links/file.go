package links

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mfenderov/blog-harvester/pkg/models"
)

// FileStore keeps links as a JSON array file.
//
// The writer holds the collection in memory, so appends never re-read the
// file. The existing file is only parsed by Load, or by the first Append when
// no Reset came before it. Every write lands in a temporary file that is synced and renamed over
// the target: the file on disk is always a complete JSON array.
type FileStore struct {
	path string

	mu     sync.Mutex
	links  []models.Link
	loaded bool
}

// NewFileStore opens the file store at path. The file is not read here, so a
// corrupt file left by a crashed run can still be reset.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("link file path is required")
	}
	return &FileStore{path: path}, nil
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.links = []models.Link{}
	s.loaded = true
	return s.writeLocked()
}

func (s *FileStore) Append(ctx context.Context, links ...models.Link) error {
	if len(links) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		existing, err := readLinkFile(s.path)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		s.links = existing
		s.loaded = true
	}

	s.links = append(s.links, links...)
	if err := s.writeLocked(); err != nil {
		s.links = s.links[:len(s.links)-len(links)]
		return err
	}
	return nil
}

// Load reads the file from disk, so it sees what another process wrote.
func (s *FileStore) Load(ctx context.Context) ([]models.Link, error) {
	return readLinkFile(s.path)
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) writeLocked() error {
	data, err := json.MarshalIndent(s.links, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal links: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

func readLinkFile(path string) ([]models.Link, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read link file: %w", err)
	}

	var links []models.Link
	if err := json.Unmarshal(data, &links); err != nil {
		return nil, fmt.Errorf("failed to parse link file %s: %w", path, err)
	}
	if links == nil {
		links = []models.Link{}
	}
	return links, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create link file directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace link file: %w", err)
	}
	return nil
}
