// Package links persists the collected article links between the collector
// and harvester stages.
package links

import (
	"context"
	"errors"
	"fmt"

	"github.com/mfenderov/blog-harvester/internal/storage"
	"github.com/mfenderov/blog-harvester/pkg/models"
)

// ErrNotFound is returned by Load when no link collection exists yet.
var ErrNotFound = errors.New("link collection not found")

// Store is an ordered collection of links with a single writer.
type Store interface {
	// Reset replaces the collection with an empty one.
	Reset(ctx context.Context) error
	// Append adds links to the end of the collection.
	Append(ctx context.Context, links ...models.Link) error
	// Load returns the whole collection in insertion order.
	Load(ctx context.Context) ([]models.Link, error)
	Close() error
}

// Backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Config selects and configures a store backend.
type Config struct {
	Backend    string
	Path       string // JSON file for the file backend
	SQLitePath string
	ObjectKey  string          // Object name for the s3 backend
	Storage    *storage.Client // Required for the s3 backend
}

// Open returns the store named by config.Backend.
func Open(config Config) (Store, error) {
	switch config.Backend {
	case "", BackendFile:
		return NewFileStore(config.Path)
	case BackendSQLite:
		return OpenSQLite(config.SQLitePath)
	case BackendS3:
		if config.Storage == nil {
			return nil, fmt.Errorf("s3 link store requires a storage client")
		}
		return NewS3Store(config.Storage, config.ObjectKey)
	default:
		return nil, fmt.Errorf("unknown link store backend %q", config.Backend)
	}
}
