package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key holds no object
var ErrNotFound = errors.New("object not found")

// BlobStore persists opaque artifacts (uploaded documents, rendered
// episodes) by key.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
