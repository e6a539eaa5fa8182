// Package storage archives finished campaign runs to S3-compatible object
// storage.
package storage

import (
	"context"
	"io"
)

// ObjectStore is the subset of an object store the run archive needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
}
