// Package blobstore abstracts the persistence layer the pipeline writes
// tiles and manifests to, so the core tiling logic never touches the
// filesystem directly.
package blobstore

import "context"

// Store is the minimal capability set a tile output destination offers.
// Keys are always forward-slash-separated paths, e.g. "2/3/1.b3dm".
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// NotFoundError is returned by Get when the key does not exist.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return "blobstore: key not found: " + e.Key
}
