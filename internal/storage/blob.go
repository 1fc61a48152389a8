package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrBlobNotFound is returned when no blob exists under the key.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrBlobExists is returned by Put when the key is already taken. Stores never overwrite.
	ErrBlobExists = errors.New("blob already exists")
)

// BlobStore persists opaque byte blobs by key.
type BlobStore interface {
	// Put stores the reader's bytes under key. A failed Put leaves nothing behind.
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}
