package blobstore

import (
	"context"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// BlobStore is a flat namespace of named blobs. Snapshots and their history
// copies are written through it.
//
// Put must be atomic: a concurrent or later Get observes either the previous
// content or the new content, never a partial write.
type BlobStore interface {
	// Put writes a blob, replacing any existing one with the same name.
	Put(ctx context.Context, name string, data []byte) error
	// Get reads a whole blob.
	Get(ctx context.Context, name string) ([]byte, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of all blobs with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Locator is implemented by stores that keep blobs as files on the local
// disk. External syncers use it to find the file they publish.
type Locator interface {
	Path(name string) string
}
