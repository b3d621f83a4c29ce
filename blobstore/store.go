package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// errors.Is(err, ErrNotFound). The default maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// BlobStore is an abstraction for storing immutable artifacts such as
// codebooks and packed code blocks. Implementations must be safe for
// concurrent use.
type BlobStore interface {
	// Open opens an existing blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create opens a new blob for streaming writes. The blob becomes
	// visible when the returned WritableBlob is closed.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a blob in one shot. The write is atomic: readers see
	// either the previous content or the full new content.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the names of all blobs with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a stored artifact.
type Blob interface {
	// ReadAt reads len(p) bytes starting at offset off. It returns
	// io.EOF when fewer bytes than requested are available.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// ReadRange returns a reader over [off, off+length), truncated at
	// the end of the blob. An offset at or past the end returns io.EOF.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
	// Size returns the size of the blob in bytes.
	Size() int64
	// Close releases the handle.
	Close() error
}

// WritableBlob is a streaming write handle returned by Create.
type WritableBlob interface {
	io.Writer
	// Sync flushes written data to stable storage where the backend
	// supports it.
	Sync() error
	// Close finalizes the blob. Data is not readable before Close
	// returns nil.
	Close() error
}

// Mappable is an optional interface for Blobs whose contents are
// addressable in memory. Bytes returns the full contents without
// copying; the slice is valid until the Blob is closed.
type Mappable interface {
	Bytes() ([]byte, error)
}
