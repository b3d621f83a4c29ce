// Package blobstore abstracts storage for immutable search artifacts:
// codebooks, packed code blocks, and raw vector blocks.
//
// BlobStore implementations must be safe for concurrent use. All
// operations take a context; remote backends honor cancellation on
// every round trip.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem with mmap-backed zero-copy reads
//   - MemoryStore: in-memory store for tests and ephemeral indexes
//   - CachingStore: block-level read cache wrapping any other store
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - s3.ExpressStore: S3 Express One Zone with conditional writes
//   - minio.Store: MinIO and other S3-compatible object storage
//
// # Custom Implementations
//
// Implement BlobStore to plug in another backend. Blobs opened from
// cloud stores should translate range requests into partial fetches so
// re-ranking can touch single code blocks without downloading whole
// artifacts. Stores whose blobs live in addressable memory can
// additionally implement Mappable for zero-copy loads.
package blobstore
