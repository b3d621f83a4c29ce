package cache

import "context"

// Key identifies a cached block. Blocks are addressed by the blob name
// they came from and their block index within that blob.
type Key struct {
	Path  string
	Block uint64
}

// BlockCache is a byte-oriented cache for immutable blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok is false on a miss.
	Get(ctx context.Context, key Key) (b []byte, ok bool)
	// Set caches a block. The caller must not mutate b afterwards.
	Set(ctx context.Context, key Key, b []byte)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key Key) bool)
	// Close releases resources such as background workers.
	Close() error
	// Stats returns hit and miss counts.
	Stats() (hits, misses int64)
}
