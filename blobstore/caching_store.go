package blobstore

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/sensevec/internal/cache"
)

// defaultBlockSize splits blobs into 4KB cache blocks.
const defaultBlockSize = 4096

// prefetchConcurrency bounds parallel backend fetches per read.
const prefetchConcurrency = 16

// CachingStore wraps a BlobStore with block-level read caching. It is
// meant for remote backends where every read pays a network round trip;
// hot code blocks are served from the cache instead.
type CachingStore struct {
	inner     BlobStore
	cache     cache.BlockCache
	blockSize int64
}

// NewCachingStore creates a CachingStore with the given block size.
// blockSize defaults to 4KB if <= 0.
func NewCachingStore(inner BlobStore, blockCache cache.BlockCache, blockSize int64) *CachingStore {
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	return &CachingStore{
		inner:     inner,
		cache:     blockCache,
		blockSize: blockSize,
	}
}

// Open opens a blob whose reads go through the block cache.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &CachingBlob{
		inner:     b,
		cache:     s.cache,
		name:      name,
		blockSize: s.blockSize,
	}, nil
}

// Create streams to the backend; cached blocks for the name are dropped
// once the new content becomes visible.
func (s *CachingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	w, err := s.inner.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	return &invalidatingWritableBlob{WritableBlob: w, store: s, name: name}, nil
}

// Put writes through and invalidates cached blocks for the name.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.invalidate(name)
	return s.inner.Put(ctx, name, data)
}

// Delete removes the blob and its cached blocks.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.invalidate(name)
	return s.inner.Delete(ctx, name)
}

// List is a passthrough to the backend.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

func (s *CachingStore) invalidate(name string) {
	s.cache.Invalidate(func(key cache.Key) bool {
		return key.Path == name
	})
}

// invalidatingWritableBlob drops stale cache blocks when a rewrite of an
// existing blob is finalized.
type invalidatingWritableBlob struct {
	WritableBlob
	store *CachingStore
	name  string
}

func (w *invalidatingWritableBlob) Close() error {
	if err := w.WritableBlob.Close(); err != nil {
		return err
	}
	w.store.invalidate(w.name)
	return nil
}

// CachingBlob serves reads block-by-block from the cache, fetching
// missing blocks from the backend.
type CachingBlob struct {
	inner     Blob
	cache     cache.BlockCache
	name      string
	blockSize int64
}

func (b *CachingBlob) Close() error {
	return b.inner.Close()
}

func (b *CachingBlob) Size() int64 {
	return b.inner.Size()
}

func (b *CachingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if off >= b.Size() {
		return 0, io.EOF
	}

	startBlock := off / b.blockSize
	endBlock := (off + int64(len(p)) - 1) / b.blockSize

	// Coalesce missing blocks into as few backend reads as possible.
	if err := b.fillCache(ctx, startBlock, endBlock); err != nil {
		return 0, err
	}

	totalRead := 0
	for blk := startBlock; blk <= endBlock; blk++ {
		blkStart := blk * b.blockSize

		// Intersect [blkStart, blkStart+blockSize) with [off, off+len(p)).
		copyStart := max(blkStart, off)
		copyEnd := min(blkStart+b.blockSize, off+int64(len(p)))
		if copyEnd <= copyStart {
			continue
		}

		blockData, err := b.fetchBlock(ctx, blk)
		if err != nil {
			return totalRead, err
		}

		srcOffset := copyStart - blkStart
		if srcOffset >= int64(len(blockData)) {
			// The blob ends inside this block.
			break
		}
		dstOffset := copyStart - off
		totalRead += copy(p[dstOffset:copyEnd-off], blockData[srcOffset:])
	}

	if totalRead < len(p) {
		return totalRead, io.EOF
	}
	return totalRead, nil
}

// fillCache loads missing blocks in [startBlock, endBlock] into the
// cache, fetching contiguous runs with single backend reads.
func (b *CachingBlob) fillCache(ctx context.Context, startBlock, endBlock int64) error {
	type run struct {
		start, count int64
	}

	var missing []run
	current := run{start: -1}
	for blk := startBlock; blk <= endBlock; blk++ {
		key := cache.Key{Path: b.name, Block: uint64(blk)}
		if _, ok := b.cache.Get(ctx, key); ok {
			if current.start != -1 {
				missing = append(missing, current)
				current = run{start: -1}
			}
			continue
		}
		if current.start == -1 {
			current = run{start: blk, count: 1}
		} else {
			current.count++
		}
	}
	if current.start != -1 {
		missing = append(missing, current)
	}
	if len(missing) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchConcurrency)

	for _, r := range missing {
		g.Go(func() error {
			byteStart := r.start * b.blockSize
			byteLen := r.count * b.blockSize

			size := b.Size()
			if byteStart >= size {
				return nil
			}
			if byteStart+byteLen > size {
				byteLen = size - byteStart
			}

			buf := make([]byte, byteLen)
			n, err := b.inner.ReadAt(gctx, buf, byteStart)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			if n == 0 {
				return nil
			}
			valid := buf[:n]

			for i := int64(0); i < r.count; i++ {
				blockStart := i * b.blockSize
				if blockStart >= int64(len(valid)) {
					break
				}
				blockEnd := min(blockStart+b.blockSize, int64(len(valid)))

				// Copy so the cache entry does not pin the run buffer.
				block := make([]byte, blockEnd-blockStart)
				copy(block, valid[blockStart:blockEnd])

				b.cache.Set(gctx, cache.Key{Path: b.name, Block: uint64(r.start + i)}, block)
			}
			return nil
		})
	}
	return g.Wait()
}

// fetchBlock returns one block, from cache if present.
func (b *CachingBlob) fetchBlock(ctx context.Context, blk int64) ([]byte, error) {
	key := cache.Key{Path: b.name, Block: uint64(blk)}
	if data, ok := b.cache.Get(ctx, key); ok {
		return data, nil
	}

	buf := make([]byte, b.blockSize)
	n, err := b.inner.ReadAt(ctx, buf, blk*b.blockSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	valid := buf[:n]
	if n > 0 {
		b.cache.Set(ctx, key, valid)
	}
	return valid, nil
}

// ReadRange adapts the cached ReadAt into a streaming reader.
func (b *CachingBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off >= b.Size() {
		return nil, io.EOF
	}
	return io.NopCloser(&contextSectionReader{blob: b, ctx: ctx, off: off, limit: off + length}), nil
}

// contextSectionReader exposes a blob range as an io.Reader bound to a
// context.
type contextSectionReader struct {
	blob  *CachingBlob
	ctx   context.Context
	off   int64
	limit int64
}

func (r *contextSectionReader) Read(p []byte) (n int, err error) {
	if r.off >= r.limit {
		return 0, io.EOF
	}
	if remaining := r.limit - r.off; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err = r.blob.ReadAt(r.ctx, p, r.off)
	r.off += int64(n)
	return n, err
}
