package cache

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRUBasicOperations(t *testing.T) {
	c := NewLRU(1024)
	ctx := context.Background()

	key := Key{Path: "codes-00001.bin", Block: 0}
	data := []byte("block zero")

	c.Set(ctx, key, data)
	got, ok := c.Get(ctx, key)
	assert.True(t, ok)
	assert.Equal(t, data, got)

	_, ok = c.Get(ctx, Key{Path: "codes-00001.bin", Block: 99})
	assert.False(t, ok)
}

func TestLRUEviction(t *testing.T) {
	c := NewLRU(100)
	ctx := context.Background()

	c.Set(ctx, Key{Block: 0}, make([]byte, 40))
	c.Set(ctx, Key{Block: 1}, make([]byte, 40))

	// Touch block 0 so block 1 becomes the eviction candidate.
	_, ok := c.Get(ctx, Key{Block: 0})
	assert.True(t, ok)

	c.Set(ctx, Key{Block: 2}, make([]byte, 40))

	_, ok = c.Get(ctx, Key{Block: 1})
	assert.False(t, ok, "least recently used block should be evicted")
	_, ok = c.Get(ctx, Key{Block: 0})
	assert.True(t, ok)
	_, ok = c.Get(ctx, Key{Block: 2})
	assert.True(t, ok)
}

func TestLRUOversizedBlock(t *testing.T) {
	c := NewLRU(50)
	ctx := context.Background()
	key := Key{Block: 0}

	c.Set(ctx, key, make([]byte, 60))
	_, ok := c.Get(ctx, key)
	assert.False(t, ok, "a block larger than the capacity must not be cached")
	assert.Equal(t, int64(0), c.Size())
}

func TestLRUUpdateTracksSize(t *testing.T) {
	c := NewLRU(50)
	ctx := context.Background()
	key := Key{Block: 0}

	c.Set(ctx, key, make([]byte, 10))
	assert.Equal(t, int64(10), c.Size())

	c.Set(ctx, key, make([]byte, 20))
	assert.Equal(t, int64(20), c.Size())

	c.Set(ctx, key, make([]byte, 5))
	assert.Equal(t, int64(5), c.Size())
}

func TestLRUStats(t *testing.T) {
	c := NewLRU(100)
	ctx := context.Background()

	c.Set(ctx, Key{Block: 1}, []byte{1})
	c.Get(ctx, Key{Block: 1})
	c.Get(ctx, Key{Block: 2})

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestLRUInvalidate(t *testing.T) {
	c := NewLRU(100)
	ctx := context.Background()

	c.Set(ctx, Key{Path: "a.bin", Block: 0}, []byte("a0"))
	c.Set(ctx, Key{Path: "a.bin", Block: 1}, []byte("a1"))
	c.Set(ctx, Key{Path: "b.bin", Block: 0}, []byte("b0"))

	c.Invalidate(func(k Key) bool { return k.Path == "a.bin" })

	_, ok := c.Get(ctx, Key{Path: "a.bin", Block: 0})
	assert.False(t, ok)
	_, ok = c.Get(ctx, Key{Path: "b.bin", Block: 0})
	assert.True(t, ok)
}

func BenchmarkLRUGet(b *testing.B) {
	c := NewLRU(64 * 1024 * 1024)
	ctx := context.Background()
	key := Key{Path: "codes.bin", Block: 0}
	c.Set(ctx, key, make([]byte, 4096))

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c.Get(ctx, key)
		}
	})
}

func BenchmarkLRUGetMixed(b *testing.B) {
	c := NewLRU(64 * 1024 * 1024)
	ctx := context.Background()
	data := make([]byte, 4096)

	for i := range 1000 {
		c.Set(ctx, Key{Path: fmt.Sprintf("codes-%d.bin", i%10), Block: uint64(i)}, data)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			c.Get(ctx, Key{Path: fmt.Sprintf("codes-%d.bin", i%10), Block: uint64(i % 1000)})
			i++
		}
	})
}
