package cache

import (
	"context"
	"encoding/binary"
	"hash/maphash"
	"sync"
)

const numShards = 64

// Sharded distributes a block cache over 64 LRU shards to reduce lock
// contention under concurrent search load. The capacity is divided
// evenly across shards.
type Sharded struct {
	shards [numShards]*LRU
	seed   maphash.Seed
}

// NewSharded creates a sharded cache holding up to capacity bytes in total.
func NewSharded(capacity int64) *Sharded {
	shardCapacity := capacity / numShards
	if shardCapacity < 1 {
		shardCapacity = 1
	}

	s := &Sharded{seed: maphash.MakeSeed()}
	for i := range s.shards {
		s.shards[i] = NewLRU(shardCapacity)
	}
	return s
}

func (s *Sharded) shard(key Key) *LRU {
	var h maphash.Hash
	h.SetSeed(s.seed)
	_, _ = h.WriteString(key.Path)

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key.Block)
	_, _ = h.Write(buf[:])

	return s.shards[h.Sum64()%numShards]
}

// Get returns a cached block.
func (s *Sharded) Get(ctx context.Context, key Key) ([]byte, bool) {
	return s.shard(key).Get(ctx, key)
}

// Set caches a block.
func (s *Sharded) Set(ctx context.Context, key Key, b []byte) {
	s.shard(key).Set(ctx, key, b)
}

// Invalidate removes entries matching the predicate from all shards.
func (s *Sharded) Invalidate(predicate func(key Key) bool) {
	var wg sync.WaitGroup
	wg.Add(numShards)
	for i := range s.shards {
		go func(shard *LRU) {
			defer wg.Done()
			shard.Invalidate(predicate)
		}(s.shards[i])
	}
	wg.Wait()
}

// Close closes all shards.
func (s *Sharded) Close() error {
	for i := range s.shards {
		if err := s.shards[i].Close(); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns aggregated hit and miss counts.
func (s *Sharded) Stats() (hits, misses int64) {
	for i := range s.shards {
		h, m := s.shards[i].Stats()
		hits += h
		misses += m
	}
	return hits, misses
}

// Size returns the total payload size across all shards.
func (s *Sharded) Size() int64 {
	var total int64
	for i := range s.shards {
		total += s.shards[i].Size()
	}
	return total
}
