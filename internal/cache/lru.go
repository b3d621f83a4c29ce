package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// LRU is an in-memory BlockCache with least-recently-used eviction.
// Capacity is accounted in payload bytes.
type LRU struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	items     map[Key]*list.Element
	evictList *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

type lruItem struct {
	key   Key
	value []byte
}

// NewLRU creates an LRU cache holding up to capacity bytes.
func NewLRU(capacity int64) *LRU {
	return &LRU{
		capacity:  capacity,
		items:     make(map[Key]*list.Element),
		evictList: list.New(),
	}
}

// Get returns a cached block.
func (c *LRU) Get(_ context.Context, key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(elem)
		return elem.Value.(*lruItem).value, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set caches a block. Blocks larger than the total capacity are not cached.
func (c *LRU) Set(_ context.Context, key Key, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.evictList.MoveToFront(elem)
		item := elem.Value.(*lruItem)
		c.size += int64(len(b)) - int64(len(item.value))
		item.value = b
		c.evictLocked()
		return
	}

	itemSize := int64(len(b))
	if itemSize > c.capacity {
		return
	}

	for c.size+itemSize > c.capacity {
		tail := c.evictList.Back()
		if tail == nil {
			break
		}
		c.removeLocked(tail)
	}

	elem := c.evictList.PushFront(&lruItem{key: key, value: b})
	c.items[key] = elem
	c.size += itemSize
}

// Invalidate removes entries matching the predicate.
func (c *LRU) Invalidate(predicate func(key Key) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var drop []*list.Element
	for key, elem := range c.items {
		if predicate(key) {
			drop = append(drop, elem)
		}
	}
	for _, elem := range drop {
		c.removeLocked(elem)
	}
}

// Close implements BlockCache. The LRU holds no external resources.
func (c *LRU) Close() error {
	return nil
}

// Stats returns hit and miss counts.
func (c *LRU) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the current payload size in bytes.
func (c *LRU) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *LRU) evictLocked() {
	for c.size > c.capacity {
		tail := c.evictList.Back()
		if tail == nil {
			break
		}
		c.removeLocked(tail)
	}
}

func (c *LRU) removeLocked(elem *list.Element) {
	c.evictList.Remove(elem)
	item := elem.Value.(*lruItem)
	delete(c.items, item.key)
	c.size -= int64(len(item.value))
}
