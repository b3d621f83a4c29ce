package cache

import (
	"container/list"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// untaggedDir holds blocks whose key has an empty Path.
const untaggedDir = "_misc"

// DiskConfig configures a DiskCache.
type DiskConfig struct {
	// RootDir is the directory where block files are stored.
	RootDir string
	// MaxSizeBytes is the maximum total size of cached blocks.
	MaxSizeBytes int64
	// MaxConcurrentWrites bounds background disk writes.
	// Defaults to 16 if <= 0.
	MaxConcurrentWrites int64
}

// DiskCache is a BlockCache backed by the local filesystem. It keeps an
// in-memory LRU index over the files on disk and writes new blocks in
// the background so the read path never waits on disk.
type DiskCache struct {
	mu        sync.Mutex
	rootDir   string
	maxSize   int64
	size      int64
	items     map[Key]*list.Element
	evictList *list.List

	writeSem *semaphore.Weighted
	wg       sync.WaitGroup

	hits   atomic.Int64
	misses atomic.Int64
}

type diskItem struct {
	key  Key
	size int64
	path string
}

// NewDiskCache creates a disk-backed block cache rooted at cfg.RootDir.
// Existing block files are scanned back into the index so the cache
// survives restarts.
func NewDiskCache(cfg DiskConfig) (*DiskCache, error) {
	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		return nil, err
	}

	maxWrites := cfg.MaxConcurrentWrites
	if maxWrites <= 0 {
		maxWrites = 16
	}

	c := &DiskCache{
		rootDir:   cfg.RootDir,
		maxSize:   cfg.MaxSizeBytes,
		items:     make(map[Key]*list.Element),
		evictList: list.New(),
		writeSem:  semaphore.NewWeighted(maxWrites),
	}
	c.scan()

	return c, nil
}

// scan rebuilds the index from the files already on disk.
func (c *DiskCache) scan() {
	_ = filepath.WalkDir(c.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil //nolint:nilerr // unreadable entries are skipped, not fatal
		}
		key, ok := c.parseBlockPath(path)
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil //nolint:nilerr
		}
		c.mu.Lock()
		c.addLocked(key, path, info.Size())
		c.mu.Unlock()
		return nil
	})
}

// blockPath maps a key to its file location under the root directory.
// Layout: <root>/<Path>/<Block>.blk with empty paths filed under _misc.
func (c *DiskCache) blockPath(key Key) string {
	dir := key.Path
	if dir == "" {
		dir = untaggedDir
	}
	return filepath.Join(c.rootDir, dir, fmt.Sprintf("%d.blk", key.Block))
}

func (c *DiskCache) parseBlockPath(absPath string) (Key, bool) {
	relPath, err := filepath.Rel(c.rootDir, absPath)
	if err != nil {
		return Key{}, false
	}

	dir, file := filepath.Split(relPath)

	var block uint64
	if n, err := fmt.Sscanf(file, "%d.blk", &block); err != nil || n != 1 {
		return Key{}, false
	}

	dir = strings.TrimSuffix(dir, string(filepath.Separator))
	if dir == untaggedDir {
		dir = ""
	}
	return Key{Path: filepath.ToSlash(dir), Block: block}, true
}

// Get returns a cached block, reading it from disk.
func (c *DiskCache) Get(_ context.Context, key Key) ([]byte, bool) {
	c.mu.Lock()
	elem, ok := c.items[key]
	if ok {
		c.evictList.MoveToFront(elem)
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	data, err := os.ReadFile(elem.Value.(*diskItem).path)
	if err != nil {
		// The file went away underneath us; drop the stale index entry.
		c.mu.Lock()
		c.removeLocked(elem)
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return data, true
}

// Set caches a block. The write happens in the background; until it
// completes, Get reports a miss for the key. Blocks are immutable, so a
// key that is already cached is left untouched.
func (c *DiskCache) Set(_ context.Context, key Key, b []byte) {
	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		c.evictList.MoveToFront(elem)
		c.mu.Unlock()
		return
	}

	size := int64(len(b))
	path := c.blockPath(key)
	for c.size+size > c.maxSize {
		if !c.evictOneLocked() {
			break
		}
	}
	c.mu.Unlock()

	// The cache is best-effort: when all writers are busy the block is
	// simply not cached.
	if !c.writeSem.TryAcquire(1) {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.writeSem.Release(1)

		if err := writeBlockFile(path, b); err != nil {
			return
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		for c.size+size > c.maxSize {
			if !c.evictOneLocked() {
				break
			}
		}
		c.addLocked(key, path, size)
	}()
}

// writeBlockFile writes data via a temp file and rename so readers never
// observe a partially written block.
func writeBlockFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".blk-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Invalidate removes matching entries and their files.
func (c *DiskCache) Invalidate(predicate func(key Key) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var drop []*list.Element
	for key, elem := range c.items {
		if predicate(key) {
			drop = append(drop, elem)
		}
	}
	for _, elem := range drop {
		_ = os.Remove(elem.Value.(*diskItem).path)
		c.removeLocked(elem)
	}
}

// Close waits for in-flight background writes to finish.
func (c *DiskCache) Close() error {
	c.wg.Wait()
	return nil
}

// Stats returns hit and miss counts.
func (c *DiskCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the indexed payload size in bytes.
func (c *DiskCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *DiskCache) addLocked(key Key, path string, size int64) {
	elem := c.evictList.PushFront(&diskItem{key: key, size: size, path: path})
	c.items[key] = elem
	c.size += size
}

func (c *DiskCache) removeLocked(elem *list.Element) {
	c.evictList.Remove(elem)
	item := elem.Value.(*diskItem)
	delete(c.items, item.key)
	c.size -= item.size
}

func (c *DiskCache) evictOneLocked() bool {
	tail := c.evictList.Back()
	if tail == nil {
		return false
	}
	_ = os.Remove(tail.Value.(*diskItem).path)
	c.removeLocked(tail)
	return true
}
