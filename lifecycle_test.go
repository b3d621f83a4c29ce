package sensevec_test

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/sensevec"
	"github.com/hupe1980/sensevec/store"
)

// countingStore wraps a memory store and counts Close calls.
type countingStore struct {
	*store.MemoryStore
	closes atomic.Int32
}

func (c *countingStore) Close() error {
	c.closes.Add(1)
	return nil
}

// TestCloseIdempotent verifies that calling Close() multiple times is safe
// and that a store shared between vectors and codes is closed exactly once.
func TestCloseIdempotent(t *testing.T) {
	shared := &countingStore{MemoryStore: store.NewMemoryStore()}

	db, err := sensevec.New(4).
		Subspaces(2).
		Bits(2).
		Seed(42).
		Store(shared).
		Build()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, db.Train(ctx, cornerTraining()))
	require.NoError(t, db.Put(ctx, cornerCorpus()))
	require.NoError(t, db.Index(ctx))

	err1 := db.Close()
	err2 := db.Close()
	err3 := db.Close()

	assert.NoError(t, err1, "First close should succeed")
	assert.NoError(t, err2, "Second close should be idempotent")
	assert.NoError(t, err3, "Third close should be idempotent")
	assert.Equal(t, int32(1), shared.closes.Load(), "shared store should close exactly once")
}

// TestCloseSeparateStores verifies that distinct vector and code stores
// are each closed once.
func TestCloseSeparateStores(t *testing.T) {
	vectors := &countingStore{MemoryStore: store.NewMemoryStore()}
	codes := &countingStore{MemoryStore: store.NewMemoryStore()}

	db, err := sensevec.New(4).
		Subspaces(2).
		Bits(2).
		Vectors(vectors).
		Codes(codes).
		Build()
	require.NoError(t, err)

	require.NoError(t, db.Close())
	assert.Equal(t, int32(1), vectors.closes.Load())
	assert.Equal(t, int32(1), codes.closes.Load())
}

func TestCloseNilReceiver(t *testing.T) {
	var db *sensevec.SenseVec
	assert.NoError(t, db.Close())
}

// TestConcurrentSearches verifies that searches are safe to run in
// parallel once training and indexing are done.
func TestConcurrentSearches(t *testing.T) {
	db := newCornerDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if _, err := db.Search([]float32{10, 0, 0, 10}).K(3).Execute(ctx); err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent search failed: %v", err)
	}
}

// TestIndexReleasesWorkers verifies that the encode workers started by
// Index are gone once it returns.
func TestIndexReleasesWorkers(t *testing.T) {
	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	initial := runtime.NumGoroutine()

	db, err := sensevec.New(4).Subspaces(2).Bits(2).Seed(42).Build()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, db.Train(ctx, cornerTraining()))
	require.NoError(t, db.Put(ctx, cornerCorpus()))

	for i := 0; i < 5; i++ {
		require.NoError(t, db.Index(ctx))
	}
	require.NoError(t, db.Close())

	// Allow small variance from runtime background goroutines.
	const maxLeaks = 2
	deadline := time.Now().Add(2 * time.Second)
	var leaked int
	for {
		runtime.GC()
		time.Sleep(50 * time.Millisecond)

		leaked = runtime.NumGoroutine() - initial
		if leaked <= maxLeaks || time.Now().After(deadline) {
			break
		}
	}

	if leaked > maxLeaks {
		t.Errorf("goroutine leak detected: %d goroutines remain (max allowed: %d)", leaked, maxLeaks)
	}
}
