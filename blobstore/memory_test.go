package blobstore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	data := []byte("in-memory code block")
	require.NoError(t, store.Put(ctx, "codes.bin", data))

	blob, err := store.Open(ctx, "codes.bin")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 9)
	n, err := blob.ReadAt(ctx, buf, 10)
	require.NoError(t, err)
	require.Equal(t, 9, n)
	require.Equal(t, "code bloc", string(buf))
	require.NoError(t, blob.Close())

	require.NoError(t, store.Delete(ctx, "codes.bin"))
	_, err = store.Open(ctx, "codes.bin")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreOpenSnapshots(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "blob", []byte("old")))
	blob, err := store.Open(ctx, "blob")
	require.NoError(t, err)
	defer blob.Close()

	require.NoError(t, store.Put(ctx, "blob", []byte("new")))

	buf := make([]byte, 3)
	_, err = blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "old", string(buf), "open handles must not see later writes")
}

func TestMemoryStoreCreate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	w, err := store.Create(ctx, "streamed.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("part one, "))
	require.NoError(t, err)
	_, err = w.Write([]byte("part two"))
	require.NoError(t, err)

	// Not visible until Close.
	_, err = store.Open(ctx, "streamed.bin")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)

	blob, err := store.Open(ctx, "streamed.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(18), blob.Size())
	require.NoError(t, blob.Close())
}

func TestMemoryStoreReadRange(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "r", []byte("0123456789")))

	blob, err := store.Open(ctx, "r")
	require.NoError(t, err)
	defer blob.Close()

	rc, err := blob.ReadRange(ctx, 2, 5)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "23456", string(got))

	// Truncated at the end of the blob.
	rc, err = blob.ReadRange(ctx, 8, 100)
	require.NoError(t, err)
	got, _ = io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "89", string(got))

	_, err = blob.ReadRange(ctx, 10, 1)
	assert.ErrorIs(t, err, io.EOF)
}

func TestMemoryStoreList(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "b/two", nil))
	require.NoError(t, store.Put(ctx, "a/one", nil))
	require.NoError(t, store.Put(ctx, "a/three", nil))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/one", "a/three", "b/two"}, names)

	names, err = store.List(ctx, "a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/one", "a/three"}, names)
}
