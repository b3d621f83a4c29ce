package mmap

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestOpen(t *testing.T) {
	content := []byte("subspace centroid table contents")
	path := writeTestFile(t, content)

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, len(content), m.Size())
	assert.Equal(t, content, m.Bytes())
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.bin"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenEmptyFile(t *testing.T) {
	path := writeTestFile(t, nil)

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 0, m.Size())
	assert.Nil(t, m.Bytes())
	assert.NoError(t, m.Advise(AccessSequential))
}

func TestReadAt(t *testing.T) {
	content := []byte("0123456789")
	path := writeTestFile(t, content)

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	buf := make([]byte, 4)
	n, err := m.ReadAt(buf, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "3456", string(buf))

	// Short read at the tail returns EOF with the remaining bytes.
	n, err = m.ReadAt(buf, 8)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)

	_, err = m.ReadAt(buf, int64(len(content)))
	assert.ErrorIs(t, err, io.EOF)

	_, err = m.ReadAt(buf, -1)
	assert.ErrorIs(t, err, ErrInvalidOffset)
}

func TestRegion(t *testing.T) {
	content := []byte("0123456789")
	path := writeTestFile(t, content)

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	r, err := m.Region(2, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, r.Size())
	assert.Equal(t, "23456", string(r.Bytes()))
	assert.NoError(t, r.Advise(AccessWillNeed))

	_, err = m.Region(8, 5)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = m.Region(-1, 2)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestAdvise(t *testing.T) {
	path := writeTestFile(t, []byte("advisable"))

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	for _, p := range []AccessPattern{AccessDefault, AccessSequential, AccessRandom, AccessWillNeed} {
		assert.NoError(t, m.Advise(p))
	}
}

func TestClose(t *testing.T) {
	path := writeTestFile(t, []byte("close me"))

	m, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	assert.NoError(t, m.Close(), "Close must be idempotent")

	assert.Nil(t, m.Bytes())
	assert.ErrorIs(t, m.Advise(AccessRandom), ErrClosed)

	buf := make([]byte, 1)
	_, err = m.ReadAt(buf, 0)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = m.Region(0, 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRegionAfterParentClose(t *testing.T) {
	path := writeTestFile(t, []byte("parent"))

	m, err := Open(path)
	require.NoError(t, err)

	r, err := m.Region(0, 3)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	assert.Nil(t, r.Bytes())
	assert.ErrorIs(t, r.Advise(AccessRandom), ErrClosed)
}
