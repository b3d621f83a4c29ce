package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Compile time checks to ensure MemoryStore satisfies the store interfaces.
var (
	_ Store         = (*MemoryStore)(nil)
	_ CodebookStore = (*MemoryStore)(nil)
)

// MemoryStore is an in-memory implementation of Store using Go maps.
// It's suitable for datasets that fit in memory and provides fast O(1) access.
//
// A roaring bitmap tracks which IDs carry codes so that ScanCodes can walk
// them in ascending ID order without sorting on every scan.
type MemoryStore struct {
	mu        sync.RWMutex
	vectors   map[uint32]Item
	codes     map[uint32][]byte
	coded     *roaring.Bitmap
	codebooks [][][]float32
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vectors: make(map[uint32]Item),
		codes:   make(map[uint32][]byte),
		coded:   roaring.New(),
	}
}

// PutVectors stores items, overwriting existing IDs.
func (m *MemoryStore) PutVectors(_ context.Context, items []Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range items {
		item.Vector = slices.Clone(item.Vector)
		m.vectors[item.ID] = item
	}

	return nil
}

// GetVectors retrieves items for multiple IDs in a single operation.
func (m *MemoryStore) GetVectors(_ context.Context, ids []uint32) (map[uint32]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[uint32]Item, len(ids))
	for _, id := range ids {
		if item, ok := m.vectors[id]; ok {
			item.Vector = slices.Clone(item.Vector)
			result[id] = item
		}
	}

	return result, nil
}

// ScanVectors streams every stored item in ascending ID order.
func (m *MemoryStore) ScanVectors(_ context.Context) (ItemIterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Snapshot under the read lock so concurrent writes don't affect an
	// iteration in progress.
	items := make([]Item, 0, len(m.vectors))
	for _, item := range m.vectors {
		item.Vector = slices.Clone(item.Vector)
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b Item) int {
		return cmp.Compare(a.ID, b.ID)
	})

	return &sliceItemIterator{items: items, pos: -1}, nil
}

// Count returns the number of stored vectors.
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.vectors), nil
}

// PutCodes stores code rows, overwriting existing IDs.
func (m *MemoryStore) PutCodes(_ context.Context, rows []CodeRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range rows {
		m.codes[row.ID] = slices.Clone(row.Code)
		m.coded.Add(row.ID)
	}

	return nil
}

// ScanCodes streams every stored code row in ascending ID order.
func (m *MemoryStore) ScanCodes(_ context.Context) (CodeIterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Snapshot under the read lock so concurrent writes don't affect an
	// iteration in progress.
	rows := make([]CodeRow, 0, m.coded.GetCardinality())

	it := m.coded.Iterator()
	for it.HasNext() {
		id := it.Next()
		rows = append(rows, CodeRow{ID: id, Code: m.codes[id]})
	}

	return &sliceCodeIterator{rows: rows, pos: -1}, nil
}

// Reset removes all stored vectors, codes and the codebook.
func (m *MemoryStore) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.vectors = make(map[uint32]Item)
	m.codes = make(map[uint32][]byte)
	m.coded = roaring.New()
	m.codebooks = nil

	return nil
}

// PutCodebook stores the codebook, replacing any previous one.
func (m *MemoryStore) PutCodebook(_ context.Context, codebooks [][][]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.codebooks = cloneCodebooks(codebooks)
	return nil
}

// GetCodebook retrieves the stored codebook.
func (m *MemoryStore) GetCodebook(_ context.Context) ([][][]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.codebooks == nil {
		return nil, ErrNotFound
	}

	return cloneCodebooks(m.codebooks), nil
}

// IDs returns a copy of the bitmap of IDs that carry codes. Useful as a
// starting point for search filters.
func (m *MemoryStore) IDs() *roaring.Bitmap {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.coded.Clone()
}

func cloneCodebooks(codebooks [][][]float32) [][][]float32 {
	out := make([][][]float32, len(codebooks))
	for m := range codebooks {
		out[m] = make([][]float32, len(codebooks[m]))
		for c := range codebooks[m] {
			out[m][c] = slices.Clone(codebooks[m][c])
		}
	}
	return out
}

// sliceCodeIterator iterates over an in-memory snapshot of code rows.
type sliceCodeIterator struct {
	rows []CodeRow
	pos  int
}

func (it *sliceCodeIterator) Next() bool {
	if it.pos+1 >= len(it.rows) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceCodeIterator) Row() CodeRow {
	return it.rows[it.pos]
}

func (it *sliceCodeIterator) Err() error { return nil }

func (it *sliceCodeIterator) Close() error { return nil }

// sliceItemIterator iterates over an in-memory snapshot of items.
type sliceItemIterator struct {
	items []Item
	pos   int
}

func (it *sliceItemIterator) Next() bool {
	if it.pos+1 >= len(it.items) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceItemIterator) Item() Item {
	return it.items[it.pos]
}

func (it *sliceItemIterator) Err() error { return nil }

func (it *sliceItemIterator) Close() error { return nil }
