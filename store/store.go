package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("store: not found")

// Item is one full-precision vector with its metadata.
type Item struct {
	ID     uint32
	Vector []float32
	Label  string
	Tag    int32
}

// CodeRow pairs an item ID with its packed quantization codes.
type CodeRow struct {
	ID   uint32
	Code []byte
}

// VectorStore holds full-precision vectors for exact re-ranking.
//
// Implementations can provide different storage strategies (in-memory,
// SQL-backed, DynamoDB-backed, etc.).
type VectorStore interface {
	// PutVectors stores items, overwriting existing IDs.
	PutVectors(ctx context.Context, items []Item) error

	// GetVectors retrieves items for multiple IDs in a single operation.
	// Returns a map of id -> item for all found IDs; missing IDs are
	// simply absent from the result.
	GetVectors(ctx context.Context, ids []uint32) (map[uint32]Item, error)

	// ScanVectors streams every stored item in ascending ID order.
	// The caller must Close the iterator.
	ScanVectors(ctx context.Context) (ItemIterator, error)

	// Count returns the number of stored vectors.
	Count(ctx context.Context) (int, error)
}

// CodeStore holds packed quantization codes for the approximate scan.
type CodeStore interface {
	// PutCodes stores code rows, overwriting existing IDs.
	PutCodes(ctx context.Context, rows []CodeRow) error

	// ScanCodes streams every stored code row in ascending ID order.
	// The caller must Close the iterator.
	ScanCodes(ctx context.Context) (CodeIterator, error)
}

// Store combines vector and code storage. A search index needs both:
// codes drive the approximate phase, vectors the exact re-rank.
type Store interface {
	VectorStore
	CodeStore

	// Reset removes all stored vectors and codes.
	Reset(ctx context.Context) error
}

// CodebookStore optionally persists the trained codebook alongside the
// data it encodes. Not every backend supports it; the binary artifact in
// the persistence package is the portable alternative.
type CodebookStore interface {
	// PutCodebook stores the codebook, replacing any previous one.
	PutCodebook(ctx context.Context, codebooks [][][]float32) error

	// GetCodebook retrieves the stored codebook.
	// Returns ErrNotFound if no codebook has been stored.
	GetCodebook(ctx context.Context) ([][][]float32, error)
}

// CodeIterator walks code rows one at a time, in the style of sql.Rows:
//
//	it, err := s.ScanCodes(ctx)
//	defer it.Close()
//	for it.Next() {
//	    row := it.Row()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
type CodeIterator interface {
	// Next advances to the next row. It returns false when no rows
	// remain or an error occurred.
	Next() bool

	// Row returns the current row. Only valid after a true Next.
	Row() CodeRow

	// Err returns the first error encountered during iteration.
	Err() error

	// Close releases resources held by the iterator.
	Close() error
}

// ItemIterator walks full-precision items one at a time, in the same
// style as CodeIterator.
type ItemIterator interface {
	// Next advances to the next item. It returns false when no items
	// remain or an error occurred.
	Next() bool

	// Item returns the current item. Only valid after a true Next.
	Item() Item

	// Err returns the first error encountered during iteration.
	Err() error

	// Close releases resources held by the iterator.
	Close() error
}
