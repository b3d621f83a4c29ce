// Package searcher implements the two phases of a product-quantization
// query: an approximate scan that scores packed codes against a
// precomputed distance table, and an exact re-rank of the surviving
// candidates on their full-precision vectors.
package searcher

import (
	"context"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/sensevec/distance"
	"github.com/hupe1980/sensevec/quantization"
	"github.com/hupe1980/sensevec/store"
)

// Result is one search hit after exact re-ranking.
type Result struct {
	ID       uint32
	Label    string
	Tag      int32
	Distance float32
}

// IncompleteFetchError is returned when re-ranking could not fetch the
// full-precision vector for one or more candidates. A partial result
// would silently drop neighbors, so the whole query fails instead.
type IncompleteFetchError struct {
	Missing []uint32
}

func (e *IncompleteFetchError) Error() string {
	return fmt.Sprintf("searcher: missing vectors for %d candidate(s): %v", len(e.Missing), e.Missing)
}

// Filter restricts which IDs the approximate scan considers.
// *roaring.Bitmap satisfies it directly.
type Filter interface {
	Contains(id uint32) bool
}

var _ Filter = (*roaring.Bitmap)(nil)

// FilterFunc adapts a plain predicate to the Filter interface.
type FilterFunc func(id uint32) bool

// Contains implements Filter.
func (f FilterFunc) Contains(id uint32) bool { return f(id) }

// Scorer runs the approximate phase. It walks packed code rows, sums
// distance-table lookups per subspace and keeps the best topN candidates
// in a bounded max-heap, so memory stays O(topN) no matter how many rows
// the store holds.
type Scorer struct {
	pq *quantization.ProductQuantizer
}

// NewScorer creates a scorer for codes produced by the given quantizer.
func NewScorer(pq *quantization.ProductQuantizer) *Scorer {
	return &Scorer{pq: pq}
}

// TopCandidates scores every row the iterator yields and returns the
// topN closest candidates ordered by ascending approximate distance,
// ties broken by lower ID. It also reports how many rows were scored.
//
// The table must come from BuildDistanceTable on the scorer's quantizer.
// A non-nil filter restricts scoring to IDs it contains.
func (s *Scorer) TopCandidates(ctx context.Context, table [][]float32, it store.CodeIterator, topN int, filter Filter) ([]Candidate, int, error) {
	if topN <= 0 {
		return nil, 0, fmt.Errorf("searcher: topN must be positive, got %d", topN)
	}

	m := s.pq.Subspaces()
	nbits := s.pq.Bits()

	if len(table) != m {
		return nil, 0, fmt.Errorf("searcher: distance table has %d subspaces, want %d", len(table), m)
	}
	for j := range table {
		if len(table[j]) != s.pq.Centroids() {
			return nil, 0, fmt.Errorf("searcher: distance table row %d has %d entries, want %d", j, len(table[j]), s.pq.Centroids())
		}
	}

	var (
		scanned int
		scratch = make([]byte, m)
		queue   = NewMax(topN)
	)

	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, scanned, err
		}

		row := it.Row()

		if filter != nil && !filter.Contains(row.ID) {
			continue
		}

		if err := quantization.UnpackCodesTo(scratch, row.Code, nbits); err != nil {
			return nil, scanned, fmt.Errorf("searcher: unpack codes for id %d: %w", row.ID, err)
		}

		var dist float32
		for j, code := range scratch {
			dist += table[j][code]
		}
		scanned++

		queue.PushItemBounded(Candidate{ID: row.ID, Distance: dist}, topN)
	}
	if err := it.Err(); err != nil {
		return nil, scanned, fmt.Errorf("searcher: scan codes: %w", err)
	}

	// Draining the max-heap yields descending distances; fill backwards.
	out := make([]Candidate, queue.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i], _ = queue.PopItem()
	}
	sortCandidates(out)

	return out, scanned, nil
}

// Reranker runs the exact phase on top of a vector store.
type Reranker struct {
	vectors store.VectorStore
}

// NewReranker creates a re-ranker that fetches vectors from the given store.
func NewReranker(vectors store.VectorStore) *Reranker {
	return &Reranker{vectors: vectors}
}

// Rerank fetches the full-precision vectors of the candidates, recomputes
// exact squared L2 distances to the query and returns the k closest
// results ordered ascending, ties broken by lower ID.
//
// Every candidate must resolve to a stored vector; otherwise the whole
// query fails with an IncompleteFetchError.
func (r *Reranker) Rerank(ctx context.Context, query []float32, candidates []Candidate, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("searcher: k must be positive, got %d", k)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]uint32, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}

	items, err := r.vectors.GetVectors(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("searcher: fetch vectors: %w", err)
	}

	var missing []uint32
	for _, id := range ids {
		if _, ok := items[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &IncompleteFetchError{Missing: missing}
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		item := items[c.ID]

		if len(item.Vector) != len(query) {
			return nil, fmt.Errorf("searcher: vector for id %d has dimension %d, want %d", c.ID, len(item.Vector), len(query))
		}

		results = append(results, Result{
			ID:       item.ID,
			Label:    item.Label,
			Tag:      item.Tag,
			Distance: distance.SquaredL2(query, item.Vector),
		})
	}

	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}

	return results, nil
}

func sortCandidates(cands []Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Distance != cands[j].Distance {
			return cands[i].Distance < cands[j].Distance
		}
		return cands[i].ID < cands[j].ID
	})
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
}
