// Package sensevec provides an embedded product-quantization vector search engine for Go.
//
// This file implements the fluent search API and the two-phase execution
// path behind it: an approximate scan over quantized codes followed by an
// exact re-rank of the best candidates.
package sensevec

import (
	"context"
	"iter"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/sensevec/searcher"
)

const (
	// DefaultK is the number of results returned when K is not set.
	DefaultK = 10

	// DefaultTopN is the approximate candidate budget when TopN is not set.
	DefaultTopN = 500
)

// SearchResult is a single search hit with its exact distance.
type SearchResult struct {
	ID       uint32
	Label    string
	Tag      int32
	Distance float32
}

// SearchStats describes the work a single search performed.
type SearchStats struct {
	// Scanned is the number of code rows the approximate phase scored.
	// Rows skipped by a filter do not count.
	Scanned int

	// Reranked is the number of candidates re-ranked on full vectors.
	Reranked int

	// Duration is the total wall-clock time of the search.
	Duration time.Duration
}

// Search creates a new fluent search builder for the given query vector.
//
// Example:
//
//	results, err := db.Search(query).
//	    K(10).
//	    TopN(500).
//	    Execute(ctx)
//
//	// Or with streaming:
//	for result, err := range db.Search(query).K(100).Stream(ctx) {
//	    if err != nil { break }
//	    if result.Distance > threshold { break }
//	    process(result)
//	}
func (sv *SenseVec) Search(query []float32) *SearchBuilder {
	return &SearchBuilder{
		sv:    sv,
		query: query,
		k:     DefaultK,
		topN:  DefaultTopN,
	}
}

// SearchBuilder is a fluent builder for constructing search queries.
type SearchBuilder struct {
	sv    *SenseVec
	query []float32
	k     int
	topN  int

	// Filters
	filterFunc   func(id uint32) bool
	filterBitmap *roaring.Bitmap
}

// K sets the number of results to return. Values above the TopN budget
// are clamped to it.
func (sb *SearchBuilder) K(k int) *SearchBuilder {
	sb.k = k
	return sb
}

// TopN sets the approximate candidate budget: how many of the best
// quantized matches survive into the exact re-rank phase.
// Higher values improve recall but slow down search.
func (sb *SearchBuilder) TopN(n int) *SearchBuilder {
	sb.topN = n
	return sb
}

// Filter sets a filter function for the approximate scan.
// Only vectors where filter(id) returns true are considered.
func (sb *SearchBuilder) Filter(fn func(id uint32) bool) *SearchBuilder {
	sb.filterFunc = fn
	return sb
}

// FilterBitmap restricts the search to IDs present in the bitmap.
// Combines with Filter; an ID must pass both.
func (sb *SearchBuilder) FilterBitmap(bm *roaring.Bitmap) *SearchBuilder {
	sb.filterBitmap = bm
	return sb
}

func (sb *SearchBuilder) filter() searcher.Filter {
	switch {
	case sb.filterBitmap != nil && sb.filterFunc != nil:
		bm, fn := sb.filterBitmap, sb.filterFunc
		return searcher.FilterFunc(func(id uint32) bool {
			return bm.Contains(id) && fn(id)
		})
	case sb.filterBitmap != nil:
		return sb.filterBitmap
	case sb.filterFunc != nil:
		return searcher.FilterFunc(sb.filterFunc)
	default:
		return nil
	}
}

// Execute runs the search and returns the results, ordered from nearest
// to farthest by exact distance.
func (sb *SearchBuilder) Execute(ctx context.Context) ([]SearchResult, error) {
	results, _, err := sb.ExecuteWithStats(ctx)
	return results, err
}

// ExecuteWithStats runs the search and additionally reports the work the
// two phases performed.
func (sb *SearchBuilder) ExecuteWithStats(ctx context.Context) ([]SearchResult, SearchStats, error) {
	start := time.Now()
	results, stats, err := sb.sv.search(ctx, sb.query, sb.k, sb.topN, sb.filter())
	stats.Duration = time.Since(start)
	err = translateError(err)
	sb.sv.metrics.RecordSearch(stats.Duration, stats.Scanned, stats.Reranked, err)
	sb.sv.logger.LogSearch(ctx, sb.k, sb.topN, len(results), err)
	return results, stats, err
}

// MustExecute runs the search, panicking on error.
// Use this only in tests or when you're certain the query is valid.
func (sb *SearchBuilder) MustExecute(ctx context.Context) []SearchResult {
	results, err := sb.Execute(ctx)
	if err != nil {
		panic(err)
	}
	return results
}

// Stream returns an iterator over search results.
// Results are yielded in order from nearest to farthest and the iterator
// supports early termination by breaking from the loop.
//
// Example:
//
//	for result, err := range db.Search(query).K(100).Stream(ctx) {
//	    if err != nil { break }
//	    if result.Distance > 100.0 { break } // Early termination
//	    process(result)
//	}
func (sb *SearchBuilder) Stream(ctx context.Context) iter.Seq2[SearchResult, error] {
	return func(yield func(SearchResult, error) bool) {
		results, err := sb.Execute(ctx)
		if err != nil {
			yield(SearchResult{}, err)
			return
		}
		for _, result := range results {
			if !yield(result, nil) {
				return
			}
		}
	}
}

// First returns only the nearest result, or ErrNotFound if none matched.
func (sb *SearchBuilder) First(ctx context.Context) (SearchResult, error) {
	sb.k = 1
	results, err := sb.Execute(ctx)
	if err != nil {
		return SearchResult{}, err
	}
	if len(results) == 0 {
		return SearchResult{}, ErrNotFound
	}
	return results[0], nil
}

// Count executes the search and returns the number of results.
func (sb *SearchBuilder) Count(ctx context.Context) (int, error) {
	results, err := sb.Execute(ctx)
	if err != nil {
		return 0, err
	}
	return len(results), nil
}

// Exists checks if at least one result matches the search.
func (sb *SearchBuilder) Exists(ctx context.Context) (bool, error) {
	sb.k = 1
	results, err := sb.Execute(ctx)
	if err != nil {
		return false, err
	}
	return len(results) > 0, nil
}

// search is the two-phase execution path shared by all builder terminals.
func (sv *SenseVec) search(ctx context.Context, query []float32, k, topN int, filter searcher.Filter) ([]SearchResult, SearchStats, error) {
	var stats SearchStats

	if len(query) != sv.pq.Dim() {
		return nil, stats, &ErrDimensionMismatch{Expected: sv.pq.Dim(), Actual: len(query)}
	}
	if k <= 0 {
		return nil, stats, ErrInvalidK
	}
	if topN <= 0 {
		return nil, stats, ErrInvalidTopN
	}
	if k > topN {
		k = topN
	}

	table, err := sv.pq.BuildDistanceTable(query)
	if err != nil {
		return nil, stats, err
	}

	it, err := sv.codes.ScanCodes(ctx)
	if err != nil {
		return nil, stats, err
	}
	defer it.Close()

	candidates, scanned, err := sv.scorer.TopCandidates(ctx, table, it, topN, filter)
	if err != nil {
		return nil, stats, err
	}
	stats.Scanned = scanned
	stats.Reranked = len(candidates)

	ranked, err := sv.reranker.Rerank(ctx, query, candidates, k)
	if err != nil {
		return nil, stats, err
	}

	results := make([]SearchResult, len(ranked))
	for i, r := range ranked {
		results[i] = SearchResult{ID: r.ID, Label: r.Label, Tag: r.Tag, Distance: r.Distance}
	}
	return results, stats, nil
}
