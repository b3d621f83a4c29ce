package searcher

import (
	"context"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/sensevec/quantization"
	"github.com/hupe1980/sensevec/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestQuantizer builds a 4-dim, 2-subspace, 2-bit quantizer with fixed
// diagonal codebooks so every distance is hand-checkable.
func newTestQuantizer(t *testing.T) *quantization.ProductQuantizer {
	t.Helper()

	pq, err := quantization.NewProductQuantizer(4, 2, 2)
	require.NoError(t, err)

	require.NoError(t, pq.SetCodebooks([][][]float32{
		{{0, 0}, {1, 1}, {2, 2}, {3, 3}},
		{{0, 0}, {1, 1}, {2, 2}, {3, 3}},
	}))

	return pq
}

func putPackedCodes(t *testing.T, s store.CodeStore, pq *quantization.ProductQuantizer, codes map[uint32][]byte) {
	t.Helper()

	rows := make([]store.CodeRow, 0, len(codes))
	for id, c := range codes {
		packed, err := quantization.PackCodes(c, pq.Bits())
		require.NoError(t, err)
		rows = append(rows, store.CodeRow{ID: id, Code: packed})
	}
	require.NoError(t, s.PutCodes(context.Background(), rows))
}

func TestScorerTopCandidates(t *testing.T) {
	ctx := context.Background()
	pq := newTestQuantizer(t)
	mem := store.NewMemoryStore()

	putPackedCodes(t, mem, pq, map[uint32][]byte{
		1: {0, 0},
		2: {1, 1},
		3: {2, 2},
		4: {3, 3},
	})

	table, err := pq.BuildDistanceTable([]float32{0, 0, 0, 0})
	require.NoError(t, err)

	it, err := mem.ScanCodes(ctx)
	require.NoError(t, err)
	defer it.Close()

	cands, scanned, err := NewScorer(pq).TopCandidates(ctx, table, it, 2, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, scanned)
	require.Len(t, cands, 2)
	assert.Equal(t, Candidate{ID: 1, Distance: 0}, cands[0])
	assert.Equal(t, Candidate{ID: 2, Distance: 4}, cands[1])
}

func TestScorerTopNLargerThanCorpus(t *testing.T) {
	ctx := context.Background()
	pq := newTestQuantizer(t)
	mem := store.NewMemoryStore()

	putPackedCodes(t, mem, pq, map[uint32][]byte{
		1: {0, 0},
		2: {3, 3},
	})

	table, err := pq.BuildDistanceTable([]float32{0, 0, 0, 0})
	require.NoError(t, err)

	it, err := mem.ScanCodes(ctx)
	require.NoError(t, err)
	defer it.Close()

	cands, scanned, err := NewScorer(pq).TopCandidates(ctx, table, it, 100, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, scanned)
	assert.Len(t, cands, 2)
}

func TestScorerFilter(t *testing.T) {
	ctx := context.Background()
	pq := newTestQuantizer(t)
	mem := store.NewMemoryStore()

	putPackedCodes(t, mem, pq, map[uint32][]byte{
		1: {0, 0},
		2: {1, 1},
		3: {2, 2},
		4: {3, 3},
	})

	table, err := pq.BuildDistanceTable([]float32{0, 0, 0, 0})
	require.NoError(t, err)

	filter := roaring.New()
	filter.Add(2)
	filter.Add(4)

	it, err := mem.ScanCodes(ctx)
	require.NoError(t, err)
	defer it.Close()

	cands, scanned, err := NewScorer(pq).TopCandidates(ctx, table, it, 10, filter)
	require.NoError(t, err)

	// Filtered rows are skipped before scoring.
	assert.Equal(t, 2, scanned)
	require.Len(t, cands, 2)
	assert.Equal(t, uint32(2), cands[0].ID)
	assert.Equal(t, uint32(4), cands[1].ID)
}

func TestScorerTieBreak(t *testing.T) {
	ctx := context.Background()
	pq := newTestQuantizer(t)
	mem := store.NewMemoryStore()

	// Identical codes, identical distances: the lower ID must win the
	// single slot.
	putPackedCodes(t, mem, pq, map[uint32][]byte{
		5: {1, 1},
		9: {1, 1},
	})

	table, err := pq.BuildDistanceTable([]float32{0, 0, 0, 0})
	require.NoError(t, err)

	it, err := mem.ScanCodes(ctx)
	require.NoError(t, err)
	defer it.Close()

	cands, _, err := NewScorer(pq).TopCandidates(ctx, table, it, 1, nil)
	require.NoError(t, err)

	require.Len(t, cands, 1)
	assert.Equal(t, uint32(5), cands[0].ID)
}

func TestScorerCancelledContext(t *testing.T) {
	pq := newTestQuantizer(t)
	mem := store.NewMemoryStore()

	putPackedCodes(t, mem, pq, map[uint32][]byte{1: {0, 0}})

	table, err := pq.BuildDistanceTable([]float32{0, 0, 0, 0})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	it, err := mem.ScanCodes(context.Background())
	require.NoError(t, err)
	defer it.Close()

	_, _, err = NewScorer(pq).TopCandidates(ctx, table, it, 1, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRerank(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()

	// Approximate order (1 before 2) disagrees with the exact one.
	require.NoError(t, mem.PutVectors(ctx, []store.Item{
		{ID: 1, Vector: []float32{3, 0, 0, 0}, Label: "far", Tag: 1},
		{ID: 2, Vector: []float32{1, 0, 0, 0}, Label: "near", Tag: 2},
		{ID: 3, Vector: []float32{2, 0, 0, 0}, Label: "mid", Tag: 3},
	}))

	candidates := []Candidate{
		{ID: 1, Distance: 0.5},
		{ID: 2, Distance: 0.6},
		{ID: 3, Distance: 0.7},
	}

	query := []float32{0, 0, 0, 0}
	results, err := NewReranker(mem).Rerank(ctx, query, candidates, 2)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, Result{ID: 2, Label: "near", Tag: 2, Distance: 1}, results[0])
	assert.Equal(t, Result{ID: 3, Label: "mid", Tag: 3, Distance: 4}, results[1])
}

func TestRerankTieBreak(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()

	require.NoError(t, mem.PutVectors(ctx, []store.Item{
		{ID: 8, Vector: []float32{1, 0}},
		{ID: 4, Vector: []float32{0, 1}},
	}))

	candidates := []Candidate{{ID: 8}, {ID: 4}}

	results, err := NewReranker(mem).Rerank(ctx, []float32{0, 0}, candidates, 2)
	require.NoError(t, err)

	// Equal exact distances order by ID.
	require.Len(t, results, 2)
	assert.Equal(t, uint32(4), results[0].ID)
	assert.Equal(t, uint32(8), results[1].ID)
}

func TestRerankMissingVector(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()

	require.NoError(t, mem.PutVectors(ctx, []store.Item{
		{ID: 1, Vector: []float32{1, 0}},
	}))

	candidates := []Candidate{{ID: 1}, {ID: 42}}

	_, err := NewReranker(mem).Rerank(ctx, []float32{0, 0}, candidates, 2)

	var fetchErr *IncompleteFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, []uint32{42}, fetchErr.Missing)
}

func TestRerankDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()

	require.NoError(t, mem.PutVectors(ctx, []store.Item{
		{ID: 1, Vector: []float32{1, 0, 0}},
	}))

	_, err := NewReranker(mem).Rerank(ctx, []float32{0, 0}, []Candidate{{ID: 1}}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestRerankEmptyCandidates(t *testing.T) {
	results, err := NewReranker(store.NewMemoryStore()).Rerank(context.Background(), []float32{0}, nil, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
