package quantization

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"github.com/hupe1980/sensevec/distance"
	"github.com/hupe1980/sensevec/internal/kmeans"
)

const (
	// maxIterations bounds the k-means refinement rounds per subspace.
	maxIterations = 25

	// augmentNoiseScale scales the gaussian noise added to replicated
	// training points when the training set is smaller than the centroid
	// count. The noise is proportional to the subspace slice's own
	// standard deviation, so augmentation adapts to the data's magnitude.
	augmentNoiseScale = 1e-3
)

var (
	// ErrNotTrained is returned when Encode/Decode/BuildDistanceTable is
	// called before Train or SetCodebooks.
	ErrNotTrained = errors.New("quantization: not trained")

	// ErrAlreadyTrained is returned when Train or SetCodebooks is called on
	// a quantizer that already carries a codebook. Codebooks are immutable;
	// re-training requires a fresh quantizer.
	ErrAlreadyTrained = errors.New("quantization: already trained")
)

// CodeRangeError reports a centroid index outside [0, K).
type CodeRangeError struct {
	Subspace int
	Value    int
	Limit    int
}

func (e *CodeRangeError) Error() string {
	return fmt.Sprintf("quantization: code %d out of range for subspace %d (limit %d)", e.Value, e.Subspace, e.Limit)
}

// Options holds tunables for the product quantizer.
type Options struct {
	// Seed feeds the quantizer's random source. Training with the same seed
	// and input always produces the same codebook.
	Seed int64

	// MaxIterations bounds the k-means rounds per subspace.
	MaxIterations int
}

// DefaultOptions are the default product quantizer options.
var DefaultOptions = Options{
	Seed:          1,
	MaxIterations: maxIterations,
}

// ProductQuantizer implements product quantization: vectors are split into M
// contiguous subspaces and each subspace is quantized independently against
// K = 2^nbits centroids learned by k-means.
//
// Example: a 128-dim vector with M=16, nbits=8 becomes 16 one-byte codes
// (32x compression vs float32).
type ProductQuantizer struct {
	dim       int           // D: original vector dimension
	m         int           // M: number of subspaces
	nbits     int           // bits per subspace code
	k         int           // K = 2^nbits centroids per subspace
	subDim    int           // D/M: dimensions per subspace
	codebooks [][][]float32 // [M][K][subDim], immutable once trained
	opts      Options
	trained   bool
}

// NewProductQuantizer creates a product quantizer for vectors of the given
// dimension, split into m subspaces with nbits-wide codes. dim must be
// divisible by m and nbits must be in [1, 8].
func NewProductQuantizer(dim, m, nbits int, optFns ...func(o *Options)) (*ProductQuantizer, error) {
	if dim <= 0 {
		return nil, errors.New("quantization: dimension must be positive")
	}
	if m <= 0 {
		return nil, errors.New("quantization: subspaces must be positive")
	}
	if dim%m != 0 {
		return nil, fmt.Errorf("quantization: dimension %d not divisible by %d subspaces", dim, m)
	}
	if nbits < 1 || nbits > 8 {
		return nil, fmt.Errorf("quantization: nbits must be between 1 and 8, got %d", nbits)
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = maxIterations
	}

	return &ProductQuantizer{
		dim:    dim,
		m:      m,
		nbits:  nbits,
		k:      1 << nbits,
		subDim: dim / m,
		opts:   opts,
	}, nil
}

// Train learns one codebook per subspace from the training vectors.
//
// Subspaces are independent and train in parallel. When fewer than K training
// vectors are supplied, the training slice is replicated cyclically to K rows
// and the replicas are perturbed with gaussian noise scaled by the slice's
// standard deviation. This keeps the centroids non-degenerate under data
// scarcity at the cost of codebook quality; callers should surface the
// condition to their logs (see NeedsAugmentation).
func (pq *ProductQuantizer) Train(vectors [][]float32) error {
	if pq.trained {
		return ErrAlreadyTrained
	}
	if len(vectors) == 0 {
		return errors.New("quantization: no training vectors")
	}
	for i, vec := range vectors {
		if len(vec) != pq.dim {
			return fmt.Errorf("quantization: training vector %d has length %d, want %d", i, len(vec), pq.dim)
		}
	}

	codebooks := make([][][]float32, pq.m)
	trainErrs := make([]error, pq.m)

	// One goroutine per subspace, bounded by GOMAXPROCS. Each subspace owns
	// a random source seeded from the base seed and its index, so results
	// do not depend on scheduling order.
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup

	for m := 0; m < pq.m; m++ {
		wg.Add(1)
		sem <- struct{}{}

		go func(m int) {
			defer wg.Done()
			defer func() { <-sem }()

			rng := rand.New(rand.NewSource(pq.opts.Seed + int64(m)))
			slice := pq.subspaceSlice(vectors, m)
			if len(vectors) < pq.k {
				slice = augment(slice, pq.subDim, pq.k, rng)
			}

			flat := kmeans.Train(slice, pq.subDim, pq.k, pq.opts.MaxIterations, rng)
			if flat == nil {
				trainErrs[m] = fmt.Errorf("quantization: clustering failed for subspace %d", m)
				return
			}

			centroids := make([][]float32, pq.k)
			for c := 0; c < pq.k; c++ {
				centroids[c] = flat[c*pq.subDim : (c+1)*pq.subDim]
			}
			codebooks[m] = centroids
		}(m)
	}

	wg.Wait()

	for _, err := range trainErrs {
		if err != nil {
			return err
		}
	}

	pq.codebooks = codebooks
	pq.trained = true

	return nil
}

// NeedsAugmentation reports whether training on n vectors would trigger the
// scarcity augmentation path (n smaller than the centroid count).
func (pq *ProductQuantizer) NeedsAugmentation(n int) bool {
	return n < pq.k
}

// subspaceSlice extracts subspace m of every vector as a flattened matrix.
func (pq *ProductQuantizer) subspaceSlice(vectors [][]float32, m int) []float32 {
	start := m * pq.subDim
	out := make([]float32, len(vectors)*pq.subDim)
	for i, vec := range vectors {
		copy(out[i*pq.subDim:(i+1)*pq.subDim], vec[start:start+pq.subDim])
	}
	return out
}

// augment tiles the flattened slice matrix cyclically up to k rows and
// perturbs every replicated row with gaussian noise scaled by the slice's
// standard deviation. The original rows are kept exact.
func augment(slice []float32, dim, k int, rng *rand.Rand) []float32 {
	n := len(slice) / dim
	if n >= k {
		return slice
	}

	noiseScale := stddev(slice) * augmentNoiseScale

	out := make([]float32, k*dim)
	copy(out, slice)
	for row := n; row < k; row++ {
		src := slice[(row%n)*dim : (row%n+1)*dim]
		dst := out[row*dim : (row+1)*dim]
		for i, v := range src {
			dst[i] = v + float32(rng.NormFloat64()*noiseScale)
		}
	}

	return out
}

// stddev computes the population standard deviation over all elements.
func stddev(xs []float32) float64 {
	if len(xs) == 0 {
		return 0
	}

	var mean float64
	for _, x := range xs {
		mean += float64(x)
	}
	mean /= float64(len(xs))

	var variance float64
	for _, x := range xs {
		d := float64(x) - mean
		variance += d * d
	}
	variance /= float64(len(xs))

	return math.Sqrt(variance)
}

// Encode quantizes a vector into M centroid indices. For every subspace the
// nearest centroid by squared L2 distance wins; ties resolve to the lowest
// centroid index, so encoding is deterministic.
func (pq *ProductQuantizer) Encode(vec []float32) ([]byte, error) {
	if !pq.trained {
		return nil, ErrNotTrained
	}
	if len(vec) != pq.dim {
		return nil, fmt.Errorf("quantization: vector length %d, want %d", len(vec), pq.dim)
	}

	codes := make([]byte, pq.m)
	for m := 0; m < pq.m; m++ {
		start := m * pq.subDim
		codes[m] = byte(nearestCentroid(vec[start:start+pq.subDim], pq.codebooks[m]))
	}

	return codes, nil
}

// Decode reconstructs the approximate vector for a code by concatenating the
// selected centroids.
func (pq *ProductQuantizer) Decode(codes []byte) ([]float32, error) {
	if !pq.trained {
		return nil, ErrNotTrained
	}
	if len(codes) != pq.m {
		return nil, fmt.Errorf("quantization: code length %d, want %d", len(codes), pq.m)
	}

	out := make([]float32, pq.dim)
	for m, code := range codes {
		if int(code) >= pq.k {
			return nil, &CodeRangeError{Subspace: m, Value: int(code), Limit: pq.k}
		}
		copy(out[m*pq.subDim:(m+1)*pq.subDim], pq.codebooks[m][code])
	}

	return out, nil
}

// BuildDistanceTable precomputes squared L2 distances from the query to every
// centroid. table[m][c] is the distance between the query's subspace m slice
// and centroid c of subspace m. The table is valid for one query against this
// codebook and is never cached.
func (pq *ProductQuantizer) BuildDistanceTable(query []float32) ([][]float32, error) {
	if !pq.trained {
		return nil, ErrNotTrained
	}
	if len(query) != pq.dim {
		return nil, fmt.Errorf("quantization: query length %d, want %d", len(query), pq.dim)
	}

	table := make([][]float32, pq.m)
	for m := 0; m < pq.m; m++ {
		start := m * pq.subDim
		sub := query[start : start+pq.subDim]

		row := make([]float32, pq.k)
		for c := 0; c < pq.k; c++ {
			row[c] = distance.SquaredL2(sub, pq.codebooks[m][c])
		}
		table[m] = row
	}

	return table, nil
}

// ADCDistance computes the approximate distance between a query (represented
// by its distance table) and a quantized vector (represented by codes) as the
// sum of per-subspace table lookups.
func (pq *ProductQuantizer) ADCDistance(table [][]float32, codes []byte) float32 {
	var sum float32
	for m, code := range codes {
		sum += table[m][code]
	}
	return sum
}

// ComputeAsymmetricDistance computes the distance between a full-precision
// query and a quantized vector without a precomputed table. Equivalent to
// ADCDistance against a fresh table; useful for single lookups.
func (pq *ProductQuantizer) ComputeAsymmetricDistance(query []float32, codes []byte) (float32, error) {
	if !pq.trained {
		return 0, ErrNotTrained
	}
	if len(query) != pq.dim {
		return 0, fmt.Errorf("quantization: query length %d, want %d", len(query), pq.dim)
	}
	if len(codes) != pq.m {
		return 0, fmt.Errorf("quantization: code length %d, want %d", len(codes), pq.m)
	}

	var sum float32
	for m, code := range codes {
		if int(code) >= pq.k {
			return 0, &CodeRangeError{Subspace: m, Value: int(code), Limit: pq.k}
		}
		start := m * pq.subDim
		sum += distance.SquaredL2(query[start:start+pq.subDim], pq.codebooks[m][code])
	}

	return sum, nil
}

// nearestCentroid finds the index of the nearest centroid by squared L2.
// Strict comparison keeps the lowest index on ties.
func nearestCentroid(vec []float32, centroids [][]float32) int {
	best := 0
	minDist := float32(math.MaxFloat32)

	for i, centroid := range centroids {
		d := distance.SquaredL2(vec, centroid)
		if d < minDist {
			minDist = d
			best = i
		}
	}

	return best
}

// IsTrained reports whether the quantizer carries a codebook.
func (pq *ProductQuantizer) IsTrained() bool { return pq.trained }

// Dim returns the vector dimensionality D.
func (pq *ProductQuantizer) Dim() int { return pq.dim }

// Subspaces returns the subspace count M.
func (pq *ProductQuantizer) Subspaces() int { return pq.m }

// Bits returns the code width in bits per subspace.
func (pq *ProductQuantizer) Bits() int { return pq.nbits }

// Centroids returns the centroid count K per subspace.
func (pq *ProductQuantizer) Centroids() int { return pq.k }

// SubDim returns the per-subspace dimensionality D/M.
func (pq *ProductQuantizer) SubDim() int { return pq.subDim }

// CodeBytes returns the packed size of one code in bytes.
func (pq *ProductQuantizer) CodeBytes() int {
	return PackedLen(pq.m, pq.nbits)
}

// CompressionRatio returns the size ratio between a raw float32 vector and
// its packed code.
func (pq *ProductQuantizer) CompressionRatio() float64 {
	return float64(pq.dim*4) / float64(pq.CodeBytes())
}

// Codebooks returns a deep copy of the trained codebooks with shape
// [M][K][subDim], or nil if untrained.
func (pq *ProductQuantizer) Codebooks() [][][]float32 {
	if !pq.trained {
		return nil
	}

	out := make([][][]float32, pq.m)
	for m := range pq.codebooks {
		out[m] = make([][]float32, pq.k)
		for c := range pq.codebooks[m] {
			centroid := make([]float32, pq.subDim)
			copy(centroid, pq.codebooks[m][c])
			out[m][c] = centroid
		}
	}

	return out
}

// SetCodebooks installs a previously trained codebook, for example one
// restored from a codebook artifact. The shape must be [M][K][subDim] and the
// quantizer must not be trained yet.
func (pq *ProductQuantizer) SetCodebooks(codebooks [][][]float32) error {
	if pq.trained {
		return ErrAlreadyTrained
	}
	if len(codebooks) != pq.m {
		return fmt.Errorf("quantization: got %d codebooks, want %d", len(codebooks), pq.m)
	}

	out := make([][][]float32, pq.m)
	for m := range codebooks {
		if len(codebooks[m]) != pq.k {
			return fmt.Errorf("quantization: subspace %d has %d centroids, want %d", m, len(codebooks[m]), pq.k)
		}
		out[m] = make([][]float32, pq.k)
		for c := range codebooks[m] {
			if len(codebooks[m][c]) != pq.subDim {
				return fmt.Errorf("quantization: centroid (%d,%d) has length %d, want %d", m, c, len(codebooks[m][c]), pq.subDim)
			}
			centroid := make([]float32, pq.subDim)
			copy(centroid, codebooks[m][c])
			out[m][c] = centroid
		}
	}

	pq.codebooks = out
	pq.trained = true

	return nil
}
