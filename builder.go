// Package sensevec provides an embedded product-quantization vector search engine.
//
// This file implements the fluent builder API for creating and configuring
// SenseVec instances. The builder is immutable - each method returns a new
// builder with the updated configuration.
package sensevec

import (
	"github.com/hupe1980/sensevec/quantization"
	"github.com/hupe1980/sensevec/store"
)

// New creates a new SenseVec builder for vectors of the given dimension.
//
// The builder is immutable - each method returns a new builder with the
// updated configuration. This ensures thread-safety and prevents accidental
// state sharing.
//
// Example:
//
//	db, err := sensevec.New(128).
//	    Subspaces(8).
//	    Bits(8).
//	    Seed(42).
//	    Build()
func New(dimension int) Builder {
	return Builder{
		dimension: dimension,
		subspaces: 8,
		bits:      8,
	}
}

// Builder is an immutable fluent builder for creating SenseVec instances.
// Each method returns a new builder with the updated configuration.
type Builder struct {
	dimension     int
	subspaces     int
	bits          int
	seed          *int64
	maxIterations int
	vectors       store.VectorStore
	codes         store.CodeStore
	logger        *Logger
	metrics       MetricsCollector
}

// Subspaces sets the number of subspaces M the dimension is split into.
// Must divide the dimension evenly. Higher values improve accuracy but
// enlarge the codes.
// Default: 8.
func (b Builder) Subspaces(m int) Builder {
	b.subspaces = m
	return b
}

// Bits sets the code width per subspace; each subspace gets 2^bits centroids.
// Higher values improve accuracy but cost training time and code size.
// Default: 8 (256 centroids). Valid range: 1-8.
func (b Builder) Bits(nbits int) Builder {
	b.bits = nbits
	return b
}

// Seed sets the seed for deterministic codebook training.
// If not set, a fixed default seed is used, so training is always
// reproducible for identical input.
func (b Builder) Seed(seed int64) Builder {
	b.seed = &seed
	return b
}

// MaxIterations caps the clustering refinement loop during training.
// Default: 25.
func (b Builder) MaxIterations(n int) Builder {
	b.maxIterations = n
	return b
}

// Vectors sets the full-precision vector store used for exact re-ranking.
// Default: a shared in-memory store.
func (b Builder) Vectors(vs store.VectorStore) Builder {
	b.vectors = vs
	return b
}

// Codes sets the code store that holds packed quantization codes.
// Default: a shared in-memory store.
func (b Builder) Codes(cs store.CodeStore) Builder {
	b.codes = cs
	return b
}

// Store sets a combined store for both vectors and codes.
// Convenience for backends implementing store.Store.
func (b Builder) Store(s store.Store) Builder {
	b.vectors = s
	b.codes = s
	return b
}

// Logger sets the structured logger for operation tracing.
func (b Builder) Logger(l *Logger) Builder {
	b.logger = l
	return b
}

// Metrics sets the metrics collector for monitoring.
func (b Builder) Metrics(mc MetricsCollector) Builder {
	b.metrics = mc
	return b
}

// Build creates the SenseVec instance.
func (b Builder) Build() (*SenseVec, error) {
	if b.dimension <= 0 {
		return nil, &ErrInvalidDimension{Dimension: b.dimension}
	}
	if b.subspaces <= 0 || b.dimension%b.subspaces != 0 {
		return nil, &ErrInvalidSubspaces{Dim: b.dimension, M: b.subspaces}
	}
	if b.bits < 1 || b.bits > 8 {
		return nil, &ErrInvalidBits{Bits: b.bits}
	}

	pqOpts := func(o *quantization.Options) {
		if b.seed != nil {
			o.Seed = *b.seed
		}
		if b.maxIterations > 0 {
			o.MaxIterations = b.maxIterations
		}
	}

	pq, err := quantization.NewProductQuantizer(b.dimension, b.subspaces, b.bits, pqOpts)
	if err != nil {
		return nil, translateError(err)
	}

	vectors := b.vectors
	codes := b.codes
	if vectors == nil && codes == nil {
		mem := store.NewMemoryStore()
		vectors = mem
		codes = mem
	} else {
		if vectors == nil {
			vectors = store.NewMemoryStore()
		}
		if codes == nil {
			codes = store.NewMemoryStore()
		}
	}

	var opts []Option
	if b.logger != nil {
		opts = append(opts, WithLogger(b.logger))
	}
	if b.metrics != nil {
		opts = append(opts, WithMetricsCollector(b.metrics))
	}

	return newSenseVec(pq, vectors, codes, opts...), nil
}

// MustBuild creates the SenseVec instance, panicking on error.
func (b Builder) MustBuild() *SenseVec {
	sv, err := b.Build()
	if err != nil {
		panic(err)
	}
	return sv
}
