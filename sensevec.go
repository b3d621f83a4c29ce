// Package sensevec provides an embedded product-quantization vector search engine for Go.
//
// SenseVec compresses high-dimensional float32 vectors into compact codes
// using product quantization (PQ) and answers nearest-neighbor queries in
// two phases: an approximate scan over all stored codes against a
// precomputed distance table, followed by an exact re-rank of the best
// candidates on their full-precision vectors.
//
//   - Type-safe fluent builder: New(dim).Subspaces(m).Bits(b).Build()
//   - Pluggable row stores: in-memory, database/sql, DynamoDB
//   - Portable binary codebook artifacts with LZ4/ZSTD compression
//   - Artifact backends: local files, S3, MinIO (blobstore package)
//   - Bulk import of binary embedding dumps (ingest package)
//   - Structured logging (slog) and pluggable metrics
//
// # Quick Start
//
// Create an engine with the fluent builder:
//
//	ctx := context.Background()
//	db, err := sensevec.New(128).  // 128-dimensional vectors
//	    Subspaces(8).              // 8 subspaces of 16 dimensions
//	    Bits(8).                   // 256 centroids per subspace
//	    Seed(42).                  // Deterministic training
//	    Build()
//	if err != nil {
//	    panic(err)
//	}
//	defer db.Close()
//
// Train the codebook, load the corpus, index it:
//
//	err = db.Train(ctx, trainingVectors)
//	err = db.Put(ctx, items)
//	err = db.Index(ctx)
//
// Search with the fluent API:
//
//	results, err := db.Search(query).
//	    K(10).      // Results to return
//	    TopN(500).  // Approximate candidate budget
//	    Execute(ctx)
//
// Persist the trained codebook and reuse it without retraining:
//
//	err = db.SaveCodebook("./codebooks/senses.svcb")
//
//	db2, _ := sensevec.New(128).Subspaces(8).Bits(8).Build()
//	err = db2.LoadCodebook("./codebooks/senses.svcb")
//
// # Accuracy Tuning
//
// PQ is lossy. The approximate phase ranks candidates by summed centroid
// distances, so close neighbors can arrive slightly out of order; the
// exact re-rank fixes the ordering inside the TopN window. Raise TopN for
// better recall at higher query cost, or raise Subspaces/Bits for better
// codes at higher memory cost.
package sensevec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/sensevec/blobstore"
	"github.com/hupe1980/sensevec/persistence"
	"github.com/hupe1980/sensevec/quantization"
	"github.com/hupe1980/sensevec/searcher"
	"github.com/hupe1980/sensevec/store"
)

var (
	// ErrNotFound is returned when an item is not found.
	ErrNotFound = errors.New("not found")
)

// indexBatchSize is the number of items a worker encodes per code-store write.
const indexBatchSize = 256

// SenseVec is a product-quantization search engine over a vector store
// and a code store.
type SenseVec struct {
	pq       *quantization.ProductQuantizer
	vectors  store.VectorStore
	codes    store.CodeStore
	scorer   *searcher.Scorer
	reranker *searcher.Reranker
	metrics  MetricsCollector
	logger   *Logger
	closed   atomic.Bool
}

// newSenseVec is the internal constructor used by the builder.
// External users should use sensevec.New(dimension).Build() instead.
func newSenseVec(pq *quantization.ProductQuantizer, vectors store.VectorStore, codes store.CodeStore, optFns ...Option) *SenseVec {
	opts := applyOptions(optFns)

	return &SenseVec{
		pq:       pq,
		vectors:  vectors,
		codes:    codes,
		scorer:   searcher.NewScorer(pq),
		reranker: searcher.NewReranker(vectors),
		metrics:  opts.metricsCollector,
		logger:   opts.logger,
	}
}

// IsTrained reports whether a codebook has been trained or loaded.
func (sv *SenseVec) IsTrained() bool {
	return sv.pq.IsTrained()
}

// Dimension returns the configured vector dimensionality.
func (sv *SenseVec) Dimension() int {
	return sv.pq.Dim()
}

// Train learns the codebook from the training vectors.
//
// Subspaces train independently and in parallel. Training is one-shot: a
// second call returns ErrAlreadyTrained, because codes encoded against
// one codebook are meaningless under another. When fewer training vectors
// than centroids are supplied, training proceeds on an augmented sample
// and logs a warning; expect reduced codebook quality.
func (sv *SenseVec) Train(ctx context.Context, vectors [][]float32) error {
	start := time.Now()
	err := sv.train(ctx, vectors)
	duration := time.Since(start)
	err = translateError(err)
	sv.metrics.RecordTrain(duration, err)
	sv.logger.LogTrain(ctx, len(vectors), sv.pq.Dim(), err)
	return err
}

func (sv *SenseVec) train(ctx context.Context, vectors [][]float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, vec := range vectors {
		if len(vec) != sv.pq.Dim() {
			return &ErrDimensionMismatch{Expected: sv.pq.Dim(), Actual: len(vec)}
		}
	}

	if len(vectors) > 0 && !sv.pq.IsTrained() && sv.pq.NeedsAugmentation(len(vectors)) {
		sv.logger.LogTrainAugmentation(ctx, len(vectors), sv.pq.Centroids())
	}

	return sv.pq.Train(vectors)
}

// Put stores full-precision items in the vector store. Codes are not
// derived here; run Index once the corpus is loaded.
func (sv *SenseVec) Put(ctx context.Context, items []store.Item) error {
	for _, item := range items {
		if len(item.Vector) != sv.pq.Dim() {
			return &ErrDimensionMismatch{Expected: sv.pq.Dim(), Actual: len(item.Vector)}
		}
	}

	if err := sv.vectors.PutVectors(ctx, items); err != nil {
		return err
	}

	sv.logger.DebugContext(ctx, "items stored", "count", len(items))
	return nil
}

// Index encodes every vector in the vector store and writes packed codes
// to the code store, overwriting codes for existing IDs. Requires a
// trained codebook.
//
// Vectors are encoded in parallel across GOMAXPROCS workers; the first
// error cancels the run.
func (sv *SenseVec) Index(ctx context.Context) error {
	start := time.Now()
	count, err := sv.index(ctx)
	duration := time.Since(start)
	err = translateError(err)
	sv.metrics.RecordIndex(count, duration, err)
	sv.logger.LogIndex(ctx, count, err)
	return err
}

func (sv *SenseVec) index(ctx context.Context) (int, error) {
	if !sv.pq.IsTrained() {
		return 0, quantization.ErrNotTrained
	}

	it, err := sv.vectors.ScanVectors(ctx)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	workers := runtime.GOMAXPROCS(0)

	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan []store.Item, workers)

	// The iterator is not safe for concurrent use; a single goroutine
	// drains it and fans batches out to the encode workers.
	g.Go(func() error {
		defer close(batches)

		batch := make([]store.Item, 0, indexBatchSize)
		for it.Next() {
			batch = append(batch, it.Item())
			if len(batch) < indexBatchSize {
				continue
			}
			select {
			case batches <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
			batch = make([]store.Item, 0, indexBatchSize)
		}
		if err := it.Err(); err != nil {
			return fmt.Errorf("scan vectors: %w", err)
		}
		if len(batch) > 0 {
			select {
			case batches <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var encoded atomic.Int64
	for range workers {
		g.Go(func() error {
			for batch := range batches {
				if err := gctx.Err(); err != nil {
					return err
				}

				rows := make([]store.CodeRow, len(batch))
				for i, item := range batch {
					codes, err := sv.pq.Encode(item.Vector)
					if err != nil {
						return fmt.Errorf("encode id %d: %w", item.ID, err)
					}
					packed, err := quantization.PackCodes(codes, sv.pq.Bits())
					if err != nil {
						return fmt.Errorf("pack codes id %d: %w", item.ID, err)
					}
					rows[i] = store.CodeRow{ID: item.ID, Code: packed}
				}

				if err := sv.codes.PutCodes(gctx, rows); err != nil {
					return fmt.Errorf("put codes: %w", err)
				}
				encoded.Add(int64(len(batch)))
			}
			return nil
		})
	}

	err = g.Wait()
	return int(encoded.Load()), err
}

// SaveCodebook writes the trained codebook to path as a binary artifact.
// The write is atomic: a crash mid-save leaves any previous artifact intact.
func (sv *SenseVec) SaveCodebook(path string, optFns ...func(o *persistence.EncodeOptions)) error {
	start := time.Now()
	err := sv.saveCodebook(path, optFns)
	duration := time.Since(start)
	err = translateError(err)
	sv.metrics.RecordCodebookSave(duration, err)
	sv.logger.LogCodebookSave(context.Background(), path, err)
	return err
}

func (sv *SenseVec) saveCodebook(path string, optFns []func(o *persistence.EncodeOptions)) error {
	c, err := sv.codebookArtifact()
	if err != nil {
		return err
	}
	return persistence.Save(path, c, optFns...)
}

// LoadCodebook reads a binary codebook artifact from path into this
// instance. The instance must not already be trained; the artifact shape
// must match the configured dimension, subspaces and bits. A missing file
// yields ErrCodebookNotFound.
func (sv *SenseVec) LoadCodebook(path string) error {
	start := time.Now()
	err := sv.loadCodebook(path)
	duration := time.Since(start)
	err = translateError(err)
	sv.metrics.RecordCodebookLoad(duration, err)
	sv.logger.LogCodebookLoad(context.Background(), path, err)
	return err
}

func (sv *SenseVec) loadCodebook(path string) error {
	c, err := persistence.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %w", ErrCodebookNotFound, err)
		}
		return err
	}
	return sv.applyCodebook(c)
}

// SaveCodebookTo streams the trained codebook into a blob store under name.
func (sv *SenseVec) SaveCodebookTo(ctx context.Context, bs blobstore.BlobStore, name string, optFns ...func(o *persistence.EncodeOptions)) error {
	start := time.Now()
	err := sv.saveCodebookTo(ctx, bs, name, optFns)
	duration := time.Since(start)
	err = translateError(err)
	sv.metrics.RecordCodebookSave(duration, err)
	sv.logger.LogCodebookSave(ctx, name, err)
	return err
}

func (sv *SenseVec) saveCodebookTo(ctx context.Context, bs blobstore.BlobStore, name string, optFns []func(o *persistence.EncodeOptions)) error {
	c, err := sv.codebookArtifact()
	if err != nil {
		return err
	}

	wb, err := bs.Create(ctx, name)
	if err != nil {
		return err
	}
	if err := persistence.Encode(wb, c, optFns...); err != nil {
		// Encode fails only when the blob write fails; drop whatever
		// partial artifact the backend published.
		_ = wb.Close()
		_ = bs.Delete(ctx, name)
		return err
	}
	if err := wb.Close(); err != nil {
		_ = bs.Delete(ctx, name)
		return err
	}
	return nil
}

// LoadCodebookFrom reads a codebook artifact from a blob store. A missing
// blob yields ErrCodebookNotFound.
func (sv *SenseVec) LoadCodebookFrom(ctx context.Context, bs blobstore.BlobStore, name string) error {
	start := time.Now()
	err := sv.loadCodebookFrom(ctx, bs, name)
	duration := time.Since(start)
	err = translateError(err)
	sv.metrics.RecordCodebookLoad(duration, err)
	sv.logger.LogCodebookLoad(ctx, name, err)
	return err
}

func (sv *SenseVec) loadCodebookFrom(ctx context.Context, bs blobstore.BlobStore, name string) error {
	blob, err := bs.Open(ctx, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrCodebookNotFound, err)
		}
		return err
	}
	defer blob.Close()

	var r io.Reader
	if m, ok := blob.(blobstore.Mappable); ok {
		data, err := m.Bytes()
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	} else if blob.Size() == 0 {
		// Decode reports the truncation on an empty artifact.
		r = bytes.NewReader(nil)
	} else {
		rc, err := blob.ReadRange(ctx, 0, blob.Size())
		if err != nil {
			return err
		}
		defer rc.Close()
		r = rc
	}

	c, err := persistence.Decode(r)
	if err != nil {
		return err
	}
	return sv.applyCodebook(c)
}

func (sv *SenseVec) codebookArtifact() (*persistence.Codebook, error) {
	if !sv.pq.IsTrained() {
		return nil, quantization.ErrNotTrained
	}

	return &persistence.Codebook{
		Dim:       sv.pq.Dim(),
		Subspaces: sv.pq.Subspaces(),
		Bits:      sv.pq.Bits(),
		CreatedAt: time.Now(),
		Centroids: sv.pq.Codebooks(),
	}, nil
}

func (sv *SenseVec) applyCodebook(c *persistence.Codebook) error {
	if c.Dim != sv.pq.Dim() {
		return &ErrDimensionMismatch{Expected: sv.pq.Dim(), Actual: c.Dim}
	}
	if c.Subspaces != sv.pq.Subspaces() || c.Bits != sv.pq.Bits() {
		return fmt.Errorf("codebook shape %d subspaces, %d bits does not match quantizer %d, %d",
			c.Subspaces, c.Bits, sv.pq.Subspaces(), sv.pq.Bits())
	}
	return sv.pq.SetCodebooks(c.Centroids)
}

// Stats describes the configuration and state of a SenseVec instance.
type Stats struct {
	Dimension        int
	Subspaces        int
	Bits             int
	Centroids        int
	CodeBytes        int
	CompressionRatio float64
	Trained          bool
	Vectors          int
}

// Stats returns configuration and corpus statistics.
func (sv *SenseVec) Stats(ctx context.Context) (Stats, error) {
	count, err := sv.vectors.Count(ctx)
	if err != nil {
		return Stats{}, translateError(err)
	}

	return Stats{
		Dimension:        sv.pq.Dim(),
		Subspaces:        sv.pq.Subspaces(),
		Bits:             sv.pq.Bits(),
		Centroids:        sv.pq.Centroids(),
		CodeBytes:        sv.pq.CodeBytes(),
		CompressionRatio: sv.pq.CompressionRatio(),
		Trained:          sv.pq.IsTrained(),
		Vectors:          count,
	}, nil
}
