package sensevec

import (
	"context"
	"io"
	"time"

	"github.com/hupe1980/sensevec/ingest"
)

// ImportOptions configure ImportSenseEmbeddings.
type ImportOptions struct {
	// NormalizeL2 rescales each vector to unit length while reading.
	NormalizeL2 bool

	// BatchSize is the number of items per store write. Default: 500.
	BatchSize int

	// Workers bounds concurrent store writes. Default: GOMAXPROCS.
	Workers int

	// RatePerSecond throttles imported items per second. Zero or
	// negative disables throttling.
	RatePerSecond float64

	// StartID is the ID assigned to the first record. Default: 1.
	StartID uint32
}

// ImportSenseEmbeddings reads a binary sense embedding dump from r and
// bulk-loads it into the vector store. Records are assigned sequential
// IDs in file order, with the word as label and the sense ID as tag.
//
// The dump's dimension must match the engine's. Importing does not
// train or index; call Train and Index afterwards.
func (sv *SenseVec) ImportSenseEmbeddings(ctx context.Context, r io.Reader, optFns ...func(o *ImportOptions)) (*ingest.Result, error) {
	start := time.Now()

	res, err := sv.importSenseEmbeddings(ctx, r, optFns)

	duration := time.Since(start)
	err = translateError(err)

	var count, batches int
	if res != nil {
		count, batches = res.Items, res.Batches
	}

	sv.metrics.RecordImport(count, duration, err)
	sv.logger.LogImport(ctx, count, batches, err)

	return res, err
}

func (sv *SenseVec) importSenseEmbeddings(ctx context.Context, r io.Reader, optFns []func(o *ImportOptions)) (*ingest.Result, error) {
	var opts ImportOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	emb, err := ingest.ReadSenseEmbeddings(r, func(o *ingest.ReadOptions) {
		o.NormalizeL2 = opts.NormalizeL2
	})
	if err != nil {
		return nil, err
	}

	if emb.Dim != sv.pq.Dim() {
		return nil, &ErrDimensionMismatch{Expected: sv.pq.Dim(), Actual: emb.Dim}
	}

	imp := ingest.NewImporter(sv.vectors, func(o *ingest.ImporterOptions) {
		o.BatchSize = opts.BatchSize
		o.Workers = opts.Workers
		o.RatePerSecond = opts.RatePerSecond
		o.StartID = opts.StartID
		o.Logger = sv.logger.Logger
	})

	return imp.Import(ctx, emb)
}
