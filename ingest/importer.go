package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hupe1980/sensevec/store"
)

// ImporterOptions configure an Importer.
type ImporterOptions struct {
	// BatchSize is the number of items per store write. Default: 500.
	BatchSize int

	// Workers bounds concurrent store writes. Default: GOMAXPROCS.
	Workers int

	// RatePerSecond throttles imported items per second across all
	// workers. Zero or negative disables throttling.
	RatePerSecond float64

	// Burst is the rate limiter burst size. Raised to BatchSize when
	// smaller, since a full batch is admitted at once.
	Burst int

	// StartID is the ID assigned to the first record. Default: 1.
	StartID uint32

	// Logger receives per-batch progress at debug level.
	Logger *slog.Logger
}

// Result describes a completed import.
type Result struct {
	// Items is the number of records written.
	Items int

	// Batches is the number of store writes performed.
	Batches int

	// FirstID and LastID bound the assigned ID range. Both are zero
	// when no records were imported.
	FirstID uint32
	LastID  uint32
}

// Importer bulk-loads sense records into a vector store.
type Importer struct {
	vectors store.VectorStore
	opts    ImporterOptions
}

// NewImporter creates an importer writing to the given store.
func NewImporter(vectors store.VectorStore, optFns ...func(o *ImporterOptions)) *Importer {
	opts := ImporterOptions{
		BatchSize: 500,
		Workers:   runtime.GOMAXPROCS(0),
		StartID:   1,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.StartID == 0 {
		opts.StartID = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	return &Importer{vectors: vectors, opts: opts}
}

// Import writes all records to the vector store in parallel batches.
// Records are assigned sequential IDs starting at StartID, in input
// order. The first failing batch cancels the remaining ones.
func (imp *Importer) Import(ctx context.Context, emb *SenseEmbeddings) (*Result, error) {
	if emb == nil || len(emb.Records) == 0 {
		return &Result{}, nil
	}

	for i, rec := range emb.Records {
		if len(rec.Vector) != emb.Dim {
			return nil, fmt.Errorf("ingest: record %d has dimension %d, want %d", i, len(rec.Vector), emb.Dim)
		}
	}

	items := make([]store.Item, len(emb.Records))
	id := imp.opts.StartID
	for i, rec := range emb.Records {
		items[i] = store.Item{
			ID:     id,
			Vector: rec.Vector,
			Label:  rec.Word,
			Tag:    rec.SenseID,
		}
		id++
	}

	limiter := imp.limiter()
	sem := semaphore.NewWeighted(int64(imp.opts.Workers))
	g, gctx := errgroup.WithContext(ctx)

	var (
		imported atomic.Int64
		batches  int
	)

	total := len(items)
	for start := 0; start < total; start += imp.opts.BatchSize {
		batch := items[start:min(start+imp.opts.BatchSize, total)]

		if err := limiter.WaitN(gctx, len(batch)); err != nil {
			break
		}
		if err := sem.Acquire(gctx, 1); err != nil {
			// A batch already failed; g.Wait reports it.
			break
		}
		batches++

		g.Go(func() error {
			defer sem.Release(1)

			if err := imp.vectors.PutVectors(gctx, batch); err != nil {
				return fmt.Errorf("ingest: import batch at id %d: %w", batch[0].ID, err)
			}

			done := imported.Add(int64(len(batch)))
			imp.opts.Logger.DebugContext(gctx, "batch imported",
				slog.Int64("imported", done),
				slog.Int("total", total),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Result{
		Items:   total,
		Batches: batches,
		FirstID: imp.opts.StartID,
		LastID:  imp.opts.StartID + uint32(total) - 1,
	}, nil
}

// ImportReader parses an embedding dump and imports it in one step.
func (imp *Importer) ImportReader(ctx context.Context, r io.Reader, optFns ...func(o *ReadOptions)) (*Result, error) {
	emb, err := ReadSenseEmbeddings(r, optFns...)
	if err != nil {
		return nil, err
	}
	return imp.Import(ctx, emb)
}

func (imp *Importer) limiter() *rate.Limiter {
	if imp.opts.RatePerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}

	burst := imp.opts.Burst
	if burst < imp.opts.BatchSize {
		burst = imp.opts.BatchSize
	}
	return rate.NewLimiter(rate.Limit(imp.opts.RatePerSecond), burst)
}
