package sensevec

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    trainCounter    prometheus.Counter
//	    searchHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordTrain(duration time.Duration, err error) {
//	    p.trainCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordTrain is called after each training run.
	// duration is the total time taken, err is nil if successful.
	RecordTrain(duration time.Duration, err error)

	// RecordIndex is called after each indexing run.
	// count is the number of vectors encoded, duration is the total time
	// taken, err is nil if successful.
	RecordIndex(count int, duration time.Duration, err error)

	// RecordSearch is called after each search operation.
	// scanned is the number of code rows scored in the approximate phase,
	// reranked is the number of candidates re-ranked exactly.
	RecordSearch(duration time.Duration, scanned, reranked int, err error)

	// RecordCodebookSave is called after each codebook artifact write.
	RecordCodebookSave(duration time.Duration, err error)

	// RecordCodebookLoad is called after each codebook artifact read.
	RecordCodebookLoad(duration time.Duration, err error)

	// RecordImport is called after each bulk import.
	// count is the number of items imported.
	RecordImport(count int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordTrain(time.Duration, error)            {}
func (NoopMetricsCollector) RecordIndex(int, time.Duration, error)       {}
func (NoopMetricsCollector) RecordSearch(time.Duration, int, int, error) {}
func (NoopMetricsCollector) RecordCodebookSave(time.Duration, error)     {}
func (NoopMetricsCollector) RecordCodebookLoad(time.Duration, error)     {}
func (NoopMetricsCollector) RecordImport(int, time.Duration, error)      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	TrainCount         atomic.Int64
	TrainErrors        atomic.Int64
	TrainTotalNanos    atomic.Int64
	IndexCount         atomic.Int64
	IndexErrors        atomic.Int64
	IndexItems         atomic.Int64
	IndexTotalNanos    atomic.Int64
	SearchCount        atomic.Int64
	SearchErrors       atomic.Int64
	SearchTotalNanos   atomic.Int64
	SearchScanned      atomic.Int64
	SearchReranked     atomic.Int64
	CodebookSaveCount  atomic.Int64
	CodebookSaveErrors atomic.Int64
	CodebookLoadCount  atomic.Int64
	CodebookLoadErrors atomic.Int64
	ImportCount        atomic.Int64
	ImportItems        atomic.Int64
	ImportErrors       atomic.Int64
}

// RecordTrain implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTrain(duration time.Duration, err error) {
	b.TrainCount.Add(1)
	b.TrainTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.TrainErrors.Add(1)
	}
}

// RecordIndex implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIndex(count int, duration time.Duration, err error) {
	b.IndexCount.Add(1)
	b.IndexItems.Add(int64(count))
	b.IndexTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.IndexErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(duration time.Duration, scanned, reranked int, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	b.SearchScanned.Add(int64(scanned))
	b.SearchReranked.Add(int64(reranked))
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordCodebookSave implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCodebookSave(duration time.Duration, err error) {
	b.CodebookSaveCount.Add(1)
	if err != nil {
		b.CodebookSaveErrors.Add(1)
	}
}

// RecordCodebookLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCodebookLoad(duration time.Duration, err error) {
	b.CodebookLoadCount.Add(1)
	if err != nil {
		b.CodebookLoadErrors.Add(1)
	}
}

// RecordImport implements MetricsCollector.
func (b *BasicMetricsCollector) RecordImport(count int, duration time.Duration, err error) {
	b.ImportCount.Add(1)
	b.ImportItems.Add(int64(count))
	if err != nil {
		b.ImportErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		TrainCount:         b.TrainCount.Load(),
		TrainErrors:        b.TrainErrors.Load(),
		TrainAvgNanos:      avgNanos(&b.TrainTotalNanos, &b.TrainCount),
		IndexCount:         b.IndexCount.Load(),
		IndexErrors:        b.IndexErrors.Load(),
		IndexItems:         b.IndexItems.Load(),
		IndexAvgNanos:      avgNanos(&b.IndexTotalNanos, &b.IndexCount),
		SearchCount:        b.SearchCount.Load(),
		SearchErrors:       b.SearchErrors.Load(),
		SearchAvgNanos:     avgNanos(&b.SearchTotalNanos, &b.SearchCount),
		SearchScanned:      b.SearchScanned.Load(),
		SearchReranked:     b.SearchReranked.Load(),
		CodebookSaveCount:  b.CodebookSaveCount.Load(),
		CodebookSaveErrors: b.CodebookSaveErrors.Load(),
		CodebookLoadCount:  b.CodebookLoadCount.Load(),
		CodebookLoadErrors: b.CodebookLoadErrors.Load(),
		ImportCount:        b.ImportCount.Load(),
		ImportItems:        b.ImportItems.Load(),
		ImportErrors:       b.ImportErrors.Load(),
	}
}

func avgNanos(total, count *atomic.Int64) int64 {
	n := count.Load()
	if n == 0 {
		return 0
	}
	return total.Load() / n
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	TrainCount         int64
	TrainErrors        int64
	TrainAvgNanos      int64
	IndexCount         int64
	IndexErrors        int64
	IndexItems         int64
	IndexAvgNanos      int64
	SearchCount        int64
	SearchErrors       int64
	SearchAvgNanos     int64
	SearchScanned      int64
	SearchReranked     int64
	CodebookSaveCount  int64
	CodebookSaveErrors int64
	CodebookLoadCount  int64
	CodebookLoadErrors int64
	ImportCount        int64
	ImportItems        int64
	ImportErrors       int64
}
