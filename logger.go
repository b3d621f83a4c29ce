package sensevec

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with sensevec-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithDimension adds a dimension field to the logger.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dimension", dim),
	}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{
		Logger: l.Logger.With("count", count),
	}
}

// LogTrain logs a codebook training run.
func (l *Logger) LogTrain(ctx context.Context, count, dimension int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "training failed",
			"vectors", count,
			"dimension", dimension,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "training completed",
			"vectors", count,
			"dimension", dimension,
		)
	}
}

// LogTrainAugmentation logs the scarcity fallback: fewer training vectors
// than centroids, so the training set was padded with perturbed replicas.
func (l *Logger) LogTrainAugmentation(ctx context.Context, vectors, centroids int) {
	l.WarnContext(ctx, "training set smaller than centroid count, augmenting with perturbed replicas",
		"vectors", vectors,
		"centroids", centroids,
	)
}

// LogIndex logs a corpus indexing run.
func (l *Logger) LogIndex(ctx context.Context, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "indexing failed",
			"encoded", count,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "indexing completed",
			"encoded", count,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, k, topN, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"top_n", topN,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"k", k,
			"top_n", topN,
			"results", resultsFound,
		)
	}
}

// LogCodebookSave logs a codebook artifact write.
func (l *Logger) LogCodebookSave(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "codebook save failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "codebook saved",
			"name", name,
		)
	}
}

// LogCodebookLoad logs a codebook artifact read.
func (l *Logger) LogCodebookLoad(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "codebook load failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "codebook loaded",
			"name", name,
		)
	}
}

// LogImport logs a bulk import operation.
func (l *Logger) LogImport(ctx context.Context, count, batches int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "import failed",
			"imported", count,
			"batches", batches,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "import completed",
			"imported", count,
			"batches", batches,
		)
	}
}
