package sensevec

import (
	"errors"
	"fmt"

	"github.com/hupe1980/sensevec/quantization"
	"github.com/hupe1980/sensevec/searcher"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInvalidTopN is returned when the approximate candidate budget is
	// not positive.
	ErrInvalidTopN = errors.New("top-n must be positive")

	// ErrNotTrained is returned when an operation requires a trained
	// codebook and none exists yet.
	ErrNotTrained = errors.New("codebook not trained")

	// ErrAlreadyTrained is returned when training or codebook loading is
	// attempted on an instance that already has a codebook. Codebooks are
	// immutable once set; codes encoded against one codebook are
	// meaningless under another.
	ErrAlreadyTrained = errors.New("codebook already trained")

	// ErrCodebookNotFound is returned when a codebook artifact does not
	// exist at the given path or blob name. The caller decides whether
	// that means "train from scratch" or "fail".
	ErrCodebookNotFound = errors.New("codebook not found")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// ErrInvalidSubspaces indicates a subspace count that cannot split the
// dimension evenly.
type ErrInvalidSubspaces struct {
	Dim int
	M   int
}

func (e *ErrInvalidSubspaces) Error() string {
	return fmt.Sprintf("invalid subspaces: dimension %d not divisible by %d", e.Dim, e.M)
}

// ErrInvalidBits indicates a code width outside the 1..8 range.
type ErrInvalidBits struct {
	Bits int
}

func (e *ErrInvalidBits) Error() string {
	return fmt.Sprintf("invalid bits: %d (want 1..8)", e.Bits)
}

// ErrCodeOutOfRange indicates a stored code referencing a centroid index
// outside the codebook.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrCodeOutOfRange struct {
	Subspace int
	Value    int
	Limit    int
	cause    error
}

func (e *ErrCodeOutOfRange) Error() string {
	return fmt.Sprintf("code out of range: subspace %d has value %d, limit %d", e.Subspace, e.Value, e.Limit)
}

func (e *ErrCodeOutOfRange) Unwrap() error { return e.cause }

// FetchError indicates that re-ranking could not fetch the full-precision
// vector for a candidate. The whole query fails rather than silently
// dropping neighbors. ID names the first affected candidate; the
// underlying error carries the full set.
type FetchError struct {
	ID    uint32
	cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch vector for candidate %d: %v", e.ID, e.cause)
}

func (e *FetchError) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Lifecycle normalization.
	if errors.Is(err, quantization.ErrNotTrained) {
		return fmt.Errorf("%w: %w", ErrNotTrained, err)
	}
	if errors.Is(err, quantization.ErrAlreadyTrained) {
		return fmt.Errorf("%w: %w", ErrAlreadyTrained, err)
	}

	// Validation normalization.
	var cre *quantization.CodeRangeError
	if errors.As(err, &cre) {
		return &ErrCodeOutOfRange{Subspace: cre.Subspace, Value: cre.Value, Limit: cre.Limit, cause: err}
	}

	// Fetch normalization.
	var ife *searcher.IncompleteFetchError
	if errors.As(err, &ife) {
		var id uint32
		if len(ife.Missing) > 0 {
			id = ife.Missing[0]
		}
		return &FetchError{ID: id, cause: err}
	}

	return err
}
