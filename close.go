package sensevec

import "io"

// Close releases resources held by this SenseVec instance.
//
// Stores passed to the builder are closed if they implement io.Closer.
// When the vector store and the code store are the same object it is
// closed once. Close is idempotent and safe on a nil receiver.
func (sv *SenseVec) Close() error {
	if sv == nil {
		return nil
	}
	if !sv.closed.CompareAndSwap(false, true) {
		return nil
	}

	var firstErr error
	if c, ok := sv.vectors.(io.Closer); ok {
		if err := c.Close(); err != nil {
			firstErr = err
		}
	}
	if any(sv.codes) != any(sv.vectors) {
		if c, ok := sv.codes.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
