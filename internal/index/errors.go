package index

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexFileNotFound is returned by Load when the persisted index does not exist.
	ErrIndexFileNotFound = errors.New("index file not found")

	// ErrIndexCorrupt is returned by Load when the persisted index cannot be parsed
	// or disagrees with the configured metric or dimension.
	ErrIndexCorrupt = errors.New("index corrupt")

	// ErrDimensionMismatch matches any *DimensionMismatchError.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidK is returned when the requested neighbor count is below 1.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInvalidDimension is returned by Open for a non-positive dimension.
	ErrInvalidDimension = errors.New("dimension must be positive")

	// ErrUnknownMetric is returned for metric names outside the supported set.
	ErrUnknownMetric = errors.New("unknown distance metric")

	// ErrUnknownBackend is returned for backend names outside the supported set.
	ErrUnknownBackend = errors.New("unknown index backend")

	// ErrNotReady is returned by Query before Load has completed successfully.
	ErrNotReady = errors.New("index not loaded")

	// ErrAlreadyLoaded is returned by a second call to Load.
	ErrAlreadyLoaded = errors.New("index already loaded")
)

// DimensionMismatchError reports a query vector whose length differs from the index dimension.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrDimensionMismatch) true.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// corruptf wraps ErrIndexCorrupt with a formatted reason.
func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIndexCorrupt, fmt.Sprintf(format, args...))
}
