package vectorstore

import (
	"errors"
	"fmt"
)

// Sentinel errors for vector store operations.
var (
	// ErrNotReady is returned when a data operation is attempted before
	// Initialize has completed.
	ErrNotReady = errors.New("store not initialized")

	// ErrEmbedderRequired is returned when Initialize is called without an embedder.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrResetDisabled is returned when Reset is called without the AllowReset
	// opt-in. Resets destroy data irreversibly, so they are opt-in, not opt-out.
	ErrResetDisabled = errors.New("reset is disabled: set AllowReset to enable")

	// ErrCollectionNotReady is returned when an operation races with an
	// in-progress reset.
	ErrCollectionNotReady = errors.New("collection not ready")

	// ErrMissingCitationMetadata is returned when a citation query hits a
	// record stored without url or doc_id metadata.
	ErrMissingCitationMetadata = errors.New("missing citation metadata")

	// ErrBackendUnavailable indicates a network or auth failure talking to the
	// backend. Not retried automatically; surfaced to the caller.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrDimensionMismatch is the match target for DimensionMismatchError.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrBatchPartialFailure is the match target for BatchPartialFailureError.
	ErrBatchPartialFailure = errors.New("batch insert partially failed")
)

// DimensionMismatchError reports a vector whose length does not match the
// collection's dimension. Raw backend dimension errors are translated into
// this type so callers see both dimensions instead of backend internals.
type DimensionMismatchError struct {
	// Expected is the dimension the collection was created with.
	Expected int

	// Actual is the dimension of the offending vector.
	Actual int
}

func (e *DimensionMismatchError) Error() string {
	actual := "a different dimension"
	if e.Actual >= 0 {
		actual = fmt.Sprintf("%d", e.Actual)
	}
	return fmt.Sprintf("embedding dimension mismatch: collection expects %d, got %s "+
		"(commonly caused by querying with a different embedder than the one used at insert time)",
		e.Expected, actual)
}

// Is makes errors.Is(err, ErrDimensionMismatch) work.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// BatchPartialFailureError reports an Add call that failed partway through its
// batches. Batches are submitted in input order; the first failure aborts the
// remaining batches. Succeeded holds the zero-based indices of the batches
// that were written before the failure.
type BatchPartialFailureError struct {
	// Succeeded are the indices of batches written before the failure.
	Succeeded []int

	// Failed is the index of the batch that failed.
	Failed int

	// Err is the translated error from the failed batch.
	Err error
}

func (e *BatchPartialFailureError) Error() string {
	return fmt.Sprintf("batch %d failed after %d succeeded: %v", e.Failed, len(e.Succeeded), e.Err)
}

// Unwrap returns the underlying batch error.
func (e *BatchPartialFailureError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrBatchPartialFailure) work.
func (e *BatchPartialFailureError) Is(target error) bool {
	return target == ErrBatchPartialFailure
}
