package vectorstore

import "context"

// runBatches chunks req into batches of batchSize and submits them in input
// order. The first failure aborts the remaining batches and is reported as a
// BatchPartialFailureError carrying the indices that were written. Backends
// rarely support multi-record transactions, so at-least-one-batch granularity
// is the contract.
func runBatches(ctx context.Context, req AddRequest, batchSize int, write func(ctx context.Context, batch AddRequest) error) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	total := req.Len()
	var succeeded []int
	for i, lo := 0, 0; lo < total; i, lo = i+1, lo+batchSize {
		hi := lo + batchSize
		if hi > total {
			hi = total
		}

		if err := ctx.Err(); err != nil {
			return &BatchPartialFailureError{Succeeded: succeeded, Failed: i, Err: err}
		}
		if err := write(ctx, req.Slice(lo, hi)); err != nil {
			return &BatchPartialFailureError{Succeeded: succeeded, Failed: i, Err: err}
		}
		succeeded = append(succeeded, i)
	}
	return nil
}

// batchIDs splits a flat id list into backend-safe pages for existence
// lookups.
func batchIDs(ids []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	var pages [][]string
	for lo := 0; lo < len(ids); lo += batchSize {
		hi := lo + batchSize
		if hi > len(ids) {
			hi = len(ids)
		}
		pages = append(pages, ids[lo:hi])
	}
	return pages
}
