package partstore

import (
	"math/rand/v2"
	"time"
)

type queryOptions struct {
	ascending bool
	limit     int
	pageSize  int32
	filter    *FilterCommand
}

// QueryOption configures List and ListBetween.
type QueryOption func(*queryOptions)

// Descending reverses traversal order at the store protocol level; records
// are never re-sorted client-side.
func Descending() QueryOption {
	return func(o *queryOptions) { o.ascending = false }
}

// WithLimit caps the total number of records returned across all pages
// combined, truncating the final page if needed.
func WithLimit(n int) QueryOption {
	return func(o *queryOptions) { o.limit = n }
}

// WithPageSize hints the per-round-trip page size. Independent of WithLimit.
func WithPageSize(n int32) QueryOption {
	return func(o *queryOptions) { o.pageSize = n }
}

// WithFilter applies a non-key attribute filter to the query.
func WithFilter(f FilterCommand) QueryOption {
	return func(o *queryOptions) { o.filter = &f }
}

type updateOptions struct {
	requireExists bool
}

// UpdateOption configures Update.
type UpdateOption func(*updateOptions)

// AllowMissing drops the existence precondition, letting an update create
// the record's bookkeeping attributes at a previously unused key.
func AllowMissing() UpdateOption {
	return func(o *updateOptions) { o.requireExists = false }
}

// BackoffFunc returns the wait before retry attempt n of a batch
// re-submission.
type BackoffFunc func(attempt int) time.Duration

// ExponentialBackoff returns a capped exponential backoff with full jitter:
// rand(0, min(cap, base * multiplier^attempt)).
func ExponentialBackoff(base time.Duration, multiplier float64, cap time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		factor := 1.0
		for i := 0; i < attempt; i++ {
			factor *= multiplier
		}
		backoff := time.Duration(float64(base) * factor)
		if backoff > cap {
			backoff = cap
		}
		if backoff <= 0 {
			return 0
		}
		return time.Duration(rand.Int64N(int64(backoff)))
	}
}

// defaultBackoff is ExponentialBackoff with 50ms base, 2x multiplier, 5s cap.
var defaultBackoff = ExponentialBackoff(50*time.Millisecond, 2.0, 5*time.Second)
