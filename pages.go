package partstore

import (
	"context"
)

// pageFetch produces the next page. more=false marks the sequence exhausted
// after this page.
type pageFetch[T any] func(ctx context.Context) (page *BatchResponse[T], more bool, err error)

// Pages is a lazy, finite sequence of result pages. Each Next call performs
// the round trips for exactly one page; nothing is prefetched, so stopping
// early is a complete, costless cancellation. A Pages value is restartable
// only from scratch by issuing the query again.
type Pages[T any] struct {
	fetch pageFetch[T]
	done  bool
}

func newPages[T any](fetch pageFetch[T]) *Pages[T] {
	return &Pages[T]{fetch: fetch}
}

// Next returns the next page, or (nil, nil) once the sequence is exhausted.
// A failed Next leaves the sequence where it was; calling Next again retries
// the same page.
func (p *Pages[T]) Next(ctx context.Context) (*BatchResponse[T], error) {
	if p.done {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, more, err := p.fetch(ctx)
	if !more && err == nil {
		p.done = true
	}
	if err != nil {
		return nil, err
	}
	return page, nil
}

// All drains the remaining pages into a single slice. It trades the bounded
// memory of page-at-a-time iteration for convenience; use it when the result
// set is known to be small.
func (p *Pages[T]) All(ctx context.Context) ([]PartitionedContent[T], error) {
	var contents []PartitionedContent[T]
	for {
		page, err := p.Next(ctx)
		if err != nil {
			return nil, err
		}
		if page == nil {
			return contents, nil
		}
		contents = append(contents, page.Contents...)
	}
}
