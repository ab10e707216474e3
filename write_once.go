package partstore

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/okvist/partstore/store"
)

// WriteOnceRepository suppresses redundant writes: of a batch of candidate
// records it writes only those that are new or whose domain content differs
// from what is currently stored, and returns exactly the subset written.
//
// The check is best-effort, not transactional: concurrent writers racing on
// the same key can both decide to write.
type WriteOnceRepository[T any] struct {
	repo *Repository[T]
	log  *zap.Logger
}

// NewWriteOnce wraps a repository with the write-once guard.
func NewWriteOnce[T any](repo *Repository[T]) *WriteOnceRepository[T] {
	return &WriteOnceRepository[T]{repo: repo, log: repo.log}
}

type writeCandidate[T any] struct {
	content PartitionedContent[T]
	key     store.Key
}

// Write stores the new-or-changed subset of candidates and returns it.
// Duplicate keys within one batch resolve last-write-wins. Bookkeeping
// attributes (timestamp, version, TTL) are excluded from the comparison;
// only domain content decides whether a record counts as changed.
func (w *WriteOnceRepository[T]) Write(ctx context.Context, candidates []PartitionedContent[T]) ([]PartitionedContent[T], error) {
	if len(candidates) == 0 {
		w.log.Info("empty input content to save")
		return nil, nil
	}

	// Last-write-wins dedup, preserving first-seen order.
	byKey := make(map[store.Key]int)
	winners := make([]writeCandidate[T], 0, len(candidates))
	for _, content := range candidates {
		key, err := w.repo.keys.key(content.PartitionIDs, content.ContentIDs)
		if err != nil {
			return nil, err
		}
		if idx, seen := byKey[key]; seen {
			winners[idx] = writeCandidate[T]{content: content, key: key}
			continue
		}
		byKey[key] = len(winners)
		winners = append(winners, writeCandidate[T]{content: content, key: key})
	}

	// Group by partition, keeping partition first-seen order.
	groupIdx := make(map[string]int)
	var groups [][]writeCandidate[T]
	for _, cand := range winners {
		idx, seen := groupIdx[cand.key.Partition]
		if !seen {
			idx = len(groups)
			groupIdx[cand.key.Partition] = idx
			groups = append(groups, nil)
		}
		groups[idx] = append(groups[idx], cand)
	}

	var toWrite []PartitionedContent[T]
	for _, group := range groups {
		slices.SortFunc(group, func(a, b writeCandidate[T]) int {
			switch {
			case a.key.Sort < b.key.Sort:
				return -1
			case a.key.Sort > b.key.Sort:
				return 1
			}
			return 0
		})
		first := group[0].content
		last := group[len(group)-1].content

		pages, err := w.repo.ListBetween(first.PartitionIDs, first.ContentIDs, last.ContentIDs)
		if err != nil {
			return nil, err
		}
		existingContents, err := pages.All(ctx)
		if err != nil {
			return nil, err
		}
		existing := make(map[string]PartitionedContent[T], len(existingContents))
		for _, e := range existingContents {
			sort, err := w.repo.keys.sortValue(e.ContentIDs)
			if err != nil {
				return nil, err
			}
			existing[sort] = e
		}

		for _, cand := range group {
			stored, found := existing[cand.key.Sort]
			if !found {
				toWrite = append(toWrite, cand.content)
				continue
			}
			same, err := w.sameDomainContent(cand.content.Item, stored.Item)
			if err != nil {
				return nil, err
			}
			if !same {
				toWrite = append(toWrite, cand.content)
			}
		}
	}

	if len(toWrite) == 0 {
		w.log.Info("no new input content found to save")
		return nil, nil
	}
	w.log.Info("new contents found to save", zap.Int("new_count", len(toWrite)))
	if err := w.repo.PutBatch(ctx, toWrite); err != nil {
		return nil, err
	}
	return toWrite, nil
}

// sameDomainContent compares two items structurally through their encoded
// attribute maps.
func (w *WriteOnceRepository[T]) sameDomainContent(a, b T) (bool, error) {
	av, err := w.repo.codec.Encode(a)
	if err != nil {
		return false, err
	}
	bv, err := w.repo.codec.Encode(b)
	if err != nil {
		return false, err
	}
	return store.EqualItems(av, bv), nil
}
