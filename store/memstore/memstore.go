// Package memstore is an in-memory store.Store backed by one btree per
// partition. It honors the full range-query, filter and conditional-update
// contracts, which makes it the store of choice for tests and local
// development.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/okvist/partstore/store"
)

const defaultPageSize = 100

// 0xff never occurs in UTF-8 text, so prefix+"\xff" is a strict upper bound
// for every sort key carrying the prefix.
const prefixUpperBound = "\xff"

type document struct {
	sort  string
	attrs store.Item
}

func docLess(a, b *document) bool { return a.sort < b.sort }

// Store implements store.Store in memory. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	partitions map[string]*btree.BTreeG[*document]
	pageSize   int32
}

// Option configures a Store.
type Option func(*Store)

// WithPageSize overrides the default page size used when a query does not
// specify one.
func WithPageSize(n int32) Option {
	return func(s *Store) { s.pageSize = n }
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		partitions: make(map[string]*btree.BTreeG[*document]),
		pageSize:   defaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.Store = (*Store)(nil)

func (s *Store) Get(ctx context.Context, key store.Key, consistent bool) (store.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.lookup(key)
	if !ok {
		return store.Record{}, false, nil
	}
	return store.Record{Key: key, Attrs: cloneItem(doc.attrs)}, true, nil
}

func (s *Store) Put(ctx context.Context, rec store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(rec)
	return nil
}

func (s *Store) Update(ctx context.Context, key store.Key, spec store.UpdateSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.lookup(key)
	var attrs store.Item
	if exists {
		attrs = doc.attrs
	}
	updated, err := store.ApplyUpdate(attrs, exists, spec)
	if err != nil {
		return err
	}
	s.apply(store.Record{Key: key, Attrs: updated})
	return nil
}

func (s *Store) BatchGet(ctx context.Context, keys []store.Key, consistent bool) ([]store.Record, []store.Key, error) {
	if len(keys) > store.MaxBatchGet {
		return nil, nil, fmt.Errorf("%w: %d keys", store.ErrBatchTooLarge, len(keys))
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []store.Record
	for _, key := range keys {
		if doc, ok := s.lookup(key); ok {
			records = append(records, store.Record{Key: key, Attrs: cloneItem(doc.attrs)})
		}
	}
	return records, nil, nil
}

func (s *Store) BatchWrite(ctx context.Context, puts []store.Record, deletes []store.Key) (store.WriteRemainder, error) {
	if len(puts)+len(deletes) > store.MaxBatchWrite {
		return store.WriteRemainder{}, fmt.Errorf("%w: %d writes", store.ErrBatchTooLarge, len(puts)+len(deletes))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range puts {
		s.apply(rec)
	}
	for _, key := range deletes {
		if tree, ok := s.partitions[key.Partition]; ok {
			tree.Delete(&document{sort: key.Sort})
		}
	}
	return store.WriteRemainder{}, nil
}

func (s *Store) Query(ctx context.Context, spec store.QuerySpec) (store.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tree, ok := s.partitions[spec.Partition]
	if !ok {
		return store.Page{}, nil
	}
	pageSize := spec.PageSize
	if pageSize <= 0 {
		pageSize = s.pageSize
	}

	lower, upper := queryBounds(spec.Sort)
	var records []store.Record
	scanned := int32(0)
	var lastSort string
	truncated := false

	visit := func(doc *document) bool {
		if scanned == pageSize {
			truncated = true
			return false
		}
		scanned++
		lastSort = doc.sort
		if spec.Filter.Matches(doc.attrs) {
			rec := store.Record{Key: store.Key{Partition: spec.Partition, Sort: doc.sort}}
			if !spec.KeysOnly {
				rec.Attrs = cloneItem(doc.attrs)
			}
			records = append(records, rec)
		}
		return true
	}

	if spec.Ascending {
		pivot := lower
		skipEqual := false
		if spec.StartAfter != nil && spec.StartAfter.Sort >= pivot {
			pivot = spec.StartAfter.Sort
			skipEqual = true
		}
		tree.AscendGreaterOrEqual(&document{sort: pivot}, func(doc *document) bool {
			if skipEqual && doc.sort == pivot {
				return true
			}
			if doc.sort >= upper {
				return false
			}
			return visit(doc)
		})
	} else {
		pivot := upper
		strictBelow := upper
		if spec.StartAfter != nil && spec.StartAfter.Sort < pivot {
			pivot = spec.StartAfter.Sort
			strictBelow = spec.StartAfter.Sort
		}
		tree.DescendLessOrEqual(&document{sort: pivot}, func(doc *document) bool {
			if doc.sort >= strictBelow {
				return true
			}
			if doc.sort < lower {
				return false
			}
			return visit(doc)
		})
	}

	page := store.Page{Records: records}
	if truncated {
		page.Cursor = &store.Key{Partition: spec.Partition, Sort: lastSort}
	}
	return page, nil
}

// queryBounds converts a sort condition to a half-open [lower, upper) range
// over sort key strings.
func queryBounds(cond store.SortCondition) (string, string) {
	switch cond.Kind {
	case store.SortPrefix:
		return cond.Prefix, cond.Prefix + prefixUpperBound
	case store.SortBetween:
		// upper is exclusive; extend End to keep the stored End inclusive.
		return cond.Start, cond.End + "\x00"
	default:
		return "", prefixUpperBound
	}
}

// lookup must be called with the mutex held.
func (s *Store) lookup(key store.Key) (*document, bool) {
	tree, ok := s.partitions[key.Partition]
	if !ok {
		return nil, false
	}
	return tree.Get(&document{sort: key.Sort})
}

// apply must be called with the write mutex held.
func (s *Store) apply(rec store.Record) {
	tree, ok := s.partitions[rec.Key.Partition]
	if !ok {
		tree = btree.NewG(2, docLess)
		s.partitions[rec.Key.Partition] = tree
	}
	tree.ReplaceOrInsert(&document{sort: rec.Key.Sort, attrs: cloneItem(rec.Attrs)})
}

func cloneItem(item store.Item) store.Item {
	out := make(store.Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
