// Package badgerstore is a store.Store persisted in BadgerDB. It keeps the
// same partition/sort layout as the hosted store, so repositories run
// unchanged against a local file or an in-memory database.
package badgerstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/okvist/partstore/store"
)

const defaultPageSize = 100

// Store implements store.Store on top of a badger database.
type Store struct {
	db       *badger.DB
	pageSize int32
}

// Option configures a Store.
type Option func(*Store)

// WithPageSize overrides the default page size used when a query does not
// specify one.
func WithPageSize(n int32) Option {
	return func(s *Store) { s.pageSize = n }
}

// New wraps an already opened badger database. The caller keeps ownership of
// the database and is responsible for closing it.
func New(db *badger.DB, opts ...Option) *Store {
	s := &Store{db: db, pageSize: defaultPageSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens (or creates) a badger database at path and wraps it. An empty
// path opens a transient in-memory database.
func Open(path string, opts ...Option) (*Store, error) {
	bopts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return New(db, opts...), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ store.Store = (*Store)(nil)

func (s *Store) Get(ctx context.Context, key store.Key, consistent bool) (store.Record, bool, error) {
	var rec store.Record
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeKey(key.Partition, key.Sort))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		attrs, err := deserializeItem(data)
		if err != nil {
			return err
		}
		rec = store.Record{Key: key, Attrs: attrs}
		found = true
		return nil
	})
	if err != nil {
		return store.Record{}, false, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return rec, found, nil
}

func (s *Store) Put(ctx context.Context, rec store.Record) error {
	data, err := serializeItem(rec.Attrs)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(encodeKey(rec.Key.Partition, rec.Key.Sort), data)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, key store.Key, spec store.UpdateSpec) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		encoded := encodeKey(key.Partition, key.Sort)
		var attrs store.Item
		exists := false
		item, err := txn.Get(encoded)
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err == nil {
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if attrs, err = deserializeItem(data); err != nil {
				return err
			}
			exists = true
		}
		updated, err := store.ApplyUpdate(attrs, exists, spec)
		if err != nil {
			return err
		}
		data, err := serializeItem(updated)
		if err != nil {
			return err
		}
		return txn.Set(encoded, data)
	})
	if err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) BatchGet(ctx context.Context, keys []store.Key, consistent bool) ([]store.Record, []store.Key, error) {
	if len(keys) > store.MaxBatchGet {
		return nil, nil, fmt.Errorf("%w: %d keys", store.ErrBatchTooLarge, len(keys))
	}
	var records []store.Record
	err := s.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			item, err := txn.Get(encodeKey(key.Partition, key.Sort))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			attrs, err := deserializeItem(data)
			if err != nil {
				return err
			}
			records = append(records, store.Record{Key: key, Attrs: attrs})
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return records, nil, nil
}

func (s *Store) BatchWrite(ctx context.Context, puts []store.Record, deletes []store.Key) (store.WriteRemainder, error) {
	if len(puts)+len(deletes) > store.MaxBatchWrite {
		return store.WriteRemainder{}, fmt.Errorf("%w: %d writes", store.ErrBatchTooLarge, len(puts)+len(deletes))
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, rec := range puts {
			data, err := serializeItem(rec.Attrs)
			if err != nil {
				return err
			}
			if err := txn.Set(encodeKey(rec.Key.Partition, rec.Key.Sort), data); err != nil {
				return err
			}
		}
		for _, key := range deletes {
			if err := txn.Delete(encodeKey(key.Partition, key.Sort)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return store.WriteRemainder{}, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return store.WriteRemainder{}, nil
}

func (s *Store) Query(ctx context.Context, spec store.QuerySpec) (store.Page, error) {
	pageSize := spec.PageSize
	if pageSize <= 0 {
		pageSize = s.pageSize
	}
	prefix := partitionPrefix(spec.Partition)
	lower, upper := sortBounds(spec.Sort)

	var records []store.Record
	scanned := int32(0)
	var lastSort string
	truncated := false

	visit := func(sort string, attrs store.Item) {
		scanned++
		lastSort = sort
		if !spec.Filter.Matches(attrs) {
			return
		}
		rec := store.Record{Key: store.Key{Partition: spec.Partition, Sort: sort}}
		if !spec.KeysOnly {
			rec.Attrs = attrs
		}
		records = append(records, rec)
	}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = !spec.Ascending
		it := txn.NewIterator(opts)
		defer it.Close()

		pivot := lower
		skip := ""
		if spec.Ascending {
			if spec.StartAfter != nil && spec.StartAfter.Sort >= pivot {
				pivot = spec.StartAfter.Sort
				skip = pivot
			}
		} else {
			pivot = upper
			if spec.StartAfter != nil && spec.StartAfter.Sort < pivot {
				pivot = spec.StartAfter.Sort
				skip = pivot
			}
		}

		for it.Seek(append(bytes.Clone(prefix), pivot...)); it.ValidForPrefix(prefix); it.Next() {
			sort := string(it.Item().Key()[len(prefix):])
			if sort == skip {
				continue
			}
			if spec.Ascending {
				if sort >= upper {
					break
				}
			} else {
				if sort >= upper {
					continue
				}
				if sort < lower {
					break
				}
			}
			if scanned == pageSize {
				truncated = true
				break
			}
			attrs, err := valueAttrs(it.Item())
			if err != nil {
				return err
			}
			visit(sort, attrs)
		}
		return nil
	})
	if err != nil {
		return store.Page{}, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	page := store.Page{Records: records}
	if truncated {
		page.Cursor = &store.Key{Partition: spec.Partition, Sort: lastSort}
	}
	return page, nil
}

func valueAttrs(item *badger.Item) (store.Item, error) {
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return deserializeItem(data)
}

// sortBounds converts a sort condition to a half-open [lower, upper) range
// over sort key strings. 0xff never occurs in UTF-8 text, which makes
// prefix+"\xff" a strict upper bound for every key carrying the prefix.
func sortBounds(cond store.SortCondition) (string, string) {
	switch cond.Kind {
	case store.SortPrefix:
		return cond.Prefix, cond.Prefix + "\xff"
	case store.SortBetween:
		return cond.Start, cond.End + "\x00"
	default:
		return "", "\xff"
	}
}
