package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okvist/partstore/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(partition, sort, name string) store.Record {
	return store.Record{
		Key: store.Key{Partition: partition, Sort: sort},
		Attrs: store.Item{
			"name": &types.AttributeValueMemberS{Value: name},
		},
	}
}

func TestKeyCodec_RoundTrip(t *testing.T) {
	encoded := encodeKey("content#widgets#acme", "widget#2024#a")
	key, err := decodeKey(encoded)
	require.NoError(t, err)
	assert.Equal(t, "content#widgets#acme", key.Partition)
	assert.Equal(t, "widget#2024#a", key.Sort)
}

func TestKeyCodec_SeparatorInPartition(t *testing.T) {
	// Partitions containing the separator must still round trip; base64
	// keeps the raw bytes out of the key layout.
	encoded := encodeKey("part|with|pipes", "sort|key")
	key, err := decodeKey(encoded)
	require.NoError(t, err)
	assert.Equal(t, "part|with|pipes", key.Partition)
	assert.Equal(t, "sort|key", key.Sort)
}

func TestItemCodec_RoundTrip(t *testing.T) {
	item := store.Item{
		"s":    &types.AttributeValueMemberS{Value: "text"},
		"n":    &types.AttributeValueMemberN{Value: "42"},
		"b":    &types.AttributeValueMemberB{Value: []byte{1, 2, 3}},
		"bool": &types.AttributeValueMemberBOOL{Value: true},
		"null": &types.AttributeValueMemberNULL{Value: true},
		"ss":   &types.AttributeValueMemberSS{Value: []string{"a", "b"}},
		"l": &types.AttributeValueMemberL{Value: []types.AttributeValue{
			&types.AttributeValueMemberS{Value: "x"},
			&types.AttributeValueMemberN{Value: "1"},
		}},
		"m": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"inner": &types.AttributeValueMemberS{Value: "y"},
		}},
	}

	data, err := serializeItem(item)
	require.NoError(t, err)

	decoded, err := deserializeItem(data)
	require.NoError(t, err)
	assert.True(t, store.EqualItems(item, decoded))
}

func TestStore_PutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("p1", "widget#a", "alpha")
	require.NoError(t, s.Put(ctx, rec))

	got, found, err := s.Get(ctx, rec.Key, true)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, store.EqualItems(rec.Attrs, got.Attrs))

	_, found, err = s.Get(ctx, store.Key{Partition: "p1", Sort: "widget#missing"}, true)
	require.NoError(t, err)
	assert.False(t, found)
}

func seedStore(t *testing.T, s *Store, partition string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		sort := fmt.Sprintf("widget#%03d", i)
		require.NoError(t, s.Put(ctx, testRecord(partition, sort, sort)))
	}
}

func collectSorts(page store.Page) []string {
	var sorts []string
	for _, rec := range page.Records {
		sorts = append(sorts, rec.Key.Sort)
	}
	return sorts
}

func TestStore_Query_PrefixAscending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedStore(t, s, "p1", 4)
	require.NoError(t, s.Put(ctx, testRecord("p1", "gadget#x", "other-type")))
	require.NoError(t, s.Put(ctx, testRecord("p2", "widget#000", "other-partition")))

	page, err := s.Query(ctx, store.QuerySpec{
		Partition: "p1",
		Sort:      store.Prefix("widget#"),
		Ascending: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"widget#000", "widget#001", "widget#002", "widget#003"}, collectSorts(page))
	assert.Nil(t, page.Cursor)
}

func TestStore_Query_Descending(t *testing.T) {
	s := newTestStore(t)
	seedStore(t, s, "p1", 3)

	page, err := s.Query(context.Background(), store.QuerySpec{
		Partition: "p1",
		Sort:      store.Prefix("widget#"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"widget#002", "widget#001", "widget#000"}, collectSorts(page))
}

func TestStore_Query_Between(t *testing.T) {
	s := newTestStore(t)
	seedStore(t, s, "p1", 6)

	page, err := s.Query(context.Background(), store.QuerySpec{
		Partition: "p1",
		Sort:      store.Between("widget#001", "widget#004"),
		Ascending: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"widget#001", "widget#002", "widget#003", "widget#004"}, collectSorts(page))
}

func TestStore_Query_Pagination(t *testing.T) {
	s := newTestStore(t)
	seedStore(t, s, "p1", 7)
	ctx := context.Background()

	spec := store.QuerySpec{
		Partition: "p1",
		Sort:      store.Prefix("widget#"),
		Ascending: true,
		PageSize:  3,
	}

	var all []string
	pages := 0
	for {
		page, err := s.Query(ctx, spec)
		require.NoError(t, err)
		pages++
		all = append(all, collectSorts(page)...)
		if page.Cursor == nil {
			break
		}
		spec.StartAfter = page.Cursor
	}
	assert.Equal(t, 3, pages)
	require.Len(t, all, 7)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1], all[i])
	}
}

func TestStore_Query_PaginationDescending(t *testing.T) {
	s := newTestStore(t)
	seedStore(t, s, "p1", 5)
	ctx := context.Background()

	spec := store.QuerySpec{
		Partition: "p1",
		Sort:      store.Prefix("widget#"),
		PageSize:  2,
	}

	var all []string
	for {
		page, err := s.Query(ctx, spec)
		require.NoError(t, err)
		all = append(all, collectSorts(page)...)
		if page.Cursor == nil {
			break
		}
		spec.StartAfter = page.Cursor
	}
	assert.Equal(t, []string{"widget#004", "widget#003", "widget#002", "widget#001", "widget#000"}, all)
}

func TestStore_Update(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := store.Key{Partition: "p1", Sort: "widget#a"}

	err := s.Update(ctx, key, store.UpdateSpec{RequireExists: true})
	assert.ErrorIs(t, err, store.ErrConditionFailed)

	require.NoError(t, s.Put(ctx, testRecord("p1", "widget#a", "alpha")))

	err = s.Update(ctx, key, store.UpdateSpec{
		RequireExists: true,
		Expected: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: "alpha"},
		},
		Sets: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: "beta"},
		},
		Increments: map[string]int64{"hits": 2},
	})
	require.NoError(t, err)

	got, _, err := s.Get(ctx, key, true)
	require.NoError(t, err)
	assert.Equal(t, "beta", got.Attrs["name"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "2", got.Attrs["hits"].(*types.AttributeValueMemberN).Value)

	err = s.Update(ctx, key, store.UpdateSpec{
		Expected: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: "alpha"},
		},
	})
	assert.ErrorIs(t, err, store.ErrConditionFailed)
}

func TestStore_BatchWriteAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	puts := []store.Record{
		testRecord("p1", "widget#a", "alpha"),
		testRecord("p1", "widget#b", "beta"),
		testRecord("p2", "widget#c", "gamma"),
	}
	rem, err := s.BatchWrite(ctx, puts, nil)
	require.NoError(t, err)
	assert.True(t, rem.Empty())

	records, unprocessed, err := s.BatchGet(ctx, []store.Key{
		{Partition: "p1", Sort: "widget#a"},
		{Partition: "p2", Sort: "widget#c"},
		{Partition: "p9", Sort: "widget#x"},
	}, true)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Empty(t, unprocessed)

	rem, err = s.BatchWrite(ctx, nil, []store.Key{{Partition: "p1", Sort: "widget#a"}})
	require.NoError(t, err)
	assert.True(t, rem.Empty())

	_, found, err := s.Get(ctx, store.Key{Partition: "p1", Sort: "widget#a"}, true)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_BatchLimits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	keys := make([]store.Key, store.MaxBatchGet+1)
	for i := range keys {
		keys[i] = store.Key{Partition: "p1", Sort: fmt.Sprintf("widget#%d", i)}
	}
	_, _, err := s.BatchGet(ctx, keys, false)
	assert.True(t, errors.Is(err, store.ErrBatchTooLarge))

	puts := make([]store.Record, store.MaxBatchWrite+1)
	for i := range puts {
		puts[i] = testRecord("p1", fmt.Sprintf("widget#%d", i), "x")
	}
	_, err = s.BatchWrite(ctx, puts, nil)
	assert.True(t, errors.Is(err, store.ErrBatchTooLarge))
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), testRecord("p1", "widget#a", "alpha")))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.Get(context.Background(), store.Key{Partition: "p1", Sort: "widget#a"}, true)
	require.NoError(t, err)
	assert.True(t, found)
}
