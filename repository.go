package partstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/okvist/partstore/store"
)

// Config carries the immutable repository configuration. A Repository is
// stateless apart from it; instances are safe for concurrent use.
type Config struct {
	// PartitionPrefix and PartitionName form the fixed head of every
	// partition key; ContentType forms the head of every sort key.
	PartitionPrefix string
	PartitionName   string
	ContentType     string

	// ConsistentReads selects strongly consistent reads where the store
	// supports the choice.
	ConsistentReads bool

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// MaxBatchRetries bounds re-submission of provider-unprocessed batch
	// items. Zero means the default of 8.
	MaxBatchRetries int
	// Backoff paces those re-submissions. Nil means capped exponential
	// backoff with full jitter.
	Backoff BackoffFunc
}

const defaultMaxBatchRetries = 8

// Repository maps typed records of T onto a partition/sort-key store.
type Repository[T any] struct {
	store  store.Store
	codec  Codec[T]
	keys   keySpace
	fields map[string]struct{}

	consistent      bool
	log             *zap.Logger
	maxBatchRetries int
	backoff         BackoffFunc

	now func() time.Time
}

// New builds a repository for T using the default attributevalue codec.
func New[T any](s store.Store, cfg Config) (*Repository[T], error) {
	codec, err := NewAttributeCodec[T]()
	if err != nil {
		return nil, err
	}
	return NewWithCodec[T](s, codec, cfg)
}

// NewWithCodec builds a repository with a caller-supplied codec.
func NewWithCodec[T any](s store.Store, codec Codec[T], cfg Config) (*Repository[T], error) {
	if s == nil {
		return nil, fmt.Errorf("store is required")
	}
	if codec == nil {
		return nil, fmt.Errorf("codec is required")
	}
	for _, part := range []string{cfg.PartitionPrefix, cfg.PartitionName, cfg.ContentType} {
		if part == "" {
			return nil, &KeyError{Reason: "partition prefix, partition name and content type are required"}
		}
	}
	if err := validateSegments([]string{cfg.PartitionPrefix, cfg.PartitionName, cfg.ContentType}); err != nil {
		return nil, err
	}

	fields := make(map[string]struct{})
	for _, f := range codec.Fields() {
		switch f {
		case AttrTimestamp, AttrObjectVersion, AttrTTL:
			return nil, fmt.Errorf("record field %q collides with a reserved attribute", f)
		}
		fields[f] = struct{}{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	keys := keySpace{
		partitionPrefix: cfg.PartitionPrefix,
		partitionName:   cfg.PartitionName,
		contentType:     cfg.ContentType,
	}
	logger = logger.With(
		zap.String("partition_base", cfg.PartitionPrefix+keyDelimiter+cfg.PartitionName),
		zap.String("content_type", cfg.ContentType),
	)
	retries := cfg.MaxBatchRetries
	if retries == 0 {
		retries = defaultMaxBatchRetries
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = defaultBackoff
	}
	return &Repository[T]{
		store:           s,
		codec:           codec,
		keys:            keys,
		fields:          fields,
		consistent:      cfg.ConsistentReads,
		log:             logger,
		maxBatchRetries: retries,
		backoff:         backoff,
		now:             time.Now,
	}, nil
}

// Put stores a single record, replacing any record at the same key. Identical
// inputs always compose identical keys, so Put is idempotent by key.
func (r *Repository[T]) Put(ctx context.Context, content PartitionedContent[T]) error {
	rec, err := r.encodeContent(content, r.now())
	if err != nil {
		return err
	}
	log := r.log.With(
		zap.Strings("partition_id", content.PartitionIDs),
		zap.Strings("content_id", content.ContentIDs),
	)
	log.Info("putting single content")
	if err := r.store.Put(ctx, rec); err != nil {
		return translateStoreErr(err)
	}
	log.Info("put single content")
	return nil
}

// PutBatch stores records in provider-sized chunks, re-submitting any the
// provider leaves unprocessed.
func (r *Repository[T]) PutBatch(ctx context.Context, contents []PartitionedContent[T]) error {
	now := r.now()
	recs := make([]store.Record, 0, len(contents))
	for _, content := range contents {
		rec, err := r.encodeContent(content, now)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}
	r.log.Info("putting batch content", zap.Int("count", len(recs)))
	if err := r.writeAll(ctx, recs, nil); err != nil {
		return err
	}
	r.log.Info("finished putting batch content", zap.Int("count", len(recs)))
	return nil
}

// Get retrieves a single record. An absent record yields a zero GetResponse,
// not an error.
func (r *Repository[T]) Get(ctx context.Context, partitionIDs, contentIDs []string) (GetResponse[T], error) {
	key, err := r.keys.key(partitionIDs, contentIDs)
	if err != nil {
		return GetResponse[T]{}, err
	}
	rec, found, err := r.store.Get(ctx, key, r.consistent)
	if err != nil {
		return GetResponse[T]{}, translateStoreErr(err)
	}
	log := r.log.With(
		zap.Strings("partition_id", partitionIDs),
		zap.Strings("content_id", contentIDs),
	)
	if !found {
		log.Info("no item found by key")
		return GetResponse[T]{}, nil
	}
	content, err := r.decodeRecord(rec)
	if err != nil {
		return GetResponse[T]{}, err
	}
	log.Info("found item by key")
	return GetResponse[T]{Content: &content}, nil
}

// GetBatch retrieves many records lazily, one page per provider chunk.
// Keys with no stored record are silently omitted. Key composition errors
// surface before any round trip.
func (r *Repository[T]) GetBatch(ids []ItemID) (*Pages[T], error) {
	keys := make([]store.Key, len(ids))
	for i, id := range ids {
		key, err := r.keys.key(id.PartitionIDs, id.ContentIDs)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	batches := chunk(keys, store.MaxBatchGet)
	next := 0
	return newPages(func(ctx context.Context) (*BatchResponse[T], bool, error) {
		if next >= len(batches) {
			return nil, false, nil
		}
		pending := batches[next]
		more := next+1 < len(batches)
		r.log.Info("starting batch get request",
			zap.Int("batch_number", next+1),
			zap.Int("batch_size", len(pending)),
		)
		var records []store.Record
		for len(pending) > 0 {
			recs, unprocessed, err := r.store.BatchGet(ctx, pending, r.consistent)
			if err != nil {
				return nil, true, translateStoreErr(err)
			}
			records = append(records, recs...)
			if len(unprocessed) > 0 && len(recs) == 0 {
				return nil, true, fmt.Errorf("%w: batch get made no progress on %d keys",
					ErrUnavailable, len(unprocessed))
			}
			pending = unprocessed
		}
		page := &BatchResponse[T]{Contents: make([]PartitionedContent[T], 0, len(records))}
		for _, rec := range records {
			content, err := r.decodeRecord(rec)
			if err != nil {
				return nil, more, err
			}
			page.Contents = append(page.Contents, content)
		}
		// Advance only after the whole chunk decoded; a failed Next retries
		// the same chunk.
		next++
		return page, more, nil
	}), nil
}

// List queries records in one partition whose content ids begin with the
// given prefix segments. An empty prefix matches the whole content type.
func (r *Repository[T]) List(partitionIDs, contentPrefix []string, opts ...QueryOption) (*Pages[T], error) {
	cond, err := r.keys.prefixCondition(contentPrefix)
	if err != nil {
		return nil, err
	}
	return r.rangeQuery(partitionIDs, cond, opts)
}

// ListBetween queries records whose content ids fall in the inclusive range
// [contentStart, contentEnd]. Equal bounds degrade to a List on the start
// bound, which is also what makes the degenerate range return its matching
// records instead of nothing.
func (r *Repository[T]) ListBetween(partitionIDs, contentStart, contentEnd []string, opts ...QueryOption) (*Pages[T], error) {
	cond, err := r.keys.betweenCondition(contentStart, contentEnd)
	if err != nil {
		return nil, err
	}
	return r.rangeQuery(partitionIDs, cond, opts)
}

func (r *Repository[T]) rangeQuery(partitionIDs []string, cond store.SortCondition, opts []QueryOption) (*Pages[T], error) {
	o := queryOptions{ascending: true}
	for _, opt := range opts {
		opt(&o)
	}
	partition, err := r.keys.partitionValue(partitionIDs)
	if err != nil {
		return nil, err
	}
	filter, err := buildFilter(o.filter, r.fields)
	if err != nil {
		return nil, err
	}
	spec := store.QuerySpec{
		Partition:  partition,
		Sort:       cond,
		Filter:     filter,
		Ascending:  o.ascending,
		PageSize:   o.pageSize,
		Consistent: r.consistent,
	}
	return r.query(spec, o.limit), nil
}

// query drives paged traversal: one store round trip per Next call, strict
// page order, no prefetch. limit caps total records across all pages,
// truncating the final page; it is never forwarded as a page size.
func (r *Repository[T]) query(spec store.QuerySpec, limit int) *Pages[T] {
	var cursor *store.Key
	started := false
	fetched := 0
	return newPages(func(ctx context.Context) (*BatchResponse[T], bool, error) {
		s := spec
		if started {
			s.StartAfter = cursor
		}
		page, err := r.store.Query(ctx, s)
		if err != nil {
			return nil, true, translateStoreErr(err)
		}
		more := page.Cursor != nil

		records := page.Records
		if limit > 0 && fetched+len(records) >= limit {
			records = records[:limit-fetched]
			more = false
		}

		resp := &BatchResponse[T]{Contents: make([]PartitionedContent[T], 0, len(records))}
		for _, rec := range records {
			content, err := r.decodeRecord(rec)
			if err != nil {
				return nil, more, err
			}
			resp.Contents = append(resp.Contents, content)
		}

		// Cursor and limit accounting move only once the whole page decoded,
		// so a failed Next can be retried from the same position.
		started = true
		cursor = page.Cursor
		fetched += len(records)
		if more {
			r.log.Debug("more pages remain", zap.Int("fetched", fetched))
		}
		return resp, more, nil
	})
}

// Update applies a declarative update command as a single conditional
// update. The stored version is always incremented and the timestamp
// refreshed, even for an empty command. A CurrentVersion mismatch surfaces
// as ErrConditionFailed, never retried internally.
func (r *Repository[T]) Update(ctx context.Context, partitionIDs, contentIDs []string, cmd UpdateCommand, opts ...UpdateOption) error {
	key, err := r.keys.key(partitionIDs, contentIDs)
	if err != nil {
		return err
	}
	o := updateOptions{requireExists: true}
	for _, opt := range opts {
		opt(&o)
	}
	spec, err := r.buildUpdateSpec(cmd, o)
	if err != nil {
		return err
	}
	if err := r.store.Update(ctx, key, spec); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return &ConditionFailedError{Key: key, Err: err}
		}
		return translateStoreErr(err)
	}
	r.log.Info("finished updating item",
		zap.Strings("partition_id", partitionIDs),
		zap.Strings("content_id", contentIDs),
	)
	return nil
}

func (r *Repository[T]) buildUpdateSpec(cmd UpdateCommand, o updateOptions) (store.UpdateSpec, error) {
	for _, attr := range sortedKeys(cmd.Set) {
		if err := r.checkCommandAttr(attr); err != nil {
			return store.UpdateSpec{}, err
		}
	}
	for _, attr := range sortedKeys(cmd.Increment) {
		if err := r.checkCommandAttr(attr); err != nil {
			return store.UpdateSpec{}, err
		}
	}
	for _, attr := range sortedKeys(cmd.Append) {
		if err := r.checkCommandAttr(attr); err != nil {
			return store.UpdateSpec{}, err
		}
	}

	spec := store.UpdateSpec{
		Sets:          make(map[string]types.AttributeValue, len(cmd.Set)+2),
		Increments:    make(map[string]int64, len(cmd.Increment)+1),
		RequireExists: o.requireExists,
	}
	for attr, value := range cmd.Set {
		av, err := attributevalue.Marshal(value)
		if err != nil {
			return store.UpdateSpec{}, fmt.Errorf("marshal set value for %s: %w", attr, err)
		}
		spec.Sets[attr] = av
	}
	spec.Sets[AttrTimestamp] = &types.AttributeValueMemberS{
		Value: timestampValue(r.now()),
	}
	if cmd.Expiry != nil {
		spec.Sets[AttrTTL] = numberAttr(cmd.Expiry.Unix())
	}

	for attr, delta := range cmd.Increment {
		spec.Increments[attr] = int64(delta)
	}
	spec.Increments[AttrObjectVersion] = 1

	if len(cmd.Append) > 0 {
		spec.Appends = make(map[string][]types.AttributeValue, len(cmd.Append))
		for attr, values := range cmd.Append {
			avs := make([]types.AttributeValue, 0, len(values))
			for _, value := range values {
				av, err := attributevalue.Marshal(value)
				if err != nil {
					return store.UpdateSpec{}, fmt.Errorf("marshal append value for %s: %w", attr, err)
				}
				avs = append(avs, av)
			}
			spec.Appends[attr] = avs
		}
	}

	if cmd.CurrentVersion != nil {
		spec.Expected = map[string]types.AttributeValue{
			AttrObjectVersion: numberAttr(*cmd.CurrentVersion),
		}
	}
	return spec, nil
}

func (r *Repository[T]) checkCommandAttr(attr string) error {
	if _, ok := r.fields[attr]; !ok {
		return &CommandError{Attribute: attr, Reason: "not a declared record field"}
	}
	return nil
}

// Delete removes every record in the partition whose content ids begin with
// the given prefix. It queries keys only, then deletes in provider-sized
// chunks.
func (r *Repository[T]) Delete(ctx context.Context, partitionIDs, contentPrefix []string) error {
	cond, err := r.keys.prefixCondition(contentPrefix)
	if err != nil {
		return err
	}
	partition, err := r.keys.partitionValue(partitionIDs)
	if err != nil {
		return err
	}
	log := r.log.With(
		zap.Strings("partition_id", partitionIDs),
		zap.Strings("content_prefix", contentPrefix),
	)
	log.Info("starting delete by prefix")

	spec := store.QuerySpec{
		Partition:  partition,
		Sort:       cond,
		Ascending:  true,
		KeysOnly:   true,
		Consistent: r.consistent,
	}
	var cursor *store.Key
	deleted := 0
	for {
		spec.StartAfter = cursor
		page, err := r.store.Query(ctx, spec)
		if err != nil {
			return translateStoreErr(err)
		}
		keys := make([]store.Key, len(page.Records))
		for i, rec := range page.Records {
			keys[i] = rec.Key
		}
		if err := r.writeAll(ctx, nil, keys); err != nil {
			return err
		}
		deleted += len(keys)
		if page.Cursor == nil {
			break
		}
		cursor = page.Cursor
	}
	log.Info("finished delete by prefix", zap.Int("count", deleted))
	return nil
}

// writeAll issues batch writes in provider-sized chunks, re-submitting
// provider-unprocessed remainders with backoff until done or the retry
// budget is spent.
func (r *Repository[T]) writeAll(ctx context.Context, puts []store.Record, deletes []store.Key) error {
	putChunks := chunk(puts, store.MaxBatchWrite)
	deleteChunks := chunk(deletes, store.MaxBatchWrite)

	flush := func(puts []store.Record, deletes []store.Key) error {
		attempt := 0
		for {
			rem, err := r.store.BatchWrite(ctx, puts, deletes)
			if err != nil {
				return translateStoreErr(err)
			}
			if rem.Empty() {
				return nil
			}
			attempt++
			if attempt >= r.maxBatchRetries {
				return fmt.Errorf("%w: %d items unprocessed after %d retries",
					ErrUnavailable, len(rem.Puts)+len(rem.Deletes), attempt)
			}
			r.log.Info("retrying unprocessed batch items",
				zap.Int("puts", len(rem.Puts)),
				zap.Int("deletes", len(rem.Deletes)),
				zap.Int("attempt", attempt),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff(attempt)):
			}
			puts, deletes = rem.Puts, rem.Deletes
		}
	}

	for _, c := range putChunks {
		if err := flush(c, nil); err != nil {
			return err
		}
	}
	for _, c := range deleteChunks {
		if err := flush(nil, c); err != nil {
			return err
		}
	}
	return nil
}

// chunk yields successive size-bounded sub-slices of items.
func chunk[E any](items []E, size int) [][]E {
	if len(items) == 0 {
		return nil
	}
	chunks := make([][]E, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
