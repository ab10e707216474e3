// Package store defines the narrow contract the repository core uses to talk
// to a partition/sort-key wide-column store. Implementations exist for
// DynamoDB (dynamostore), an in-memory btree (memstore) and a local
// badger-backed store (badgerstore).
//
// Conditions cross this boundary as structured values, never as rendered
// expression strings. That keeps every implementation able to interpret them
// directly and keeps expression building a DynamoDB-only concern.
package store

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is a raw attribute map. For records returned by a Store the key
// attributes are carried separately in Record.Key and are not repeated here.
type Item = map[string]types.AttributeValue

// Provider-imposed chunk limits for batch operations. Callers are expected to
// chunk their requests; implementations reject larger batches.
const (
	MaxBatchGet   = 100
	MaxBatchWrite = 25
)

var (
	// ErrConditionFailed is returned by Update when a precondition
	// (existence or expected attribute value) does not hold.
	ErrConditionFailed = errors.New("store: condition failed")

	// ErrUnavailable wraps transport-level failures (throttling, timeouts,
	// connectivity). The original cause is always wrapped underneath.
	ErrUnavailable = errors.New("store: unavailable")

	// ErrBatchTooLarge is returned when a batch call exceeds the provider
	// chunk limit.
	ErrBatchTooLarge = errors.New("store: batch exceeds provider limit")
)

// Key addresses a single record.
type Key struct {
	Partition string
	Sort      string
}

// Record pairs a key with the record's non-key attributes.
type Record struct {
	Key   Key
	Attrs Item
}

// SortKind selects how the sort key is constrained in a Query.
type SortKind int

const (
	// SortAll matches every sort key in the partition.
	SortAll SortKind = iota
	// SortPrefix matches sort keys beginning with Prefix.
	SortPrefix
	// SortBetween matches sort keys in the inclusive range [Start, End].
	SortBetween
)

// SortCondition constrains the sort key of a range query.
type SortCondition struct {
	Kind   SortKind
	Prefix string
	Start  string
	End    string
}

// Prefix builds a begins_with condition.
func Prefix(p string) SortCondition {
	return SortCondition{Kind: SortPrefix, Prefix: p}
}

// Between builds an inclusive range condition.
func Between(start, end string) SortCondition {
	return SortCondition{Kind: SortBetween, Start: start, End: end}
}

// Filter is a conjunction of non-key attribute predicates. All populated
// clauses are ANDed.
type Filter struct {
	Equals    map[string]types.AttributeValue
	NotEquals map[string]types.AttributeValue
	Exists    []string
	NotExists []string
}

// IsZero reports whether the filter has no clauses.
func (f *Filter) IsZero() bool {
	return f == nil ||
		len(f.Equals) == 0 && len(f.NotEquals) == 0 &&
			len(f.Exists) == 0 && len(f.NotExists) == 0
}

// QuerySpec describes one paged range query. A Query call performs exactly
// one round trip and returns a cursor for the next page.
type QuerySpec struct {
	Partition string
	Sort      SortCondition
	Filter    *Filter

	Ascending bool
	// PageSize is a per-round-trip size hint. Zero means provider default.
	PageSize int32
	// KeysOnly requests only key attributes back (projection).
	KeysOnly   bool
	Consistent bool
	// StartAfter resumes after the given key, as returned in Page.Cursor.
	StartAfter *Key
}

// Page is the result of a single Query round trip.
type Page struct {
	Records []Record
	// Cursor is non-nil when more pages may follow.
	Cursor *Key
}

// UpdateSpec describes a single conditional update. All clauses are applied
// atomically by the store.
type UpdateSpec struct {
	// Sets assigns attributes directly.
	Sets map[string]types.AttributeValue
	// Increments performs numeric addition, treating a missing attribute
	// as zero.
	Increments map[string]int64
	// Appends appends values to a list attribute, treating a missing
	// attribute as the empty list.
	Appends map[string][]types.AttributeValue

	// RequireExists demands a record already be stored at the key.
	RequireExists bool
	// Expected holds attribute equality preconditions.
	Expected map[string]types.AttributeValue
}

// WriteRemainder reports the portion of a BatchWrite the provider did not
// process. Callers retry the remainder.
type WriteRemainder struct {
	Puts    []Record
	Deletes []Key
}

// Empty reports whether everything was processed.
func (r WriteRemainder) Empty() bool {
	return len(r.Puts) == 0 && len(r.Deletes) == 0
}

// Store is the remote collaborator boundary. Implementations must be safe for
// concurrent use. Retry policy for throttling is the caller's concern;
// implementations surface such failures wrapped in ErrUnavailable.
type Store interface {
	// Get returns the record at key. The bool reports presence; absence is
	// not an error.
	Get(ctx context.Context, key Key, consistent bool) (Record, bool, error)

	// Put stores the record unconditionally, replacing any existing record
	// at the same key.
	Put(ctx context.Context, rec Record) error

	// Update applies spec atomically. Returns ErrConditionFailed when a
	// precondition does not hold.
	Update(ctx context.Context, key Key, spec UpdateSpec) error

	// BatchGet fetches up to MaxBatchGet keys. Missing keys are omitted
	// from the result. The second return value lists keys the provider
	// left unprocessed; the caller re-requests them.
	BatchGet(ctx context.Context, keys []Key, consistent bool) ([]Record, []Key, error)

	// BatchWrite applies up to MaxBatchWrite puts and deletes combined.
	BatchWrite(ctx context.Context, puts []Record, deletes []Key) (WriteRemainder, error)

	// Query performs one paged range query round trip.
	Query(ctx context.Context, spec QuerySpec) (Page, error)
}
