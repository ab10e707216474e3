// Package partstore maps typed application records onto a partition/sort-key
// wide-column store. A Repository composes deterministic keys from ordered
// identifier segments, drives paged range queries through a lazy page
// protocol, and applies versioned conditional updates. The remote store is
// reached through the store.Store interface; see store/dynamostore for the
// DynamoDB implementation and store/memstore for a local one.
package partstore

import (
	"time"

	"github.com/go-openapi/strfmt"
)

// Reserved bookkeeping attribute names. Domain record fields must not
// collide with these or with the table's key attributes.
const (
	AttrTimestamp     = "_timestamp"
	AttrObjectVersion = "_object_version"
	AttrTTL           = "_ttl"
)

// PartitionedContent wraps one domain record together with the ordered
// identifier segments its keys derive from. Values are never mutated by the
// repository; reads reconstruct fresh values.
type PartitionedContent[T any] struct {
	// PartitionIDs may be empty; all records then share the partition
	// named by the repository configuration alone.
	PartitionIDs []string
	// ContentIDs must be non-empty for any keyed operation.
	ContentIDs []string

	Item T

	// CurrentVersion is the optimistic-concurrency counter. Zero is
	// treated as 1 on write, so freshly constructed values need not set it.
	CurrentVersion int64

	// Expiry, when set, is persisted as an epoch TTL attribute.
	Expiry *time.Time

	// UpdatedAt reflects the stored write timestamp. Populated on read,
	// ignored on write.
	UpdatedAt strfmt.DateTime
}

// ItemID addresses one record for batch retrieval.
type ItemID struct {
	PartitionIDs []string
	ContentIDs   []string
}

// FilterCommand is an optional conjunction of non-key attribute predicates.
// All populated clauses are ANDed; there is no OR support. An attribute may
// appear in at most one clause; contradictory reuse is rejected rather than
// silently dropped.
type FilterCommand struct {
	Equals    map[string]any
	NotEquals map[string]any
	Exists    []string
	NotExists []string
}

// UpdateCommand describes a declarative update. An empty command is a valid
// no-op-equivalent call: it still bumps the version and refreshes the
// timestamp.
type UpdateCommand struct {
	// Set assigns attributes directly.
	Set map[string]any
	// Increment adds integer deltas atomically, defaulting absent
	// attributes to zero.
	Increment map[string]int
	// Append appends values to list attributes, defaulting absent
	// attributes to the empty list.
	Append map[string][]any

	// CurrentVersion, when set, is an optimistic-concurrency precondition:
	// the stored version must equal it or the update fails with
	// ErrConditionFailed.
	CurrentVersion *int64

	// Expiry, when set, refreshes the record's TTL attribute.
	Expiry *time.Time
}

// IsZero reports whether the command carries no attribute operations.
func (c UpdateCommand) IsZero() bool {
	return len(c.Set) == 0 && len(c.Increment) == 0 && len(c.Append) == 0
}

// GetResponse carries the result of a single-key lookup. A nil Content
// signals "not found", not an error.
type GetResponse[T any] struct {
	Content *PartitionedContent[T]
}

// BatchResponse is one page of records, corresponding to exactly one
// round trip against the remote store.
type BatchResponse[T any] struct {
	Contents []PartitionedContent[T]
}
