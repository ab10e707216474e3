package partstore

import (
	"strings"

	"github.com/okvist/partstore/store"
)

// Delimiter separating key segments. Identifier segments must not contain it;
// composed keys would otherwise be ambiguous to split on read.
const keyDelimiter = "#"

// keySpace composes partition and sort key strings from identifier segments.
// Composition is a pure function of its inputs, which is what makes put
// idempotent-by-key and listings reproducible.
type keySpace struct {
	partitionPrefix string
	partitionName   string
	contentType     string
}

func validateSegments(segments []string) error {
	for _, seg := range segments {
		if strings.Contains(seg, keyDelimiter) {
			return &KeyError{Reason: "segment contains delimiter " + keyDelimiter, Segments: segments}
		}
	}
	return nil
}

// partitionValue composes the partition key string. Empty segment lists are
// allowed; the partition is then addressed by prefix and name alone.
func (k keySpace) partitionValue(partitionIDs []string) (string, error) {
	if err := validateSegments(partitionIDs); err != nil {
		return "", err
	}
	base := k.partitionPrefix + keyDelimiter + k.partitionName
	if len(partitionIDs) == 0 {
		return base, nil
	}
	return base + keyDelimiter + strings.Join(partitionIDs, keyDelimiter), nil
}

// sortValue composes the sort key string for a keyed operation. Content ids
// must be non-empty.
func (k keySpace) sortValue(contentIDs []string) (string, error) {
	if len(contentIDs) == 0 {
		return "", &KeyError{Reason: "content ids must not be empty"}
	}
	if err := validateSegments(contentIDs); err != nil {
		return "", err
	}
	return k.contentType + keyDelimiter + strings.Join(contentIDs, keyDelimiter), nil
}

// sortPrefix composes the sort key prefix for range queries. Unlike
// sortValue, empty segment lists are allowed and match every record of the
// content type.
func (k keySpace) sortPrefix(contentPrefix []string) (string, error) {
	if err := validateSegments(contentPrefix); err != nil {
		return "", err
	}
	if len(contentPrefix) == 0 {
		return k.contentType + keyDelimiter, nil
	}
	return k.contentType + keyDelimiter + strings.Join(contentPrefix, keyDelimiter), nil
}

// key composes the full primary key for a single record.
func (k keySpace) key(partitionIDs, contentIDs []string) (store.Key, error) {
	partition, err := k.partitionValue(partitionIDs)
	if err != nil {
		return store.Key{}, err
	}
	sort, err := k.sortValue(contentIDs)
	if err != nil {
		return store.Key{}, err
	}
	return store.Key{Partition: partition, Sort: sort}, nil
}

// partitionIDs recovers the identifier segments from a stored partition key.
func (k keySpace) partitionIDs(partition string) []string {
	base := k.partitionPrefix + keyDelimiter + k.partitionName
	rest := strings.TrimPrefix(partition, base)
	rest = strings.TrimPrefix(rest, keyDelimiter)
	if rest == "" {
		return nil
	}
	return strings.Split(rest, keyDelimiter)
}

// contentIDs recovers the identifier segments from a stored sort key.
func (k keySpace) contentIDs(sort string) []string {
	rest := strings.TrimPrefix(sort, k.contentType+keyDelimiter)
	if rest == "" {
		return nil
	}
	return strings.Split(rest, keyDelimiter)
}
