package partstore

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/okvist/partstore/store"
)

// prefixCondition builds a begins_with sort condition from content id
// segments.
func (k keySpace) prefixCondition(contentPrefix []string) (store.SortCondition, error) {
	prefix, err := k.sortPrefix(contentPrefix)
	if err != nil {
		return store.SortCondition{}, err
	}
	return store.Prefix(prefix), nil
}

// betweenCondition builds an inclusive range condition from start and end
// content id segments. When both bounds compose to the same sort key the
// condition degrades to begins_with on the start bound; the remote store's
// between is a closed range over full sort keys and would otherwise miss
// records carrying further segments under the shared bound.
func (k keySpace) betweenCondition(contentStart, contentEnd []string) (store.SortCondition, error) {
	if (contentStart == nil) != (contentEnd == nil) {
		return store.SortCondition{}, &RangeError{Reason: "content start and end must be provided together"}
	}
	start, err := k.sortPrefix(contentStart)
	if err != nil {
		return store.SortCondition{}, err
	}
	end, err := k.sortPrefix(contentEnd)
	if err != nil {
		return store.SortCondition{}, err
	}
	if start == end {
		return store.Prefix(start), nil
	}
	return store.Between(start, end), nil
}

// buildFilter validates a filter command against the record's declared
// fields and marshals it into the store-level representation. A nil command
// produces no filter.
func buildFilter(cmd *FilterCommand, fields map[string]struct{}) (*store.Filter, error) {
	if cmd == nil {
		return nil, nil
	}

	used := make(map[string]string)
	claim := func(attr, clause string) error {
		if _, ok := fields[attr]; !ok {
			return &CommandError{Attribute: attr, Reason: "not a declared record field"}
		}
		if prev, ok := used[attr]; ok {
			return &CommandError{Attribute: attr, Reason: fmt.Sprintf("appears in both %s and %s clauses", prev, clause)}
		}
		used[attr] = clause
		return nil
	}

	f := &store.Filter{}
	for _, attr := range sortedKeys(cmd.Equals) {
		if err := claim(attr, "equals"); err != nil {
			return nil, err
		}
		av, err := attributevalue.Marshal(cmd.Equals[attr])
		if err != nil {
			return nil, fmt.Errorf("marshal filter value for %s: %w", attr, err)
		}
		if f.Equals == nil {
			f.Equals = make(map[string]types.AttributeValue)
		}
		f.Equals[attr] = av
	}
	for _, attr := range sortedKeys(cmd.NotEquals) {
		if err := claim(attr, "not-equals"); err != nil {
			return nil, err
		}
		av, err := attributevalue.Marshal(cmd.NotEquals[attr])
		if err != nil {
			return nil, fmt.Errorf("marshal filter value for %s: %w", attr, err)
		}
		if f.NotEquals == nil {
			f.NotEquals = make(map[string]types.AttributeValue)
		}
		f.NotEquals[attr] = av
	}
	for _, attr := range cmd.Exists {
		if err := claim(attr, "exists"); err != nil {
			return nil, err
		}
		f.Exists = append(f.Exists, attr)
	}
	for _, attr := range cmd.NotExists {
		if err := claim(attr, "not-exists"); err != nil {
			return nil, err
		}
		f.NotExists = append(f.NotExists, attr)
	}
	if f.IsZero() {
		return nil, nil
	}
	return f, nil
}

// sortedKeys returns map keys in a stable order so built conditions and
// expressions are deterministic.
func sortedKeys[V any](m map[string]V) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
