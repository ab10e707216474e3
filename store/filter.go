package store

import "strings"

// Matches evaluates the filter conjunction against a record's attributes.
// Used by the local store implementations; DynamoDB evaluates filters
// server-side.
func (f *Filter) Matches(attrs Item) bool {
	if f.IsZero() {
		return true
	}
	for name, want := range f.Equals {
		got, ok := attrs[name]
		if !ok || !Equal(got, want) {
			return false
		}
	}
	for name, avoid := range f.NotEquals {
		if got, ok := attrs[name]; ok && Equal(got, avoid) {
			return false
		}
	}
	for _, name := range f.Exists {
		if _, ok := attrs[name]; !ok {
			return false
		}
	}
	for _, name := range f.NotExists {
		if _, ok := attrs[name]; ok {
			return false
		}
	}
	return true
}

// MatchesSort evaluates the sort condition against a sort key string.
// Local implementations use it to bound iteration.
func (c SortCondition) MatchesSort(sort string) bool {
	switch c.Kind {
	case SortPrefix:
		return strings.HasPrefix(sort, c.Prefix)
	case SortBetween:
		return sort >= c.Start && sort <= c.End
	default:
		return true
	}
}
