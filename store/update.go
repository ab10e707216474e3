package store

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ApplyUpdate evaluates spec against the current attributes of a record and
// returns the resulting attribute set. attrs may be nil when the record does
// not exist; exists reports whether it does. The input map is not modified.
//
// Returns ErrConditionFailed when the existence requirement or an expected
// attribute check does not hold.
func ApplyUpdate(attrs Item, exists bool, spec UpdateSpec) (Item, error) {
	if spec.RequireExists && !exists {
		return nil, fmt.Errorf("%w: no record at key", ErrConditionFailed)
	}
	out := make(Item, len(attrs)+len(spec.Sets))
	for k, v := range attrs {
		out[k] = v
	}
	for name, want := range spec.Expected {
		got, ok := out[name]
		if !ok || !Equal(got, want) {
			return nil, fmt.Errorf("%w: attribute %s mismatch", ErrConditionFailed, name)
		}
	}

	for name, av := range spec.Sets {
		out[name] = av
	}
	for name, delta := range spec.Increments {
		current := int64(0)
		if av, ok := out[name]; ok {
			n, err := numberValue(av)
			if err != nil {
				return nil, fmt.Errorf("increment %s: %w", name, err)
			}
			current = n
		}
		out[name] = &types.AttributeValueMemberN{Value: strconv.FormatInt(current+delta, 10)}
	}
	for name, values := range spec.Appends {
		var list []types.AttributeValue
		if av, ok := out[name]; ok {
			l, isList := av.(*types.AttributeValueMemberL)
			if !isList {
				return nil, fmt.Errorf("append %s: attribute is not a list", name)
			}
			list = append(list, l.Value...)
		}
		list = append(list, values...)
		out[name] = &types.AttributeValueMemberL{Value: list}
	}
	return out, nil
}

func numberValue(av types.AttributeValue) (int64, error) {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute is not a number, got %T", av)
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse number %q: %w", n.Value, err)
	}
	return v, nil
}
