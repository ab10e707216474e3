package partstore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-openapi/strfmt"

	"github.com/okvist/partstore/store"
)

// Codec converts between the domain record type and its attribute
// representation. Implementations handle domain attributes only; the
// repository injects and strips bookkeeping attributes around them.
type Codec[T any] interface {
	Encode(item T) (store.Item, error)
	Decode(attrs store.Item) (T, error)
	// Fields lists the declared attribute names. Update and filter
	// commands are validated against this list.
	Fields() []string
}

// AttributeCodec is the default Codec, marshalling through the AWS
// attributevalue package. Record types use dynamodbav struct tags the same
// way they would against the SDK directly.
type AttributeCodec[T any] struct {
	fields []string
}

// NewAttributeCodec builds a codec for T, deriving the field list from the
// zero value's attribute representation. T must marshal to a map.
func NewAttributeCodec[T any]() (*AttributeCodec[T], error) {
	var zero T
	attrs, err := attributevalue.MarshalMap(zero)
	if err != nil {
		return nil, fmt.Errorf("derive fields for %T: %w", zero, err)
	}
	if len(attrs) == 0 {
		return nil, fmt.Errorf("type %T has no marshalable fields", zero)
	}
	return &AttributeCodec[T]{fields: sortedKeys(attrs)}, nil
}

func (c *AttributeCodec[T]) Encode(item T) (store.Item, error) {
	attrs, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}
	return attrs, nil
}

func (c *AttributeCodec[T]) Decode(attrs store.Item) (T, error) {
	var item T
	if err := attributevalue.UnmarshalMap(attrs, &item); err != nil {
		return item, fmt.Errorf("unmarshal item: %w", err)
	}
	return item, nil
}

func (c *AttributeCodec[T]) Fields() []string {
	return c.fields
}

// encodeContent builds the full stored record: domain attributes plus key,
// version, timestamp and optional TTL bookkeeping.
func (r *Repository[T]) encodeContent(content PartitionedContent[T], now time.Time) (store.Record, error) {
	key, err := r.keys.key(content.PartitionIDs, content.ContentIDs)
	if err != nil {
		return store.Record{}, err
	}
	attrs, err := r.codec.Encode(content.Item)
	if err != nil {
		return store.Record{}, err
	}
	version := content.CurrentVersion
	if version == 0 {
		version = 1
	}
	attrs[AttrObjectVersion] = numberAttr(version)
	attrs[AttrTimestamp] = &types.AttributeValueMemberS{Value: timestampValue(now)}
	if content.Expiry != nil {
		attrs[AttrTTL] = numberAttr(content.Expiry.Unix())
	}
	return store.Record{Key: key, Attrs: attrs}, nil
}

// decodeRecord reconstructs a PartitionedContent from a stored record,
// splitting identifier segments back out of the key strings. Records written
// before versioning existed carry no version attribute and decode to
// version 1.
func (r *Repository[T]) decodeRecord(rec store.Record) (PartitionedContent[T], error) {
	content := PartitionedContent[T]{
		PartitionIDs:   r.keys.partitionIDs(rec.Key.Partition),
		ContentIDs:     r.keys.contentIDs(rec.Key.Sort),
		CurrentVersion: 1,
	}

	domain := make(store.Item, len(rec.Attrs))
	for name, av := range rec.Attrs {
		domain[name] = av
	}

	if av, ok := domain[AttrObjectVersion]; ok {
		version, err := numberFromAttr(av)
		if err != nil {
			return content, &DecodeError{Key: rec.Key, Err: fmt.Errorf("version attribute: %w", err)}
		}
		content.CurrentVersion = version
		delete(domain, AttrObjectVersion)
	}
	if av, ok := domain[AttrTimestamp]; ok {
		if s, isString := av.(*types.AttributeValueMemberS); isString {
			if ts, err := strfmt.ParseDateTime(s.Value); err == nil {
				content.UpdatedAt = ts
			}
		}
		delete(domain, AttrTimestamp)
	}
	if av, ok := domain[AttrTTL]; ok {
		epoch, err := numberFromAttr(av)
		if err != nil {
			return content, &DecodeError{Key: rec.Key, Err: fmt.Errorf("ttl attribute: %w", err)}
		}
		expiry := time.Unix(epoch, 0).UTC()
		content.Expiry = &expiry
		delete(domain, AttrTTL)
	}

	item, err := r.codec.Decode(domain)
	if err != nil {
		return content, &DecodeError{Key: rec.Key, Err: err}
	}
	content.Item = item
	return content, nil
}

// timestampValue renders the ISO-8601 bookkeeping timestamp.
func timestampValue(t time.Time) string {
	return strfmt.DateTime(t.UTC()).String()
}

func numberAttr(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func numberFromAttr(av types.AttributeValue) (int64, error) {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("expected number attribute, got %T", av)
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse number attribute: %w", err)
	}
	return v, nil
}
