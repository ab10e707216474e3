// Package dynamostore is the DynamoDB-backed store.Store. It owns all
// expression building: structured query and update specs are turned into key
// condition, filter, condition and update expressions here, and SDK errors
// are folded into the store error taxonomy.
package dynamostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/okvist/partstore/store"
	"github.com/okvist/partstore/table"
)

// API is the slice of the DynamoDB client used by Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// Store implements store.Store against a single DynamoDB table.
type Store struct {
	client API
	def    table.Definition
}

// New wraps a DynamoDB client with a table definition.
func New(client API, def table.Definition) (*Store, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &Store{client: client, def: def}, nil
}

var _ store.Store = (*Store)(nil)

func (s *Store) keyItem(key store.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		s.def.PartitionKey: &types.AttributeValueMemberS{Value: key.Partition},
		s.def.SortKey:      &types.AttributeValueMemberS{Value: key.Sort},
	}
}

// wireItem merges a record's attributes with its key attributes into the
// item shape the table stores.
func (s *Store) wireItem(rec store.Record) map[string]types.AttributeValue {
	item := make(map[string]types.AttributeValue, len(rec.Attrs)+2)
	for k, v := range rec.Attrs {
		item[k] = v
	}
	item[s.def.PartitionKey] = &types.AttributeValueMemberS{Value: rec.Key.Partition}
	item[s.def.SortKey] = &types.AttributeValueMemberS{Value: rec.Key.Sort}
	return item
}

// recordFromItem splits a stored item back into key and attributes.
func (s *Store) recordFromItem(item map[string]types.AttributeValue) (store.Record, error) {
	partition, ok := item[s.def.PartitionKey].(*types.AttributeValueMemberS)
	if !ok {
		return store.Record{}, fmt.Errorf("item missing string attribute %s", s.def.PartitionKey)
	}
	sort, ok := item[s.def.SortKey].(*types.AttributeValueMemberS)
	if !ok {
		return store.Record{}, fmt.Errorf("item missing string attribute %s", s.def.SortKey)
	}
	attrs := make(store.Item, len(item))
	for k, v := range item {
		if k == s.def.PartitionKey || k == s.def.SortKey {
			continue
		}
		attrs[k] = v
	}
	return store.Record{
		Key:   store.Key{Partition: partition.Value, Sort: sort.Value},
		Attrs: attrs,
	}, nil
}

func (s *Store) Get(ctx context.Context, key store.Key, consistent bool) (store.Record, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.def.Name),
		Key:            s.keyItem(key),
		ConsistentRead: aws.Bool(consistent),
	})
	if err != nil {
		return store.Record{}, false, mapError(err)
	}
	if out.Item == nil {
		return store.Record{}, false, nil
	}
	rec, err := s.recordFromItem(out.Item)
	if err != nil {
		return store.Record{}, false, err
	}
	return rec, true, nil
}

func (s *Store) Put(ctx context.Context, rec store.Record) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.def.Name),
		Item:      s.wireItem(rec),
	})
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, key store.Key, spec store.UpdateSpec) error {
	expr, err := s.buildUpdateExpression(spec)
	if err != nil {
		return err
	}
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.def.Name),
		Key:                       s.keyItem(key),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) buildUpdateExpression(spec store.UpdateSpec) (expression.Expression, error) {
	var update expression.UpdateBuilder
	for name, av := range spec.Sets {
		update = update.Set(expression.Name(name), expression.Value(av))
	}
	for name, delta := range spec.Increments {
		update = update.Set(expression.Name(name), expression.Plus(
			expression.IfNotExists(expression.Name(name), expression.Value(0)),
			expression.Value(delta)))
	}
	for name, values := range spec.Appends {
		empty := &types.AttributeValueMemberL{Value: []types.AttributeValue{}}
		update = update.Set(expression.Name(name), expression.ListAppend(
			expression.IfNotExists(expression.Name(name), expression.Value(empty)),
			expression.Value(&types.AttributeValueMemberL{Value: values})))
	}

	builder := expression.NewBuilder().WithUpdate(update)
	var cond expression.ConditionBuilder
	hasCond := false
	if spec.RequireExists {
		cond = expression.AttributeExists(expression.Name(s.def.PartitionKey))
		hasCond = true
	}
	for name, want := range spec.Expected {
		check := expression.Equal(expression.Name(name), expression.Value(want))
		if hasCond {
			cond = cond.And(check)
		} else {
			cond = check
			hasCond = true
		}
	}
	if hasCond {
		builder = builder.WithCondition(cond)
	}
	expr, err := builder.Build()
	if err != nil {
		return expression.Expression{}, fmt.Errorf("build update expression: %w", err)
	}
	return expr, nil
}

func (s *Store) BatchGet(ctx context.Context, keys []store.Key, consistent bool) ([]store.Record, []store.Key, error) {
	if len(keys) > store.MaxBatchGet {
		return nil, nil, fmt.Errorf("%w: %d keys", store.ErrBatchTooLarge, len(keys))
	}
	request := types.KeysAndAttributes{ConsistentRead: aws.Bool(consistent)}
	for _, key := range keys {
		request.Keys = append(request.Keys, s.keyItem(key))
	}
	out, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
		RequestItems: map[string]types.KeysAndAttributes{s.def.Name: request},
	})
	if err != nil {
		return nil, nil, mapError(err)
	}

	var records []store.Record
	for _, item := range out.Responses[s.def.Name] {
		rec, err := s.recordFromItem(item)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, rec)
	}
	var unprocessed []store.Key
	for _, item := range out.UnprocessedKeys[s.def.Name].Keys {
		rec, err := s.recordFromItem(item)
		if err != nil {
			return nil, nil, err
		}
		unprocessed = append(unprocessed, rec.Key)
	}
	return records, unprocessed, nil
}

func (s *Store) BatchWrite(ctx context.Context, puts []store.Record, deletes []store.Key) (store.WriteRemainder, error) {
	if len(puts)+len(deletes) > store.MaxBatchWrite {
		return store.WriteRemainder{}, fmt.Errorf("%w: %d writes", store.ErrBatchTooLarge, len(puts)+len(deletes))
	}
	var requests []types.WriteRequest
	for _, rec := range puts {
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: s.wireItem(rec)},
		})
	}
	for _, key := range deletes {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: s.keyItem(key)},
		})
	}
	out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{s.def.Name: requests},
	})
	if err != nil {
		return store.WriteRemainder{}, mapError(err)
	}

	var remainder store.WriteRemainder
	for _, req := range out.UnprocessedItems[s.def.Name] {
		switch {
		case req.PutRequest != nil:
			rec, err := s.recordFromItem(req.PutRequest.Item)
			if err != nil {
				return store.WriteRemainder{}, err
			}
			remainder.Puts = append(remainder.Puts, rec)
		case req.DeleteRequest != nil:
			rec, err := s.recordFromItem(req.DeleteRequest.Key)
			if err != nil {
				return store.WriteRemainder{}, err
			}
			remainder.Deletes = append(remainder.Deletes, rec.Key)
		}
	}
	return remainder, nil
}

func (s *Store) Query(ctx context.Context, spec store.QuerySpec) (store.Page, error) {
	input, err := s.buildQueryInput(spec)
	if err != nil {
		return store.Page{}, err
	}
	out, err := s.client.Query(ctx, input)
	if err != nil {
		return store.Page{}, mapError(err)
	}

	var records []store.Record
	for _, item := range out.Items {
		rec, err := s.recordFromItem(item)
		if err != nil {
			return store.Page{}, err
		}
		records = append(records, rec)
	}
	page := store.Page{Records: records}
	if out.LastEvaluatedKey != nil {
		rec, err := s.recordFromItem(out.LastEvaluatedKey)
		if err != nil {
			return store.Page{}, err
		}
		page.Cursor = &rec.Key
	}
	return page, nil
}

func (s *Store) buildQueryInput(spec store.QuerySpec) (*dynamodb.QueryInput, error) {
	keyCond := expression.KeyEqual(expression.Key(s.def.PartitionKey), expression.Value(spec.Partition))
	switch spec.Sort.Kind {
	case store.SortPrefix:
		keyCond = keyCond.And(expression.KeyBeginsWith(expression.Key(s.def.SortKey), spec.Sort.Prefix))
	case store.SortBetween:
		keyCond = keyCond.And(expression.KeyBetween(expression.Key(s.def.SortKey),
			expression.Value(spec.Sort.Start), expression.Value(spec.Sort.End)))
	}

	builder := expression.NewBuilder().WithKeyCondition(keyCond)
	if filter, ok := filterCondition(spec.Filter); ok {
		builder = builder.WithFilter(filter)
	}
	if spec.KeysOnly {
		builder = builder.WithProjection(expression.NamesList(
			expression.Name(s.def.PartitionKey), expression.Name(s.def.SortKey)))
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build query expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.def.Name),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(spec.Ascending),
		ConsistentRead:            aws.Bool(spec.Consistent),
	}
	if spec.PageSize > 0 {
		input.Limit = aws.Int32(spec.PageSize)
	}
	if spec.StartAfter != nil {
		input.ExclusiveStartKey = s.keyItem(*spec.StartAfter)
	}
	return input, nil
}

func filterCondition(f *store.Filter) (expression.ConditionBuilder, bool) {
	var cond expression.ConditionBuilder
	has := false
	add := func(c expression.ConditionBuilder) {
		if has {
			cond = cond.And(c)
		} else {
			cond = c
			has = true
		}
	}
	if f == nil {
		return cond, false
	}
	for name, av := range f.Equals {
		add(expression.Equal(expression.Name(name), expression.Value(av)))
	}
	for name, av := range f.NotEquals {
		add(expression.NotEqual(expression.Name(name), expression.Value(av)))
	}
	for _, name := range f.Exists {
		add(expression.AttributeExists(expression.Name(name)))
	}
	for _, name := range f.NotExists {
		add(expression.AttributeNotExists(expression.Name(name)))
	}
	return cond, has
}

// retryable error codes beyond the typed throughput exception
var unavailableCodes = map[string]bool{
	"ThrottlingException":  true,
	"RequestLimitExceeded": true,
	"InternalServerError":  true,
	"ServiceUnavailable":   true,
}

func mapError(err error) error {
	var cfe *types.ConditionalCheckFailedException
	if errors.As(err, &cfe) {
		return fmt.Errorf("%w: %w", store.ErrConditionFailed, err)
	}
	var pte *types.ProvisionedThroughputExceededException
	if errors.As(err, &pte) {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	var ae smithy.APIError
	if errors.As(err, &ae) && unavailableCodes[ae.ErrorCode()] {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return err
}
