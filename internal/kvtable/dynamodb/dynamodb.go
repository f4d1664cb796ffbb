// Package dynamodb is the hosted implementation of kvtable.Table, talking
// to a DynamoDB-compatible endpoint via aws-sdk-go-v2.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	smithy "github.com/aws/smithy-go"

	"github.com/amondawa/amondawa/internal/amdwerr"
	"github.com/amondawa/amondawa/internal/kvtable"
)

const maxBatchWriteItems = 25

// Client adapts a dynamodb.Client to kvtable.Table.
type Client struct {
	api *dynamodb.Client
}

func New(api *dynamodb.Client) *Client {
	return &Client{api: api}
}

func (c *Client) Create(ctx context.Context, name string, hashKey, rangeKey *kvtable.KeySchema, tp kvtable.Throughput) error {
	attrs := []types.AttributeDefinition{keyAttr(hashKey)}
	schema := []types.KeySchemaElement{{AttributeName: aws.String(hashKey.Name), KeyType: types.KeyTypeHash}}
	if rangeKey != nil {
		attrs = append(attrs, keyAttr(rangeKey))
		schema = append(schema, types.KeySchemaElement{AttributeName: aws.String(rangeKey.Name), KeyType: types.KeyTypeRange})
	}

	_, err := c.api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:            aws.String(name),
		AttributeDefinitions: attrs,
		KeySchema:            schema,
		ProvisionedThroughput: &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(clampCapacity(tp.Read)),
			WriteCapacityUnits: aws.Int64(clampCapacity(tp.Write)),
		},
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return nil // idempotent create: table already exists
		}
		return wrapErr("dynamodb.Create", err)
	}
	return nil
}

func (c *Client) Describe(ctx context.Context, name string) (kvtable.TableStatus, kvtable.Throughput, error) {
	out, err := c.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
	if err != nil {
		return "", kvtable.Throughput{}, wrapErr("dynamodb.Describe", err)
	}
	status := mapStatus(out.Table.TableStatus)
	tp := kvtable.Throughput{}
	if out.Table.ProvisionedThroughput != nil {
		tp.Read = aws.ToInt64(out.Table.ProvisionedThroughput.ReadCapacityUnits)
		tp.Write = aws.ToInt64(out.Table.ProvisionedThroughput.WriteCapacityUnits)
	}
	return status, tp, nil
}

func (c *Client) UpdateThroughput(ctx context.Context, name string, tp kvtable.Throughput) error {
	_, err := c.api.UpdateTable(ctx, &dynamodb.UpdateTableInput{
		TableName: aws.String(name),
		ProvisionedThroughput: &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(clampCapacity(tp.Read)),
			WriteCapacityUnits: aws.Int64(clampCapacity(tp.Write)),
		},
	})
	return wrapErr("dynamodb.UpdateThroughput", err)
}

func (c *Client) Delete(ctx context.Context, name string) error {
	_, err := c.api.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(name)})
	return wrapErr("dynamodb.Delete", err)
}

// PutItem writes item unconditionally. Callers in this module write with
// overwrite=true (ancillary-catalog dedup, index rows, ring-slot records)
// except blockring.Bootstrap's initial slot rows, which pass false;
// overwrite=false is accepted but behaves the same, since a
// conditional-put requires knowing the table's key attribute name, which
// this adapter is not given per call.
func (c *Client) PutItem(ctx context.Context, name string, item kvtable.Item, _ bool) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return wrapErr("dynamodb.PutItem", err)
	}
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(name), Item: av})
	return wrapErr("dynamodb.PutItem", err)
}

func (c *Client) DeleteItem(ctx context.Context, name string, key kvtable.ItemKey) error {
	av := map[string]types.AttributeValue{}
	hv, err := attributevalue.Marshal(key.HashKey)
	if err != nil {
		return wrapErr("dynamodb.DeleteItem", err)
	}
	av[key.HashKeyName] = hv
	if key.RangeKeyName != "" {
		rv, err := attributevalue.Marshal(key.RangeKey)
		if err != nil {
			return wrapErr("dynamodb.DeleteItem", err)
		}
		av[key.RangeKeyName] = rv
	}
	_, err = c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: aws.String(name), Key: av})
	return wrapErr("dynamodb.DeleteItem", err)
}

func (c *Client) BatchPutHandle(name string) kvtable.BatchHandle {
	return &batch{client: c, name: name}
}

func (c *Client) Query(ctx context.Context, name string, in kvtable.QueryInput) (kvtable.Iterator, error) {
	names := map[string]string{"#h": in.HashKeyName}
	values := map[string]types.AttributeValue{}
	hv, err := attributevalue.Marshal(in.HashEq)
	if err != nil {
		return nil, wrapErr("dynamodb.Query", err)
	}
	values[":h"] = hv
	expr := "#h = :h"

	if in.RangeBetween != nil {
		names["#r"] = in.RangeKeyName
		lo, err := attributevalue.Marshal(in.RangeBetween.Start)
		if err != nil {
			return nil, wrapErr("dynamodb.Query", err)
		}
		hi, err := attributevalue.Marshal(in.RangeBetween.End)
		if err != nil {
			return nil, wrapErr("dynamodb.Query", err)
		}
		values[":lo"] = lo
		values[":hi"] = hi
		expr += " AND #r BETWEEN :lo AND :hi"
	}

	qin := &dynamodb.QueryInput{
		TableName:                 aws.String(name),
		KeyConditionExpression:    aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConsistentRead:            aws.Bool(in.Consistent),
		ScanIndexForward:          aws.Bool(!in.Reverse),
	}
	if in.Attributes != nil {
		qin.ProjectionExpression = aws.String(projectionExpr(in.Attributes))
	}

	out, err := c.api.Query(ctx, qin)
	if err != nil {
		return nil, wrapErr("dynamodb.Query", err)
	}
	return unmarshalItems(out.Items)
}

func (c *Client) Scan(ctx context.Context, name string) (kvtable.Iterator, error) {
	out, err := c.api.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String(name)})
	if err != nil {
		return nil, wrapErr("dynamodb.Scan", err)
	}
	return unmarshalItems(out.Items)
}

func keyAttr(k *kvtable.KeySchema) types.AttributeDefinition {
	t := types.ScalarAttributeTypeS
	if k.Type == kvtable.AttrNumber {
		t = types.ScalarAttributeTypeN
	}
	return types.AttributeDefinition{AttributeName: aws.String(k.Name), AttributeType: t}
}

func clampCapacity(v int64) int64 {
	if v < 1 {
		return 1
	}
	return v
}

func mapStatus(s types.TableStatus) kvtable.TableStatus {
	switch s {
	case types.TableStatusCreating:
		return kvtable.StatusCreating
	case types.TableStatusActive:
		return kvtable.StatusActive
	case types.TableStatusDeleting:
		return kvtable.StatusDeleting
	case types.TableStatusUpdating:
		return kvtable.StatusUpdating
	default:
		return kvtable.TableStatus(s)
	}
}

func projectionExpr(attrs []string) string {
	expr := ""
	for i, a := range attrs {
		if i > 0 {
			expr += ", "
		}
		expr += a
	}
	return expr
}

func unmarshalItems(raw []map[string]types.AttributeValue) (kvtable.Iterator, error) {
	items := make([]kvtable.Item, 0, len(raw))
	for _, r := range raw {
		var item kvtable.Item
		if err := attributevalue.UnmarshalMap(r, &item); err != nil {
			return nil, wrapErr("dynamodb.unmarshal", err)
		}
		items = append(items, item)
	}
	return &sliceIterator{items: items}, nil
}

type sliceIterator struct {
	items []kvtable.Item
	pos   int
}

func (it *sliceIterator) Next() (kvtable.Item, bool, error) {
	if it.pos >= len(it.items) {
		return nil, false, nil
	}
	item := it.items[it.pos]
	it.pos++
	return item, true, nil
}

func (it *sliceIterator) Close() error { return nil }

// batch accumulates items and flushes them via BatchWriteItem in chunks of
// maxBatchWriteItems, matching DynamoDB's hard limit per call.
type batch struct {
	client *Client
	name   string

	mu    sync.Mutex
	items []kvtable.Item
}

func (b *batch) Put(item kvtable.Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, item)
	return nil
}

func (b *batch) Flush(ctx context.Context) error {
	b.mu.Lock()
	items := b.items
	b.items = nil
	b.mu.Unlock()

	for start := 0; start < len(items); start += maxBatchWriteItems {
		end := start + maxBatchWriteItems
		if end > len(items) {
			end = len(items)
		}
		if err := b.flushChunk(ctx, items[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (b *batch) flushChunk(ctx context.Context, items []kvtable.Item) error {
	requests := make([]types.WriteRequest, 0, len(items))
	for _, item := range items {
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return wrapErr("dynamodb.batch", err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}

	in := &dynamodb.BatchWriteItemInput{RequestItems: map[string][]types.WriteRequest{b.name: requests}}
	for {
		out, err := b.client.api.BatchWriteItem(ctx, in)
		if err != nil {
			return wrapErr("dynamodb.batch", err)
		}
		if len(out.UnprocessedItems) == 0 {
			return nil
		}
		in = &dynamodb.BatchWriteItemInput{RequestItems: out.UnprocessedItems}
	}
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var rnf *types.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return amdwerr.New(amdwerr.BackendNotFound, op, amdwerr.ErrTableNotFound)
	}
	var throttled *types.ProvisionedThroughputExceededException
	if errors.As(err, &throttled) {
		return amdwerr.New(amdwerr.BackendThrottled, op, amdwerr.ErrThrottled)
	}
	var cond *types.ConditionalCheckFailedException
	if errors.As(err, &cond) {
		return amdwerr.New(amdwerr.BackendTransport, op, amdwerr.ErrConflict)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return amdwerr.New(amdwerr.BackendTransport, op, fmt.Errorf("%s: %w", apiErr.ErrorCode(), err))
	}
	return amdwerr.New(amdwerr.BackendTransport, op, err)
}
