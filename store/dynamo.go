package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Compile time check to ensure DynamoStore satisfies the Store interface.
var _ Store = (*DynamoStore)(nil)

const (
	// dynamoBatchWriteSize is the BatchWriteItem limit.
	dynamoBatchWriteSize = 25

	// dynamoBatchGetSize is the BatchGetItem limit.
	dynamoBatchGetSize = 100

	// dynamoMaxRetries bounds resubmission of unprocessed batch items.
	dynamoMaxRetries = 5

	kindVector = "vector"
	kindCode   = "code"
)

// DynamoClient is the interface for DynamoDB operations.
type DynamoClient interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoStore implements Store backed by a single DynamoDB table.
//
// Vectors and codes share the table, separated by the partition key. The
// sort key keeps each partition in ascending ID order, which is what
// ScanCodes promises.
//
// Table schema:
//   - Partition key: kind (string) - "vector" or "code"
//   - Sort key: id (number) - the item ID
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name sensevec \
//	  --attribute-definitions AttributeName=kind,AttributeType=S AttributeName=id,AttributeType=N \
//	  --key-schema AttributeName=kind,KeyType=HASH AttributeName=id,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DynamoStore struct {
	client    DynamoClient
	tableName string
}

// NewDynamoStore creates a store on top of a DynamoDB table.
func NewDynamoStore(client DynamoClient, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

// PutVectors stores items, overwriting existing IDs.
func (s *DynamoStore) PutVectors(ctx context.Context, items []Item) error {
	writes := make([]types.WriteRequest, len(items))
	for i, item := range items {
		writes[i] = types.WriteRequest{
			PutRequest: &types.PutRequest{
				Item: map[string]types.AttributeValue{
					"kind":     &types.AttributeValueMemberS{Value: kindVector},
					"id":       &types.AttributeValueMemberN{Value: formatID(item.ID)},
					"word":     &types.AttributeValueMemberS{Value: item.Label},
					"sense_id": &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(item.Tag), 10)},
					"vector":   &types.AttributeValueMemberB{Value: encodeVector(item.Vector)},
				},
			},
		}
	}

	return s.batchWrite(ctx, writes)
}

// GetVectors retrieves items for multiple IDs via BatchGetItem.
func (s *DynamoStore) GetVectors(ctx context.Context, ids []uint32) (map[uint32]Item, error) {
	result := make(map[uint32]Item, len(ids))

	// BatchGetItem rejects duplicate keys.
	seen := make(map[uint32]struct{}, len(ids))
	unique := make([]uint32, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	for start := 0; start < len(unique); start += dynamoBatchGetSize {
		end := min(start+dynamoBatchGetSize, len(unique))

		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range unique[start:end] {
			keys = append(keys, map[string]types.AttributeValue{
				"kind": &types.AttributeValueMemberS{Value: kindVector},
				"id":   &types.AttributeValueMemberN{Value: formatID(id)},
			})
		}

		for attempt := 0; len(keys) > 0; attempt++ {
			if attempt >= dynamoMaxRetries {
				return nil, fmt.Errorf("batch get left %d unprocessed keys after %d attempts", len(keys), attempt)
			}

			resp, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: map[string]types.KeysAndAttributes{
					s.tableName: {Keys: keys},
				},
			})
			if err != nil {
				return nil, fmt.Errorf("failed to batch get from DynamoDB: %w", err)
			}

			for _, attrs := range resp.Responses[s.tableName] {
				item, err := itemFromAttributes(attrs)
				if err != nil {
					return nil, err
				}
				result[item.ID] = item
			}

			keys = resp.UnprocessedKeys[s.tableName].Keys
		}
	}

	return result, nil
}

// Count returns the number of stored vectors.
func (s *DynamoStore) Count(ctx context.Context) (int, error) {
	var (
		count    int
		startKey map[string]types.AttributeValue
	)

	for {
		resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("kind = :kind"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":kind": &types.AttributeValueMemberS{Value: kindVector},
			},
			Select:            types.SelectCount,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to count in DynamoDB: %w", err)
		}

		count += int(resp.Count)

		if resp.LastEvaluatedKey == nil {
			return count, nil
		}
		startKey = resp.LastEvaluatedKey
	}
}

// PutCodes stores code rows, overwriting existing IDs.
func (s *DynamoStore) PutCodes(ctx context.Context, rows []CodeRow) error {
	writes := make([]types.WriteRequest, len(rows))
	for i, row := range rows {
		writes[i] = types.WriteRequest{
			PutRequest: &types.PutRequest{
				Item: map[string]types.AttributeValue{
					"kind": &types.AttributeValueMemberS{Value: kindCode},
					"id":   &types.AttributeValueMemberN{Value: formatID(row.ID)},
					"code": &types.AttributeValueMemberB{Value: row.Code},
				},
			},
		}
	}

	return s.batchWrite(ctx, writes)
}

// ScanCodes streams every stored code row in ascending ID order. The sort
// key makes Query pages arrive already ordered.
func (s *DynamoStore) ScanCodes(ctx context.Context) (CodeIterator, error) {
	return &dynamoCodeIterator{ctx: ctx, store: s}, nil
}

// ScanVectors streams every stored item in ascending ID order.
func (s *DynamoStore) ScanVectors(ctx context.Context) (ItemIterator, error) {
	return &dynamoItemIterator{ctx: ctx, store: s}, nil
}

// Reset removes all stored vectors and codes.
func (s *DynamoStore) Reset(ctx context.Context) error {
	for _, kind := range []string{kindCode, kindVector} {
		ids, err := s.queryIDs(ctx, kind)
		if err != nil {
			return err
		}

		deletes := make([]types.WriteRequest, len(ids))
		for i, id := range ids {
			deletes[i] = types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{
					Key: map[string]types.AttributeValue{
						"kind": &types.AttributeValueMemberS{Value: kind},
						"id":   &types.AttributeValueMemberN{Value: id},
					},
				},
			}
		}

		if err := s.batchWrite(ctx, deletes); err != nil {
			return err
		}
	}

	return nil
}

// batchWrite submits write requests in chunks, resubmitting unprocessed
// items until DynamoDB accepts them all.
func (s *DynamoStore) batchWrite(ctx context.Context, writes []types.WriteRequest) error {
	for start := 0; start < len(writes); start += dynamoBatchWriteSize {
		end := min(start+dynamoBatchWriteSize, len(writes))

		pending := writes[start:end]
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt >= dynamoMaxRetries {
				return fmt.Errorf("batch write left %d unprocessed items after %d attempts", len(pending), attempt)
			}

			resp, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{
					s.tableName: pending,
				},
			})
			if err != nil {
				return fmt.Errorf("failed to batch write to DynamoDB: %w", err)
			}

			pending = resp.UnprocessedItems[s.tableName]
		}
	}

	return nil
}

// queryIDs collects the raw sort key values of one partition.
func (s *DynamoStore) queryIDs(ctx context.Context, kind string) ([]string, error) {
	var (
		ids      []string
		startKey map[string]types.AttributeValue
	)

	for {
		resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("kind = :kind"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":kind": &types.AttributeValueMemberS{Value: kind},
			},
			ProjectionExpression:     aws.String("#id"),
			ExpressionAttributeNames: map[string]string{"#id": "id"},
			ExclusiveStartKey:        startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query DynamoDB: %w", err)
		}

		for _, attrs := range resp.Items {
			idAttr, ok := attrs["id"].(*types.AttributeValueMemberN)
			if !ok {
				return nil, fmt.Errorf("invalid id attribute in DynamoDB")
			}
			ids = append(ids, idAttr.Value)
		}

		if resp.LastEvaluatedKey == nil {
			return ids, nil
		}
		startKey = resp.LastEvaluatedKey
	}
}

// dynamoCodeIterator pages through the code partition with Query.
type dynamoCodeIterator struct {
	ctx      context.Context
	store    *DynamoStore
	page     []CodeRow
	pos      int
	startKey map[string]types.AttributeValue
	done     bool
	err      error
}

func (it *dynamoCodeIterator) Next() bool {
	if it.err != nil {
		return false
	}

	for it.pos >= len(it.page) {
		if it.done {
			return false
		}
		if !it.fetchPage() {
			return false
		}
	}

	it.pos++
	return true
}

func (it *dynamoCodeIterator) fetchPage() bool {
	resp, err := it.store.client.Query(it.ctx, &dynamodb.QueryInput{
		TableName:              aws.String(it.store.tableName),
		KeyConditionExpression: aws.String("kind = :kind"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":kind": &types.AttributeValueMemberS{Value: kindCode},
		},
		ExclusiveStartKey: it.startKey,
	})
	if err != nil {
		it.err = fmt.Errorf("failed to query DynamoDB: %w", err)
		return false
	}

	it.page = it.page[:0]
	it.pos = 0

	for _, attrs := range resp.Items {
		idAttr, ok := attrs["id"].(*types.AttributeValueMemberN)
		if !ok {
			it.err = fmt.Errorf("invalid id attribute in DynamoDB")
			return false
		}
		id, err := parseID(idAttr.Value)
		if err != nil {
			it.err = err
			return false
		}

		codeAttr, ok := attrs["code"].(*types.AttributeValueMemberB)
		if !ok {
			it.err = fmt.Errorf("invalid code attribute in DynamoDB")
			return false
		}

		it.page = append(it.page, CodeRow{ID: id, Code: codeAttr.Value})
	}

	if resp.LastEvaluatedKey == nil {
		it.done = true
	} else {
		it.startKey = resp.LastEvaluatedKey
	}

	return true
}

func (it *dynamoCodeIterator) Row() CodeRow {
	return it.page[it.pos-1]
}

func (it *dynamoCodeIterator) Err() error {
	return it.err
}

func (it *dynamoCodeIterator) Close() error {
	return nil
}

// dynamoItemIterator pages through the vector partition with Query.
type dynamoItemIterator struct {
	ctx      context.Context
	store    *DynamoStore
	page     []Item
	pos      int
	startKey map[string]types.AttributeValue
	done     bool
	err      error
}

func (it *dynamoItemIterator) Next() bool {
	if it.err != nil {
		return false
	}

	for it.pos >= len(it.page) {
		if it.done {
			return false
		}
		if !it.fetchPage() {
			return false
		}
	}

	it.pos++
	return true
}

func (it *dynamoItemIterator) fetchPage() bool {
	resp, err := it.store.client.Query(it.ctx, &dynamodb.QueryInput{
		TableName:              aws.String(it.store.tableName),
		KeyConditionExpression: aws.String("kind = :kind"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":kind": &types.AttributeValueMemberS{Value: kindVector},
		},
		ExclusiveStartKey: it.startKey,
	})
	if err != nil {
		it.err = fmt.Errorf("failed to query DynamoDB: %w", err)
		return false
	}

	it.page = it.page[:0]
	it.pos = 0

	for _, attrs := range resp.Items {
		item, err := itemFromAttributes(attrs)
		if err != nil {
			it.err = err
			return false
		}
		it.page = append(it.page, item)
	}

	if resp.LastEvaluatedKey == nil {
		it.done = true
	} else {
		it.startKey = resp.LastEvaluatedKey
	}

	return true
}

func (it *dynamoItemIterator) Item() Item {
	return it.page[it.pos-1]
}

func (it *dynamoItemIterator) Err() error {
	return it.err
}

func (it *dynamoItemIterator) Close() error {
	return nil
}

func itemFromAttributes(attrs map[string]types.AttributeValue) (Item, error) {
	var item Item

	idAttr, ok := attrs["id"].(*types.AttributeValueMemberN)
	if !ok {
		return item, fmt.Errorf("invalid id attribute in DynamoDB")
	}
	id, err := parseID(idAttr.Value)
	if err != nil {
		return item, err
	}
	item.ID = id

	if wordAttr, ok := attrs["word"].(*types.AttributeValueMemberS); ok {
		item.Label = wordAttr.Value
	}

	if tagAttr, ok := attrs["sense_id"].(*types.AttributeValueMemberN); ok {
		tag, err := strconv.ParseInt(tagAttr.Value, 10, 32)
		if err != nil {
			return item, fmt.Errorf("failed to parse sense_id: %w", err)
		}
		item.Tag = int32(tag)
	}

	vecAttr, ok := attrs["vector"].(*types.AttributeValueMemberB)
	if !ok {
		return item, fmt.Errorf("invalid vector attribute in DynamoDB")
	}
	item.Vector, err = decodeVector(vecAttr.Value)
	if err != nil {
		return item, fmt.Errorf("failed to decode vector for id %d: %w", item.ID, err)
	}

	return item, nil
}

func formatID(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("failed to parse id: %w", err)
	}
	return uint32(id), nil
}
