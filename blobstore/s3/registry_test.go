package s3

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/sensevec/blobstore"
)

// fakeRegistryTable emulates the conditional-put and query behavior of a
// DynamoDB table keyed by collection and version.
type fakeRegistryTable struct {
	mu    sync.Mutex
	items map[string]map[uint64]map[string]ddbtypes.AttributeValue

	// beforePut runs once before the next PutItem applies, which lets tests
	// interleave a competing write between a registry's read and its
	// conditional put.
	beforePut func()
}

func newFakeRegistryTable() *fakeRegistryTable {
	return &fakeRegistryTable{items: make(map[string]map[uint64]map[string]ddbtypes.AttributeValue)}
}

func (f *fakeRegistryTable) insert(collection string, version uint64, artifactKey string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.items[collection] == nil {
		f.items[collection] = make(map[uint64]map[string]ddbtypes.AttributeValue)
	}

	f.items[collection][version] = map[string]ddbtypes.AttributeValue{
		"collection":   &ddbtypes.AttributeValueMemberS{Value: collection},
		"version":      &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
		"artifact_key": &ddbtypes.AttributeValueMemberS{Value: artifactKey},
	}
}

func (f *fakeRegistryTable) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	hook := f.beforePut
	f.beforePut = nil
	f.mu.Unlock()

	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	collection := params.Item["collection"].(*ddbtypes.AttributeValueMemberS).Value

	version, err := strconv.ParseUint(params.Item["version"].(*ddbtypes.AttributeValueMemberN).Value, 10, 64)
	if err != nil {
		return nil, err
	}

	if _, exists := f.items[collection][version]; exists {
		return nil, &ddbtypes.ConditionalCheckFailedException{}
	}

	if f.items[collection] == nil {
		f.items[collection] = make(map[uint64]map[string]ddbtypes.AttributeValue)
	}

	f.items[collection][version] = params.Item

	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeRegistryTable) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	collection := params.ExpressionAttributeValues[":c"].(*ddbtypes.AttributeValueMemberS).Value

	versions := make([]uint64, 0, len(f.items[collection]))
	for v := range f.items[collection] {
		versions = append(versions, v)
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })

	limit := len(versions)
	if params.Limit != nil && int(*params.Limit) < limit {
		limit = int(*params.Limit)
	}

	out := &dynamodb.QueryOutput{}
	for _, v := range versions[:limit] {
		out.Items = append(out.Items, f.items[collection][v])
	}

	return out, nil
}

func TestCodebookRegistryPublishAndLatest(t *testing.T) {
	ctx := context.Background()
	table := newFakeRegistryTable()
	registry := NewCodebookRegistry(table, "sensevec-codebooks")

	version, err := registry.Publish(ctx, "senses", "codebooks/senses/v1.svcb")
	require.NoError(t, err)
	require.Equal(t, uint64(1), version)

	version, err = registry.Publish(ctx, "senses", "codebooks/senses/v2.svcb")
	require.NoError(t, err)
	require.Equal(t, uint64(2), version)

	latest, artifactKey, err := registry.Latest(ctx, "senses")
	require.NoError(t, err)
	require.Equal(t, uint64(2), latest)
	require.Equal(t, "codebooks/senses/v2.svcb", artifactKey)
}

func TestCodebookRegistryCollectionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	table := newFakeRegistryTable()
	registry := NewCodebookRegistry(table, "sensevec-codebooks")

	_, err := registry.Publish(ctx, "senses", "codebooks/senses/v1.svcb")
	require.NoError(t, err)

	version, err := registry.Publish(ctx, "docs", "codebooks/docs/v1.svcb")
	require.NoError(t, err)
	require.Equal(t, uint64(1), version)
}

func TestCodebookRegistryLatestEmpty(t *testing.T) {
	ctx := context.Background()
	registry := NewCodebookRegistry(newFakeRegistryTable(), "sensevec-codebooks")

	_, _, err := registry.Latest(ctx, "senses")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestCodebookRegistryPublishConflict(t *testing.T) {
	ctx := context.Background()
	table := newFakeRegistryTable()
	registry := NewCodebookRegistry(table, "sensevec-codebooks")

	// A competing publisher claims version 1 between this registry's read
	// and its conditional put.
	table.beforePut = func() {
		table.insert("senses", 1, "codebooks/senses/other.svcb")
	}

	_, err := registry.Publish(ctx, "senses", "codebooks/senses/mine.svcb")
	require.ErrorIs(t, err, ErrVersionConflict)

	// The losing write left no trace. A retry observes the winner and
	// publishes the successor.
	version, err := registry.Publish(ctx, "senses", "codebooks/senses/mine.svcb")
	require.NoError(t, err)
	require.Equal(t, uint64(2), version)

	latest, artifactKey, err := registry.Latest(ctx, "senses")
	require.NoError(t, err)
	require.Equal(t, uint64(2), latest)
	require.Equal(t, "codebooks/senses/mine.svcb", artifactKey)
}

func TestCodebookRegistryValidation(t *testing.T) {
	ctx := context.Background()
	registry := NewCodebookRegistry(newFakeRegistryTable(), "sensevec-codebooks")

	_, err := registry.Publish(ctx, "", "codebooks/senses/v1.svcb")
	require.Error(t, err)

	_, err = registry.Publish(ctx, "senses", "")
	require.Error(t, err)

	_, _, err = registry.Latest(ctx, "")
	require.Error(t, err)
}
