package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/sensevec/blobstore"
)

// ErrVersionConflict is returned by Publish when another writer published
// the same codebook version first. Callers retry to pick up the new latest
// version.
var ErrVersionConflict = errors.New("codebook version already published")

// RegistryClient is the subset of the DynamoDB API used by CodebookRegistry.
type RegistryClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ RegistryClient = (*dynamodb.Client)(nil)

// CodebookRegistry tracks the latest published codebook artifact per
// collection in a DynamoDB table. Artifacts themselves are immutable blobs;
// the registry provides the authoritative pointer to the current version so
// readers can discover new codebooks without listing the bucket.
//
// The table uses "collection" (S) as the partition key and "version" (N) as
// the sort key. Each item carries the blob name of the artifact it points to.
// Publishing is a conditional put on the next version number, so concurrent
// publishers race on the condition instead of overwriting each other.
type CodebookRegistry struct {
	client RegistryClient
	table  string
}

// NewCodebookRegistry creates a registry backed by the given DynamoDB table.
func NewCodebookRegistry(client RegistryClient, table string) *CodebookRegistry {
	return &CodebookRegistry{client: client, table: table}
}

// Latest returns the highest published version for the collection and the
// blob name of its codebook artifact. It returns blobstore.ErrNotFound when
// the collection has no published versions.
func (r *CodebookRegistry) Latest(ctx context.Context, collection string) (uint64, string, error) {
	if collection == "" {
		return 0, "", fmt.Errorf("collection must not be empty")
	}

	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		KeyConditionExpression: aws.String("#c = :c"),
		ExpressionAttributeNames: map[string]string{
			"#c": "collection",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":c": &ddbtypes.AttributeValueMemberS{Value: collection},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return 0, "", fmt.Errorf("query latest version: %w", err)
	}

	if len(out.Items) == 0 {
		return 0, "", fmt.Errorf("collection %q: %w", collection, blobstore.ErrNotFound)
	}

	item := out.Items[0]

	versionAttr, ok := item["version"].(*ddbtypes.AttributeValueMemberN)
	if !ok {
		return 0, "", fmt.Errorf("collection %q: malformed version attribute", collection)
	}

	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse version: %w", err)
	}

	keyAttr, ok := item["artifact_key"].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return 0, "", fmt.Errorf("collection %q: malformed artifact_key attribute", collection)
	}

	return version, keyAttr.Value, nil
}

// Publish records artifactKey as the next codebook version for the
// collection and returns the version number it was assigned. The artifact
// must already be fully written, typically via ExpressStore.PutIfNotExists
// or Store.Put, before it is published.
//
// Publish reads the current latest version and conditionally writes the
// successor. If another writer claims the same version first, Publish
// returns ErrVersionConflict and performed no write.
func (r *CodebookRegistry) Publish(ctx context.Context, collection, artifactKey string) (uint64, error) {
	if collection == "" {
		return 0, fmt.Errorf("collection must not be empty")
	}

	if artifactKey == "" {
		return 0, fmt.Errorf("artifact key must not be empty")
	}

	latest, _, err := r.Latest(ctx, collection)
	if err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		return 0, err
	}

	next := latest + 1

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item: map[string]ddbtypes.AttributeValue{
			"collection":   &ddbtypes.AttributeValueMemberS{Value: collection},
			"version":      &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(next, 10)},
			"artifact_key": &ddbtypes.AttributeValueMemberS{Value: artifactKey},
			"published_at": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().UnixNano(), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(#v)"),
		ExpressionAttributeNames: map[string]string{
			"#v": "version",
		},
	})
	if err != nil {
		var ccf *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return 0, fmt.Errorf("collection %q version %d: %w", collection, next, ErrVersionConflict)
		}

		return 0, fmt.Errorf("put version %d: %w", next, err)
	}

	return next, nil
}
