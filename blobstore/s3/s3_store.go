package s3

import (
	"context"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hupe1980/sensevec/blobstore"
)

// Options configures an S3-backed store.
type Options struct {
	// Upload tunes streaming writes created with Create.
	Upload UploadConfig
}

// Store implements blobstore.BlobStore on standard S3 buckets.
type Store struct {
	client Client
	bucket string
	prefix string
	opts   Options
}

// NewStore creates an S3 blob store. rootPrefix is prepended to all
// blob names, e.g. "indexes/wordnet/".
func NewStore(client Client, bucket, rootPrefix string, optFns ...func(o *Options)) *Store {
	opts := Options{
		Upload: DefaultUploadConfig(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
		opts:   opts,
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Open resolves the blob with HeadObject; reads are served by ranged
// GetObject requests.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	return openBlob(ctx, s.client, s.bucket, s.key(name))
}

// Create starts a background multipart upload fed by the returned
// writer. The object becomes visible when Close returns nil.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	return newStreamingWritableBlob(ctx, s.client, s.opts.Upload, s.bucket, s.key(name)), nil
}

// Put uploads data in a single request with checksum validation.
// S3 PUT is atomic: readers see the old object or the new one.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	return putWithChecksum(ctx, s.client, s.bucket, s.key(name), data)
}

// Delete removes the object. S3 treats deleting a missing key as
// success, matching the BlobStore contract.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	return err
}

// List returns blob names under the prefix, relative to the root
// prefix and sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	return listObjects(ctx, s.client, s.bucket, s.key(prefix), s.prefix)
}
