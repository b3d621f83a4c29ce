// Package s3 provides S3 implementations of the blobstore.BlobStore
// interface, plus a DynamoDB-backed registry for codebook versioning.
//
// Store targets general-purpose S3 buckets. Reads use ranged GETs so that
// code-block scans fetch only the byte ranges they touch, and writes stream
// through multipart uploads without buffering whole artifacts in memory.
//
// ExpressStore targets S3 Express One Zone directory buckets and adds
// PutIfNotExists, a conditional write used to publish immutable codebook
// artifacts exactly once.
//
// CodebookRegistry records which artifact version is current per collection
// in a DynamoDB table, so readers discover newly published codebooks without
// listing the bucket.
//
// # Usage
//
//	client, err := s3.NewClientFromDefaultConfig(ctx)
//	if err != nil { ... }
//
//	store := s3.NewStore(client, "my-bucket", "sensevec")
//
//	blob, err := store.Open(ctx, "codebooks/senses/v1.svcb")
package s3
