// Package minio provides a blobstore.BlobStore implementation backed by
// the MinIO Go client.
//
// MinIO is a self-hosted, S3-compatible object store. Codebook artifacts
// and encoded vector blobs written through this store work with MinIO as
// well as other S3-compatible systems such as Ceph, Garage, and SeaweedFS,
// without pulling in the AWS SDK. That makes it the natural backend for
// air-gapped deployments and local integration testing.
//
// # Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := miniostore.NewStore(client, "my-bucket", "indexes/wordnet/")
//
//	blob, err := store.Open(ctx, "codebooks/v1.svcb")
package minio
