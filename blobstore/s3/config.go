package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewClientFromDefaultConfig creates an S3 client from the default AWS
// configuration chain (environment variables, shared config files, and
// instance metadata). Loader options customize the chain, for example
// config.WithRegion.
func NewClientFromDefaultConfig(ctx context.Context, optFns ...func(*config.LoadOptions) error) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg), nil
}

// NewRegistryClientFromDefaultConfig creates a DynamoDB client for
// CodebookRegistry from the default AWS configuration chain.
func NewRegistryClientFromDefaultConfig(ctx context.Context, optFns ...func(*config.LoadOptions) error) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg), nil
}
