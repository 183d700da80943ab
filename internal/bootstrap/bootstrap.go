package bootstrap

import (
	"context"
	"fmt"
)

// Bootstrap creates the DynamoDB tables and the documents bucket.
// If CleanResources is true, deletes existing resources first to ensure clean state
// If CleanResources is false, creates resources only if they don't exist (preserves data)
func Bootstrap(ctx context.Context, cfg Config) (*Resources, error) {
	if cfg.DynamoClient == nil {
		return nil, fmt.Errorf("DynamoClient is required")
	}
	if cfg.Environment == "" {
		cfg.Environment = "dev"
	}

	resources := &Resources{}

	applicationsTable, accountsTable, err := CreateTables(ctx, cfg.DynamoClient, cfg.Environment, cfg.CleanResources)
	if err != nil {
		return nil, fmt.Errorf("failed to create DynamoDB tables: %w", err)
	}
	resources.ApplicationsTable = applicationsTable
	resources.AccountsTable = accountsTable

	if cfg.S3Client != nil {
		bucket, err := CreateBucket(ctx, cfg.S3Client, cfg.Environment, cfg.CleanResources)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 bucket: %w", err)
		}
		resources.DocumentsBucket = bucket
	}

	return resources, nil
}

// Cleanup deletes all resources created by Bootstrap
func Cleanup(ctx context.Context, cfg Config, res *Resources) error {
	if err := DeleteTables(ctx, cfg.DynamoClient, res.ApplicationsTable, res.AccountsTable); err != nil {
		return fmt.Errorf("failed to delete tables: %w", err)
	}

	if cfg.S3Client != nil && res.DocumentsBucket != "" {
		if err := deleteBucketIfExists(ctx, cfg.S3Client, res.DocumentsBucket); err != nil {
			return fmt.Errorf("failed to delete bucket: %w", err)
		}
	}

	return nil
}
