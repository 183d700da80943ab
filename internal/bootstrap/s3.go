package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// CreateBucket creates the documents bucket, reusing it when it already exists
// unless cleanResources is set.
func CreateBucket(ctx context.Context, client *s3.Client, env string, cleanResources bool) (string, error) {
	bucket := fmt.Sprintf("%s-ngoverify-documents", env)

	if cleanResources {
		if err := deleteBucketIfExists(ctx, client, bucket); err != nil {
			return "", err
		}
	}

	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if !errors.As(err, &owned) {
			return "", fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
		log.Debug().Str("bucket", bucket).Msg("bucket already exists")
	}

	return bucket, nil
}

// deleteBucketIfExists empties and deletes a bucket.
func deleteBucketIfExists(ctx context.Context, client *s3.Client, bucket string) error {
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			var noSuchBucket *types.NoSuchBucket
			if errors.As(err, &noSuchBucket) {
				return nil
			}
			return fmt.Errorf("failed to list bucket %s: %w", bucket, err)
		}
		for _, obj := range page.Contents {
			if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: obj.Key}); err != nil {
				return fmt.Errorf("failed to delete %s: %w", aws.ToString(obj.Key), err)
			}
		}
	}

	_, err := client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		var noSuchBucket *types.NoSuchBucket
		if errors.As(err, &noSuchBucket) {
			return nil
		}
		return fmt.Errorf("failed to delete bucket %s: %w", bucket, err)
	}
	return nil
}
