package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	awsstore "github.com/trustbridge/ngoverify/internal/store/aws"
)

// TableNames returns the environment-prefixed table names.
func TableNames(env string) (applicationsTable, accountsTable string) {
	return fmt.Sprintf("%s_applications", env), fmt.Sprintf("%s_accounts", env)
}

// CreateTables creates the applications and accounts tables.
// If cleanResources is true, deletes existing tables first to ensure clean state
// If cleanResources is false, reuses existing tables (preserves data)
func CreateTables(ctx context.Context, client *dynamodb.Client, env string, cleanResources bool) (applicationsTable, accountsTable string, err error) {
	applicationsTable, accountsTable = TableNames(env)

	if cleanResources {
		if err := DeleteTables(ctx, client, applicationsTable, accountsTable); err != nil {
			return "", "", err
		}
	}

	if err := awsstore.CreateTables(ctx, client, applicationsTable, accountsTable); err != nil {
		return "", "", err
	}

	return applicationsTable, accountsTable, nil
}

// deleteTableIfExists attempts to delete a table if it exists
func deleteTableIfExists(ctx context.Context, client *dynamodb.Client, tableName string) error {
	_, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		var resourceNotFound *types.ResourceNotFoundException
		if errors.As(err, &resourceNotFound) {
			return nil
		}
		return err
	}

	waiter := dynamodb.NewTableNotExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	}, 30*time.Second)
}

// DeleteTables removes both tables
func DeleteTables(ctx context.Context, client *dynamodb.Client, applicationsTable, accountsTable string) error {
	if err := deleteTableIfExists(ctx, client, applicationsTable); err != nil {
		return fmt.Errorf("failed to delete applications table: %w", err)
	}

	if err := deleteTableIfExists(ctx, client, accountsTable); err != nil {
		return fmt.Errorf("failed to delete accounts table: %w", err)
	}

	return nil
}
