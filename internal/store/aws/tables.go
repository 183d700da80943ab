package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// CreateTables creates the application and account tables with their GSIs if
// they don't exist, then waits for them to become active.
func CreateTables(ctx context.Context, client *dynamodb.Client, applicationsTable, accountsTable string) error {
	inputs := []*dynamodb.CreateTableInput{
		{
			TableName: aws.String(applicationsTable),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("app_id"), KeyType: types.KeyTypeHash},
			},
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("app_id"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String("verification_status"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String("created_at"), AttributeType: types.ScalarAttributeTypeN},
			},
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				{
					IndexName: aws.String(StatusIndexName),
					KeySchema: []types.KeySchemaElement{
						{AttributeName: aws.String("verification_status"), KeyType: types.KeyTypeHash},
						{AttributeName: aws.String("created_at"), KeyType: types.KeyTypeRange},
					},
					Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
				},
			},
			BillingMode: types.BillingModePayPerRequest,
		},
		{
			TableName: aws.String(accountsTable),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("email"), KeyType: types.KeyTypeHash},
			},
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("email"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String("account_id"), AttributeType: types.ScalarAttributeTypeS},
			},
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				{
					IndexName: aws.String(AccountIDIndexName),
					KeySchema: []types.KeySchemaElement{
						{AttributeName: aws.String("account_id"), KeyType: types.KeyTypeHash},
					},
					Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
				},
			},
			BillingMode: types.BillingModePayPerRequest,
		},
	}

	waiter := dynamodb.NewTableExistsWaiter(client)

	for _, input := range inputs {
		_, err := client.CreateTable(ctx, input)
		if err != nil {
			var inUse *types.ResourceInUseException
			if !errors.As(err, &inUse) {
				return wrapAWSError(err, fmt.Sprintf("failed to create table %s", aws.ToString(input.TableName)))
			}
			log.Debug().Str("table", aws.ToString(input.TableName)).Msg("table already exists")
		}

		err = waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: input.TableName}, 2*time.Minute)
		if err != nil {
			return fmt.Errorf("table %s did not become active: %w", aws.ToString(input.TableName), err)
		}

		log.Info().Str("table", aws.ToString(input.TableName)).Msg("table ready")
	}

	return nil
}
