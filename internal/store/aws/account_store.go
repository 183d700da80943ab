package aws

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/trustbridge/ngoverify/internal/models"
	"github.com/trustbridge/ngoverify/internal/store"
)

// AccountIDIndexName is the GSI keyed by account_id.
const AccountIDIndexName = "account-id-index"

// accountItem is keyed by lower-cased email so uniqueness is enforced by the key.
type accountItem struct {
	Email         string    `dynamodbav:"email"`
	AccountID     string    `dynamodbav:"account_id"`
	PasswordHash  string    `dynamodbav:"password_hash"`
	Role          string    `dynamodbav:"role"`
	ApplicationID string    `dynamodbav:"application_id,omitempty"`
	CreatedAt     time.Time `dynamodbav:"created_at"`
}

func (i *accountItem) toModel() (*models.Account, error) {
	accountID, err := uuid.Parse(i.AccountID)
	if err != nil {
		return nil, fmt.Errorf("invalid account_id %q: %w", i.AccountID, err)
	}

	acct := &models.Account{
		AccountID:    accountID,
		Email:        i.Email,
		PasswordHash: i.PasswordHash,
		Role:         i.Role,
		CreatedAt:    i.CreatedAt,
	}

	if i.ApplicationID != "" {
		appID, err := uuid.Parse(i.ApplicationID)
		if err != nil {
			return nil, fmt.Errorf("invalid application_id %q: %w", i.ApplicationID, err)
		}
		acct.ApplicationID = &appID
	}

	return acct, nil
}

// AccountStore is a DynamoDB implementation of store.AccountStore
type AccountStore struct {
	client    *dynamodb.Client
	tableName string
}

// NewAccountStore creates a new DynamoDB account store
func NewAccountStore(client *dynamodb.Client, tableName string) *AccountStore {
	return &AccountStore{
		client:    client,
		tableName: tableName,
	}
}

// Create creates a new account
func (s *AccountStore) Create(ctx context.Context, account *models.Account) error {
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))

	rec := accountItem{
		Email:        account.Email,
		AccountID:    account.AccountID.String(),
		PasswordHash: account.PasswordHash,
		Role:         account.Role,
		CreatedAt:    account.CreatedAt,
	}
	if account.ApplicationID != nil {
		rec.ApplicationID = account.ApplicationID.String()
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(email)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return store.ErrAccountAlreadyExists
		}
		return wrapAWSError(err, "failed to create account")
	}

	log.Debug().
		Str("account_id", rec.AccountID).
		Str("role", rec.Role).
		Msg("account created")

	return nil
}

// GetByEmail retrieves an account by email
func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"email": &types.AttributeValueMemberS{Value: strings.ToLower(strings.TrimSpace(email))},
		},
	})
	if err != nil {
		return nil, wrapAWSError(err, "failed to get account")
	}

	if result.Item == nil {
		return nil, store.ErrAccountNotFound
	}

	var rec accountItem
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return rec.toModel()
}

// Get retrieves an account by ID via the account_id GSI
func (s *AccountStore) Get(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(AccountIDIndexName),
		KeyConditionExpression: aws.String("account_id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: accountID.String()},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, wrapAWSError(err, "failed to query account")
	}

	if len(result.Items) == 0 {
		return nil, store.ErrAccountNotFound
	}

	var rec accountItem
	if err := attributevalue.UnmarshalMap(result.Items[0], &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return rec.toModel()
}
