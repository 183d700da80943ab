package aws

import (
	"context"
	"errors"
	"fmt"
	"sort"
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

// StatusIndexName is the GSI keyed by verification_status with created_at as range key.
const StatusIndexName = "status-created-index"

// applicationItem is the DynamoDB representation of models.NGOApplication.
type applicationItem struct {
	AppID              string                                         `dynamodbav:"app_id"`
	OrganizationName   string                                         `dynamodbav:"organization_name"`
	ContactName        string                                         `dynamodbav:"contact_name"`
	Email              string                                         `dynamodbav:"email"`
	Phone              string                                         `dynamodbav:"phone,omitempty"`
	Website            string                                         `dynamodbav:"website,omitempty"`
	RegistrationNumber string                                         `dynamodbav:"registration_number,omitempty"`
	Location           models.Location                                `dynamodbav:"location"`
	OrganizationType   string                                         `dynamodbav:"organization_type,omitempty"`
	Description        string                                         `dynamodbav:"description,omitempty"`
	VerificationStatus string                                         `dynamodbav:"verification_status"`
	RejectionReason    string                                         `dynamodbav:"rejection_reason,omitempty"`
	ReviewNotes        string                                         `dynamodbav:"review_notes,omitempty"`
	ReviewedBy         string                                         `dynamodbav:"reviewed_by,omitempty"`
	Documents          map[models.DocumentType]*models.DocumentRecord `dynamodbav:"documents"`
	Version            int64                                          `dynamodbav:"version"`
	CreatedAt          int64                                          `dynamodbav:"created_at"` // unix nanos, GSI range key
	UpdatedAt          int64                                          `dynamodbav:"updated_at"`
	ReviewedAt         *time.Time                                     `dynamodbav:"reviewed_at,omitempty"`
	SearchText         string                                         `dynamodbav:"search_text"` // lower-cased name, contact and email
}

func newApplicationItem(app *models.NGOApplication) *applicationItem {
	return &applicationItem{
		AppID:              app.ID.String(),
		OrganizationName:   app.OrganizationName,
		ContactName:        app.ContactName,
		Email:              app.Email,
		Phone:              app.Phone,
		Website:            app.Website,
		RegistrationNumber: app.RegistrationNumber,
		Location:           app.Location,
		OrganizationType:   app.OrganizationType,
		Description:        app.Description,
		VerificationStatus: string(app.VerificationStatus),
		RejectionReason:    app.RejectionReason,
		ReviewNotes:        app.ReviewNotes,
		ReviewedBy:         app.ReviewedBy,
		Documents:          app.Documents,
		Version:            app.Version,
		CreatedAt:          app.CreatedAt.UnixNano(),
		UpdatedAt:          app.UpdatedAt.UnixNano(),
		ReviewedAt:         app.ReviewedAt,
		SearchText:         strings.ToLower(strings.Join([]string{app.OrganizationName, app.ContactName, app.Email}, "\n")),
	}
}

func (i *applicationItem) toModel() (*models.NGOApplication, error) {
	id, err := uuid.Parse(i.AppID)
	if err != nil {
		return nil, fmt.Errorf("invalid app_id %q: %w", i.AppID, err)
	}
	docs := i.Documents
	if docs == nil {
		docs = make(map[models.DocumentType]*models.DocumentRecord)
	}
	return &models.NGOApplication{
		ID:                 id,
		OrganizationName:   i.OrganizationName,
		ContactName:        i.ContactName,
		Email:              i.Email,
		Phone:              i.Phone,
		Website:            i.Website,
		RegistrationNumber: i.RegistrationNumber,
		Location:           i.Location,
		OrganizationType:   i.OrganizationType,
		Description:        i.Description,
		VerificationStatus: models.VerificationStatus(i.VerificationStatus),
		RejectionReason:    i.RejectionReason,
		ReviewNotes:        i.ReviewNotes,
		ReviewedBy:         i.ReviewedBy,
		Documents:          docs,
		Version:            i.Version,
		CreatedAt:          time.Unix(0, i.CreatedAt).UTC(),
		UpdatedAt:          time.Unix(0, i.UpdatedAt).UTC(),
		ReviewedAt:         i.ReviewedAt,
	}, nil
}

// ApplicationStore is a DynamoDB implementation of store.ApplicationStore.
// Each application is a single item; conditional puts on the version attribute
// make every write a compare-and-swap.
type ApplicationStore struct {
	client    *dynamodb.Client
	tableName string
}

// NewApplicationStore creates a new DynamoDB application store
func NewApplicationStore(client *dynamodb.Client, tableName string) *ApplicationStore {
	return &ApplicationStore{
		client:    client,
		tableName: tableName,
	}
}

// Create stores a new application with version 1
func (s *ApplicationStore) Create(ctx context.Context, app *models.NGOApplication) error {
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = app.CreatedAt
	}

	rec := newApplicationItem(app)
	rec.Version = 1

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal application: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(app_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return store.ErrApplicationAlreadyExists
		}
		return wrapAWSError(err, "failed to create application")
	}

	app.Version = 1

	log.Debug().
		Str("app_id", rec.AppID).
		Str("organization", app.OrganizationName).
		Msg("application created")

	return nil
}

// Get retrieves an application by ID using a strongly consistent read
func (s *ApplicationStore) Get(ctx context.Context, appID uuid.UUID) (*models.NGOApplication, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"app_id": &types.AttributeValueMemberS{Value: appID.String()},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, wrapAWSError(err, "failed to get application")
	}

	if result.Item == nil {
		return nil, store.ErrApplicationNotFound
	}

	var rec applicationItem
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal application: %w", err)
	}

	return rec.toModel()
}

// Update replaces the application if the stored version matches app.Version
func (s *ApplicationStore) Update(ctx context.Context, app *models.NGOApplication) error {
	updatedAt := time.Now()

	rec := newApplicationItem(app)
	rec.Version = app.Version + 1
	rec.UpdatedAt = updatedAt.UnixNano()

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal application: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(app_id) AND #version = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#version": "version",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", app.Version)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			if len(condErr.Item) == 0 {
				return store.ErrApplicationNotFound
			}
			return store.ErrVersionConflict
		}
		return wrapAWSError(err, "failed to update application")
	}

	app.Version = rec.Version
	app.UpdatedAt = updatedAt

	log.Debug().
		Str("app_id", rec.AppID).
		Int64("version", app.Version).
		Str("status", rec.VerificationStatus).
		Msg("application updated")

	return nil
}

// List returns applications matching the filter, newest first.
// A status filter queries the status GSI; otherwise the table is scanned.
func (s *ApplicationStore) List(ctx context.Context, filter store.ListFilter) ([]*models.NGOApplication, error) {
	var (
		filterExpr *string
		names      = map[string]string{}
		values     = map[string]types.AttributeValue{}
	)

	if term := strings.ToLower(strings.TrimSpace(filter.Search)); term != "" {
		filterExpr = aws.String("contains(#search, :search)")
		names["#search"] = "search_text"
		values[":search"] = &types.AttributeValueMemberS{Value: term}
	}

	var items []map[string]types.AttributeValue

	if filter.Status != "" {
		names["#status"] = "verification_status"
		values[":status"] = &types.AttributeValueMemberS{Value: string(filter.Status)}

		paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
			TableName:                 aws.String(s.tableName),
			IndexName:                 aws.String(StatusIndexName),
			KeyConditionExpression:    aws.String("#status = :status"),
			FilterExpression:          filterExpr,
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
			ScanIndexForward:          aws.Bool(false),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, wrapAWSError(err, "failed to query applications")
			}
			items = append(items, page.Items...)
		}
	} else {
		input := &dynamodb.ScanInput{
			TableName:        aws.String(s.tableName),
			FilterExpression: filterExpr,
		}
		if filterExpr != nil {
			input.ExpressionAttributeNames = names
			input.ExpressionAttributeValues = values
		}

		paginator := dynamodb.NewScanPaginator(s.client, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, wrapAWSError(err, "failed to scan applications")
			}
			items = append(items, page.Items...)
		}
	}

	var recs []applicationItem
	if err := attributevalue.UnmarshalListOfMaps(items, &recs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal applications: %w", err)
	}

	apps := make([]*models.NGOApplication, 0, len(recs))
	for i := range recs {
		app, err := recs[i].toModel()
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}

	// scans are unordered
	sort.Slice(apps, func(i, j int) bool {
		if !apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
			return apps[i].CreatedAt.After(apps[j].CreatedAt)
		}
		return apps[i].ID.String() > apps[j].ID.String()
	})

	if filter.Limit > 0 && len(apps) > filter.Limit {
		apps = apps[:filter.Limit]
	}

	return apps, nil
}

// Delete removes an application
func (s *ApplicationStore) Delete(ctx context.Context, appID uuid.UUID) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"app_id": &types.AttributeValueMemberS{Value: appID.String()},
		},
		ConditionExpression: aws.String("attribute_exists(app_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return store.ErrApplicationNotFound
		}
		return wrapAWSError(err, "failed to delete application")
	}

	log.Info().Str("app_id", appID.String()).Msg("application deleted")

	return nil
}
