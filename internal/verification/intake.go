package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/trustbridge/ngoverify/internal/blob"
	"github.com/trustbridge/ngoverify/internal/models"
	"github.com/trustbridge/ngoverify/internal/store"
	"github.com/trustbridge/ngoverify/internal/telemetry"
	"github.com/trustbridge/ngoverify/internal/validate"
	"golang.org/x/crypto/bcrypt"
)

// CreateApplicationInput is a complete registration.
type CreateApplicationInput struct {
	Registration validate.Registration

	// Documents must hold exactly the required document types.
	Documents map[models.DocumentType]validate.File
}

// CreateApplication validates a registration, stores its documents and creates
// the pending application together with the organization's login account.
func (s *Service) CreateApplication(ctx context.Context, in CreateApplicationInput) (*models.NGOApplication, error) {
	reg := in.Registration
	reg.Normalize()

	if err := validate.RegistrationFields(reg); err != nil {
		return nil, err
	}

	for dt := range in.Documents {
		if _, ok := models.ParseDocumentType(string(dt)); !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDocType, dt)
		}
	}

	contentTypes := make(map[models.DocumentType]string, len(models.RequiredDocumentTypes))
	for _, dt := range models.RequiredDocumentTypes {
		file, ok := in.Documents[dt]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingDocument, dt)
		}
		ct, err := validate.Document(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", dt, err)
		}
		contentTypes[dt] = ct
	}

	if _, err := s.accounts.GetByEmail(ctx, reg.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	appID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate application id: %w", err)
	}

	now := s.now()
	app := &models.NGOApplication{
		ID:                 appID,
		OrganizationName:   reg.OrganizationName,
		ContactName:        reg.ContactName,
		Email:              reg.Email,
		Phone:              reg.Phone,
		Website:            reg.Website,
		RegistrationNumber: reg.RegistrationNumber,
		Location: models.Location{
			Address: reg.Address,
			City:    reg.City,
			State:   reg.State,
			Country: reg.Country,
		},
		OrganizationType:   reg.OrganizationType,
		Description:        reg.Description,
		VerificationStatus: models.StatusPending,
		Documents:          make(map[models.DocumentType]*models.DocumentRecord, len(models.RequiredDocumentTypes)),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	var stored []string
	cleanup := func() {
		for _, key := range stored {
			if err := s.blobs.Delete(ctx, key); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Failed to remove document upload")
			}
		}
	}

	for _, dt := range models.RequiredDocumentTypes {
		file := in.Documents[dt]
		key := blob.NewKey(string(dt))
		if err := s.blobs.Put(ctx, key, contentTypes[dt], file.Data); err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to store %s: %w", dt, err)
		}
		stored = append(stored, key)

		app.Documents[dt] = &models.DocumentRecord{
			Filename:     key,
			OriginalName: file.Name,
			ContentType:  contentTypes[dt],
			SizeBytes:    int64(len(file.Data)),
			UploadedAt:   now,
			Status:       models.StatusPending,
		}
	}

	if err := s.apps.Create(ctx, app); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	accountID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate account id: %w", err)
	}

	account := &models.Account{
		AccountID:     accountID,
		Email:         reg.Email,
		PasswordHash:  string(hash),
		Role:          models.RoleOrganization,
		ApplicationID: &app.ID,
		CreatedAt:     now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		// undo so the email can register again
		if delErr := s.apps.Delete(ctx, app.ID); delErr != nil {
			log.Error().Err(delErr).Str("app_id", app.ID.String()).Msg("Failed to remove application after account error")
		}
		cleanup()
		if errors.Is(err, store.ErrAccountAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	telemetry.GetMetrics().ApplicationsCreatedTotal.Add(ctx, 1)

	log.Info().
		Str("app_id", app.ID.String()).
		Str("account_id", account.AccountID.String()).
		Str("organization", app.OrganizationName).
		Str("outcome", string(models.StatusPending)).
		Msg("Application registered")

	return app, nil
}
