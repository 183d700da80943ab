// Package verification implements the NGO verification workflow: registration,
// per-document review, top-level admin decisions and resubmission.
//
// Every mutation is a read, check, mutate and conditional write against the
// application's version token. When the write loses a race the operation
// re-reads and re-checks its preconditions, so a concurrent decision on the
// same document surfaces as ErrAlreadyReviewed while a concurrent decision on
// a sibling document is merged.
package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/trustbridge/ngoverify/internal/blob"
	"github.com/trustbridge/ngoverify/internal/models"
	"github.com/trustbridge/ngoverify/internal/notify"
	"github.com/trustbridge/ngoverify/internal/store"
	"github.com/trustbridge/ngoverify/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/crypto/bcrypt"
)

// Config holds service settings.
type Config struct {
	// MaxWriteAttempts bounds the re-read loop on version conflicts.
	// Default: 5. Set to 1 to surface every conflict as ErrConflict.
	MaxWriteAttempts int

	// BcryptCost is the password hashing cost. Default: bcrypt.DefaultCost
	BcryptCost int

	// Now returns the current time. Default: time.Now
	Now func() time.Time
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.MaxWriteAttempts <= 0 {
		c.MaxWriteAttempts = 5
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Service runs the verification workflow over an ApplicationStore.
type Service struct {
	apps     store.ApplicationStore
	accounts store.AccountStore
	blobs    blob.Store
	notifier notify.Publisher
	cfg      Config
}

// NewService creates a verification service. A nil notifier discards notifications.
func NewService(apps store.ApplicationStore, accounts store.AccountStore, blobs blob.Store, notifier notify.Publisher, cfg Config) *Service {
	cfg.ApplyDefaults()
	if notifier == nil {
		notifier = notify.Discard{}
	}

	return &Service{
		apps:     apps,
		accounts: accounts,
		blobs:    blobs,
		notifier: notifier,
		cfg:      cfg,
	}
}

// GetApplication returns the current state of an application.
func (s *Service) GetApplication(ctx context.Context, appID uuid.UUID) (*models.NGOApplication, error) {
	app, err := s.apps.Get(ctx, appID)
	if err != nil {
		if errors.Is(err, store.ErrApplicationNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return app, nil
}

// ListByStatus returns applications filtered by status and search term, newest first.
// An empty status lists all applications.
func (s *Service) ListByStatus(ctx context.Context, filter store.ListFilter) ([]*models.NGOApplication, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q", filter.Status)
	}

	apps, err := s.apps.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, nil
}

// mutation checks preconditions against freshly read state and applies the change in place.
// Returning an error aborts the write.
type mutation func(app *models.NGOApplication) error

// update runs fn inside the conditional write loop and returns the committed application.
func (s *Service) update(ctx context.Context, appID uuid.UUID, op string, fn mutation) (*models.NGOApplication, error) {
	for attempt := 1; attempt <= s.cfg.MaxWriteAttempts; attempt++ {
		app, err := s.GetApplication(ctx, appID)
		if err != nil {
			return nil, err
		}

		if err := fn(app); err != nil {
			return nil, err
		}

		err = s.apps.Update(ctx, app)
		if err == nil {
			return app, nil
		}

		switch {
		case errors.Is(err, store.ErrVersionConflict):
			telemetry.GetMetrics().VersionConflictsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
			log.Debug().
				Str("app_id", appID.String()).
				Str("op", op).
				Int("attempt", attempt).
				Msg("Application changed during write, re-reading")
		case errors.Is(err, store.ErrApplicationNotFound):
			return nil, ErrNotFound
		default:
			return nil, fmt.Errorf("failed to write application: %w", err)
		}
	}

	log.Warn().
		Str("app_id", appID.String()).
		Str("op", op).
		Int("attempts", s.cfg.MaxWriteAttempts).
		Msg("Giving up after repeated version conflicts")

	return nil, ErrConflict
}

func parseDocType(dt models.DocumentType) (models.DocumentType, error) {
	parsed, ok := models.ParseDocumentType(string(dt))
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidDocType, dt)
	}
	return parsed, nil
}

func (s *Service) now() time.Time {
	return s.cfg.Now().UTC()
}
