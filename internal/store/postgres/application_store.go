package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/trustbridge/ngoverify/internal/models"
	"github.com/trustbridge/ngoverify/internal/store"
)

const applicationTable = "applications"

var applicationColumns = []string{
	"app_id", "organization_name", "contact_name", "email", "phone", "website",
	"registration_number", "address", "city", "state", "country",
	"organization_type", "description", "verification_status", "rejection_reason",
	"review_notes", "reviewed_by", "documents", "version",
	"created_at", "updated_at", "reviewed_at",
}

// likeEscaper makes a search term match literally inside an ILIKE pattern,
// using the default backslash escape.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// applicationRow is the flat table representation of models.NGOApplication.
type applicationRow struct {
	AppID              uuid.UUID  `db:"app_id"`
	OrganizationName   string     `db:"organization_name"`
	ContactName        string     `db:"contact_name"`
	Email              string     `db:"email"`
	Phone              string     `db:"phone"`
	Website            string     `db:"website"`
	RegistrationNumber string     `db:"registration_number"`
	Address            string     `db:"address"`
	City               string     `db:"city"`
	State              string     `db:"state"`
	Country            string     `db:"country"`
	OrganizationType   string     `db:"organization_type"`
	Description        string     `db:"description"`
	VerificationStatus string     `db:"verification_status"`
	RejectionReason    string     `db:"rejection_reason"`
	ReviewNotes        string     `db:"review_notes"`
	ReviewedBy         string     `db:"reviewed_by"`
	Documents          []byte     `db:"documents"`
	Version            int64      `db:"version"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
	ReviewedAt         *time.Time `db:"reviewed_at"`
}

func (r *applicationRow) toModel() (*models.NGOApplication, error) {
	docs := make(map[models.DocumentType]*models.DocumentRecord)
	if err := json.Unmarshal(r.Documents, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents for %s: %w", r.AppID, err)
	}

	return &models.NGOApplication{
		ID:                 r.AppID,
		OrganizationName:   r.OrganizationName,
		ContactName:        r.ContactName,
		Email:              r.Email,
		Phone:              r.Phone,
		Website:            r.Website,
		RegistrationNumber: r.RegistrationNumber,
		Location: models.Location{
			Address: r.Address,
			City:    r.City,
			State:   r.State,
			Country: r.Country,
		},
		OrganizationType:   r.OrganizationType,
		Description:        r.Description,
		VerificationStatus: models.VerificationStatus(r.VerificationStatus),
		RejectionReason:    r.RejectionReason,
		ReviewNotes:        r.ReviewNotes,
		ReviewedBy:         r.ReviewedBy,
		Documents:          docs,
		Version:            r.Version,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		ReviewedAt:         r.ReviewedAt,
	}, nil
}

// ApplicationStore implements store.ApplicationStore using PostgreSQL.
// Documents are kept in a JSONB column so each write covers the whole application.
type ApplicationStore struct {
	pool *pgxpool.Pool
	cfg  *StoreConfig
}

// NewApplicationStore creates a new PostgreSQL-backed application store.
// It shares the connection pool with other stores.
func NewApplicationStore(pool *pgxpool.Pool, cfg *StoreConfig) *ApplicationStore {
	if cfg == nil {
		cfg = &StoreConfig{}
	}
	cfg.ApplyDefaults()

	return &ApplicationStore{
		pool: pool,
		cfg:  cfg,
	}
}

// Create inserts a new application with version 1.
func (s *ApplicationStore) Create(ctx context.Context, app *models.NGOApplication) error {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	docs, err := json.Marshal(app.Documents)
	if err != nil {
		return fmt.Errorf("failed to encode documents: %w", err)
	}

	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = app.CreatedAt
	}

	query, args, err := psql().
		Insert(applicationTable).
		Columns(applicationColumns...).
		Values(
			app.ID, app.OrganizationName, app.ContactName, app.Email, app.Phone, app.Website,
			app.RegistrationNumber, app.Location.Address, app.Location.City, app.Location.State, app.Location.Country,
			app.OrganizationType, app.Description, string(app.VerificationStatus), app.RejectionReason,
			app.ReviewNotes, app.ReviewedBy, docs, int64(1),
			app.CreatedAt, app.UpdatedAt, app.ReviewedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert application query: %w", err)
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return store.ErrApplicationAlreadyExists
		}
		return fmt.Errorf("failed to create application: %w", mapPostgresError(err))
	}

	app.Version = 1

	log.Debug().
		Str("app_id", app.ID.String()).
		Str("organization", app.OrganizationName).
		Msg("Created application")

	return nil
}

// Get retrieves an application by ID.
func (s *ApplicationStore) Get(ctx context.Context, appID uuid.UUID) (*models.NGOApplication, error) {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	query, args, err := psql().
		Select(applicationColumns...).
		From(applicationTable).
		Where(sq.Eq{"app_id": appID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate get application query: %w", err)
	}

	var row applicationRow
	if err := pgxscan.Get(ctx, s.pool, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, store.ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to get application: %w", mapPostgresError(err))
	}

	return row.toModel()
}

// Update writes the application if its stored version still matches.
func (s *ApplicationStore) Update(ctx context.Context, app *models.NGOApplication) error {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	docs, err := json.Marshal(app.Documents)
	if err != nil {
		return fmt.Errorf("failed to encode documents: %w", err)
	}

	updatedAt := time.Now()

	query, args, err := psql().
		Update(applicationTable).
		SetMap(map[string]any{
			"organization_name":   app.OrganizationName,
			"contact_name":        app.ContactName,
			"email":               app.Email,
			"phone":               app.Phone,
			"website":             app.Website,
			"registration_number": app.RegistrationNumber,
			"address":             app.Location.Address,
			"city":                app.Location.City,
			"state":               app.Location.State,
			"country":             app.Location.Country,
			"organization_type":   app.OrganizationType,
			"description":         app.Description,
			"verification_status": string(app.VerificationStatus),
			"rejection_reason":    app.RejectionReason,
			"review_notes":        app.ReviewNotes,
			"reviewed_by":         app.ReviewedBy,
			"documents":           docs,
			"version":             app.Version + 1,
			"updated_at":          updatedAt,
			"reviewed_at":         app.ReviewedAt,
		}).
		Where(sq.Eq{"app_id": app.ID, "version": app.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate update application query: %w", err)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update application: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		// Distinguish a missing row from a stale version
		var exists bool
		err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM applications WHERE app_id = $1)`, app.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check application existence: %w", mapPostgresError(err))
		}
		if !exists {
			return store.ErrApplicationNotFound
		}
		return store.ErrVersionConflict
	}

	app.Version++
	app.UpdatedAt = updatedAt

	log.Debug().
		Str("app_id", app.ID.String()).
		Int64("version", app.Version).
		Str("status", string(app.VerificationStatus)).
		Msg("Updated application")

	return nil
}

// List returns applications matching the filter, newest first.
func (s *ApplicationStore) List(ctx context.Context, filter store.ListFilter) ([]*models.NGOApplication, error) {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	builder := psql().
		Select(applicationColumns...).
		From(applicationTable).
		OrderBy("created_at DESC", "app_id DESC")

	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"verification_status": string(filter.Status)})
	}

	if term := strings.TrimSpace(filter.Search); term != "" {
		pattern := "%" + likeEscaper.Replace(term) + "%"
		builder = builder.Where(sq.Or{
			sq.ILike{"organization_name": pattern},
			sq.ILike{"contact_name": pattern},
			sq.ILike{"email": pattern},
		})
	}

	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate list applications query: %w", err)
	}

	var rows []*applicationRow
	if err := pgxscan.Select(ctx, s.pool, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", mapPostgresError(err))
	}

	apps := make([]*models.NGOApplication, 0, len(rows))
	for _, row := range rows {
		app, err := row.toModel()
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}

	return apps, nil
}

// Delete removes an application by ID.
// Linked accounts keep their row with application_id set to NULL.
func (s *ApplicationStore) Delete(ctx context.Context, appID uuid.UUID) error {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	query, args, err := psql().
		Delete(applicationTable).
		Where(sq.Eq{"app_id": appID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate delete application query: %w", err)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete application: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrApplicationNotFound
	}

	log.Info().Str("app_id", appID.String()).Msg("Deleted application")

	return nil
}
