package store

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/trustbridge/ngoverify/internal/models"
)

// ListFilter narrows ListApplications results.
type ListFilter struct {
	// Status filters by verification status. Empty means all statuses.
	Status models.VerificationStatus

	// Search is a case-insensitive substring matched against organization
	// name, contact name and email. Empty means no text filter.
	Search string

	// Limit caps the number of results (0 = no limit).
	Limit int
}

// Matches reports whether app satisfies the filter. Backends that cannot
// express the filter natively use it to post-filter.
func (f ListFilter) Matches(app *models.NGOApplication) bool {
	if f.Status != "" && app.VerificationStatus != f.Status {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(f.Search))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(app.OrganizationName), term) ||
		strings.Contains(strings.ToLower(app.ContactName), term) ||
		strings.Contains(strings.ToLower(app.Email), term)
}

// ApplicationStore is the durable record of NGO applications.
// Each application is stored as a single record including its documents, so a
// write replaces the whole aggregate atomically.
type ApplicationStore interface {
	// Create stores a new application. The store sets Version to 1.
	// Returns ErrApplicationAlreadyExists if the ID is taken.
	Create(ctx context.Context, app *models.NGOApplication) error

	// Get retrieves an application by ID including its current Version.
	// Returns ErrApplicationNotFound if it doesn't exist.
	Get(ctx context.Context, appID uuid.UUID) (*models.NGOApplication, error)

	// Update writes app only if the stored version still equals app.Version,
	// then increments app.Version. Returns ErrVersionConflict on mismatch and
	// ErrApplicationNotFound if the application doesn't exist.
	Update(ctx context.Context, app *models.NGOApplication) error

	// List returns applications matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]*models.NGOApplication, error)

	// Delete removes an application. Used to undo a registration whose
	// account could not be created. Returns ErrApplicationNotFound if absent.
	Delete(ctx context.Context, appID uuid.UUID) error
}
