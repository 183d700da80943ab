package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trustbridge/ngoverify/internal/models"
	"github.com/trustbridge/ngoverify/internal/store"
)

// ApplicationStore implements store.ApplicationStore using in-memory storage.
// This implementation is for testing and local development - data is lost on restart.
type ApplicationStore struct {
	mu sync.RWMutex

	applications map[uuid.UUID]*models.NGOApplication // app_id -> application
}

// NewApplicationStore creates a new in-memory application store.
func NewApplicationStore() *ApplicationStore {
	return &ApplicationStore{
		applications: make(map[uuid.UUID]*models.NGOApplication),
	}
}

// Create stores a new application in memory.
func (s *ApplicationStore) Create(ctx context.Context, app *models.NGOApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.applications[app.ID]; exists {
		return store.ErrApplicationAlreadyExists
	}

	app.Version = 1
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = app.CreatedAt
	}

	// Clone to avoid external modifications
	s.applications[app.ID] = app.Clone()

	return nil
}

// Get retrieves an application by ID.
func (s *ApplicationStore) Get(ctx context.Context, appID uuid.UUID) (*models.NGOApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, exists := s.applications[appID]
	if !exists {
		return nil, store.ErrApplicationNotFound
	}

	return app.Clone(), nil
}

// Update replaces the application if its version is unchanged.
func (s *ApplicationStore) Update(ctx context.Context, app *models.NGOApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.applications[app.ID]
	if !exists {
		return store.ErrApplicationNotFound
	}

	if current.Version != app.Version {
		return store.ErrVersionConflict
	}

	app.Version++
	app.UpdatedAt = time.Now()

	s.applications[app.ID] = app.Clone()

	return nil
}

// List returns applications matching the filter, newest first.
func (s *ApplicationStore) List(ctx context.Context, filter store.ListFilter) ([]*models.NGOApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.NGOApplication, 0)
	for _, app := range s.applications {
		if filter.Matches(app) {
			result = append(result, app.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		// v7 ids order by creation
		return result[i].ID.String() > result[j].ID.String()
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Delete removes an application.
func (s *ApplicationStore) Delete(ctx context.Context, appID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.applications[appID]; !exists {
		return store.ErrApplicationNotFound
	}

	delete(s.applications, appID)
	return nil
}
