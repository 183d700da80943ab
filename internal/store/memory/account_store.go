package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/trustbridge/ngoverify/internal/models"
	"github.com/trustbridge/ngoverify/internal/store"
)

// AccountStore implements store.AccountStore using in-memory storage.
type AccountStore struct {
	mu sync.RWMutex

	accounts map[uuid.UUID]*models.Account // account_id -> Account
	byEmail  map[string]uuid.UUID         // lower(email) -> account_id
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[uuid.UUID]*models.Account),
		byEmail:  make(map[string]uuid.UUID),
	}
}

// Create creates a new account in memory.
func (s *AccountStore) Create(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(account.Email)
	if _, exists := s.accounts[account.AccountID]; exists {
		return store.ErrAccountAlreadyExists
	}
	if _, exists := s.byEmail[email]; exists {
		return store.ErrAccountAlreadyExists
	}

	clone := *account
	clone.Email = email
	s.accounts[account.AccountID] = &clone
	s.byEmail[email] = account.AccountID

	return nil
}

// Get retrieves an account by ID.
func (s *AccountStore) Get(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, exists := s.accounts[accountID]
	if !exists {
		return nil, store.ErrAccountNotFound
	}

	clone := *account
	return &clone, nil
}

// GetByEmail retrieves an account by email.
func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accountID, exists := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !exists {
		return nil, store.ErrAccountNotFound
	}

	clone := *s.accounts[accountID]
	return &clone, nil
}
