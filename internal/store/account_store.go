package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/trustbridge/ngoverify/internal/models"
)

// AccountStore holds login identities.
type AccountStore interface {
	// Create creates a new account.
	// Returns ErrAccountAlreadyExists if the ID or email is already taken.
	Create(ctx context.Context, account *models.Account) error

	// Get retrieves an account by ID.
	// Returns ErrAccountNotFound if the account doesn't exist.
	Get(ctx context.Context, accountID uuid.UUID) (*models.Account, error)

	// GetByEmail retrieves an account by its (case-insensitive) email.
	// Returns ErrAccountNotFound if no account uses the email.
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
}
