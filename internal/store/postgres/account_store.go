package postgres

import (
	"context"
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

const accountTable = "accounts"

var accountColumns = []string{"account_id", "email", "password_hash", "role", "application_id", "created_at"}

type accountRow struct {
	AccountID     uuid.UUID  `db:"account_id"`
	Email         string     `db:"email"`
	PasswordHash  string     `db:"password_hash"`
	Role          string     `db:"role"`
	ApplicationID *uuid.UUID `db:"application_id"`
	CreatedAt     time.Time  `db:"created_at"`
}

// AccountStore implements store.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new PostgreSQL-backed account store.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Create inserts a new account.
func (s *AccountStore) Create(ctx context.Context, account *models.Account) error {
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))

	query, args, err := psql().
		Insert(accountTable).
		Columns(accountColumns...).
		Values(account.AccountID, account.Email, account.PasswordHash, account.Role, account.ApplicationID, account.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert account query: %w", err)
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return store.ErrAccountAlreadyExists
		}
		return fmt.Errorf("failed to create account: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("account_id", account.AccountID.String()).
		Str("role", account.Role).
		Msg("Created account")

	return nil
}

// Get retrieves an account by ID.
func (s *AccountStore) Get(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	return s.getWhere(ctx, sq.Eq{"account_id": accountID})
}

// GetByEmail retrieves an account by email.
func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.getWhere(ctx, sq.Expr("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))))
}

func (s *AccountStore) getWhere(ctx context.Context, pred sq.Sqlizer) (*models.Account, error) {
	query, args, err := psql().
		Select(accountColumns...).
		From(accountTable).
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate get account query: %w", err)
	}

	var row accountRow
	if err := pgxscan.Get(ctx, s.pool, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, store.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", mapPostgresError(err))
	}

	return &models.Account{
		AccountID:     row.AccountID,
		Email:         row.Email,
		PasswordHash:  row.PasswordHash,
		Role:          row.Role,
		ApplicationID: row.ApplicationID,
		CreatedAt:     row.CreatedAt,
	}, nil
}
