// Package login verifies credentials and applies the verification gate before
// a session token is issued.
package login

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/trustbridge/ngoverify/internal/auth"
	"github.com/trustbridge/ngoverify/internal/gate"
	"github.com/trustbridge/ngoverify/internal/models"
	"github.com/trustbridge/ngoverify/internal/store"
	"github.com/trustbridge/ngoverify/internal/validate"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrStaleSession means a token outlived the account it was issued for.
	ErrStaleSession = errors.New("session no longer matches an account")
)

// BlockedError is returned when credentials are valid but the organization
// may not sign in yet.
type BlockedError struct {
	Decision gate.Decision
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("login blocked: %s", e.Decision.Code)
}

// Result is a successful login.
type Result struct {
	Token     string
	ExpiresAt time.Time
	Account   *models.Account
}

// Config holds login settings.
type Config struct {
	// BcryptCost is used for accounts created through CreateAdmin. Default: bcrypt.DefaultCost
	BcryptCost int
}

type Service struct {
	accounts store.AccountStore
	gate     *gate.Gate
	tokens   *auth.TokenManager
	cfg      Config
}

func NewService(accounts store.AccountStore, g *gate.Gate, tokens *auth.TokenManager, cfg Config) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		accounts: accounts,
		gate:     g,
		tokens:   tokens,
		cfg:      cfg,
	}
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// compareDummy burns a bcrypt comparison so unknown emails take as long as wrong passwords.
func compareDummy(password string) {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("ngoverify-dummy-password"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// Authenticate checks credentials only. It does not consult the gate, so a
// blocked organization can still reach its own application to resubmit.
func (s *Service) Authenticate(ctx context.Context, email, password, clientIP string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			compareDummy(password)
			log.Info().Str("client_ip", clientIP).Msg("Login failed: unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		log.Info().
			Str("account_id", account.AccountID.String()).
			Str("client_ip", clientIP).
			Msg("Login failed: wrong password")
		return nil, ErrInvalidCredentials
	}

	return account, nil
}

// Resolve reloads the account behind a verified token. Tokens whose account
// has gone, or whose role or application no longer match, fail with ErrStaleSession.
func (s *Service) Resolve(ctx context.Context, p *auth.Principal) (*models.Account, error) {
	account, err := s.accounts.Get(ctx, p.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrStaleSession
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	if account.Role != p.Role || !sameApplication(account.ApplicationID, p.ApplicationID) {
		log.Warn().
			Str("account_id", account.AccountID.String()).
			Str("role", p.Role).
			Msg("Token principal does not match stored account")
		return nil, ErrStaleSession
	}
	return account, nil
}

func sameApplication(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Login checks credentials. Organization accounts must pass the gate; a
// blocking decision is returned as *BlockedError and no token is issued.
func (s *Service) Login(ctx context.Context, email, password, clientIP string) (*Result, error) {
	account, err := s.Authenticate(ctx, email, password, clientIP)
	if err != nil {
		return nil, err
	}

	if account.IsOrganization() {
		if err := s.checkGate(ctx, account, clientIP); err != nil {
			return nil, err
		}
	}

	token, expiresAt, err := s.tokens.IssueToken(account)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("account_id", account.AccountID.String()).
		Str("role", account.Role).
		Str("client_ip", clientIP).
		Msg("Login succeeded")

	return &Result{Token: token, ExpiresAt: expiresAt, Account: account}, nil
}

func (s *Service) checkGate(ctx context.Context, account *models.Account, clientIP string) error {
	if account.ApplicationID == nil {
		log.Warn().Str("account_id", account.AccountID.String()).Msg("Organization account has no application")
		return &BlockedError{Decision: gate.Decision{Code: gate.CodeRejected}}
	}

	decision, err := s.gate.Check(ctx, *account.ApplicationID)
	if err != nil {
		if errors.Is(err, store.ErrApplicationNotFound) {
			log.Warn().
				Str("account_id", account.AccountID.String()).
				Str("app_id", account.ApplicationID.String()).
				Msg("Organization account points at a missing application")
			return &BlockedError{Decision: gate.Decision{Code: gate.CodeRejected}}
		}
		return err
	}

	if !decision.Allowed() {
		log.Info().
			Str("account_id", account.AccountID.String()).
			Str("app_id", account.ApplicationID.String()).
			Str("code", string(decision.Code)).
			Str("client_ip", clientIP).
			Msg("Login blocked by verification status")
		return &BlockedError{Decision: decision}
	}

	return nil
}

// CreateAdmin creates a platform reviewer account.
func (s *Service) CreateAdmin(ctx context.Context, email, password string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validate.Credentials(email, password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	accountID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate account id: %w", err)
	}

	account := &models.Account{
		AccountID:    accountID,
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	log.Info().Str("account_id", accountID.String()).Msg("Admin account created")

	return account, nil
}
