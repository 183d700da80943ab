package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/trustbridge/ngoverify/internal/models"
)

const issuer = "ngoverify"

// MinSecretLength is the shortest accepted HMAC signing secret.
const MinSecretLength = 32

// Claims are the session token claims. Subject is the account ID.
type Claims struct {
	jwt.RegisteredClaims
	Role          string `json:"role"`
	ApplicationID string `json:"app,omitempty"`
}

// TokenManager issues and verifies HS256 session tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a token manager. The secret must be at least
// MinSecretLength bytes and ttl must be positive.
func NewTokenManager(secret []byte, ttl time.Duration) (*TokenManager, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		return nil, errors.New("session TTL must be greater than 0")
	}

	return &TokenManager{secret: secret, ttl: ttl, now: time.Now}, nil
}

// IssueToken creates a signed session token for the account.
func (m *TokenManager) IssueToken(account *models.Account) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.AccountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    issuer,
			ID:        uuid.NewString(),
		},
		Role: account.Role,
	}
	if account.ApplicationID != nil {
		claims.ApplicationID = account.ApplicationID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}
