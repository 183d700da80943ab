package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrInvalidToken = errors.New("invalid token")

// Verify parses and validates a session token and returns its principal.
// Tokens must be HS256, unexpired, carry an expiry and name a known role.
func (m *TokenManager) Verify(tokenStr string) (*Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		log.Debug().Err(err).Msg("JWT parse error")
		return nil, ErrInvalidToken
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	if !knownRole(claims.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	p := &Principal{AccountID: accountID, Role: claims.Role}
	if claims.ApplicationID != "" {
		appID, err := uuid.Parse(claims.ApplicationID)
		if err != nil {
			return nil, fmt.Errorf("%w: bad application id", ErrInvalidToken)
		}
		p.ApplicationID = &appID
	}

	return p, nil
}
