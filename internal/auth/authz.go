package auth

import (
	"errors"
	"net/http"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/trustbridge/ngoverify/internal/models"
)

var ErrForbidden = errors.New("permission denied")

func knownRole(role string) bool {
	return role == models.RoleAdmin || role == models.RoleOrganization
}

// HasRole reports whether p holds one of roles.
func HasRole(p *Principal, roles ...string) bool {
	return p != nil && slices.Contains(roles, p.Role)
}

// RequireRole returns a middleware that lets through only principals holding
// one of roles. It must run after Middleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized", "not authenticated")
				return
			}
			if !HasRole(p, roles...) {
				log.Warn().
					Str("account_id", p.AccountID.String()).
					Str("role", p.Role).
					Str("path", r.URL.Path).
					Msg("Permission denied")
				writeError(w, http.StatusForbidden, "Forbidden", ErrForbidden.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
