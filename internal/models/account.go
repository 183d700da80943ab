package models

import (
	"time"

	"github.com/google/uuid"
)

// Account roles.
const (
	RoleOrganization = "organization" // NGO contact; login is subject to verification
	RoleAdmin        = "admin"        // platform reviewer
)

// Account is a login identity. Organization accounts are linked to the
// application created alongside them at registration.
type Account struct {
	AccountID     uuid.UUID
	Email         string // lower-cased, unique
	PasswordHash  string // bcrypt
	Role          string
	ApplicationID *uuid.UUID
	CreatedAt     time.Time
}

// IsOrganization reports whether the account is subject to the verification gate.
func (a *Account) IsOrganization() bool {
	return a.Role == RoleOrganization
}
