// Package store defines persistence for applications and accounts.
// Backends live in the memory, postgres and aws subpackages and must
// return the sentinel errors below so callers can match them with errors.Is.
package store

import "errors"

// Sentinel errors for application store operations
var (
	ErrApplicationNotFound      = errors.New("application not found")
	ErrApplicationAlreadyExists = errors.New("application already exists")

	// ErrVersionConflict means the stored application changed since it was read.
	ErrVersionConflict = errors.New("application version conflict")
)

// Sentinel errors for account store operations
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountAlreadyExists = errors.New("account already exists")
)
