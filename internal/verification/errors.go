package verification

import "errors"

var (
	ErrNotFound        = errors.New("application not found")
	ErrInvalidDocType  = errors.New("invalid document type")
	ErrMissingDocument = errors.New("required document missing")
	ErrAlreadyReviewed = errors.New("document already reviewed")
	ErrAlreadyDecided  = errors.New("application already decided")
	ErrMissingReason   = errors.New("reason is required")
	ErrNotRejected     = errors.New("document is not rejected")
	ErrConflict        = errors.New("application changed concurrently, refetch and retry")
	ErrEmailTaken      = errors.New("an account with this email already exists")
)
