package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/trustbridge/ngoverify/internal/login"
	"github.com/trustbridge/ngoverify/internal/validate"
	"github.com/trustbridge/ngoverify/internal/verification"
)

var (
	errBadRequest   = errors.New("malformed request")
	errUnauthorized = errors.New("not authenticated")
	errForbidden    = errors.New("permission denied")
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings is checked in order with errors.Is.
var errorMappings = []errorMapping{
	{verification.ErrNotFound, http.StatusNotFound, "NotFound"},
	{verification.ErrInvalidDocType, http.StatusBadRequest, "InvalidDocType"},
	{verification.ErrMissingDocument, http.StatusBadRequest, "MissingDocument"},
	{verification.ErrMissingReason, http.StatusBadRequest, "MissingReason"},
	{validate.ErrInvalidRegistration, http.StatusBadRequest, "InvalidRegistration"},
	{validate.ErrInvalidType, http.StatusUnsupportedMediaType, "InvalidType"},
	{validate.ErrTooLarge, http.StatusRequestEntityTooLarge, "TooLarge"},
	{verification.ErrAlreadyReviewed, http.StatusConflict, "AlreadyReviewed"},
	{verification.ErrAlreadyDecided, http.StatusConflict, "AlreadyDecided"},
	{verification.ErrNotRejected, http.StatusConflict, "NotRejected"},
	{verification.ErrConflict, http.StatusConflict, "Conflict"},
	{verification.ErrEmailTaken, http.StatusConflict, "EmailTaken"},
	{login.ErrInvalidCredentials, http.StatusUnauthorized, "InvalidCredentials"},
	{errBadRequest, http.StatusBadRequest, "BadRequest"},
	{errUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{errForbidden, http.StatusForbidden, "Forbidden"},
}

// writeError maps err onto a status code and error body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var blocked *login.BlockedError
	if errors.As(err, &blocked) {
		writeJSON(w, http.StatusForbidden, errorResponse{
			Code:    string(blocked.Decision.Code),
			Message: blocked.Decision.Message(),
			Payload: blocked.Decision.Payload(),
		})
		return
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Code: "TooLarge", Message: "request body too large"})
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeJSON(w, m.status, errorResponse{Code: m.code, Message: err.Error()})
			return
		}
	}

	zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "Internal", Message: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}
