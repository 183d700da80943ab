package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRegistration wraps field validation failures.
var ErrInvalidRegistration = errors.New("invalid registration")

var fields = validator.New(validator.WithRequiredStructEnabled())

// Registration is the organisation-supplied part of a new application.
type Registration struct {
	OrganizationName   string `json:"organizationName" validate:"required,max=200"`
	ContactName        string `json:"contactName" validate:"required,max=200"`
	Email              string `json:"email" validate:"required,email,max=254"`
	Password           string `json:"-" validate:"required,min=8,max=72"` // bcrypt limit
	Phone              string `json:"phone" validate:"omitempty,max=40"`
	Website            string `json:"website" validate:"omitempty,url,max=500"`
	RegistrationNumber string `json:"registrationNumber" validate:"omitempty,max=100"`
	Address            string `json:"address" validate:"omitempty,max=500"`
	City               string `json:"city" validate:"omitempty,max=100"`
	State              string `json:"state" validate:"omitempty,max=100"`
	Country            string `json:"country" validate:"omitempty,max=100"`
	OrganizationType   string `json:"organizationType" validate:"omitempty,max=100"`
	Description        string `json:"description" validate:"omitempty,max=5000"`
}

// Normalize trims whitespace and lower-cases the email.
func (r *Registration) Normalize() {
	r.OrganizationName = strings.TrimSpace(r.OrganizationName)
	r.ContactName = strings.TrimSpace(r.ContactName)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	r.Website = strings.TrimSpace(r.Website)
	r.RegistrationNumber = strings.TrimSpace(r.RegistrationNumber)
}

// RegistrationFields validates r, returning ErrInvalidRegistration naming the failing fields.
func RegistrationFields(r Registration) error {
	err := fields.Struct(r)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRegistration, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", lowerFirst(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRegistration, strings.Join(msgs, ", "))
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

type credentials struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,min=8,max=72"`
}

// Credentials validates a standalone email and password pair.
func Credentials(email, password string) error {
	if err := fields.Struct(credentials{Email: email, Password: password}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRegistration, err)
	}
	return nil
}
