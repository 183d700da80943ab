package verification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trustbridge/ngoverify/internal/models"
	"github.com/trustbridge/ngoverify/internal/validate"
	"golang.org/x/crypto/bcrypt"
)

func TestCreateApplication(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending application and account", func(t *testing.T) {
		env := newTestEnv(t)
		in := registrationInput("  Contact@Example.ORG ")

		app, err := env.svc.CreateApplication(ctx, in)
		require.NoError(t, err)
		require.Equal(t, models.StatusPending, app.VerificationStatus)
		require.Equal(t, "contact@example.org", app.Email)
		require.Equal(t, "Accra", app.Location.City)
		require.Equal(t, int64(1), app.Version)
		require.Len(t, app.Documents, 3)
		require.Equal(t, 3, env.blobs.Len())

		for _, dt := range models.RequiredDocumentTypes {
			doc := app.Documents[dt]
			require.NotNil(t, doc, dt)
			require.Equal(t, models.StatusPending, doc.Status)
			require.Equal(t, "application/pdf", doc.ContentType)
			require.Equal(t, int64(len(pdfData)), doc.SizeBytes)
			_, err := env.blobs.Get(doc.Filename)
			require.NoError(t, err)
		}

		account, err := env.accounts.GetByEmail(ctx, "contact@example.org")
		require.NoError(t, err)
		require.Equal(t, models.RoleOrganization, account.Role)
		require.NotNil(t, account.ApplicationID)
		require.Equal(t, app.ID, *account.ApplicationID)
		require.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("correct-horse")))
	})

	tests := []struct {
		name    string
		mutate  func(in *CreateApplicationInput)
		wantErr error
	}{
		{
			name:    "missing document",
			mutate:  func(in *CreateApplicationInput) { delete(in.Documents, models.DocTaxExemptionCertificate) },
			wantErr: ErrMissingDocument,
		},
		{
			name: "unknown document type",
			mutate: func(in *CreateApplicationInput) {
				in.Documents["passport"] = pdf("passport.pdf")
			},
			wantErr: ErrInvalidDocType,
		},
		{
			name: "disallowed file type",
			mutate: func(in *CreateApplicationInput) {
				in.Documents[models.DocOrganizationalLicense] = validate.File{Name: "license.exe", Data: []byte("MZ\x90\x00\x03\x00\x00\x00")}
			},
			wantErr: validate.ErrInvalidType,
		},
		{
			name: "oversized file",
			mutate: func(in *CreateApplicationInput) {
				in.Documents[models.DocOrganizationalLicense] = validate.File{Name: "big.pdf", ContentType: "application/pdf", Data: make([]byte, validate.MaxDocumentSize+1)}
			},
			wantErr: validate.ErrTooLarge,
		},
		{
			name:    "invalid email",
			mutate:  func(in *CreateApplicationInput) { in.Registration.Email = "not-an-email" },
			wantErr: validate.ErrInvalidRegistration,
		},
		{
			name:    "short password",
			mutate:  func(in *CreateApplicationInput) { in.Registration.Password = "short" },
			wantErr: validate.ErrInvalidRegistration,
		},
		{
			name:    "missing organization name",
			mutate:  func(in *CreateApplicationInput) { in.Registration.OrganizationName = "   " },
			wantErr: validate.ErrInvalidRegistration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			in := registrationInput("org@example.org")
			tt.mutate(&in)

			_, err := env.svc.CreateApplication(ctx, in)
			require.ErrorIs(t, err, tt.wantErr)
			require.Zero(t, env.blobs.Len())

			_, err = env.accounts.GetByEmail(ctx, "org@example.org")
			require.Error(t, err)
		})
	}

	t.Run("duplicate email", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.CreateApplication(ctx, registrationInput("org@example.org"))
		require.NoError(t, err)

		_, err = env.svc.CreateApplication(ctx, registrationInput("ORG@example.org"))
		require.ErrorIs(t, err, ErrEmailTaken)
		require.Equal(t, 3, env.blobs.Len())
	})
}
