package login

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/trustbridge/ngoverify/internal/auth"
	"github.com/trustbridge/ngoverify/internal/blob"
	"github.com/trustbridge/ngoverify/internal/gate"
	"github.com/trustbridge/ngoverify/internal/models"
	"github.com/trustbridge/ngoverify/internal/store"
	"github.com/trustbridge/ngoverify/internal/store/memory"
	"github.com/trustbridge/ngoverify/internal/validate"
	"github.com/trustbridge/ngoverify/internal/verification"
	"golang.org/x/crypto/bcrypt"
)

var pdfData = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type testEnv struct {
	login    *Service
	verify   *verification.Service
	apps     *memory.ApplicationStore
	accounts *memory.AccountStore
	tokens   *auth.TokenManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	apps := memory.NewApplicationStore()
	accounts := memory.NewAccountStore()
	tokens, err := auth.NewTokenManager([]byte(strings.Repeat("k", auth.MinSecretLength)), time.Hour)
	require.NoError(t, err)

	return &testEnv{
		login:    NewService(accounts, gate.New(apps), tokens, Config{BcryptCost: bcrypt.MinCost}),
		verify:   verification.NewService(apps, accounts, blob.NewMemoryStore(), nil, verification.Config{BcryptCost: bcrypt.MinCost}),
		apps:     apps,
		accounts: accounts,
		tokens:   tokens,
	}
}

func (e *testEnv) register(t *testing.T, email, password string) *models.NGOApplication {
	t.Helper()
	docs := make(map[models.DocumentType]validate.File)
	for _, dt := range models.RequiredDocumentTypes {
		docs[dt] = validate.File{Name: string(dt) + ".pdf", ContentType: "application/pdf", Data: pdfData}
	}
	app, err := e.verify.CreateApplication(context.Background(), verification.CreateApplicationInput{
		Registration: validate.Registration{
			OrganizationName: "Helping Hands",
			ContactName:      "Jo Smith",
			Email:            email,
			Password:         password,
		},
		Documents: docs,
	})
	require.NoError(t, err)
	return app
}

func requireBlocked(t *testing.T, err error, code gate.Code) *BlockedError {
	t.Helper()
	var blocked *BlockedError
	require.True(t, errors.As(err, &blocked), "expected BlockedError, got %v", err)
	require.Equal(t, code, blocked.Decision.Code)
	return blocked
}

func TestLogin_Credentials(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.register(t, "org@example.org", "correct-horse")

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "unknown email", email: "nobody@example.org", password: "correct-horse"},
		{name: "wrong password", email: "org@example.org", password: "battery-staple"},
		{name: "empty password", email: "org@example.org", password: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.login.Login(ctx, tt.email, tt.password, "203.0.113.1")
			require.ErrorIs(t, err, ErrInvalidCredentials)
			require.Nil(t, res)
		})
	}
}

func TestLogin_PendingApplication(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.register(t, "org@example.org", "correct-horse")

	_, err := env.login.Login(ctx, " ORG@example.org ", "correct-horse", "203.0.113.1")
	blocked := requireBlocked(t, err, gate.CodePendingApproval)
	require.Equal(t, "Helping Hands", blocked.Decision.OrganizationName)
	require.Equal(t, "org@example.org", blocked.Decision.Email)
}

func TestLogin_DocumentsRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	app := env.register(t, "org@example.org", "correct-horse")

	require.NoError(t, env.verify.RejectDocument(ctx, app.ID, models.DocOrganizationalLicense, "expired", "admin-1"))

	_, err := env.login.Login(ctx, "org@example.org", "correct-horse", "203.0.113.1")
	blocked := requireBlocked(t, err, gate.CodeDocumentsRejected)
	require.Equal(t, []gate.RejectedDocument{
		{DocType: models.DocOrganizationalLicense, RejectionReason: "expired"},
	}, blocked.Decision.RejectedDocuments)

	// resubmitting puts the application back into review
	file := validate.File{Name: "license-2026.pdf", ContentType: "application/pdf", Data: pdfData}
	require.NoError(t, env.verify.ResubmitDocument(ctx, app.ID, models.DocOrganizationalLicense, file))

	_, err = env.login.Login(ctx, "org@example.org", "correct-horse", "203.0.113.1")
	requireBlocked(t, err, gate.CodePendingApproval)
}

func TestLogin_ApplicationRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	app := env.register(t, "org@example.org", "correct-horse")

	require.NoError(t, env.verify.RejectApplication(ctx, app.ID, "admin-1", "Fraudulent registration number"))

	_, err := env.login.Login(ctx, "org@example.org", "correct-horse", "203.0.113.1")
	blocked := requireBlocked(t, err, gate.CodeRejected)
	require.Equal(t, "Fraudulent registration number", blocked.Decision.Reason)
}

func TestLogin_Approved(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	app := env.register(t, "org@example.org", "correct-horse")

	for _, dt := range models.RequiredDocumentTypes {
		_, err := env.verify.ApproveDocument(ctx, app.ID, dt, "admin-1")
		require.NoError(t, err)
	}

	res, err := env.login.Login(ctx, "org@example.org", "correct-horse", "203.0.113.1")
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)

	p, err := env.tokens.Verify(res.Token)
	require.NoError(t, err)
	require.Equal(t, res.Account.AccountID, p.AccountID)
	require.Equal(t, models.RoleOrganization, p.Role)
	require.NotNil(t, p.ApplicationID)
	require.Equal(t, app.ID, *p.ApplicationID)
}

func TestLogin_OrphanedAccount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)

	missing := uuid.New()
	require.NoError(t, env.accounts.Create(ctx, &models.Account{
		AccountID:     uuid.New(),
		Email:         "ghost@example.org",
		PasswordHash:  string(hash),
		Role:          models.RoleOrganization,
		ApplicationID: &missing,
	}))

	_, err = env.login.Login(ctx, "ghost@example.org", "correct-horse", "203.0.113.1")
	requireBlocked(t, err, gate.CodeRejected)
}

func TestCreateAdmin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	account, err := env.login.CreateAdmin(ctx, "Reviewer@Example.org", "admin-password")
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, account.Role)
	require.Nil(t, account.ApplicationID)

	// admins skip the gate
	res, err := env.login.Login(ctx, "reviewer@example.org", "admin-password", "203.0.113.1")
	require.NoError(t, err)

	p, err := env.tokens.Verify(res.Token)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, p.Role)

	_, err = env.login.CreateAdmin(ctx, "reviewer@example.org", "admin-password")
	require.ErrorIs(t, err, store.ErrAccountAlreadyExists)

	_, err = env.login.CreateAdmin(ctx, "reviewer", "admin-password")
	require.ErrorIs(t, err, validate.ErrInvalidRegistration)
}

func TestAuthenticate_SkipsGate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	app := env.register(t, "org@example.org", "correct-horse")
	require.NoError(t, env.verify.RejectDocument(ctx, app.ID, models.DocTaxExemptionCertificate, "unreadable", "admin-1"))

	account, err := env.login.Authenticate(ctx, "org@example.org", "correct-horse", "203.0.113.1")
	require.NoError(t, err)
	require.Equal(t, app.ID, *account.ApplicationID)

	_, err = env.login.Authenticate(ctx, "org@example.org", "wrong-password", "203.0.113.1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	app := env.register(t, "org@example.org", "correct-horse")

	account, err := env.accounts.GetByEmail(ctx, "org@example.org")
	require.NoError(t, err)

	other := uuid.New()
	tests := []struct {
		name      string
		principal *auth.Principal
		wantErr   error
	}{
		{
			name:      "matching account",
			principal: &auth.Principal{AccountID: account.AccountID, Role: models.RoleOrganization, ApplicationID: &app.ID},
		},
		{
			name:      "unknown account",
			principal: &auth.Principal{AccountID: uuid.New(), Role: models.RoleOrganization, ApplicationID: &app.ID},
			wantErr:   ErrStaleSession,
		},
		{
			name:      "role changed",
			principal: &auth.Principal{AccountID: account.AccountID, Role: models.RoleAdmin},
			wantErr:   ErrStaleSession,
		},
		{
			name:      "application changed",
			principal: &auth.Principal{AccountID: account.AccountID, Role: models.RoleOrganization, ApplicationID: &other},
			wantErr:   ErrStaleSession,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.login.Resolve(ctx, tt.principal)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, account.AccountID, got.AccountID)
		})
	}
}
