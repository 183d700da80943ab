//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/trustbridge/ngoverify/internal/models"
	"github.com/trustbridge/ngoverify/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := NewPool(ctx, &PoolConfig{ConnString: connString})
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup
}

func newApplication(name string, createdAt time.Time) *models.NGOApplication {
	docs := make(map[models.DocumentType]*models.DocumentRecord)
	for _, dt := range models.RequiredDocumentTypes {
		docs[dt] = &models.DocumentRecord{
			Filename:    "documents/" + string(dt),
			ContentType: "application/pdf",
			SizeBytes:   1024,
			UploadedAt:  createdAt,
			Status:      models.StatusPending,
		}
	}
	return &models.NGOApplication{
		ID:                 uuid.New(),
		OrganizationName:   name,
		ContactName:        "Sam Contact",
		Email:              "contact@" + name + ".example.org",
		Location:           models.Location{City: "Nairobi", Country: "Kenya"},
		VerificationStatus: models.StatusPending,
		Documents:          docs,
		CreatedAt:          createdAt,
	}
}

func TestApplicationStoreIntegration(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	// migrations are idempotent
	require.NoError(t, Migrate(ctx, pool))

	st := NewApplicationStore(pool, nil)
	accounts := NewAccountStore(pool)

	t.Run("create get and conditional update", func(t *testing.T) {
		app := newApplication("riverside", time.Now().UTC().Truncate(time.Microsecond))
		require.NoError(t, st.Create(ctx, app))
		require.Equal(t, int64(1), app.Version)

		require.ErrorIs(t, st.Create(ctx, app), store.ErrApplicationAlreadyExists)

		got, err := st.Get(ctx, app.ID)
		require.NoError(t, err)
		require.Equal(t, "riverside", got.OrganizationName)
		require.Equal(t, "Nairobi", got.Location.City)
		require.Len(t, got.Documents, 3)
		require.Equal(t, models.StatusPending, got.Documents[models.DocOrganizationalLicense].Status)

		stale := got.Clone()

		got.Documents[models.DocOrganizationalLicense].Status = models.StatusApproved
		require.NoError(t, st.Update(ctx, got))
		require.Equal(t, int64(2), got.Version)

		stale.VerificationStatus = models.StatusRejected
		require.ErrorIs(t, st.Update(ctx, stale), store.ErrVersionConflict)

		fresh, err := st.Get(ctx, app.ID)
		require.NoError(t, err)
		require.Equal(t, int64(2), fresh.Version)
		require.Equal(t, models.StatusPending, fresh.VerificationStatus)
		require.Equal(t, models.StatusApproved, fresh.Documents[models.DocOrganizationalLicense].Status)
	})

	t.Run("get and update missing", func(t *testing.T) {
		_, err := st.Get(ctx, uuid.New())
		require.ErrorIs(t, err, store.ErrApplicationNotFound)

		ghost := newApplication("ghost", time.Now())
		ghost.Version = 1
		require.ErrorIs(t, st.Update(ctx, ghost), store.ErrApplicationNotFound)
	})

	t.Run("list filters", func(t *testing.T) {
		base := time.Now().Add(time.Hour)
		first := newApplication("harbour-trust", base)
		second := newApplication("harbour-aid", base.Add(time.Minute))
		require.NoError(t, st.Create(ctx, first))
		require.NoError(t, st.Create(ctx, second))

		apps, err := st.List(ctx, store.ListFilter{Search: "HARBOUR"})
		require.NoError(t, err)
		require.Len(t, apps, 2)
		require.Equal(t, second.ID, apps[0].ID)

		second.VerificationStatus = models.StatusApproved
		require.NoError(t, st.Update(ctx, second))

		apps, err = st.List(ctx, store.ListFilter{Status: models.StatusApproved, Search: "harbour"})
		require.NoError(t, err)
		require.Len(t, apps, 1)
		require.Equal(t, second.ID, apps[0].ID)
	})

	t.Run("list search is literal", func(t *testing.T) {
		underscore := newApplication("rain_fund", time.Now().Add(2*time.Hour))
		lookalike := newApplication("rainXfund", time.Now().Add(2*time.Hour))
		percent := newApplication("fund-100%-aid", time.Now().Add(2*time.Hour))
		for _, app := range []*models.NGOApplication{underscore, lookalike, percent} {
			require.NoError(t, st.Create(ctx, app))
		}

		tests := []struct {
			search string
			want   []uuid.UUID
		}{
			{search: "rain_fund", want: []uuid.UUID{underscore.ID}},
			{search: "100%", want: []uuid.UUID{percent.ID}},
			{search: `rain\fund`, want: nil},
		}
		for _, tt := range tests {
			apps, err := st.List(ctx, store.ListFilter{Search: tt.search})
			require.NoError(t, err)

			var got []uuid.UUID
			for _, app := range apps {
				got = append(got, app.ID)
			}
			require.Equal(t, tt.want, got, "search %q", tt.search)
		}
	})

	t.Run("accounts", func(t *testing.T) {
		app := newApplication("account-owner", time.Now())
		require.NoError(t, st.Create(ctx, app))

		acct := &models.Account{
			AccountID:     uuid.New(),
			Email:         "Owner@Example.org",
			PasswordHash:  "hash",
			Role:          models.RoleOrganization,
			ApplicationID: &app.ID,
			CreatedAt:     time.Now(),
		}
		require.NoError(t, accounts.Create(ctx, acct))

		got, err := accounts.GetByEmail(ctx, "owner@example.ORG")
		require.NoError(t, err)
		require.Equal(t, acct.AccountID, got.AccountID)
		require.Equal(t, app.ID, *got.ApplicationID)

		dup := *acct
		dup.AccountID = uuid.New()
		require.ErrorIs(t, accounts.Create(ctx, &dup), store.ErrAccountAlreadyExists)

		_, err = accounts.Get(ctx, uuid.New())
		require.ErrorIs(t, err, store.ErrAccountNotFound)
	})
}
