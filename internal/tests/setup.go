// Package tests holds end-to-end tests and the API fixtures other packages test against.
package tests

import (
	"context"
	"database/sql"
	"fmt"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/safespace/server/internal/app"
	"github.com/safespace/server/internal/db"
	"github.com/safespace/server/internal/repo/memrepo"
)

const (
	// TestPassword satisfies the password strength rules
	TestPassword = "Secret1!"
	// TestJWTSecret signs tokens in fixture servers
	TestJWTSecret = "test-jwt-secret-at-least-32-characters-long"
)

// API is a running API server
type API struct {
	Server *httptest.Server
	App    *app.App
	Repos  app.Repos
	// Store is the backing store when the API runs in memory
	Store *memrepo.Store
}

// URL returns the server's base URL
func (a *API) URL() string { return a.Server.URL }

// NewMemoryAPI starts the API on an in-memory store. The server is closed on cleanup.
func NewMemoryAPI(t testing.TB, opts app.Options) *API {
	t.Helper()
	store := memrepo.New()
	return start(t, app.MemoryRepos(store), store, opts)
}

// NewPostgresAPI starts the API on DATABASE_URL with a migrated, empty schema.
// The test is skipped when DATABASE_URL is unset.
func NewPostgresAPI(t testing.TB, opts app.Options) (*API, *sql.DB) {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping database test")
	}

	ctx := context.Background()
	database, err := db.Open(ctx, dsn, nil)
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that the test DB exists")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, RunMigrations(database), "migrations must run successfully")
	require.NoError(t, TruncateTables(ctx, database))

	return start(t, app.PostgresRepos(database), nil, opts), database
}

func start(t testing.TB, repos app.Repos, store *memrepo.Store, opts app.Options) *API {
	if opts.JWTSecret == "" {
		opts.JWTSecret = TestJWTSecret
	}
	a := app.New(repos, opts)
	srv := httptest.NewServer(a.Router)
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	return &API{Server: srv, App: a, Repos: repos, Store: store}
}

// RunMigrations applies the embedded migrations
func RunMigrations(database *sql.DB) error {
	return db.Migrate(database)
}

// TruncateTables empties every application table for a clean test state
func TruncateTables(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(ctx, `TRUNCATE TABLE ratings, locations, users,
		refresh_sessions, mfa_challenges, mfa_factors, auth_identities, auth_users RESTART IDENTITY CASCADE`)
	if err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}
