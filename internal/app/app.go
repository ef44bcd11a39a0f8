// Package app assembles the API: repositories, the auth provider, handlers and router.
package app

import (
	"database/sql"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/safespace/server/internal/auth"
	"github.com/safespace/server/internal/events"
	httphandler "github.com/safespace/server/internal/http"
	"github.com/safespace/server/internal/http/handlers"
	"github.com/safespace/server/internal/middleware"
	"github.com/safespace/server/internal/repo"
	"github.com/safespace/server/internal/repo/memrepo"
)

// Repos is every store the API reads and writes
type Repos struct {
	Users      repo.UserRepo
	Identities repo.IdentityRepo
	Factors    repo.FactorRepo
	Challenges repo.ChallengeRepo
	Refresh    repo.RefreshRepo
	Profiles   repo.ProfileRepo
	Locations  repo.LocationRepo
	Ratings    repo.RatingRepo
}

// PostgresRepos backs every store with database
func PostgresRepos(database *sql.DB) Repos {
	return Repos{
		Users:      repo.NewUserRepo(database),
		Identities: repo.NewIdentityRepo(database),
		Factors:    repo.NewFactorRepo(database),
		Challenges: repo.NewChallengeRepo(database),
		Refresh:    repo.NewRefreshRepo(database),
		Profiles:   repo.NewProfileRepo(database),
		Locations:  repo.NewLocationRepo(database),
		Ratings:    repo.NewRatingRepo(database),
	}
}

// MemoryRepos backs every store with store
func MemoryRepos(store *memrepo.Store) Repos {
	return Repos{
		Users:      store.Users(),
		Identities: store.Identities(),
		Factors:    store.Factors(),
		Challenges: store.Challenges(),
		Refresh:    store.Refresh(),
		Profiles:   store.Profiles(),
		Locations:  store.Locations(),
		Ratings:    store.Ratings(),
	}
}

// Options configure the API
type Options struct {
	JWTSecret                string
	AccessTTL                time.Duration
	RefreshTTL               time.Duration
	AppURL                   string
	DefaultRoute             string
	AllowedOrigins           []string
	SecureCookies            bool
	RequireEmailConfirmation bool
	// AccountRequestsPerWindow limits /api/signin and /api/signup per IP per 10 minutes; 0 disables
	AccountRequestsPerWindow int
	Google                   auth.IdentityProvider
	Publisher                events.Publisher
	Logger                   *zap.Logger
}

// App is an assembled API
type App struct {
	Router *chi.Mux
	Auth   *auth.AuthService

	authHandler    *handlers.AuthHandler
	accountLimiter *middleware.RateLimiter
}

// New wires the API on top of repos
func New(repos Repos, opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = time.Hour
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 7 * 24 * time.Hour
	}

	jwtService := auth.NewJWTService(opts.JWTSecret, opts.AccessTTL)
	authService := auth.NewAuthService(jwtService, auth.Repos{
		Users:      repos.Users,
		Identities: repos.Identities,
		Factors:    repos.Factors,
		Challenges: repos.Challenges,
		Refresh:    repos.Refresh,
	}, auth.Options{
		RefreshTTL:               opts.RefreshTTL,
		RequireEmailConfirmation: opts.RequireEmailConfirmation,
		Google:                   opts.Google,
		Publisher:                opts.Publisher,
		Logger:                   opts.Logger,
	})

	hopts := handlers.Options{
		AppURL:        opts.AppURL,
		DefaultRoute:  opts.DefaultRoute,
		RefreshTTL:    opts.RefreshTTL,
		SecureCookies: opts.SecureCookies,
		Logger:        opts.Logger,
	}
	a := &App{Auth: authService, authHandler: handlers.NewAuthHandler(authService, repos.Profiles, hopts)}
	if opts.AccountRequestsPerWindow > 0 {
		a.accountLimiter = middleware.NewRateLimiter(10*time.Minute, opts.AccountRequestsPerWindow)
	}

	a.Router = httphandler.NewRouter(httphandler.Handlers{
		Auth:     a.authHandler,
		Account:  handlers.NewAccountHandler(authService, repos.Profiles, hopts),
		Profile:  handlers.NewProfileHandler(repos.Profiles, hopts),
		Location: handlers.NewLocationHandler(repos.Locations, hopts),
		Rating:   handlers.NewRatingHandler(repos.Ratings, hopts),
	}, httphandler.RouterConfig{
		JWT:            jwtService,
		Users:          repos.Users,
		AllowedOrigins: opts.AllowedOrigins,
		AccountLimiter: a.accountLimiter,
	})
	return a
}

// Close stops the background rate limiter sweeps
func (a *App) Close() {
	a.authHandler.Close()
	if a.accountLimiter != nil {
		a.accountLimiter.Close()
	}
}
