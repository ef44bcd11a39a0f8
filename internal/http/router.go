package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/safespace/server/internal/auth"
	"github.com/safespace/server/internal/http/handlers"
	"github.com/safespace/server/internal/metrics"
	"github.com/safespace/server/internal/middleware"
	"github.com/safespace/server/internal/model"
	"github.com/safespace/server/internal/repo"
)

// Handlers bundles the route handlers
type Handlers struct {
	Auth     *handlers.AuthHandler
	Account  *handlers.AccountHandler
	Profile  *handlers.ProfileHandler
	Location *handlers.LocationHandler
	Rating   *handlers.RatingHandler
}

// RouterConfig carries what the router needs besides handlers
type RouterConfig struct {
	JWT            *auth.JWTService
	Users          repo.UserRepo
	AllowedOrigins []string
	// AccountLimiter throttles /api/signin and /api/signup per IP; nil disables it
	AccountLimiter *middleware.RateLimiter
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(h Handlers, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)
	r.Use(middleware.AuthMiddleware(cfg.JWT, cfg.Users))

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/token", h.Auth.HandleToken)
		r.Get("/identities/google/callback", h.Auth.HandleGoogleCallback)

		// Protected routes (require valid JWT)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession)
			r.Post("/logout", h.Auth.HandleLogout)
			r.Get("/user", h.Auth.HandleUser)
			r.Get("/aal", h.Auth.HandleAAL)
			r.Get("/factors", h.Auth.HandleListFactors)
			r.Post("/factors", h.Auth.HandleEnroll)
			r.Delete("/factors/{id}", h.Auth.HandleUnenroll)
			r.Post("/factors/{id}/challenge", h.Auth.HandleChallenge)
			r.Post("/factors/{id}/verify", h.Auth.HandleVerify)
			r.Get("/identities/google", h.Auth.HandleStartGoogleLink)
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.AccountLimiter != nil {
				r.Use(middleware.RateLimitMiddleware(cfg.AccountLimiter, middleware.GetIPKey))
			}
			r.Post("/signin", h.Account.HandleSignIn)
			r.Post("/signup", h.Account.HandleSignUp)
		})

		r.Get("/profile/{id}", h.Profile.HandleGet)
		r.Post("/profile", h.Profile.HandleCreate)

		r.Get("/location", h.Location.HandleList)
		r.With(middleware.RequireRole(model.RoleUser)).Post("/location", h.Location.HandleCreate)

		r.With(middleware.RequireRole(model.RoleGuest)).Get("/rating", h.Rating.HandleList)
		r.With(middleware.RequireRole(model.RoleGuest)).Post("/rating", h.Rating.HandleCreate)
	})

	return r
}
