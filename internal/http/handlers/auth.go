package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/safespace/server/internal/auth"
	"github.com/safespace/server/internal/db"
	"github.com/safespace/server/internal/logging"
	"github.com/safespace/server/internal/metrics"
	"github.com/safespace/server/internal/middleware"
	"github.com/safespace/server/internal/model"
	"github.com/safespace/server/internal/repo"
)

const connectGooglePath = "/auth/connect-google"

// AuthHandler serves the provider routes under /auth/v1
type AuthHandler struct {
	authService   *auth.AuthService
	profiles      repo.ProfileRepo
	opts          Options
	logger        *zap.Logger
	tokenLimiter  *middleware.RateLimiter
	verifyLimiter *middleware.RateLimiter
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.AuthService, profiles repo.ProfileRepo, opts Options) *AuthHandler {
	// IP limits: 30 token grants and 20 MFA verifications per 10 minutes
	return &AuthHandler{
		authService:   authService,
		profiles:      profiles,
		opts:          opts,
		logger:        opts.logger().Named("auth_handler"),
		tokenLimiter:  middleware.NewRateLimiter(10*time.Minute, 30),
		verifyLimiter: middleware.NewRateLimiter(10*time.Minute, 20),
	}
}

// Close stops the handler's rate limiters
func (h *AuthHandler) Close() {
	h.tokenLimiter.Close()
	h.verifyLimiter.Close()
}

// tokenRequest is the body of POST /auth/v1/token for every grant type
type tokenRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
	Provider     string `json:"provider"`
	IDToken      string `json:"id_token"`
}

// HandleToken handles POST /auth/v1/token?grant_type=password|refresh_token|id_token
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	if !h.tokenLimiter.Allow(middleware.GetIPKey(r)) {
		middleware.WriteAuthError(w, auth.ErrTooManyAttempts)
		return
	}

	var req tokenRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		session *auth.Session
		err     error
	)
	switch grant := r.URL.Query().Get("grant_type"); grant {
	case "password":
		req.Email = strings.TrimSpace(req.Email)
		if req.Email == "" || req.Password == "" {
			respondWithError(w, http.StatusBadRequest, "email and password are required")
			return
		}
		session, err = h.authService.SignInWithPassword(r.Context(), req.Email, req.Password)
		if err != nil {
			h.logger.Info("password sign-in failed", zap.String("email", logging.MaskEmail(req.Email)), zap.Error(err))
		}
	case "refresh_token":
		if strings.TrimSpace(req.RefreshToken) == "" {
			respondWithError(w, http.StatusBadRequest, "refresh_token is required")
			return
		}
		session, err = h.authService.RefreshSession(r.Context(), strings.TrimSpace(req.RefreshToken))
	case "id_token":
		if req.Provider != "" && req.Provider != auth.ProviderGoogle {
			middleware.WriteAuthError(w, auth.ErrProviderDisabled)
			return
		}
		if req.IDToken == "" {
			respondWithError(w, http.StatusBadRequest, "id_token is required")
			return
		}
		session, err = h.authService.SignInWithIDToken(r.Context(), req.IDToken)
		if err == nil {
			h.ensureProfile(r, session.User)
		}
	default:
		respondWithError(w, http.StatusBadRequest, "unsupported grant_type")
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// ensureProfile creates the users row for an account first seen through Google.
// Ratings reference that row, so without it the account could never rate.
func (h *AuthHandler) ensureProfile(r *http.Request, user *model.AuthUser) {
	if user == nil {
		return
	}
	_, err := h.profiles.GetByID(r.Context(), user.ID)
	if err == nil {
		return
	}
	if !errors.Is(err, repo.ErrNotFound) {
		h.logger.Warn("profile lookup failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		return
	}
	profile := model.Profile{ID: user.ID, Email: user.Email}
	if name := strings.TrimSpace(user.Name); name != "" {
		profile.Name = &name
	}
	if _, err := h.profiles.Create(r.Context(), profile); err != nil && !db.IsUniqueViolation(err) {
		h.logger.Warn("failed to create profile for google user", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
}

// HandleLogout handles POST /auth/v1/logout (protected)
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	if err := h.authService.SignOut(r.Context(), user.ID); err != nil {
		h.fail(w, err)
		return
	}
	middleware.ClearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// userResponse is the user object with its linked identities
type userResponse struct {
	*model.AuthUser
	Identities []model.Identity `json:"identities"`
}

// HandleUser handles GET /auth/v1/user (protected)
func (h *AuthHandler) HandleUser(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	identities, err := h.authService.ListIdentities(r.Context(), user.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, userResponse{AuthUser: user, Identities: identities})
}

type aalResponse struct {
	CurrentLevel model.AAL `json:"currentLevel"`
	NextLevel    model.AAL `json:"nextLevel"`
}

// HandleAAL handles GET /auth/v1/aal (protected)
func (h *AuthHandler) HandleAAL(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.GetClaims(r.Context())
	current, next, err := h.authService.AuthenticatorAssuranceLevel(r.Context(), claims)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, aalResponse{CurrentLevel: current, NextLevel: next})
}

// HandleListFactors handles GET /auth/v1/factors (protected)
func (h *AuthHandler) HandleListFactors(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	factors, err := h.authService.ListFactors(r.Context(), user.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, factors)
}

type enrollRequest struct {
	FactorType   string `json:"factor_type"`
	FriendlyName string `json:"friendly_name"`
}

// HandleEnroll handles POST /auth/v1/factors (protected)
func (h *AuthHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FactorType != "" && req.FactorType != string(model.FactorTOTP) {
		respondWithError(w, http.StatusBadRequest, "factor_type must be totp")
		return
	}

	user, _ := middleware.GetUser(r.Context())
	enrollment, err := h.authService.Enroll(r.Context(), *user, strings.TrimSpace(req.FriendlyName))
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, enrollment)
}

// HandleUnenroll handles DELETE /auth/v1/factors/{id} (protected)
func (h *AuthHandler) HandleUnenroll(w http.ResponseWriter, r *http.Request) {
	factorID, ok := h.factorID(w, r)
	if !ok {
		return
	}
	claims, _ := middleware.GetClaims(r.Context())
	if err := h.authService.Unenroll(r.Context(), claims, factorID); err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": factorID.String()})
}

type challengeResponse struct {
	ID        uuid.UUID `json:"id"`
	ExpiresAt int64     `json:"expires_at"`
}

// HandleChallenge handles POST /auth/v1/factors/{id}/challenge (protected)
func (h *AuthHandler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	factorID, ok := h.factorID(w, r)
	if !ok {
		return
	}
	claims, _ := middleware.GetClaims(r.Context())
	challenge, err := h.authService.Challenge(r.Context(), claims, factorID, getClientIP(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, challengeResponse{ID: challenge.ID, ExpiresAt: challenge.ExpiresAt.Unix()})
}

type verifyRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

// HandleVerify handles POST /auth/v1/factors/{id}/verify (protected)
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	factorID, ok := h.factorID(w, r)
	if !ok {
		return
	}
	var req verifyRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	challengeID, err := uuid.Parse(req.ChallengeID)
	if err != nil || strings.TrimSpace(req.Code) == "" {
		respondWithError(w, http.StatusBadRequest, "challenge_id and code are required")
		return
	}
	if !h.verifyLimiter.Allow(middleware.GetIPKey(r)) {
		middleware.WriteAuthError(w, auth.ErrTooManyAttempts)
		return
	}

	claims, _ := middleware.GetClaims(r.Context())
	session, err := h.authService.Verify(r.Context(), claims, factorID, challengeID, req.Code)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// HandleStartGoogleLink handles GET /auth/v1/identities/google (protected)
func (h *AuthHandler) HandleStartGoogleLink(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	authURL, err := h.authService.StartLink(r.Context(), user.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": authURL})
}

// HandleGoogleCallback handles GET /auth/v1/identities/google/callback. The browser is sent
// back to the connect page, with error and error_code on failure.
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := h.opts.AppURL + connectGooglePath

	if providerErr := q.Get("error"); providerErr != "" {
		h.redirectWithError(w, r, target, q.Get("error_description"), providerErr)
		return
	}

	userID, err := h.authService.CompleteLink(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		if e, ok := auth.AsError(err); ok {
			metrics.AuthFailuresTotal.WithLabelValues(e.Code).Inc()
			h.redirectWithError(w, r, target, e.Message, e.Code)
			return
		}
		h.logger.Error("google link failed", zap.Error(err))
		h.redirectWithError(w, r, target, msgServerError, "server_error")
		return
	}

	h.logger.Info("google account linked", zap.String("user_id", userID.String()))
	http.Redirect(w, r, target+"#", http.StatusFound)
}

func (h *AuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, target, message, code string) {
	if message == "" {
		message = code
	}
	v := url.Values{}
	v.Set("error", message)
	v.Set("error_code", code)
	http.Redirect(w, r, target+"?"+v.Encode(), http.StatusFound)
}

func (h *AuthHandler) factorID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteAuthError(w, auth.ErrFactorNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func (h *AuthHandler) fail(w http.ResponseWriter, err error) {
	if e, ok := auth.AsError(err); ok {
		metrics.AuthFailuresTotal.WithLabelValues(e.Code).Inc()
	}
	respondProviderError(w, h.logger, err)
}
