package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/safespace/server/internal/auth"
	"github.com/safespace/server/internal/logging"
	"github.com/safespace/server/internal/middleware"
	"github.com/safespace/server/internal/model"
	"github.com/safespace/server/internal/repo"
)

// AccountHandler serves /api/signin and /api/signup for the web front end
type AccountHandler struct {
	authService *auth.AuthService
	profiles    repo.ProfileRepo
	opts        Options
	logger      *zap.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(authService *auth.AuthService, profiles repo.ProfileRepo, opts Options) *AccountHandler {
	return &AccountHandler{
		authService: authService,
		profiles:    profiles,
		opts:        opts,
		logger:      opts.logger().Named("account_handler"),
	}
}

type credentialsRequest struct {
	Email    any `json:"email"`
	Password any `json:"password"`
	Name     any `json:"name"`
}

type accountResponse struct {
	Status      string        `json:"status"`
	Message     string        `json:"message"`
	RedirectURL string        `json:"redirectUrl,omitempty"`
	Session     *auth.Session `json:"session,omitempty"`
}

// HandleSignIn handles POST /api/signin
func (h *AccountHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	if isBlank(req.Email) || isBlank(req.Password) {
		respondWithError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	email, okEmail := req.Email.(string)
	password, okPassword := req.Password.(string)
	if !okEmail || !okPassword {
		respondWithError(w, http.StatusBadRequest, msgWrongType)
		return
	}

	session, err := h.authService.SignInWithPassword(r.Context(), strings.TrimSpace(email), password)
	if err != nil {
		h.logger.Info("sign-in failed", zap.String("email", logging.MaskEmail(email)), zap.Error(err))
		switch {
		case errors.Is(err, auth.ErrEmailNotConfirmed):
			respondWithError(w, http.StatusAccepted, translate(w, h.logger, err))
		case isProviderError(err):
			respondWithError(w, http.StatusBadRequest, translate(w, h.logger, err))
		default:
			respondWithError(w, http.StatusInternalServerError, msgServerError)
		}
		return
	}

	middleware.SetSessionCookies(w, session.AccessToken, session.RefreshToken,
		h.authService.JWT().AccessTTL(), h.opts.RefreshTTL, h.opts.SecureCookies)
	respondJSON(w, http.StatusOK, accountResponse{
		Status:      "success",
		Message:     "Successfully signed in with email",
		RedirectURL: "/",
		Session:     session,
	})
}

// HandleSignUp handles POST /api/signup. The auth identity is created first, then the
// profile; a failed profile write deletes the identity again.
func (h *AccountHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil || isBlank(req.Email) || isBlank(req.Password) || isBlank(req.Name) {
		respondWithError(w, http.StatusBadRequest, "Not all fields provided: email, password, name")
		return
	}
	email, okEmail := req.Email.(string)
	password, okPassword := req.Password.(string)
	name, okName := req.Name.(string)
	if !okEmail || !okPassword || !okName {
		respondWithError(w, http.StatusBadRequest, msgWrongType)
		return
	}
	name = strings.TrimSpace(name)

	user, err := h.authService.SignUp(r.Context(), auth.SignUpInput{Email: email, Password: password, Name: name})
	if err != nil {
		if isProviderError(err) {
			respondWithError(w, http.StatusBadRequest, translate(w, h.logger, err))
			return
		}
		h.logger.Error("sign-up failed", zap.String("email", logging.MaskEmail(email)), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, msgServerError)
		return
	}

	if _, err := h.profiles.Upsert(r.Context(), model.Profile{ID: user.ID, Email: user.Email, Name: &name}); err != nil {
		h.logger.Error("profile insert failed, rolling back sign-up",
			zap.String("user_id", user.ID.String()), zap.Error(err))
		if delErr := h.authService.DeleteUser(r.Context(), user.ID); delErr != nil {
			h.logger.Error("sign-up rollback failed", zap.String("user_id", user.ID.String()), zap.Error(delErr))
		}
		respondWithError(w, http.StatusInternalServerError, translateOr(w, h.logger, err, msgServerError))
		return
	}

	respondJSON(w, http.StatusOK, accountResponse{
		Status:      "success",
		Message:     fmt.Sprintf("Welcome %s. Please confirm your email", name),
		RedirectURL: "/enable-mfa",
	})
}

func isProviderError(err error) bool {
	_, ok := auth.AsError(err)
	return ok
}
