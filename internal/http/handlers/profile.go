package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/safespace/server/internal/model"
	"github.com/safespace/server/internal/repo"
)

// ProfileHandler serves /api/profile
type ProfileHandler struct {
	profiles repo.ProfileRepo
	logger   *zap.Logger
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profiles repo.ProfileRepo, opts Options) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: opts.logger().Named("profile_handler")}
}

type profileResponse struct {
	User *model.Profile `json:"user"`
}

// HandleGet handles GET /api/profile/{id}. A missing or unreadable profile is {user:null}.
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondJSON(w, http.StatusOK, profileResponse{})
		return
	}
	profile, err := h.profiles.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Debug("profile lookup failed", zap.String("id", id.String()), zap.Error(err))
		respondJSON(w, http.StatusOK, profileResponse{})
		return
	}
	respondJSON(w, http.StatusOK, profileResponse{User: &profile})
}

type createProfileRequest struct {
	UserID string  `json:"userId"`
	Email  string  `json:"email"`
	Name   *string `json:"name"`
}

// HandleCreate handles POST /api/profile, called after a Google sign-up. Repeating it
// for an existing profile updates the name.
func (h *ProfileHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.UserID == "" || req.Email == "" {
		respondWithError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, msgWrongType)
		return
	}

	if _, err := h.profiles.Upsert(r.Context(), model.Profile{ID: userID, Email: req.Email, Name: req.Name}); err != nil {
		h.logger.Error("failed to create profile", zap.String("user_id", userID.String()), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, msgServerError)
		return
	}
	respondSuccess(w, "Successfully signed up with Google")
}
