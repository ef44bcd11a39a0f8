package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/safespace/server/internal/db"
	"github.com/safespace/server/internal/metrics"
	"github.com/safespace/server/internal/middleware"
	"github.com/safespace/server/internal/model"
	"github.com/safespace/server/internal/repo"
)

// RatingHandler serves /api/rating
type RatingHandler struct {
	ratings repo.RatingRepo
	logger  *zap.Logger
}

// NewRatingHandler creates a new rating handler
func NewRatingHandler(ratings repo.RatingRepo, opts Options) *RatingHandler {
	return &RatingHandler{ratings: ratings, logger: opts.logger().Named("rating_handler")}
}

type ratingsResponse struct {
	Status  string         `json:"status"`
	Ratings []model.Rating `json:"ratings"`
}

// HandleList handles GET /api/rating (role >= guest)
func (h *RatingHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ratings, err := h.ratings.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list ratings", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, msgServerError)
		return
	}
	respondJSON(w, http.StatusOK, ratingsResponse{Status: "success", Ratings: ratings})
}

type createRatingRequest struct {
	LocationID  any `json:"locationId"`
	Rating      any `json:"rating"`
	Description any `json:"description"`
	Time        any `json:"time"`
}

// HandleCreate handles POST /api/rating (role >= guest)
func (h *RatingHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req *createRatingRequest
	if err := decodeBody(r, &req); err != nil || req == nil {
		respondWithError(w, http.StatusBadRequest, msgMissingFields)
		return
	}

	rating, ok := parseRating(req)
	if !ok {
		respondWithError(w, http.StatusBadRequest, msgWrongType)
		return
	}
	user, _ := middleware.GetUser(r.Context())
	rating.UserID = user.ID

	if _, err := h.ratings.Create(r.Context(), rating); err != nil {
		if db.IsForeignKeyViolation(err) {
			// unknown location, or a user without a profile row
			respondWithError(w, http.StatusBadRequest, msgWrongType)
			return
		}
		h.logger.Error("failed to create rating", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, msgServerError)
		return
	}

	metrics.RatingsCreatedTotal.Inc()
	respondSuccess(w, "Rating created successfully")
}

// parseRating validates the body: a location UUID, an integer rating in 1..5, a parseable
// time and an optional string description
func parseRating(req *createRatingRequest) (model.Rating, bool) {
	locationStr, ok := req.LocationID.(string)
	if !ok {
		return model.Rating{}, false
	}
	locationID, err := uuid.Parse(locationStr)
	if err != nil {
		return model.Rating{}, false
	}

	value, ok := integerValue(req.Rating)
	if !ok || value < 1 || value > 5 {
		return model.Rating{}, false
	}

	t, ok := timeValue(req.Time)
	if !ok {
		return model.Rating{}, false
	}

	var description *string
	switch d := req.Description.(type) {
	case nil:
	case string:
		description = &d
	default:
		return model.Rating{}, false
	}

	return model.Rating{
		LocationID:  locationID,
		Value:       value,
		Description: description,
		Time:        t,
	}, true
}
