package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/safespace/server/internal/model"
	"github.com/safespace/server/internal/repo"
)

// LocationHandler serves /api/location
type LocationHandler struct {
	locations repo.LocationRepo
	logger    *zap.Logger
}

// NewLocationHandler creates a new location handler
func NewLocationHandler(locations repo.LocationRepo, opts Options) *LocationHandler {
	return &LocationHandler{locations: locations, logger: opts.logger().Named("location_handler")}
}

type locationsResponse struct {
	Status    string           `json:"status"`
	Locations []model.Location `json:"locations"`
}

// HandleList handles GET /api/location. Every location carries its ratings.
func (h *LocationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	locations, err := h.locations.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list locations", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, msgServerError)
		return
	}
	respondJSON(w, http.StatusOK, locationsResponse{Status: "success", Locations: locations})
}

type createLocationRequest struct {
	Name        any `json:"name"`
	Description any `json:"description"`
	Latitude    any `json:"latitude"`
	Longitude   any `json:"longitude"`
}

type createLocationResponse struct {
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	LocationID uuid.UUID `json:"locationId"`
}

// HandleCreate handles POST /api/location (role >= user)
func (h *LocationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req *createLocationRequest
	if err := decodeBody(r, &req); err != nil || req == nil {
		respondWithError(w, http.StatusBadRequest, msgMissingFields)
		return
	}

	name, okName := req.Name.(string)
	description, okDescription := req.Description.(string)
	latitude, okLat := numberValue(req.Latitude)
	longitude, okLng := numberValue(req.Longitude)
	if !okName || !okDescription || !okLat || !okLng ||
		latitude < -90 || latitude > 90 || longitude < -180 || longitude > 180 {
		respondWithError(w, http.StatusBadRequest, msgWrongType)
		return
	}

	location, err := h.locations.Create(r.Context(), model.Location{
		Name:        name,
		Description: description,
		Latitude:    latitude,
		Longitude:   longitude,
	})
	if err != nil {
		h.logger.Error("failed to create location", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, msgServerError)
		return
	}

	respondJSON(w, http.StatusOK, createLocationResponse{
		Status:     "success",
		Message:    "Location created successfully",
		LocationID: location.ID,
	})
}
