package client

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/safespace/server/internal/model"
)

// Profile fetches a profile. A missing profile is nil, nil.
func (c *Client) Profile(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	var resp struct {
		User *model.Profile `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/profile/"+userID.String(), false, nil, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// CreateProfile stores the profile of a user who signed up with Google
func (c *Client) CreateProfile(ctx context.Context, userID uuid.UUID, email, name string) error {
	body := map[string]any{"userId": userID, "email": email}
	if name != "" {
		body["name"] = name
	}
	return c.doJSON(ctx, http.MethodPost, "/api/profile", false, body, nil)
}

// EnsureProfile creates the profile of a Google-only account when the API has none.
// Ratings are keyed by profile, so an account without one cannot rate.
func (c *Client) EnsureProfile(ctx context.Context, user *model.AuthUser) error {
	if user == nil {
		return nil
	}
	profile, err := c.Profile(ctx, user.ID)
	if err != nil {
		return err
	}
	if profile != nil {
		return nil
	}
	return c.CreateProfile(ctx, user.ID, user.Email, user.Name)
}

// Locations lists every location with its ratings
func (c *Client) Locations(ctx context.Context) ([]model.Location, error) {
	var resp struct {
		Locations []model.Location `json:"locations"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/location", false, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Locations, nil
}

// LocationInput is a new map marker
type LocationInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// CreateLocation adds a location and returns its ID
func (c *Client) CreateLocation(ctx context.Context, in LocationInput) (uuid.UUID, error) {
	var resp struct {
		LocationID uuid.UUID `json:"locationId"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/location", true, in, &resp); err != nil {
		return uuid.Nil, err
	}
	return resp.LocationID, nil
}

// Ratings lists every rating, newest first
func (c *Client) Ratings(ctx context.Context) ([]model.Rating, error) {
	var resp struct {
		Ratings []model.Rating `json:"ratings"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/rating", true, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Ratings, nil
}

// RatingInput is a new rating for a location
type RatingInput struct {
	LocationID  uuid.UUID `json:"locationId"`
	Rating      int       `json:"rating"`
	Description *string   `json:"description,omitempty"`
	Time        time.Time `json:"time"`
}

// CreateRating submits a rating
func (c *Client) CreateRating(ctx context.Context, in RatingInput) error {
	return c.doJSON(ctx, http.MethodPost, "/api/rating", true, in, nil)
}
