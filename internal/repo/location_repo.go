package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/safespace/server/internal/model"
)

// LocationRepo stores map locations
type LocationRepo interface {
	// List returns every location with its ratings attached
	List(ctx context.Context) ([]model.Location, error)
	Create(ctx context.Context, location model.Location) (model.Location, error)
}

type locationRepo struct {
	db *sql.DB
}

// NewLocationRepo creates a new LocationRepo instance
func NewLocationRepo(db *sql.DB) LocationRepo {
	return &locationRepo{db: db}
}

func (r *locationRepo) List(ctx context.Context) ([]model.Location, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, latitude, longitude, created_at
		FROM locations
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	locations := make([]model.Location, 0)
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var l model.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Description, &l.Latitude, &l.Longitude, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		l.Ratings = make([]model.Rating, 0)
		index[l.ID] = len(locations)
		locations = append(locations, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate locations: %w", err)
	}
	if len(locations) == 0 {
		return locations, nil
	}

	ratings, err := queryRatings(ctx, r.db)
	if err != nil {
		return nil, err
	}
	for _, rating := range ratings {
		if i, ok := index[rating.LocationID]; ok {
			locations[i].Ratings = append(locations[i].Ratings, rating)
		}
	}
	return locations, nil
}

func (r *locationRepo) Create(ctx context.Context, location model.Location) (model.Location, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO locations (name, description, latitude, longitude)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, location.Name, location.Description, location.Latitude, location.Longitude).Scan(&location.ID, &location.CreatedAt)
	if err != nil {
		return model.Location{}, fmt.Errorf("failed to create location: %w", err)
	}
	location.Ratings = make([]model.Rating, 0)
	return location, nil
}
