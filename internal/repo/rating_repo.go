package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safespace/server/internal/model"
)

// RatingRepo stores safety ratings
type RatingRepo interface {
	List(ctx context.Context) ([]model.Rating, error)
	Create(ctx context.Context, rating model.Rating) (model.Rating, error)
}

type ratingRepo struct {
	db *sql.DB
}

// NewRatingRepo creates a new RatingRepo instance
func NewRatingRepo(db *sql.DB) RatingRepo {
	return &ratingRepo{db: db}
}

func (r *ratingRepo) List(ctx context.Context) ([]model.Rating, error) {
	return queryRatings(ctx, r.db)
}

func (r *ratingRepo) Create(ctx context.Context, rating model.Rating) (model.Rating, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO ratings (user_id, location_id, rating, description, time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, rating.UserID, rating.LocationID, rating.Value, rating.Description, rating.Time).Scan(&rating.ID, &rating.CreatedAt)
	if err != nil {
		return model.Rating{}, fmt.Errorf("failed to create rating: %w", err)
	}
	return rating, nil
}

// queryRatings loads ratings newest first, each with the rater's display name
func queryRatings(ctx context.Context, db *sql.DB) ([]model.Rating, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.id, r.user_id, r.location_id, r.rating, r.description, r.time, r.created_at, u.name
		FROM ratings r
		LEFT JOIN users u ON u.id = r.user_id
		ORDER BY r.time DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings: %w", err)
	}
	defer rows.Close()

	ratings := make([]model.Rating, 0)
	for rows.Next() {
		var rt model.Rating
		var name sql.NullString
		if err := rows.Scan(
			&rt.ID,
			&rt.UserID,
			&rt.LocationID,
			&rt.Value,
			&rt.Description,
			&rt.Time,
			&rt.CreatedAt,
			&name,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		author := &model.RatingAuthor{}
		if name.Valid {
			author.Name = &name.String
		}
		rt.User = author
		ratings = append(ratings, rt)
	}
	return ratings, rows.Err()
}
