package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/safespace/server/internal/client"
	"github.com/safespace/server/internal/mapview"
	"github.com/safespace/server/internal/session"
)

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Browse and add rated locations",
}

var mapListCmd = &cobra.Command{
	Use:   "list",
	Short: "List locations with their safety ratings",
	RunE: func(cmd *cobra.Command, args []string) error {
		locations, err := api.Locations(cmd.Context())
		if err != nil {
			return err
		}
		markers := mapview.Build(locations)
		return render(markers, func() *uitable.Table { return mapview.Table(markers) })
	},
}

var mapShowCmd = &cobra.Command{
	Use:   "show <location-id>",
	Short: "Show a location and its ratings, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		locations, err := api.Locations(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range mapview.Build(locations) {
			if m.ID == id.String() {
				return render(m, func() *uitable.Table { return mapview.DetailTable(m) })
			}
		}
		return &exitMessage{message: "Location not found"}
	},
}

var mapRatingsCmd = &cobra.Command{
	Use:   "ratings",
	Short: "List every rating across locations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return protected(cmd.Context(), func(ctx context.Context, _ session.Snapshot) error {
			ratings, err := api.Ratings(ctx)
			if err != nil {
				return err
			}
			locations, err := api.Locations(ctx)
			if err != nil {
				return err
			}
			entries := mapview.Entries(ratings, locations)
			return render(entries, func() *uitable.Table { return mapview.EntriesTable(entries) })
		})
	},
}

var mapAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a location (requires the user role)",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		description, _ := cmd.Flags().GetString("description")
		lat, _ := cmd.Flags().GetFloat64("lat")
		lng, _ := cmd.Flags().GetFloat64("lng")
		if err := ask("Name", &name); err != nil {
			return err
		}
		if err := ask("Description", &description); err != nil {
			return err
		}

		return protected(cmd.Context(), func(ctx context.Context, _ session.Snapshot) error {
			id, err := api.CreateLocation(ctx, client.LocationInput{
				Name:        name,
				Description: description,
				Latitude:    lat,
				Longitude:   lng,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Location created successfully: %s (marker %s)\n", id, mapview.CoordsToColor(lat, lng))
			return nil
		})
	},
}

var rateCmd = &cobra.Command{
	Use:   "rate <location-id>",
	Short: "Rate the safety of a location from 1 to 5",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		value, _ := cmd.Flags().GetInt("rating")
		description, _ := cmd.Flags().GetString("description")
		at, _ := cmd.Flags().GetString("time")

		in := client.RatingInput{LocationID: id, Rating: value, Time: time.Now().UTC()}
		if strings.TrimSpace(description) != "" {
			in.Description = &description
		}
		if at != "" {
			t, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return &exitMessage{message: "time must be RFC 3339, e.g. 2025-03-01T21:30:00Z"}
			}
			in.Time = t
		}

		return protected(cmd.Context(), func(ctx context.Context, _ session.Snapshot) error {
			if err := api.CreateRating(ctx, in); err != nil {
				return err
			}
			fmt.Println("Rating created successfully")
			return nil
		})
	},
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, &exitMessage{message: fmt.Sprintf("%q is not a valid id", s)}
	}
	return id, nil
}

func init() {
	mapAddCmd.Flags().String("name", "", "location name")
	mapAddCmd.Flags().String("description", "", "additional location information")
	mapAddCmd.Flags().Float64("lat", 0, "latitude")
	mapAddCmd.Flags().Float64("lng", 0, "longitude")
	_ = mapAddCmd.MarkFlagRequired("lat")
	_ = mapAddCmd.MarkFlagRequired("lng")

	rateCmd.Flags().IntP("rating", "r", 0, "safety rating from 1 (unsafe) to 5 (safe)")
	rateCmd.Flags().StringP("description", "d", "", "what made it feel safe or unsafe")
	rateCmd.Flags().String("time", "", "when you were there, RFC 3339 (default now)")
	_ = rateCmd.MarkFlagRequired("rating")

	mapCmd.AddCommand(mapListCmd)
	mapCmd.AddCommand(mapShowCmd)
	mapCmd.AddCommand(mapRatingsCmd)
	mapCmd.AddCommand(mapAddCmd)
}
