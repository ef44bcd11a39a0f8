// Package mapview shapes locations and their ratings for display: marker colours,
// newest-first rating lists and averages.
package mapview

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/gosuri/uitable"

	"github.com/safespace/server/internal/model"
)

const (
	colorMin   = 50
	colorRange = 100

	// Anonymous stands in for raters without a profile name
	Anonymous = "Anonymous"
	NoRatings = "No ratings yet"
)

// CoordsToColor derives a stable marker colour from a position
func CoordsToColor(lat, lng float64) string {
	normLat := (lat + 90) / 180
	normLng := (lng + 180) / 360

	r := channel(normLat)
	g := channel(normLng)
	b := channel((normLat + normLng) / 2)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func channel(norm float64) int {
	return int(math.Round(norm*colorRange + colorMin))
}

// Card is one rating as shown in a marker popup
type Card struct {
	Author      string `json:"author"`
	Rating      int    `json:"rating"`
	Time        string `json:"time"`
	Description string `json:"description,omitempty"`
}

// Marker is a location with everything needed to draw and describe it
type Marker struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Color       string  `json:"color"`
	Average     float64 `json:"average"`
	Ratings     []Card  `json:"ratings"`
}

// Build converts locations to markers, ratings newest first
func Build(locations []model.Location) []Marker {
	markers := make([]Marker, 0, len(locations))
	for _, loc := range locations {
		ratings := NewestFirst(loc.Ratings)
		cards := make([]Card, 0, len(ratings))
		for _, r := range ratings {
			card := Card{
				Author: AuthorName(r),
				Rating: r.Value,
				Time:   r.Time.Local().Format("Jan 2, 2006 15:04"),
			}
			if r.Description != nil {
				card.Description = *r.Description
			}
			cards = append(cards, card)
		}
		markers = append(markers, Marker{
			ID:          loc.ID.String(),
			Name:        loc.Name,
			Description: loc.Description,
			Latitude:    loc.Latitude,
			Longitude:   loc.Longitude,
			Color:       CoordsToColor(loc.Latitude, loc.Longitude),
			Average:     Average(loc.Ratings),
			Ratings:     cards,
		})
	}
	return markers
}

// NewestFirst returns a copy of ratings ordered by rating time, latest first
func NewestFirst(ratings []model.Rating) []model.Rating {
	out := append([]model.Rating(nil), ratings...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.After(out[j].Time)
	})
	return out
}

// Average is the mean rating, 0 when there are none
func Average(ratings []model.Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Value
	}
	return float64(sum) / float64(len(ratings))
}

// AuthorName is the rater's profile name or Anonymous
func AuthorName(r model.Rating) string {
	if r.User == nil || r.User.Name == nil || strings.TrimSpace(*r.User.Name) == "" {
		return Anonymous
	}
	return *r.User.Name
}

// Table lists markers one per row
func Table(markers []Marker) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("ID", "NAME", "POSITION", "COLOR", "SAFETY", "RATINGS")
	for _, m := range markers {
		safety := "-"
		if len(m.Ratings) > 0 {
			safety = fmt.Sprintf("%.1f/5", m.Average)
		}
		table.AddRow(
			m.ID,
			m.Name,
			fmt.Sprintf("%.5f, %.5f", m.Latitude, m.Longitude),
			m.Color,
			safety,
			len(m.Ratings),
		)
	}
	return table
}

// DetailTable shows one marker with its ratings, newest first
func DetailTable(m Marker) *uitable.Table {
	table := uitable.New()
	table.Wrap = true
	table.MaxColWidth = 120
	table.AddRow("NAME:", m.Name)
	table.AddRow("DESCRIPTION:", m.Description)
	table.AddRow("POSITION:", fmt.Sprintf("%.5f, %.5f", m.Latitude, m.Longitude))
	if len(m.Ratings) == 0 {
		table.AddRow("RATINGS:", NoRatings)
		return table
	}
	table.AddRow("SAFETY:", fmt.Sprintf("%.1f/5 from %d ratings", m.Average, len(m.Ratings)))
	for i, c := range m.Ratings {
		line := fmt.Sprintf("%s  Safety: %d/5  %s", c.Author, c.Rating, c.Time)
		if c.Description != "" {
			line += "  Description: " + c.Description
		}
		table.AddRow(fmt.Sprintf("%d/%d", i+1, len(m.Ratings)), line)
	}
	return table
}

// Entry is one rating in a listing across locations
type Entry struct {
	LocationID  string `json:"locationId"`
	Location    string `json:"location"`
	Author      string `json:"author"`
	Rating      int    `json:"rating"`
	Time        string `json:"time"`
	Description string `json:"description,omitempty"`
}

// Entries lists ratings newest first with the name of the rated location. Ratings of
// locations missing from the list keep an empty name.
func Entries(ratings []model.Rating, locations []model.Location) []Entry {
	names := make(map[string]string, len(locations))
	for _, loc := range locations {
		names[loc.ID.String()] = loc.Name
	}
	sorted := NewestFirst(ratings)
	out := make([]Entry, 0, len(sorted))
	for _, r := range sorted {
		e := Entry{
			LocationID: r.LocationID.String(),
			Location:   names[r.LocationID.String()],
			Author:     AuthorName(r),
			Rating:     r.Value,
			Time:       r.Time.Local().Format("Jan 2, 2006 15:04"),
		}
		if r.Description != nil {
			e.Description = *r.Description
		}
		out = append(out, e)
	}
	return out
}

// EntriesTable lists entries one per row
func EntriesTable(entries []Entry) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("TIME", "LOCATION", "SAFETY", "AUTHOR", "DESCRIPTION")
	if len(entries) == 0 {
		table.AddRow(NoRatings)
		return table
	}
	for _, e := range entries {
		location := e.Location
		if location == "" {
			location = e.LocationID
		}
		table.AddRow(e.Time, location, fmt.Sprintf("%d/5", e.Rating), e.Author, e.Description)
	}
	return table
}
