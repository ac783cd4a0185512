package model

import "time"

// Category is the closed set of event categories shown on the map.
type Category string

const (
	CategoryAcademic Category = "academic"
	CategorySports   Category = "sports"
	CategorySocial   Category = "social"
	CategoryCareer   Category = "career"
	CategoryWellness Category = "wellness"
)

// Categories lists every recognized category in display order.
var Categories = []Category{
	CategoryAcademic,
	CategorySports,
	CategorySocial,
	CategoryCareer,
	CategoryWellness,
}

// ParseCategory reports whether s names a recognized category.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Event is a fully validated campus event produced by the normalizer.
// It is never mutated after construction; a newer feed replaces the whole
// collection.
type Event struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	Description *string `json:"description,omitempty"`
	Location    *string `json:"location,omitempty"`
	URL         *string `json:"url,omitempty"`

	// Start / End are absolute instants. End may precede Start when the
	// source data is malformed; see DisplayEnd.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	Category Category `json:"category"`

	// Tags keep source order and duplicates.
	Tags []string `json:"tags"`

	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`
}

// DisplayEnd returns End, or Start when End precedes it. Display only.
func (e Event) DisplayEnd() time.Time {
	if e.End.Before(e.Start) {
		return e.Start
	}
	return e.End
}

// HasCoordinates reports whether both lat and lng are present.
func (e Event) HasCoordinates() bool {
	return e.Lat != nil && e.Lng != nil
}

// Building is one entry of the campus place directory.
type Building struct {
	ID   string   `yaml:"id" json:"id"`
	Name string   `yaml:"name" json:"name"`
	Code string   `yaml:"code" json:"code"`
	Lat  float64  `yaml:"lat" json:"lat"`
	Lng  float64  `yaml:"lng" json:"lng"`
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Position is a map coordinate.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// EventCluster groups events sharing a resolved position or place.
// Recomputed on every aggregation call.
type EventCluster struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Position   Position `json:"position"`
	BuildingID string   `json:"buildingId,omitempty"`
	Location   string   `json:"location,omitempty"`
	Events     []Event  `json:"events"`
}

// ShuttleService describes when a route runs. All fields must be identical
// across every row of the same route.
type ShuttleService struct {
	Label    string `json:"label"`
	Days     string `json:"days"`
	TimeZone string `json:"timeZone"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

// ShuttleStop is one stop on a route.
type ShuttleStop struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Sequence         int      `json:"sequence"`
	Lat              float64  `json:"lat"`
	Lng              float64  `json:"lng"`
	Address          *string  `json:"address,omitempty"`
	IsTransferHub    bool     `json:"isTransferHub"`
	TransfersTo      []string `json:"transfersTo"`
	DeparturePattern *string  `json:"departurePattern,omitempty"`
	DepartureTimes   []string `json:"departureTimes"`
	Notes            *string  `json:"notes,omitempty"`
}

// ShuttleRoute is a route with its stops ordered by sequence.
type ShuttleRoute struct {
	Code    string         `json:"code"`
	Name    string         `json:"name"`
	Color   string         `json:"color"`
	Service ShuttleService `json:"service"`
	Stops   []ShuttleStop  `json:"stops"`
}

// AssistantEvent is one event entry of a structured assistant reply.
type AssistantEvent struct {
	Title       string   `json:"title"`
	Time        *string  `json:"time,omitempty"`
	Location    *string  `json:"location,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags"`
	URL         *string  `json:"url,omitempty"`
}

// AssistantResponse is the parsed shape of an assistant reply.
type AssistantResponse struct {
	Summary *string          `json:"summary,omitempty"`
	Notes   *string          `json:"notes,omitempty"`
	Events  []AssistantEvent `json:"events"`
}
