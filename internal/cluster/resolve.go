// Package cluster places events on the campus map. Each event is resolved
// to a position (its own coordinates or a directory building) and events
// sharing a place are grouped into one marker.
package cluster

import (
	"fmt"
	"strings"

	"campusmap/internal/model"
)

// NormalizeForSearch lowercases s, spells out "&" and collapses every run of
// characters outside [a-z0-9] into a single space.
func NormalizeForSearch(s string) string {
	s = strings.ReplaceAll(strings.ToLower(s), "&", "and")

	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteByte(c)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// Resolution is where an event lands on the map.
type Resolution struct {
	Position   *model.Position
	Label      string
	BuildingID string
	Location   string
}

// Resolve places ev. Events carrying coordinates use them directly;
// otherwise the location text is matched against dir in order and the
// first building that matches wins. ok is false when neither applies.
func Resolve(ev model.Event, dir []model.Building) (Resolution, bool) {
	location := ""
	if ev.Location != nil {
		location = *ev.Location
	}

	if ev.HasCoordinates() {
		label := location
		if label == "" {
			label = ev.Title
		}
		return Resolution{
			Position: &model.Position{Lat: *ev.Lat, Lng: *ev.Lng},
			Label:    label,
			Location: location,
		}, true
	}

	if location == "" {
		return Resolution{}, false
	}

	b, ok := matchBuilding(NormalizeForSearch(location), dir)
	if !ok {
		return Resolution{}, false
	}
	return Resolution{
		Position:   &model.Position{Lat: b.Lat, Lng: b.Lng},
		Label:      b.Name,
		BuildingID: b.ID,
		Location:   location,
	}, true
}

func matchBuilding(normalized string, dir []model.Building) (model.Building, bool) {
	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(normalized) {
		tokens[tok] = struct{}{}
	}

	for _, b := range dir {
		// Empty names and tags would match every location; skip them.
		if name := NormalizeForSearch(b.Name); name != "" && strings.Contains(normalized, name) {
			return b, true
		}
		if code := NormalizeForSearch(b.Code); code != "" {
			if _, ok := tokens[code]; ok {
				return b, true
			}
		}
		for _, tag := range b.Tags {
			if t := NormalizeForSearch(tag); t != "" && strings.Contains(normalized, t) {
				return b, true
			}
		}
	}
	return model.Building{}, false
}

// CoordinateKey rounds a coordinate pair to six decimals.
func CoordinateKey(lat, lng float64) string {
	return fmt.Sprintf("%.6f,%.6f", lat, lng)
}

// GroupKey identifies the marker a resolution belongs to. A building id
// takes priority over coordinates, which take priority over location text.
// It returns "" when the resolution carries none of them.
func GroupKey(r Resolution) string {
	switch {
	case r.BuildingID != "":
		return "building:" + r.BuildingID
	case r.Position != nil:
		return "coords:" + CoordinateKey(r.Position.Lat, r.Position.Lng)
	case r.Location != "":
		return "location:" + NormalizeForSearch(r.Location)
	default:
		return ""
	}
}
