package shuttle

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Coordinate is one entry of the stop location lookup.
type Coordinate struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Name string  `json:"name,omitempty"`
}

// StopLookup maps a normalized stop id to its coordinates.
type StopLookup map[string]Coordinate

// Keys returns the lookup's stop ids in sorted order.
func (l StopLookup) Keys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadStopLookup reads a JSON object of stop id -> {lat, lng, name}.
func LoadStopLookup(path string) (StopLookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stop lookup: %w", err)
	}
	var lookup StopLookup
	if err := json.Unmarshal(data, &lookup); err != nil {
		return nil, fmt.Errorf("parse stop lookup %s: %w", path, err)
	}
	return lookup, nil
}
