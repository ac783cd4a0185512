package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	appLog "campusmap/internal/log"
)

// RawEvent is one untrusted record from a feed. Every field may be missing
// or null; Tags may hold any JSON value. Decoding is field by field: a
// field holding the wrong JSON type is absent, the record survives.
type RawEvent struct {
	ID          *string  `json:"id"`
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Start       *string  `json:"start"`
	End         *string  `json:"end"`
	Location    *string  `json:"location"`
	URL         *string  `json:"url"`
	Category    *string  `json:"category"`
	Tags        any      `json:"tags"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
}

// UnmarshalJSON accepts any JSON object. String fields that are not
// strings and lat/lng that are not numbers are left nil.
func (r *RawEvent) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = RawEvent{
		ID:          stringValue(obj, "id"),
		Title:       stringValue(obj, "title"),
		Description: stringValue(obj, "description"),
		Start:       stringValue(obj, "start"),
		End:         stringValue(obj, "end"),
		Location:    stringValue(obj, "location"),
		URL:         stringValue(obj, "url"),
		Category:    stringValue(obj, "category"),
		Tags:        obj["tags"],
		Lat:         numberValue(obj, "lat"),
		Lng:         numberValue(obj, "lng"),
	}
	return nil
}

func stringValue(obj map[string]any, key string) *string {
	s, ok := obj[key].(string)
	if !ok {
		return nil
	}
	return &s
}

func numberValue(obj map[string]any, key string) *float64 {
	f, ok := obj[key].(float64)
	if !ok {
		return nil
	}
	return &f
}

// Feed is a decoded events payload.
type Feed struct {
	ScrapedAt *string    `json:"scrapedAt"`
	Events    []RawEvent `json:"events"`
}

// ErrNotJSON is returned when a payload cannot be read as JSON at all.
var ErrNotJSON = errors.New("events feed is not valid JSON")

// DecodeFeed reads either {"scrapedAt":..., "events":[...]} or a bare
// array of events. Elements that do not decode are logged and dropped.
func DecodeFeed(data []byte) (Feed, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return Feed{}, ErrNotJSON
	}

	var feed Feed
	var elems []json.RawMessage

	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return Feed{}, fmt.Errorf("decode events array: %w", err)
		}
	case '{':
		var envelope struct {
			ScrapedAt json.RawMessage `json:"scrapedAt"`
			Events    json.RawMessage `json:"events"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return Feed{}, fmt.Errorf("decode events envelope: %w", err)
		}
		var scrapedAt string
		if json.Unmarshal(envelope.ScrapedAt, &scrapedAt) == nil && scrapedAt != "" {
			feed.ScrapedAt = &scrapedAt
		}
		// A missing or non-array "events" is an empty feed.
		if len(envelope.Events) > 0 {
			if err := json.Unmarshal(envelope.Events, &elems); err != nil {
				appLog.Warn("events field is not an array; treating feed as empty")
				elems = nil
			}
		}
	default:
		// Scalar JSON carries no events.
	}

	feed.Events = make([]RawEvent, 0, len(elems))
	for i, raw := range elems {
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			appLog.Debug("skipping null event record", "index", i)
			continue
		}
		var ev RawEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			appLog.Debug("skipping non-object event record", "index", i, "err", err)
			continue
		}
		feed.Events = append(feed.Events, ev)
	}
	return feed, nil
}
