// Package feed fetches campus event sources and decodes their payloads
// (JSON exports, iCalendar feeds, calendar pages with JSON-LD) into raw
// records for the event normalizer.
package feed

import (
	"fmt"
	"time"

	"campusmap/internal/calendar"
	"campusmap/internal/events"
)

// DecodeOptions carries what the ICS decoder needs to expand recurrence.
type DecodeOptions struct {
	// Location reads floating ICS times. Nil means the default campus zone.
	Location *time.Location
	// Now anchors the expansion window. Zero means time.Now().
	Now time.Time
	// HorizonDays is how far ahead recurring events are expanded. Zero
	// means 60.
	HorizonDays int
	// LookbackDays keeps recent past occurrences. Zero means 1.
	LookbackDays int
}

// Decode turns a fetched body into raw records according to the source
// kind. The scrape timestamp is only known for JSON exports that carry one.
func Decode(src Source, body []byte, opts DecodeOptions) ([]events.RawEvent, *string, error) {
	switch src.Kind {
	case KindJSON, "":
		f, err := events.DecodeFeed(body)
		if err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", src.ID, err)
		}
		return f.Events, f.ScrapedAt, nil

	case KindICS:
		loc := opts.Location
		if loc == nil {
			loc = calendar.Default()
		}
		vevents, err := parseICS(src, body, loc)
		if err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", src.ID, err)
		}
		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		horizon := opts.HorizonDays
		if horizon <= 0 {
			horizon = 60
		}
		lookback := opts.LookbackDays
		if lookback <= 0 {
			lookback = 1
		}
		raws, err := expand(vevents, ExpandConfig{
			RangeStart: now.AddDate(0, 0, -lookback),
			RangeEnd:   now.AddDate(0, 0, horizon),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", src.ID, err)
		}
		return raws, nil, nil

	case KindHTML:
		raws, err := parseJSONLD(src, body)
		if err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", src.ID, err)
		}
		return raws, nil, nil

	default:
		return nil, nil, fmt.Errorf("decode %s: unknown source kind %q", src.ID, src.Kind)
	}
}
