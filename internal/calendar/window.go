// Package calendar decides which campus-local calendar dates an event
// covers. All projections go through an explicit *time.Location; the
// process-local zone is never consulted.
package calendar

import (
	"sync"
	"time"

	appLog "campusmap/internal/log"
	"campusmap/internal/model"
)

// DefaultTimeZone is the campus reference zone. Every viewer sees the same
// "today" regardless of where they are.
const DefaultTimeZone = "America/Chicago"

// DateLayout is the civil date format used for filters and comparisons.
const DateLayout = "2006-01-02"

var (
	defaultOnce sync.Once
	defaultLoc  *time.Location
)

// Default returns the default reference location. If the zone database is
// unavailable it degrades to UTC rather than the host zone.
func Default() *time.Location {
	defaultOnce.Do(func() {
		loc, err := time.LoadLocation(DefaultTimeZone)
		if err != nil {
			appLog.Error("failed to load default timezone; using UTC", err, "name", DefaultTimeZone)
			loc = time.UTC
		}
		defaultLoc = loc
	})
	return defaultLoc
}

// ResolveLocation loads name, falling back to the default reference zone
// when name is empty or unknown.
func ResolveLocation(name string) *time.Location {
	if name == "" {
		return Default()
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to default", err, "name", name, "default", DefaultTimeZone)
		return Default()
	}
	return loc
}

func orDefault(loc *time.Location) *time.Location {
	if loc == nil {
		return Default()
	}
	return loc
}

// CivilDate formats the calendar date of t in loc as YYYY-MM-DD.
func CivilDate(t time.Time, loc *time.Location) string {
	return t.In(orDefault(loc)).Format(DateLayout)
}

// Today is the civil date of now in loc.
func Today(now time.Time, loc *time.Location) string {
	return CivilDate(now, loc)
}

// ValidDate reports whether s is a well-formed YYYY-MM-DD date.
func ValidDate(s string) bool {
	if len(s) != len(DateLayout) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// DateRange projects the event's start and end into civil dates.
func DateRange(ev model.Event, loc *time.Location) (start, end string) {
	return CivilDate(ev.Start, loc), CivilDate(ev.End, loc)
}

// OccursOnDate reports whether date falls within the event's civil-date
// window [startDate, endDate]. An empty date means no filter.
//
// The window is evaluated literally: when the end date precedes the start
// date no date matches.
func OccursOnDate(ev model.Event, date string, loc *time.Location) bool {
	if date == "" {
		return true
	}
	start, end := DateRange(ev, loc)
	// Fixed-width YYYY-MM-DD strings order the same as the dates.
	return start <= date && date <= end
}

// FilterOnDate returns the events occurring on date, preserving order.
func FilterOnDate(events []model.Event, date string, loc *time.Location) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if OccursOnDate(ev, date, loc) {
			out = append(out, ev)
		}
	}
	return out
}
