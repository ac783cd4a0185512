// Package events turns untrusted feed records into validated campus events
// and answers the list queries the map panel makes over them.
package events

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"campusmap/internal/calendar"
	appLog "campusmap/internal/log"
	"campusmap/internal/model"
)

// Normalizer validates raw records. Location is the reference zone used to
// read timestamps that carry no offset; nil means the default zone.
type Normalizer struct {
	Location *time.Location
}

// Normalize runs the default-zone normalizer.
func Normalize(raws []RawEvent) []model.Event {
	return Normalizer{}.Normalize(raws)
}

// Normalize never fails: invalid records are dropped and the survivors are
// returned sorted by start. Records with equal starts keep input order.
func (n Normalizer) Normalize(raws []RawEvent) []model.Event {
	loc := n.Location
	if loc == nil {
		loc = calendar.Default()
	}

	out := make([]model.Event, 0, len(raws))
	dropped := 0
	for i, raw := range raws {
		ev, reason := toEvent(raw, loc)
		if reason != "" {
			dropped++
			appLog.Debug("dropping event record", "index", i, "reason", reason)
			continue
		}
		out = append(out, ev)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})

	if dropped > 0 {
		appLog.Info("normalized events", "kept", len(out), "dropped", dropped)
	}
	return out
}

func toEvent(raw RawEvent, loc *time.Location) (model.Event, string) {
	title := trimmed(raw.Title)
	if title == "" {
		return model.Event{}, "missing title"
	}

	start, ok := parseTimestamp(deref(raw.Start), loc)
	if !ok {
		return model.Event{}, "invalid start"
	}
	end, ok := parseTimestamp(deref(raw.End), loc)
	if !ok {
		end = start
	}

	id := trimmed(raw.ID)
	if id == "" {
		id = trimmed(raw.URL)
	}
	if id == "" {
		return model.Event{}, "missing id"
	}

	ev := model.Event{
		ID:          id,
		Title:       title,
		Description: optional(raw.Description),
		Location:    optional(raw.Location),
		URL:         absoluteURL(raw.URL),
		Start:       start,
		End:         end,
		Category:    parseCategory(raw.Category),
		Tags:        NormalizeTags(raw.Tags),
		Lat:         raw.Lat,
		Lng:         raw.Lng,
	}
	return ev, ""
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp accepts RFC 3339 (fractional seconds optional). Values
// without an offset are read as wall-clock time in loc.
func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeTags keeps trimmed, non-empty string elements of a JSON array in
// order, duplicates included. Anything that is not an array yields an empty
// slice.
func NormalizeTags(v any) []string {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case []string:
		items = make([]any, len(t))
		for i, s := range t {
			items[i] = s
		}
	default:
		return []string{}
	}

	tags := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			tags = append(tags, s)
		}
	}
	return tags
}

// parseCategory passes through only the exact recognized values.
func parseCategory(p *string) model.Category {
	if c, ok := model.ParseCategory(deref(p)); ok {
		return c
	}
	return model.CategoryAcademic
}

func absoluteURL(p *string) *string {
	s := trimmed(p)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func trimmed(p *string) string {
	return strings.TrimSpace(deref(p))
}

func optional(p *string) *string {
	s := trimmed(p)
	if s == "" {
		return nil
	}
	return &s
}
