package feed

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"campusmap/internal/events"
	appLog "campusmap/internal/log"
)

// vevent is a parsed VEVENT before recurrence expansion.
type vevent struct {
	UID string
	Seq int

	Summary     string
	Description string
	Location    string
	URL         string
	Categories  []string
	Lat, Lng    *float64

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID (if present)
	IsOverride bool       // true if this VEVENT overrides one recurring instance
}

// parseICS parses a single ICS payload. Broken VEVENTs are logged and
// skipped. Floating times are read in loc.
func parseICS(src Source, body []byte, loc *time.Location) ([]vevent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	out := make([]vevent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp, loc)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		out = append(out, ev)
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(out))
	return out, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (vevent, error) {
	var out vevent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if seqProp := ve.GetProperty(ical.ComponentPropertySequence); seqProp != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(seqProp.Value)); err == nil {
			out.Seq = n
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty("URL"); p != nil {
		out.URL = p.Value
	}
	for _, p := range ve.GetProperties("CATEGORIES") {
		for _, c := range strings.Split(p.Value, ",") {
			if c = strings.TrimSpace(c); c != "" {
				out.Categories = append(out.Categories, c)
			}
		}
	}
	if p := ve.GetProperty("GEO"); p != nil {
		out.Lat, out.Lng = parseGeo(p.Value)
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, err
	}
	out.Start = start
	if end, err := ve.GetEndAt(); err == nil {
		out.End = end
	} else {
		out.End = start
	}

	if dtStartProp := ve.GetProperty(ical.ComponentPropertyDtStart); dtStartProp != nil {
		val := dtStartProp.Value
		if vs, ok := dtStartProp.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			out.AllDay = true
		}
		if !strings.Contains(val, "T") {
			out.AllDay = true
		}
		// Floating times and dates carry no zone; the library would read them
		// in the host zone.
		_, hasTZ := dtStartProp.ICalParameters["TZID"]
		if !hasTZ && !strings.HasSuffix(val, "Z") {
			if t, err := parseICSTime(val, loc); err == nil {
				dur := out.End.Sub(out.Start)
				out.Start = t
				out.End = t.Add(dur)
			}
		}
	}

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, zoneFor(p.ICalParameters, loc)); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if ridProp := ve.GetProperty("RECURRENCE-ID"); ridProp != nil {
		if t, err := parseICSTime(ridProp.Value, zoneFor(ridProp.ICalParameters, loc)); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

func zoneFor(params map[string][]string, fallback *time.Location) *time.Location {
	if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
		if l, err := time.LoadLocation(tzs[0]); err == nil {
			return l
		}
	}
	return fallback
}

// parseICSTime parses a basic ICS date or date-time. Values without a "Z"
// suffix are read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}

func parseGeo(v string) (*float64, *float64) {
	parts := strings.Split(v, ";")
	if len(parts) != 2 {
		return nil, nil
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return nil, nil
	}
	return &lat, &lng
}

// toRaw converts one occurrence into an untrusted record for the
// normalizer. Recurring instances get "UID#start" ids.
func toRaw(ev vevent, start, end time.Time, recurring bool) events.RawEvent {
	id := ev.UID
	if recurring {
		id = ev.UID + "#" + start.UTC().Format(time.RFC3339)
	}
	startS := start.Format(time.RFC3339)
	endS := end.Format(time.RFC3339)

	raw := events.RawEvent{
		ID:    &id,
		Title: strPtr(ev.Summary),
		Start: &startS,
		End:   &endS,
		Lat:   ev.Lat,
		Lng:   ev.Lng,
	}
	if ev.Description != "" {
		raw.Description = strPtr(ev.Description)
	}
	if ev.Location != "" {
		raw.Location = strPtr(ev.Location)
	}
	if ev.URL != "" {
		raw.URL = strPtr(ev.URL)
	}
	tags := make([]any, len(ev.Categories))
	for i, c := range ev.Categories {
		tags[i] = c
	}
	raw.Tags = tags
	category := string(events.InferCategory(ev.Categories))
	raw.Category = &category
	return raw
}

func strPtr(s string) *string { return &s }
