package feed

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	"campusmap/internal/events"
	appLog "campusmap/internal/log"
)

const defaultMaxOccurrencesPerEvent = 500

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// RangeStart / RangeEnd define the inclusive time window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps runaway rules. If zero,
	// defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// expand turns parsed VEVENTs into one raw record per occurrence inside the
// window. It handles single events, RRULE recurrence, EXDATE removal and
// RECURRENCE-ID overrides. All-day occurrences span their whole day in the
// event's zone.
func expand(vevents []vevent, cfg ExpandConfig) ([]events.RawEvent, error) {
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Group base events and overrides by UID, keeping first-seen order.
	var order []string
	baseByUID := make(map[string][]vevent)
	overridesByUID := make(map[string][]vevent)
	for _, ev := range vevents {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	out := make([]events.RawEvent, 0)
	for _, uid := range order {
		ov := overridesByUID[uid]
		for _, ev := range baseByUID[uid] {
			if ev.RawRRule == "" {
				out = append(out, expandSingle(ev, ov, cfg)...)
				continue
			}
			occ, hitCap := expandRecurring(ev, ov, cfg)
			if hitCap {
				appLog.Error("expand: truncated occurrences for UID due to cap",
					errors.New("max occurrences reached"),
					"uid", uid,
					"cap", cfg.MaxOccurrencesPerEvent,
				)
			}
			out = append(out, occ...)
		}
	}
	return out, nil
}

func expandSingle(ev vevent, overrides []vevent, cfg ExpandConfig) []events.RawEvent {
	start, end := ev.Start, ev.End
	if ev.AllDay && !end.After(start) {
		end = start.AddDate(0, 0, 1)
	}
	if o, ok := findOverride(overrides, start); ok {
		ev, start, end = o, o.Start, o.End
	}
	if !overlaps(start, end, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []events.RawEvent{toRaw(ev, start, allDayEnd(ev, end), false)}
}

func expandRecurring(ev vevent, overrides []vevent, cfg ExpandConfig) ([]events.RawEvent, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the lower bound by the event's duration so instances already
	// in progress at RangeStart are kept.
	dur := ev.End.Sub(ev.Start)
	if ev.AllDay && dur <= 0 {
		dur = 24 * time.Hour
	}
	rangeStart := cfg.RangeStart.Add(-dur).In(ev.Start.Location())
	rangeEnd := cfg.RangeEnd.In(ev.Start.Location())

	occTimes := set.Between(rangeStart, rangeEnd, true)
	hitCap := false
	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]events.RawEvent, 0, len(occTimes))
	for _, occStart := range occTimes {
		var occEnd time.Time
		if ev.AllDay {
			occStart = time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occEnd = occStart.AddDate(0, 0, 1)
		} else {
			occEnd = occStart.Add(dur)
		}

		baseEv, s, e := ev, occStart, occEnd
		if o, ok := findOverride(overrides, occStart); ok {
			baseEv, s, e = o, o.Start, o.End
		}
		if !overlaps(s, e, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		raw := toRaw(baseEv, s, allDayEnd(baseEv, e), true)
		// Overrides keep the id of the instance they replace.
		id := ev.UID + "#" + occStart.UTC().Format(time.RFC3339)
		raw.ID = &id
		out = append(out, raw)
	}
	return out, hitCap
}

// allDayEnd makes an all-day end inclusive (the last second of the last
// day) so the civil-date window does not spill into the next date.
func allDayEnd(ev vevent, end time.Time) time.Time {
	if ev.AllDay {
		return end.Add(-time.Second)
	}
	return end
}

// findOverride returns the override whose RECURRENCE-ID equals start. When
// several match, the highest SEQUENCE wins.
func findOverride(overrides []vevent, start time.Time) (vevent, bool) {
	var best vevent
	found := false
	for _, ov := range overrides {
		if ov.Recurrence == nil || !ov.Recurrence.Equal(start) {
			continue
		}
		if !found || ov.Seq > best.Seq {
			best, found = ov, true
		}
	}
	return best, found
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
