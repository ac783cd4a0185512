package events

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"campusmap/internal/calendar"
	"campusmap/internal/model"
)

// Filter narrows an event list. Zero values disable the corresponding
// criterion.
type Filter struct {
	Search   string
	Date     string
	Location string
	Tag      string
}

// Apply returns the events matching every set criterion, in input order.
// Search is a case-insensitive substring match over title, description,
// location and tags; Location and Tag are case-insensitive exact matches.
func Apply(events []model.Event, f Filter, loc *time.Location) []model.Event {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	location := strings.ToLower(strings.TrimSpace(f.Location))
	tag := strings.ToLower(strings.TrimSpace(f.Tag))

	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if search != "" && !matchesSearch(ev, search) {
			continue
		}
		if !calendar.OccursOnDate(ev, f.Date, loc) {
			continue
		}
		if location != "" && (ev.Location == nil || strings.ToLower(strings.TrimSpace(*ev.Location)) != location) {
			continue
		}
		if tag != "" && !hasTag(ev, tag) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func matchesSearch(ev model.Event, needle string) bool {
	if strings.Contains(strings.ToLower(ev.Title), needle) {
		return true
	}
	if ev.Description != nil && strings.Contains(strings.ToLower(*ev.Description), needle) {
		return true
	}
	if ev.Location != nil && strings.Contains(strings.ToLower(*ev.Location), needle) {
		return true
	}
	for _, t := range ev.Tags {
		if strings.Contains(strings.ToLower(t), needle) {
			return true
		}
	}
	return false
}

func hasTag(ev model.Event, lowered string) bool {
	for _, t := range ev.Tags {
		if strings.ToLower(t) == lowered {
			return true
		}
	}
	return false
}

// UniqueLocations lists distinct event locations. Duplicates are detected
// case-insensitively and the first spelling seen wins.
func UniqueLocations(events []model.Event) []string {
	values := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.Location != nil {
			values = append(values, *ev.Location)
		}
	}
	return uniqueSorted(values)
}

// UniqueTags lists distinct tags across events, deduplicated like
// UniqueLocations.
func UniqueTags(events []model.Event) []string {
	var values []string
	for _, ev := range events {
		values = append(values, ev.Tags...)
	}
	return uniqueSorted(values)
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	col := collate.New(language.English)
	sort.SliceStable(out, func(i, j int) bool {
		return col.CompareString(out[i], out[j]) < 0
	})
	return out
}

var categoryKeywords = []struct {
	category model.Category
	keywords []string
}{
	{model.CategorySports, []string{"sport", "athlet", "game", "intramural"}},
	{model.CategoryCareer, []string{"career", "job", "intern", "recruit", "employment", "network"}},
	{model.CategoryWellness, []string{"wellness", "health", "fitness", "counsel", "therapy", "mindful"}},
	{model.CategorySocial, []string{"social", "student life", "student affairs", "community", "arts", "culture", "entertainment", "celebration"}},
}

// InferCategory guesses a category from free-form tags for sources that do
// not carry one. Rules are checked in order; the default is academic.
func InferCategory(tags []string) model.Category {
	lowered := make([]string, len(tags))
	for i, t := range tags {
		lowered[i] = strings.ToLower(t)
	}
	for _, rule := range categoryKeywords {
		for _, t := range lowered {
			for _, kw := range rule.keywords {
				if strings.Contains(t, kw) {
					return rule.category
				}
			}
		}
	}
	return model.CategoryAcademic
}
