package cluster

import (
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"campusmap/internal/calendar"
	appLog "campusmap/internal/log"
	"campusmap/internal/model"
)

// AggregateByLocation groups events by resolved place. Events that cannot
// be placed are left out. Events inside a cluster are ordered by start;
// clusters are ordered by label, then id.
func AggregateByLocation(events []model.Event, dir []model.Building) []model.EventCluster {
	index := make(map[string]int)
	clusters := make([]model.EventCluster, 0)
	unplaced := 0

	for _, ev := range events {
		res, ok := Resolve(ev, dir)
		if !ok {
			unplaced++
			continue
		}
		key := GroupKey(res)
		if key == "" {
			unplaced++
			continue
		}

		if i, ok := index[key]; ok {
			clusters[i].Events = insertByStart(clusters[i].Events, ev)
			continue
		}

		c := model.EventCluster{
			ID:         key,
			Label:      res.Label,
			BuildingID: res.BuildingID,
			Location:   res.Location,
			Events:     []model.Event{ev},
		}
		if res.Position != nil {
			c.Position = *res.Position
		}
		index[key] = len(clusters)
		clusters = append(clusters, c)
	}

	if unplaced > 0 {
		appLog.Debug("events without a map position", "count", unplaced)
	}

	sortByLabel(clusters)
	return clusters
}

// GroupByExactLocation groups only events carrying their own coordinates,
// keyed by the pair rounded to six decimals. Groups are ordered by label.
func GroupByExactLocation(events []model.Event) []model.EventCluster {
	index := make(map[string]int)
	clusters := make([]model.EventCluster, 0)

	for _, ev := range events {
		if !ev.HasCoordinates() {
			continue
		}
		key := CoordinateKey(*ev.Lat, *ev.Lng)
		if i, ok := index[key]; ok {
			clusters[i].Events = insertByStart(clusters[i].Events, ev)
			continue
		}

		label := ev.Title
		location := ""
		if ev.Location != nil {
			location = *ev.Location
			label = location
		}
		index[key] = len(clusters)
		clusters = append(clusters, model.EventCluster{
			ID:       "coords:" + key,
			Label:    label,
			Position: model.Position{Lat: *ev.Lat, Lng: *ev.Lng},
			Location: location,
			Events:   []model.Event{ev},
		})
	}

	sortByLabel(clusters)
	return clusters
}

// ForDate aggregates only the events occurring on date in loc.
func ForDate(events []model.Event, dir []model.Building, date string, loc *time.Location) []model.EventCluster {
	return AggregateByLocation(calendar.FilterOnDate(events, date, loc), dir)
}

// insertByStart appends ev and restores start order. Equal starts keep
// insertion order.
func insertByStart(evs []model.Event, ev model.Event) []model.Event {
	evs = append(evs, ev)
	sort.SliceStable(evs, func(i, j int) bool {
		return evs[i].Start.Before(evs[j].Start)
	})
	return evs
}

func sortByLabel(clusters []model.EventCluster) {
	col := collate.New(language.English)
	sort.SliceStable(clusters, func(i, j int) bool {
		if c := col.CompareString(clusters[i].Label, clusters[j].Label); c != 0 {
			return c < 0
		}
		return clusters[i].ID < clusters[j].ID
	})
}
