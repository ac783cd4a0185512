package shuttle

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"campusmap/internal/model"
)

// StopEntry is a stop shared by one or more routes.
type StopEntry struct {
	Stop   model.ShuttleStop `json:"stop"`
	Routes []string          `json:"routes"`
}

// IndexStops deduplicates stops by id across routes. The first route to
// list a stop supplies its details. Entries are ordered by stop name.
func IndexStops(routes []model.ShuttleRoute) []StopEntry {
	index := make(map[string]int)
	entries := make([]StopEntry, 0)

	for _, r := range routes {
		for _, s := range r.Stops {
			i, ok := index[s.ID]
			if !ok {
				index[s.ID] = len(entries)
				entries = append(entries, StopEntry{Stop: s, Routes: []string{r.Code}})
				continue
			}
			if !contains(entries[i].Routes, r.Code) {
				entries[i].Routes = append(entries[i].Routes, r.Code)
			}
		}
	}

	col := collate.New(language.English)
	sort.SliceStable(entries, func(a, b int) bool {
		return col.CompareString(entries[a].Stop.Name, entries[b].Stop.Name) < 0
	})
	return entries
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
