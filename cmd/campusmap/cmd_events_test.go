package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"campusmap/internal/calendar"
	"campusmap/internal/cluster"
	"campusmap/internal/model"
)

func TestPrintDay(t *testing.T) {
	loc := calendar.ResolveLocation("America/Chicago")
	where := "Science Hall 101"
	evs := []model.Event{
		{ID: "a", Title: "Guest Lecture", Location: &where, Category: model.CategoryAcademic,
			Start: time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 5, 16, 0, 0, 0, time.UTC)},
		{ID: "b", Title: "Pop-up", Category: model.CategorySocial,
			Start: time.Date(2025, 3, 5, 18, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 5, 17, 0, 0, 0, time.UTC)},
	}
	dir := []model.Building{{ID: "sh", Name: "Science Hall", Lat: 32.73, Lng: -97.11}}

	var buf bytes.Buffer
	printDay(&buf, "2025-03-05", loc, evs, cluster.AggregateByLocation(evs, dir))
	out := buf.String()

	assert.Contains(t, out, "2025-03-05 (America/Chicago): 2 events")
	assert.Contains(t, out, "Mar 5 09:00")
	assert.Contains(t, out, "Mar 5 12:00  Mar 5 12:00")
	assert.Contains(t, out, "building:sh")
	assert.Contains(t, out, "1 events could not be placed on the map")
}
