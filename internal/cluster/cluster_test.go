package cluster

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusmap/internal/model"
)

func strp(s string) *string { return &s }

func fp(f float64) *float64 { return &f }

var testDirectory = []model.Building{
	{ID: "uc", Name: "University Center", Code: "UC", Lat: 32.7318, Lng: -97.1108, Tags: []string{"student union"}},
	{ID: "nh", Name: "Nedderman Hall", Code: "NH", Lat: 32.7336, Lng: -97.1134},
	{ID: "lib", Name: "Central Library", Code: "LIBR", Lat: 32.7297, Lng: -97.1128, Tags: []string{"library"}},
}

func at(hour int) time.Time {
	return time.Date(2025, 3, 5, hour, 0, 0, 0, time.UTC)
}

func TestNormalizeForSearch(t *testing.T) {
	assert.Equal(t, "arts and crafts room 101", NormalizeForSearch("  Arts & Crafts -- Room #101! "))
	assert.Equal(t, "", NormalizeForSearch("---"))
	assert.Equal(t, "uc", NormalizeForSearch("UC"))
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		ev         model.Event
		wantOK     bool
		wantID     string
		wantLabel  string
		wantCoords *model.Position
	}{
		{
			name:      "name substring",
			ev:        model.Event{Title: "Talk", Location: strp("Rosebud Theatre, University Center")},
			wantOK:    true,
			wantID:    "uc",
			wantLabel: "University Center",
		},
		{
			name:      "code as token",
			ev:        model.Event{Title: "Lab", Location: strp("NH 100")},
			wantOK:    true,
			wantID:    "nh",
			wantLabel: "Nedderman Hall",
		},
		{
			name:   "code inside a word does not match",
			ev:     model.Event{Title: "Lab", Location: strp("Nhance Studio")},
			wantOK: false,
		},
		{
			name:      "alias tag",
			ev:        model.Event{Title: "Mixer", Location: strp("Student Union Ballroom")},
			wantOK:    true,
			wantID:    "uc",
			wantLabel: "University Center",
		},
		{
			name:       "own coordinates win over directory",
			ev:         model.Event{Title: "Pop-up", Location: strp("Central Library Mall"), Lat: fp(32.1), Lng: fp(-97.2)},
			wantOK:     true,
			wantLabel:  "Central Library Mall",
			wantCoords: &model.Position{Lat: 32.1, Lng: -97.2},
		},
		{
			name:       "coordinates without location label with title",
			ev:         model.Event{Title: "Pop-up", Lat: fp(32.1), Lng: fp(-97.2)},
			wantOK:     true,
			wantLabel:  "Pop-up",
			wantCoords: &model.Position{Lat: 32.1, Lng: -97.2},
		},
		{
			name:   "unknown place",
			ev:     model.Event{Title: "Online", Location: strp("Zoom")},
			wantOK: false,
		},
		{
			name:   "no location no coordinates",
			ev:     model.Event{Title: "Mystery"},
			wantOK: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, ok := Resolve(tc.ev, testDirectory)
			require.Equal(t, tc.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tc.wantID, res.BuildingID)
			assert.Equal(t, tc.wantLabel, res.Label)
			if tc.wantCoords != nil {
				require.NotNil(t, res.Position)
				assert.Equal(t, *tc.wantCoords, *res.Position)
			}
		})
	}
}

func TestResolveFirstMatchWins(t *testing.T) {
	dir := []model.Building{
		{ID: "a", Name: "Hall", Lat: 1, Lng: 1},
		{ID: "b", Name: "Science Hall", Lat: 2, Lng: 2},
	}
	res, ok := Resolve(model.Event{Location: strp("Science Hall 204")}, dir)
	require.True(t, ok)
	assert.Equal(t, "a", res.BuildingID)
}

func TestGroupKeyPriority(t *testing.T) {
	pos := &model.Position{Lat: 32.12345649, Lng: -97.1}
	assert.Equal(t, "building:uc", GroupKey(Resolution{BuildingID: "uc", Position: pos, Location: "x"}))
	assert.Equal(t, "coords:32.123456,-97.100000", GroupKey(Resolution{Position: pos, Location: "x"}))
	assert.Equal(t, "location:room 5", GroupKey(Resolution{Location: "Room #5"}))
	assert.Equal(t, "", GroupKey(Resolution{}))
}

func TestAggregateByLocation(t *testing.T) {
	events := []model.Event{
		{ID: "late-uc", Title: "Late", Location: strp("University Center"), Start: at(20), End: at(21)},
		{ID: "nh", Title: "Lab", Location: strp("NH 100"), Start: at(14), End: at(15)},
		{ID: "early-uc", Title: "Early", Location: strp("Student Union"), Start: at(9), End: at(10)},
		{ID: "zoom", Title: "Online", Location: strp("Zoom"), Start: at(9), End: at(10)},
		{ID: "coords", Title: "Food Truck", Location: strp("Arlington Plaza"), Lat: fp(32.7), Lng: fp(-97.1), Start: at(12), End: at(13)},
	}

	clusters := AggregateByLocation(events, testDirectory)
	require.Len(t, clusters, 3)

	assert.Equal(t, "Arlington Plaza", clusters[0].Label)
	assert.Equal(t, "coords:32.700000,-97.100000", clusters[0].ID)
	assert.Empty(t, clusters[0].BuildingID)

	assert.Equal(t, "Nedderman Hall", clusters[1].Label)
	assert.Equal(t, "building:nh", clusters[1].ID)

	uc := clusters[2]
	assert.Equal(t, "University Center", uc.Label)
	assert.Equal(t, "uc", uc.BuildingID)
	assert.Equal(t, model.Position{Lat: 32.7318, Lng: -97.1108}, uc.Position)
	require.Len(t, uc.Events, 2)
	assert.Equal(t, "early-uc", uc.Events[0].ID)
	assert.Equal(t, "late-uc", uc.Events[1].ID)
	assert.Equal(t, "University Center", uc.Location, "first event's location text")
}

func TestAggregateOrderIsTotal(t *testing.T) {
	events := []model.Event{
		{ID: "b", Title: "Same", Lat: fp(2), Lng: fp(2), Start: at(9)},
		{ID: "a", Title: "Same", Lat: fp(1), Lng: fp(1), Start: at(9)},
		{ID: "c", Title: "ábaco", Lat: fp(3), Lng: fp(3), Start: at(9)},
	}

	clusters := AggregateByLocation(events, nil)
	require.Len(t, clusters, 3)
	assert.Equal(t, "ábaco", clusters[0].Label, "accented label sorts with its base letter")
	assert.Equal(t, "coords:1.000000,1.000000", clusters[1].ID)
	assert.Equal(t, "coords:2.000000,2.000000", clusters[2].ID)
}

func TestGroupByExactLocation(t *testing.T) {
	events := []model.Event{
		{ID: "1", Title: "One", Lat: fp(32.7000001), Lng: fp(-97.1), Start: at(15)},
		{ID: "2", Title: "Two", Lat: fp(32.7000004), Lng: fp(-97.1000004), Start: at(10)},
		{ID: "3", Title: "Three", Lat: fp(32.700002), Lng: fp(-97.1), Start: at(11)},
		{ID: "4", Title: "No coords", Location: strp("University Center"), Start: at(11)},
	}

	groups := GroupByExactLocation(events)
	require.Len(t, groups, 2)
	assert.Equal(t, "coords:32.700000,-97.100000", groups[0].ID)
	require.Len(t, groups[0].Events, 2)
	assert.Equal(t, "2", groups[0].Events[0].ID)
	assert.Equal(t, "1", groups[0].Events[1].ID)
	assert.Equal(t, "coords:32.700002,-97.100000", groups[1].ID)
}

func TestGroupByExactLocationOrdersByLabel(t *testing.T) {
	events := []model.Event{
		{ID: "z", Title: "Late", Location: strp("Zeta Hall"), Lat: fp(1), Lng: fp(1), Start: at(9)},
		{ID: "a", Title: "Early", Location: strp("Alpha Hall"), Lat: fp(2), Lng: fp(2), Start: at(10)},
		{ID: "m", Title: "middle lecture", Lat: fp(3), Lng: fp(3), Start: at(11)},
	}

	groups := GroupByExactLocation(events)
	require.Len(t, groups, 3)
	assert.Equal(t, "Alpha Hall", groups[0].Label)
	assert.Equal(t, "middle lecture", groups[1].Label)
	assert.Equal(t, "Zeta Hall", groups[2].Label)
}

func TestForDate(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	events := []model.Event{
		{ID: "today", Title: "Today", Location: strp("UC"), Start: at(15), End: at(16)},
		{ID: "tomorrow", Title: "Tomorrow", Location: strp("UC"), Start: at(15).AddDate(0, 0, 1), End: at(16).AddDate(0, 0, 1)},
	}
	clusters := ForDate(events, testDirectory, "2025-03-05", loc)
	require.Len(t, clusters, 1)
	require.Len(t, clusters[0].Events, 1)
	assert.Equal(t, "today", clusters[0].Events[0].ID)
}

func TestLoadDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildings.yaml")
	doc := `
- id: uc
  name: University Center
  code: UC
  lat: 32.7318
  lng: -97.1108
  tags: [student union]
- id: ""
  name: Nameless
- id: nh
  name: Nedderman Hall
  code: NH
  lat: 32.7336
  lng: -97.1134
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	dir, err := LoadDirectory(path)
	require.NoError(t, err)
	require.Len(t, dir, 2)
	assert.Equal(t, "uc", dir[0].ID)
	assert.Equal(t, []string{"student union"}, dir[0].Tags)
	assert.Equal(t, "nh", dir[1].ID)

	_, err = LoadDirectory(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseDirectoryAcceptsJSON(t *testing.T) {
	dir, err := ParseDirectory([]byte(`[{"id":"lib","name":"Central Library","code":"LIBR","lat":32.7,"lng":-97.1}]`))
	require.NoError(t, err)
	require.Len(t, dir, 1)
	assert.Equal(t, "LIBR", dir[0].Code)
}
