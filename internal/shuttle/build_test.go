package shuttle

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "route_code,route_name,route_color,service_label,service_days,service_tz,service_start,service_end,stop_sequence,stop_name,stop_address,unused,latitude,longitude,is_transfer_hub,transfers_to,departure_pattern,departure_times,notes"

var lookup = StopLookup{
	"central-library":   {Lat: 32.7297, Lng: -97.1128},
	"university-center": {Lat: 32.7318, Lng: -97.1108},
	"cafe-at-maverick":  {Lat: 32.73, Lng: -97.11},
}

func rows(t *testing.T, body string) [][]string {
	t.Helper()
	out, err := ReadRows(strings.NewReader(header + "\n" + body))
	require.NoError(t, err)
	return out
}

func TestNormalizeStopID(t *testing.T) {
	tests := map[string]string{
		"Central Library":    "central-library",
		"central-library":    "central-library",
		"  Café @ Maverick ": "cafe-at-maverick",
		"Arts & Sciences":    "arts-and-sciences",
		"Lot 49 / Bldg. 7":   "lot-49-bldg-7",
		"A+B":                "a-plus-b",
		"--Über---Straße--":  "uber-stra-e",
		"Ñandú":              "nandu",
	}
	for in, want := range tests {
		got := NormalizeStopID(in)
		assert.Equal(t, want, got, "input %q", in)
		assert.Equal(t, got, NormalizeStopID(got), "idempotent for %q", in)
	}
}

func TestBuildRoutes(t *testing.T) {
	body := strings.Join([]string{
		"BLUE,Blue Line,#0064b1,Weekday,Mon-Fri,America/Chicago,07:00,22:00,2,University Center,300 W First St,,,,yes,GREEN | ORANGE,Every 15 min,07:00; 07:15 ;,",
		"BLUE,Blue Line,#0064b1,Weekday,Mon-Fri,America/Chicago,07:00,22:00,1,Central Library,,,,,no,,,,Accessible entrance",
		"GREEN,Green Line,#00a651,Weekday,Mon-Fri,America/Chicago,07:00,20:00,1,central-library",
		",Missing code,#000000,,,,,,1,Central Library",
		"BLUE,Blue Line,#0064b1,Weekday,Mon-Fri,America/Chicago,07:00,22:00,3,Café @ Maverick,,,,,TRUE,,,,",
	}, "\n")

	routes, err := BuildRoutes(rows(t, body), lookup)
	require.NoError(t, err)
	require.Len(t, routes, 2)

	blue := routes[0]
	assert.Equal(t, "BLUE", blue.Code)
	assert.Equal(t, "Weekday", blue.Service.Label)
	require.Len(t, blue.Stops, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{blue.Stops[0].Sequence, blue.Stops[1].Sequence, blue.Stops[2].Sequence})

	lib := blue.Stops[0]
	assert.Equal(t, "central-library", lib.ID)
	assert.Nil(t, lib.Address)
	assert.False(t, lib.IsTransferHub)
	assert.Equal(t, []string{}, lib.TransfersTo)
	assert.Equal(t, []string{}, lib.DepartureTimes)
	require.NotNil(t, lib.Notes)
	assert.Equal(t, "Accessible entrance", *lib.Notes)

	uc := blue.Stops[1]
	assert.True(t, uc.IsTransferHub)
	require.NotNil(t, uc.Address)
	assert.Equal(t, "300 W First St", *uc.Address)
	assert.Equal(t, []string{"GREEN", "ORANGE"}, uc.TransfersTo)
	assert.Equal(t, []string{"07:00", "07:15"}, uc.DepartureTimes)
	require.NotNil(t, uc.DeparturePattern)
	assert.Equal(t, "Every 15 min", *uc.DeparturePattern)
	assert.Equal(t, 32.7318, uc.Lat)

	assert.True(t, blue.Stops[2].IsTransferHub)
	assert.Equal(t, "cafe-at-maverick", blue.Stops[2].ID)

	green := routes[1]
	assert.Equal(t, "GREEN", green.Code)
	require.Len(t, green.Stops, 1)
	assert.Equal(t, "central-library", green.Stops[0].ID, "stop id matches regardless of spelling")
}

func TestBuildRoutesStableSequenceTies(t *testing.T) {
	body := "R,Red,#f00,L,D,TZ,S,E,1,University Center\nR,Red,#f00,L,D,TZ,S,E,1,Central Library\n"
	routes, err := BuildRoutes(rows(t, body), lookup)
	require.NoError(t, err)
	require.Len(t, routes[0].Stops, 2)
	assert.Equal(t, "university-center", routes[0].Stops[0].ID)
	assert.Equal(t, "central-library", routes[0].Stops[1].ID)
}

func TestBuildRoutesErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    error
		contain []string
	}{
		{
			name:    "service label conflict",
			body:    "BLUE,Blue Line,#0064b1,Weekday,Mon-Fri,America/Chicago,07:00,22:00,1,Central Library\nBLUE,Blue Line,#0064b1,Weekend,Mon-Fri,America/Chicago,07:00,22:00,2,University Center",
			want:    ErrRouteConflict,
			contain: []string{"BLUE", "service_label"},
		},
		{
			name:    "trailing space in service label",
			body:    "BLUE,Blue Line,#0064b1,Weekday,Mon-Fri,America/Chicago,07:00,22:00,1,Central Library\nBLUE,Blue Line,#0064b1,Weekday ,Mon-Fri,America/Chicago,07:00,22:00,2,University Center",
			want:    ErrRouteConflict,
			contain: []string{"BLUE", "service_label"},
		},
		{
			name:    "padded route name",
			body:    "BLUE,Blue Line,#0064b1,Weekday,Mon-Fri,America/Chicago,07:00,22:00,1,Central Library\nBLUE, Blue Line,#0064b1,Weekday,Mon-Fri,America/Chicago,07:00,22:00,2,University Center",
			want:    ErrRouteConflict,
			contain: []string{"route_name"},
		},
		{
			name:    "several conflicting fields",
			body:    "BLUE,Blue Line,#0064b1,Weekday,Mon-Fri,America/Chicago,07:00,22:00,1,Central Library\nBLUE,Blue,#000000,Weekday,Mon-Fri,America/Chicago,07:00,23:00,2,University Center",
			want:    ErrRouteConflict,
			contain: []string{"route_name, route_color, service_end"},
		},
		{
			name:    "invalid sequence",
			body:    "BLUE,Blue Line,#0064b1,Weekday,Mon-Fri,America/Chicago,07:00,22:00,first,Central Library",
			want:    ErrInvalidSequence,
			contain: []string{`"first"`},
		},
		{
			name:    "fractional sequence",
			body:    "BLUE,Blue Line,#0064b1,Weekday,Mon-Fri,America/Chicago,07:00,22:00,1.5,Central Library",
			want:    ErrInvalidSequence,
		},
		{
			name:    "missing coordinates lists known ids",
			body:    "BLUE,Blue Line,#0064b1,Weekday,Mon-Fri,America/Chicago,07:00,22:00,1,Engineering Lab",
			want:    ErrMissingCoordinates,
			contain: []string{`"engineering-lab"`, "cafe-at-maverick, central-library, university-center"},
		},
		{
			name:    "extra columns even on skippable rows",
			body:    ",,,,,,,,,,,,,,,,,,,surprise",
			want:    ErrExtraColumns,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildRoutes(rows(t, tc.body), lookup)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)

			var be *BuildError
			require.True(t, errors.As(err, &be))
			for _, c := range tc.contain {
				assert.Contains(t, err.Error(), c)
			}
		})
	}
}

func TestBuildRoutesBlankExtraColumnsAllowed(t *testing.T) {
	body := "BLUE,Blue Line,#0064b1,Weekday,Mon-Fri,America/Chicago,07:00,22:00,1,Central Library,,,,,,,,,,  ,"
	routes, err := BuildRoutes(rows(t, body), lookup)
	require.NoError(t, err)
	require.Len(t, routes, 1)
}

func TestReadRowsHeaderShape(t *testing.T) {
	_, err := ReadRows(strings.NewReader("a,b,c\n1,2,3\n"))
	assert.ErrorIs(t, err, ErrHeaderShape)

	_, err = ReadRows(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrHeaderShape)
}

func TestBuildFileAndWriteRoutes(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "routes.csv")
	lookupPath := filepath.Join(dir, "stops.json")
	outPath := filepath.Join(dir, "out", "routes.json")

	require.NoError(t, os.WriteFile(csvPath, []byte(header+"\nBLUE,Blue Line,#0064b1,Weekday,Mon-Fri,America/Chicago,07:00,22:00,1,Central Library\n"), 0o600))
	require.NoError(t, os.WriteFile(lookupPath, []byte(`{"central-library":{"lat":32.7297,"lng":-97.1128,"name":"Central Library"}}`), 0o600))

	routes, err := BuildFile(csvPath, lookupPath)
	require.NoError(t, err)
	require.NoError(t, WriteRoutes(outPath, routes))

	loaded, err := LoadRoutes(outPath)
	require.NoError(t, err)
	assert.Equal(t, routes, loaded)
}

func TestIndexStops(t *testing.T) {
	body := strings.Join([]string{
		"BLUE,Blue Line,#00f,L,D,TZ,S,E,1,University Center",
		"BLUE,Blue Line,#00f,L,D,TZ,S,E,2,Central Library",
		"GREEN,Green Line,#0f0,L,D,TZ,S,E,1,Central Library",
		"GREEN,Green Line,#0f0,L,D,TZ,S,E,2,Central Library",
	}, "\n")
	routes, err := BuildRoutes(rows(t, body), lookup)
	require.NoError(t, err)

	entries := IndexStops(routes)
	require.Len(t, entries, 2)
	assert.Equal(t, "Central Library", entries[0].Stop.Name)
	assert.Equal(t, []string{"BLUE", "GREEN"}, entries[0].Routes)
	assert.Equal(t, "University Center", entries[1].Stop.Name)
	assert.Equal(t, []string{"BLUE"}, entries[1].Routes)
}
