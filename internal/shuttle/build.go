// Package shuttle compiles the shuttle timetable spreadsheet and a stop
// location lookup into ordered route data.
package shuttle

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	appLog "campusmap/internal/log"
	"campusmap/internal/model"
)

// Column layout of the timetable. Rows shorter than rowWidth are padded.
const (
	colRouteCode = iota
	colRouteName
	colRouteColor
	colServiceLabel
	colServiceDays
	colServiceTZ
	colServiceStart
	colServiceEnd
	colStopSequence
	colStopName
	colStopAddress
	colUnused
	colLatitude
	colLongitude
	colTransferHub
	colTransfersTo
	colDeparturePattern
	colDepartureTimes
	colNotes

	rowWidth
)

const minHeaderColumns = 18

var (
	ErrHeaderShape        = errors.New("unexpected shuttle routes header shape")
	ErrExtraColumns       = errors.New("unexpected extra columns")
	ErrInvalidSequence    = errors.New("invalid stop sequence")
	ErrMissingCoordinates = errors.New("missing stop coordinates")
	ErrRouteConflict      = errors.New("route metadata mismatch")
)

// BuildError is a fatal problem in the timetable. It unwraps to one of the
// Err* sentinels.
type BuildError struct {
	Row    int // 1-based data row, header excluded
	Route  string
	Stop   string
	Detail string
	Err    error
}

func (e *BuildError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "row %d: %v", e.Row, e.Err)
	if e.Route != "" {
		fmt.Fprintf(&b, " for route %s", e.Route)
	}
	if e.Stop != "" {
		fmt.Fprintf(&b, " (stop %q)", e.Stop)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *BuildError) Unwrap() error { return e.Err }

// ReadRows reads the timetable CSV and returns its data rows. Rows may have
// any length; the header must have at least 18 columns.
func ReadRows(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse shuttle routes csv: %w", err)
	}
	if len(records) == 0 || len(records[0]) < minHeaderColumns {
		return nil, ErrHeaderShape
	}
	return records[1:], nil
}

// BuildRoutes turns data rows into routes sorted by code with stops sorted
// by sequence. Incomplete rows are skipped; structural problems abort the
// build with a *BuildError.
func BuildRoutes(rows [][]string, lookup StopLookup) ([]model.ShuttleRoute, error) {
	byCode := make(map[string]*model.ShuttleRoute)
	skipped := 0

	for i, row := range rows {
		rowNum := i + 1
		if len(row) == 0 {
			continue
		}
		cells := pad(row)

		stopName := strings.TrimSpace(cells[colStopName])
		for _, extra := range cells[rowWidth:] {
			if strings.TrimSpace(extra) != "" {
				return nil, &BuildError{Row: rowNum, Stop: stopName, Err: ErrExtraColumns}
			}
		}

		seqRaw := strings.TrimSpace(cells[colStopSequence])
		if blank(cells[colRouteCode]) || blank(cells[colRouteName]) || blank(cells[colRouteColor]) || stopName == "" || seqRaw == "" {
			skipped++
			continue
		}
		// Route metadata is kept byte for byte so whitespace differences
		// between rows surface as conflicts.
		route := routeFromRow(cells)
		code := route.Code

		seq, err := strconv.Atoi(seqRaw)
		if err != nil {
			return nil, &BuildError{Row: rowNum, Route: code, Stop: stopName, Err: ErrInvalidSequence,
				Detail: fmt.Sprintf("%q is not an integer", seqRaw)}
		}

		stopID := NormalizeStopID(stopName)
		coord, ok := lookup[stopID]
		if !ok {
			return nil, &BuildError{Row: rowNum, Route: code, Stop: stopName, Err: ErrMissingCoordinates,
				Detail: fmt.Sprintf("normalized id %q; available stop ids: %s", stopID, strings.Join(lookup.Keys(), ", "))}
		}

		existing, ok := byCode[code]
		if !ok {
			existing = &route
			byCode[code] = existing
		} else if fields := conflictingFields(*existing, route); len(fields) > 0 {
			return nil, &BuildError{Row: rowNum, Route: code, Stop: stopName, Err: ErrRouteConflict,
				Detail: strings.Join(fields, ", ")}
		}

		existing.Stops = append(existing.Stops, model.ShuttleStop{
			ID:               stopID,
			Name:             stopName,
			Sequence:         seq,
			Lat:              coord.Lat,
			Lng:              coord.Lng,
			Address:          clean(cells[colStopAddress]),
			IsTransferHub:    parseBool(cells[colTransferHub]),
			TransfersTo:      splitList(cells[colTransfersTo], "|"),
			DeparturePattern: clean(cells[colDeparturePattern]),
			DepartureTimes:   splitList(cells[colDepartureTimes], ";"),
			Notes:            clean(cells[colNotes]),
		})
	}

	routes := make([]model.ShuttleRoute, 0, len(byCode))
	for _, r := range byCode {
		sort.SliceStable(r.Stops, func(a, b int) bool {
			return r.Stops[a].Sequence < r.Stops[b].Sequence
		})
		routes = append(routes, *r)
	}
	sort.Slice(routes, func(a, b int) bool { return routes[a].Code < routes[b].Code })

	if skipped > 0 {
		appLog.Info("skipped incomplete shuttle rows", "count", skipped)
	}
	return routes, nil
}

func pad(row []string) []string {
	if len(row) >= rowWidth {
		return row
	}
	out := make([]string, rowWidth)
	copy(out, row)
	return out
}

func routeFromRow(cells []string) model.ShuttleRoute {
	return model.ShuttleRoute{
		Code:  cells[colRouteCode],
		Name:  cells[colRouteName],
		Color: cells[colRouteColor],
		Service: model.ShuttleService{
			Label:    cells[colServiceLabel],
			Days:     cells[colServiceDays],
			TimeZone: cells[colServiceTZ],
			Start:    cells[colServiceStart],
			End:      cells[colServiceEnd],
		},
	}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func conflictingFields(a, b model.ShuttleRoute) []string {
	var fields []string
	check := func(name, x, y string) {
		if x != y {
			fields = append(fields, name)
		}
	}
	check("route_name", a.Name, b.Name)
	check("route_color", a.Color, b.Color)
	check("service_label", a.Service.Label, b.Service.Label)
	check("service_days", a.Service.Days, b.Service.Days)
	check("service_tz", a.Service.TimeZone, b.Service.TimeZone)
	check("service_start", a.Service.Start, b.Service.Start)
	check("service_end", a.Service.End, b.Service.End)
	return fields
}

func clean(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes":
		return true
	default:
		return false
	}
}

func splitList(s, sep string) []string {
	out := []string{}
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// BuildFile reads the timetable at csvPath and the lookup at lookupPath and
// builds the routes.
func BuildFile(csvPath, lookupPath string) ([]model.ShuttleRoute, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("open shuttle routes csv: %w", err)
	}
	defer f.Close()

	rows, err := ReadRows(f)
	if err != nil {
		return nil, err
	}
	lookup, err := LoadStopLookup(lookupPath)
	if err != nil {
		return nil, err
	}
	routes, err := BuildRoutes(rows, lookup)
	if err != nil {
		return nil, err
	}
	appLog.Info("built shuttle routes", "routes", len(routes), "csv", csvPath)
	return routes, nil
}

// WriteRoutes writes routes as indented JSON via a temp file and rename.
func WriteRoutes(path string, routes []model.ShuttleRoute) error {
	data, err := json.MarshalIndent(routes, "", "  ")
	if err != nil {
		return fmt.Errorf("encode routes: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write routes: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace routes file: %w", err)
	}
	return nil
}

// LoadRoutes reads a routes file produced by WriteRoutes.
func LoadRoutes(path string) ([]model.ShuttleRoute, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes: %w", err)
	}
	var routes []model.ShuttleRoute
	if err := json.Unmarshal(data, &routes); err != nil {
		return nil, fmt.Errorf("parse routes %s: %w", path, err)
	}
	return routes, nil
}
