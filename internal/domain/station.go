package domain

import (
	"errors"
	"fmt"
)

// StationConfig is the static description of one station. It is built once at
// startup and shared read-only by every component.
type StationConfig struct {
	ID         string
	Longitude  float64
	Latitude   float64
	Parameters []Parameter
	ranges     map[Parameter]Range
}

// NewStationConfig validates and builds a station description. Ranges override
// the parameter defaults; parameters without an override use DefaultRange.
func NewStationConfig(id string, lon, lat float64, params []Parameter, ranges map[Parameter]Range) (StationConfig, error) {
	if id == "" {
		return StationConfig{}, errors.New("station id is required")
	}
	if len(params) == 0 {
		return StationConfig{}, fmt.Errorf("station %q: at least one parameter is required", id)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return StationConfig{}, fmt.Errorf("station %q: coordinates out of range (lon=%g lat=%g)", id, lon, lat)
	}

	seen := make(map[Parameter]bool, len(params))
	resolved := make(map[Parameter]Range, len(params))
	for _, p := range params {
		if !p.Valid() {
			return StationConfig{}, fmt.Errorf("station %q: invalid parameter %d", id, int(p))
		}
		if seen[p] {
			return StationConfig{}, fmt.Errorf("station %q: duplicate parameter %s", id, p)
		}
		seen[p] = true
		resolved[p] = p.DefaultRange()
	}
	for p, r := range ranges {
		if !seen[p] {
			return StationConfig{}, fmt.Errorf("station %q: range given for unlisted parameter %s", id, p)
		}
		if r.Min > r.Max {
			return StationConfig{}, fmt.Errorf("station %q: %s range min %g > max %g", id, p, r.Min, r.Max)
		}
		resolved[p] = r
	}

	ps := make([]Parameter, len(params))
	copy(ps, params)
	return StationConfig{ID: id, Longitude: lon, Latitude: lat, Parameters: ps, ranges: resolved}, nil
}

// Range returns the valid range configured for p at this station.
func (s StationConfig) Range(p Parameter) Range {
	if r, ok := s.ranges[p]; ok {
		return r
	}
	return p.DefaultRange()
}

// Reports reports whether the station is configured to measure p.
func (s StationConfig) Reports(p Parameter) bool {
	for _, q := range s.Parameters {
		if q == p {
			return true
		}
	}
	return false
}

// DefaultStations returns the four Douala estuary stations, each reporting
// every known parameter.
func DefaultStations() []StationConfig {
	defs := []struct {
		id       string
		lon, lat float64
	}{
		{"SM 1", 9.4601, 3.8048},
		{"SM 2", 9.4950, 3.9165},
		{"SM 3", 9.5877, 3.9916},
		{"SM 4", 9.6857, 4.0539},
	}

	stations := make([]StationConfig, 0, len(defs))
	for _, d := range defs {
		s, err := NewStationConfig(d.id, d.lon, d.lat, Parameters(), nil)
		if err != nil {
			panic(err) // static table
		}
		stations = append(stations, s)
	}
	return stations
}
