package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/station-data-ingest/internal/domain"
)

// stationEntry is one element of the station catalogue file.
//
//	[{"id": "SM 1", "longitude": 9.4601, "latitude": 3.8048,
//	  "parameters": ["AIR TEMPERATURE", "TIDE HEIGHT"],
//	  "ranges": {"TIDE HEIGHT": [0, 12]}}]
type stationEntry struct {
	ID         string                `json:"id"`
	Longitude  float64               `json:"longitude"`
	Latitude   float64               `json:"latitude"`
	Parameters []string              `json:"parameters"`
	Ranges     map[string][2]float64 `json:"ranges"`
}

// LoadStations reads and validates a station catalogue.
func LoadStations(path string) ([]domain.StationConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read STATIONS_FILE: %w", err)
	}
	return parseStations(data)
}

func parseStations(data []byte) ([]domain.StationConfig, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var entries []stationEntry
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode station catalogue: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("station catalogue is empty")
	}

	seen := make(map[string]bool, len(entries))
	stations := make([]domain.StationConfig, 0, len(entries))
	for _, e := range entries {
		if seen[e.ID] {
			return nil, fmt.Errorf("station catalogue: duplicate station %q", e.ID)
		}
		seen[e.ID] = true

		params := make([]domain.Parameter, 0, len(e.Parameters))
		for _, name := range e.Parameters {
			p, err := domain.ParseParameter(name)
			if err != nil {
				return nil, fmt.Errorf("station %q: %w", e.ID, err)
			}
			params = append(params, p)
		}

		var ranges map[domain.Parameter]domain.Range
		if len(e.Ranges) > 0 {
			ranges = make(map[domain.Parameter]domain.Range, len(e.Ranges))
			for name, r := range e.Ranges {
				p, err := domain.ParseParameter(name)
				if err != nil {
					return nil, fmt.Errorf("station %q ranges: %w", e.ID, err)
				}
				ranges[p] = domain.Range{Min: r[0], Max: r[1]}
			}
		}

		st, err := domain.NewStationConfig(e.ID, e.Longitude, e.Latitude, params, ranges)
		if err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, nil
}
