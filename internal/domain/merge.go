package domain

import (
	"slices"
	"time"
)

// Stream is the readings of one parameter for one station, in file order.
type Stream struct {
	Parameter Parameter
	Readings  []RawReading
}

// StationBatch is the merged dataset of one station for one cycle.
type StationBatch struct {
	Station StationConfig
	Rows    []Observation // ascending by timestamp, one row per timestamp

	// Present lists, in canonical order, the parameters that contributed at
	// least one reading. Completeness is judged against this set.
	Present []Parameter
}

// Merge performs a full outer join of the streams on timestamp. Every
// timestamp seen in any stream gets a row; parameters without a reading at
// that timestamp stay unset. Within a stream a later reading at the same
// timestamp overwrites an earlier one. Readings for parameters the station
// does not report are ignored. The result does not depend on stream order.
func Merge(station StationConfig, streams ...Stream) StationBatch {
	rows := make(map[int64]*Observation)
	var present [parameterCount]bool

	for _, s := range streams {
		if !station.Reports(s.Parameter) {
			continue
		}
		for _, r := range s.Readings {
			if r.Parameter != s.Parameter {
				continue
			}
			at := r.Timestamp.UTC().UnixNano()
			row, ok := rows[at]
			if !ok {
				row = &Observation{
					Timestamp: time.Unix(0, at).UTC(),
					Station:   station.ID,
					Longitude: station.Longitude,
					Latitude:  station.Latitude,
				}
				rows[at] = row
			}
			row.Values.Set(r.Parameter, r.Value)
			present[r.Parameter] = true
		}
	}

	out := make([]Observation, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	slices.SortFunc(out, func(a, b Observation) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	var ps []Parameter
	for i, ok := range present {
		if ok {
			ps = append(ps, Parameter(i))
		}
	}

	return StationBatch{Station: station, Rows: out, Present: ps}
}
