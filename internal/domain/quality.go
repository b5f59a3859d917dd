package domain

import (
	"fmt"
	"time"
)

// QualityReport summarizes what the quality filter changed for one station batch.
type QualityReport struct {
	OutOfRange   int    // values invalidated by range validation, before or after smoothing
	Interpolated int    // values filled by time interpolation
	Incomplete   int    // rows dropped for missing at least one present parameter
	TideModel    string // model applied to TIDE HEIGHT, empty if absent
}

// QualityFilter range-validates, gap-fills, smooths, and extracts tidal
// features from a merged station batch.
type QualityFilter struct {
	tideModels []TideModel
}

// NewQualityFilter creates a filter trying the tide models in order, using the
// first one whose Sufficient check passes. With no models, DefaultTideModels is used.
func NewQualityFilter(models ...TideModel) *QualityFilter {
	if len(models) == 0 {
		models = DefaultTideModels()
	}
	return &QualityFilter{tideModels: models}
}

// Apply runs the quality passes and returns the rows complete enough to persist.
func (f *QualityFilter) Apply(b StationBatch) (StationBatch, QualityReport, error) {
	var report QualityReport
	n := len(b.Rows)
	if n == 0 {
		return b, report, nil
	}

	ts := make([]time.Time, n)
	for i := range b.Rows {
		ts[i] = b.Rows[i].Timestamp
	}

	var marks []TideMarks
	for _, p := range b.Present {
		rng := b.Station.Range(p)
		vals := make([]float64, n)
		valid := make([]bool, n)
		for i := range b.Rows {
			vals[i], valid[i] = b.Rows[i].Values.Get(p)
		}

		report.OutOfRange += invalidateOutOfRange(vals, valid, rng)

		before := countValid(valid)
		interpolateTime(ts, vals, valid)
		report.Interpolated += countValid(valid) - before

		if err := smoothRuns(vals, valid); err != nil {
			return b, report, fmt.Errorf("smooth %s for station %s: %w", p, b.Station.ID, err)
		}

		if p == TideHeight {
			m, name, err := f.applyTide(b.Station.Latitude, ts, vals, valid)
			if err != nil {
				return b, report, fmt.Errorf("tide model for station %s: %w", b.Station.ID, err)
			}
			marks = m
			report.TideModel = name
		}

		report.OutOfRange += invalidateOutOfRange(vals, valid, rng)

		for i := range b.Rows {
			if valid[i] {
				b.Rows[i].Values.Set(p, vals[i])
			} else {
				b.Rows[i].Values.Unset(p)
			}
		}
	}

	kept := b.Rows[:0]
	for i, row := range b.Rows {
		if !complete(row, b.Present) {
			report.Incomplete++
			continue
		}
		if marks != nil {
			m := marks[i]
			row.Tide = &m
		}
		kept = append(kept, row)
	}
	b.Rows = kept
	return b, report, nil
}

// applyTide runs the first sufficient model, falling through to the next one
// if it fails. The column is only modified by the model that succeeds.
func (f *QualityFilter) applyTide(lat float64, ts []time.Time, vals []float64, valid []bool) ([]TideMarks, string, error) {
	var lastErr error
	for _, m := range f.tideModels {
		if !m.Sufficient(ts, valid) {
			continue
		}
		v := append([]float64(nil), vals...)
		ok := append([]bool(nil), valid...)
		marks, err := m.Apply(lat, ts, v, ok)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", m.Name(), err)
			continue
		}
		copy(vals, v)
		copy(valid, ok)
		return marks, m.Name(), nil
	}
	if lastErr != nil {
		return nil, "", lastErr
	}
	return nil, "", fmt.Errorf("no tide model applicable to %d samples", len(ts))
}

func invalidateOutOfRange(vals []float64, valid []bool, r Range) int {
	n := 0
	for i := range vals {
		if valid[i] && !r.Contains(vals[i]) {
			valid[i] = false
			n++
		}
	}
	return n
}

func countValid(valid []bool) int {
	n := 0
	for _, ok := range valid {
		if ok {
			n++
		}
	}
	return n
}

func complete(row Observation, present []Parameter) bool {
	for _, p := range present {
		if !row.Values.Has(p) {
			return false
		}
	}
	return true
}
