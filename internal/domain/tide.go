package domain

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/mat"
)

const (
	// HarmonicStep is the resampling grid used for harmonic fitting.
	HarmonicStep = 5 * time.Minute
	// MinHarmonicSamples is one day of grid points; shorter records fall back
	// to extrema detection.
	MinHarmonicSamples = int(24 * time.Hour / HarmonicStep)
)

// TideModel derives tidal features from a TIDE HEIGHT column. Implementations
// may rewrite vals in place. The returned marks align with the input rows.
type TideModel interface {
	Name() string
	// Sufficient reports whether the record carries enough data for this model.
	Sufficient(ts []time.Time, valid []bool) bool
	Apply(latitude float64, ts []time.Time, vals []float64, valid []bool) ([]TideMarks, error)
}

// DefaultTideModels returns the models in preference order: harmonic
// reconstruction first, extrema detection as the fallback.
func DefaultTideModels() []TideModel {
	return []TideModel{HarmonicModel{}, ExtremaModel{}}
}

// ExtremaModel flags samples strictly above (high) or below (low) both
// immediate valid neighbors.
type ExtremaModel struct{}

func (ExtremaModel) Name() string { return "extrema" }

func (ExtremaModel) Sufficient([]time.Time, []bool) bool { return true }

func (ExtremaModel) Apply(_ float64, _ []time.Time, vals []float64, valid []bool) ([]TideMarks, error) {
	return extrema(vals, valid), nil
}

func extrema(vals []float64, valid []bool) []TideMarks {
	marks := make([]TideMarks, len(vals))
	for i := 1; i < len(vals)-1; i++ {
		if !valid[i-1] || !valid[i] || !valid[i+1] {
			continue
		}
		prev, cur, next := vals[i-1], vals[i], vals[i+1]
		marks[i].High = cur > prev && cur > next
		marks[i].Low = cur < prev && cur < next
	}
	return marks
}

// constituent is one astronomical tidal frequency.
type constituent struct {
	name  string
	speed float64 // degrees per hour
	amp   float64 // equilibrium amplitude coefficient
	band  int     // 1 diurnal, 2 semidiurnal, 4 quarter-diurnal
}

var constituents = []constituent{
	{"M2", 28.9841042, 0.9081, 2},
	{"S2", 30.0000000, 0.4229, 2},
	{"N2", 28.4397295, 0.1739, 2},
	{"K2", 30.0821373, 0.1150, 2},
	{"K1", 15.0410686, 0.5305, 1},
	{"O1", 13.9430356, 0.3771, 1},
	{"P1", 14.9589314, 0.1755, 1},
	{"Q1", 13.3986609, 0.0730, 1},
	{"M4", 57.9682084, 0.0500, 4},
}

// HarmonicModel fits tidal constituents to a day or more of TIDE HEIGHT data
// and replaces the series with the reconstructed theoretical tide. Extrema are
// then taken from the reconstruction.
type HarmonicModel struct{}

func (HarmonicModel) Name() string { return "harmonic" }

func (HarmonicModel) Sufficient(ts []time.Time, valid []bool) bool {
	first, last, ok := validSpan(ts, valid)
	if !ok {
		return false
	}
	return countValid(valid) >= MinHarmonicSamples && len(gridTimes(first, last)) >= MinHarmonicSamples
}

func (HarmonicModel) Apply(latitude float64, ts []time.Time, vals []float64, valid []bool) ([]TideMarks, error) {
	first, last, ok := validSpan(ts, valid)
	if !ok {
		return nil, errors.New("harmonic: no valid samples")
	}
	if n := countValid(valid); n < MinHarmonicSamples {
		return nil, fmt.Errorf("harmonic: %d valid samples, need %d", n, MinHarmonicSamples)
	}
	grid := gridTimes(first, last)
	if len(grid) < MinHarmonicSamples {
		return nil, fmt.Errorf("harmonic: %d grid samples, need %d", len(grid), MinHarmonicSamples)
	}
	gridVals := resample(ts, vals, valid, grid)

	hours := grid[len(grid)-1].Sub(grid[0]).Hours()
	selected := selectConstituents(latitude, hours)
	fit, err := fitHarmonics(grid[0], grid, gridVals, selected)
	if err != nil {
		return nil, err
	}

	for i, t := range ts {
		if t.Before(first) || t.After(last) {
			continue
		}
		vals[i] = fit.at(t)
		valid[i] = true
	}
	return extrema(vals, valid), nil
}

// latitudeWeight scales a constituent's equilibrium amplitude by how strongly
// its band is forced at the given latitude.
func latitudeWeight(c constituent, latitude float64) float64 {
	phi := latitude * math.Pi / 180
	switch c.band {
	case 1:
		return c.amp * math.Abs(math.Sin(2*phi))
	case 2:
		return c.amp * math.Cos(phi) * math.Cos(phi)
	default:
		return c.amp
	}
}

// selectConstituents keeps, by descending latitude weight, every constituent
// that completes a full cycle over the record and is separated from all
// already-kept constituents by the Rayleigh criterion.
func selectConstituents(latitude, hours float64) []constituent {
	ranked := slices.Clone(constituents)
	slices.SortStableFunc(ranked, func(a, b constituent) int {
		wa, wb := latitudeWeight(a, latitude), latitudeWeight(b, latitude)
		switch {
		case wa > wb:
			return -1
		case wa < wb:
			return 1
		default:
			return 0
		}
	})

	var kept []constituent
	for _, c := range ranked {
		if latitudeWeight(c, latitude) <= 0 || c.speed*hours < 360 {
			continue
		}
		resolved := true
		for _, k := range kept {
			if math.Abs(c.speed-k.speed)*hours < 360 {
				resolved = false
				break
			}
		}
		if resolved {
			kept = append(kept, c)
		}
	}
	return kept
}

type harmonicFit struct {
	origin time.Time
	mean   float64
	terms  []constituent
	cos    []float64
	sin    []float64
}

func (f harmonicFit) at(t time.Time) float64 {
	h := t.Sub(f.origin).Hours()
	v := f.mean
	for i, c := range f.terms {
		w := c.speed * math.Pi / 180 * h
		v += f.cos[i]*math.Cos(w) + f.sin[i]*math.Sin(w)
	}
	return v
}

// fitHarmonics solves the least-squares problem
// y(t) = mean + Σ a_i cos(ω_i t) + b_i sin(ω_i t).
func fitHarmonics(origin time.Time, grid []time.Time, y []float64, terms []constituent) (harmonicFit, error) {
	cols := 1 + 2*len(terms)
	a := mat.NewDense(len(grid), cols, nil)
	for r, t := range grid {
		h := t.Sub(origin).Hours()
		a.Set(r, 0, 1)
		for i, c := range terms {
			w := c.speed * math.Pi / 180 * h
			a.Set(r, 1+2*i, math.Cos(w))
			a.Set(r, 2+2*i, math.Sin(w))
		}
	}

	var x mat.VecDense
	if err := x.SolveVec(a, mat.NewVecDense(len(y), slices.Clone(y))); err != nil {
		return harmonicFit{}, fmt.Errorf("harmonic fit: %w", err)
	}

	fit := harmonicFit{
		origin: origin,
		mean:   x.AtVec(0),
		terms:  terms,
		cos:    make([]float64, len(terms)),
		sin:    make([]float64, len(terms)),
	}
	for i := range terms {
		fit.cos[i] = x.AtVec(1 + 2*i)
		fit.sin[i] = x.AtVec(2 + 2*i)
	}
	return fit, nil
}

func validSpan(ts []time.Time, valid []bool) (first, last time.Time, ok bool) {
	for i := range ts {
		if !valid[i] {
			continue
		}
		if !ok {
			first = ts[i]
			ok = true
		}
		last = ts[i]
	}
	return first, last, ok
}

// gridTimes returns the HarmonicStep-aligned instants within [first, last].
func gridTimes(first, last time.Time) []time.Time {
	start := first.Truncate(HarmonicStep)
	if start.Before(first) {
		start = start.Add(HarmonicStep)
	}
	var grid []time.Time
	for t := start; !t.After(last); t = t.Add(HarmonicStep) {
		grid = append(grid, t)
	}
	return grid
}

// resample linearly interpolates the valid samples onto grid. ts must be
// ascending and grid must lie within the valid span.
func resample(ts []time.Time, vals []float64, valid []bool, grid []time.Time) []float64 {
	var xs []time.Time
	var ys []float64
	for i := range ts {
		if valid[i] {
			xs = append(xs, ts[i])
			ys = append(ys, vals[i])
		}
	}

	out := make([]float64, len(grid))
	j := 0
	for g, t := range grid {
		for j < len(xs)-2 && xs[j+1].Before(t) {
			j++
		}
		if len(xs) == 1 || !t.After(xs[j]) {
			out[g] = ys[j]
			continue
		}
		if !t.Before(xs[j+1]) {
			out[g] = ys[j+1]
			continue
		}
		frac := float64(t.Sub(xs[j])) / float64(xs[j+1].Sub(xs[j]))
		out[g] = ys[j] + frac*(ys[j+1]-ys[j])
	}
	return out
}
