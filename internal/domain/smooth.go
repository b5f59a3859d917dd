package domain

import (
	"fmt"
	"slices"
	"time"

	"gonum.org/v1/gonum/mat"
)

const (
	// maxSmoothWindow bounds the Savitzky-Golay window length.
	maxSmoothWindow = 11
	// minSavgolRun is the shortest run of valid samples smoothed with Savitzky-Golay.
	minSavgolRun = 5
	// savgolOrder is the degree of the local polynomial.
	savgolOrder = 2
	// fallbackWindow is the rolling median/mean window used for short runs.
	fallbackWindow = 3
)

// interpolateTime fills unset samples by linear interpolation in time between
// the nearest valid neighbors. Leading and trailing gaps are left unset.
func interpolateTime(ts []time.Time, vals []float64, valid []bool) {
	prev := -1
	for i := range vals {
		if !valid[i] {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			t0, t1 := ts[prev], ts[i]
			span := float64(t1.Sub(t0))
			for k := prev + 1; k < i; k++ {
				frac := float64(ts[k].Sub(t0)) / span
				vals[k] = vals[prev] + frac*(vals[i]-vals[prev])
				valid[k] = true
			}
		}
		prev = i
	}
}

// smoothRuns smooths every maximal run of valid samples independently so
// unset samples never leak into a window.
func smoothRuns(vals []float64, valid []bool) error {
	start := -1
	for i := 0; i <= len(vals); i++ {
		if i < len(vals) && valid[i] {
			if start < 0 {
				start = i
			}
			continue
		}
		if start < 0 {
			continue
		}
		run := vals[start:i]
		switch {
		case len(run) >= minSavgolRun:
			out, err := savgol(run, smoothWindow(len(run)), savgolOrder)
			if err != nil {
				return err
			}
			copy(run, out)
		case len(run) >= fallbackWindow:
			copy(run, medianThenMean(run, fallbackWindow))
		}
		start = -1
	}
	return nil
}

// smoothWindow is the largest odd window not above maxSmoothWindow or n.
func smoothWindow(n int) int {
	w := min(n, maxSmoothWindow)
	if w%2 == 0 {
		w--
	}
	return w
}

// savgol applies a Savitzky-Golay filter. Interior samples use the centered
// window; the first and last half-window samples are evaluated from the
// polynomial fitted to the edge window.
func savgol(vals []float64, window, order int) ([]float64, error) {
	n := len(vals)
	if window%2 == 0 || window <= order || window > n {
		return nil, fmt.Errorf("savgol: invalid window %d for order %d and length %d", window, order, n)
	}
	half := (window - 1) / 2

	center, err := savgolWeights(window, order, 0)
	if err != nil {
		return nil, err
	}

	out := make([]float64, n)
	for i := half; i < n-half; i++ {
		out[i] = dot(center, vals[i-half:i+half+1])
	}
	for i := 0; i < half; i++ {
		w, err := savgolWeights(window, order, float64(i-half))
		if err != nil {
			return nil, err
		}
		out[i] = dot(w, vals[:window])

		j := n - half + i
		w, err = savgolWeights(window, order, float64(i+1))
		if err != nil {
			return nil, err
		}
		out[j] = dot(w, vals[n-window:])
	}
	return out, nil
}

// savgolWeights returns the weights that evaluate, at offset x0 from the window
// center, the least-squares polynomial of the given order fitted to the window.
func savgolWeights(window, order int, x0 float64) ([]float64, error) {
	half := (window - 1) / 2
	cols := order + 1

	j := mat.NewDense(window, cols, nil)
	for k := 0; k < window; k++ {
		x := float64(k - half)
		p := 1.0
		for c := 0; c < cols; c++ {
			j.Set(k, c, p)
			p *= x
		}
	}

	var gram, inv mat.Dense
	gram.Mul(j.T(), j)
	if err := inv.Inverse(&gram); err != nil {
		return nil, fmt.Errorf("savgol weights: %w", err)
	}

	e := make([]float64, cols)
	p := 1.0
	for c := range e {
		e[c] = p
		p *= x0
	}

	var a, w mat.VecDense
	a.MulVec(&inv, mat.NewVecDense(cols, e))
	w.MulVec(j, &a)

	out := make([]float64, window)
	for k := range out {
		out[k] = w.AtVec(k)
	}
	return out, nil
}

// medianThenMean applies a centered rolling median followed by a centered
// rolling mean. Windows shrink at the edges.
func medianThenMean(vals []float64, window int) []float64 {
	med := rolling(vals, window, func(w []float64) float64 {
		s := slices.Clone(w)
		slices.Sort(s)
		if len(s)%2 == 1 {
			return s[len(s)/2]
		}
		return (s[len(s)/2-1] + s[len(s)/2]) / 2
	})
	return rolling(med, window, func(w []float64) float64 {
		sum := 0.0
		for _, v := range w {
			sum += v
		}
		return sum / float64(len(w))
	})
}

func rolling(vals []float64, window int, f func([]float64) float64) []float64 {
	half := window / 2
	out := make([]float64, len(vals))
	for i := range vals {
		lo := max(0, i-half)
		hi := min(len(vals), i+half+1)
		out[i] = f(vals[lo:hi])
	}
	return out
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
