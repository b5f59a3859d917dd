// Command genmock writes synthetic station source files: one tab-separated
// file per (station, parameter), on a 5-minute grid, with the occasional
// missing-value sentinel and malformed row the loggers are known to emit.
// TIDE HEIGHT follows a semidiurnal curve so the harmonic model has
// something to fit.
//
// Usage:
//
//	go run ./cmd/genmock -out data -hours 48
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/station-data-ingest/internal/config"
	"github.com/couchcryptid/station-data-ingest/internal/domain"
	"github.com/couchcryptid/station-data-ingest/internal/source"
)

const step = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data", "directory to write source files into")
	hours := flag.Int("hours", 48, "hours of readings per file")
	start := flag.String("start", "2025-03-14T00:00:00Z", "timestamp of the first reading (RFC 3339)")
	seed := flag.Uint64("seed", 1, "random seed")
	stationsFile := flag.String("stations", "", "optional stations JSON file; defaults to the built-in stations")
	gapRate := flag.Float64("gap-rate", 0.01, "fraction of rows written as the missing-value sentinel")
	flag.Parse()

	if *hours <= 0 {
		return fmt.Errorf("-hours must be positive")
	}
	t0, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		return fmt.Errorf("parse -start: %w", err)
	}

	stations := domain.DefaultStations()
	if *stationsFile != "" {
		if stations, err = config.LoadStations(*stationsFile); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(*out, 0o750); err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	n := *hours * int(time.Hour/step)

	for i, st := range stations {
		for _, p := range st.Parameters {
			path := source.FilePath(*out, st.ID, p)
			if err := writeSeries(path, p, st, t0.UTC(), n, float64(i), *gapRate, rng); err != nil {
				return fmt.Errorf("write %s: %w", filepath.Base(path), err)
			}
		}
		log.Printf("%s: %d parameters, %d rows each", st.ID, len(st.Parameters), n)
	}
	return nil
}

func writeSeries(path string, p domain.Parameter, st domain.StationConfig, t0 time.Time, n int, phase, gapRate float64, rng *rand.Rand) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%s\tTime\t%s\tSD\n", domain.HeaderPrefix, p)

	bounds := st.Range(p)
	for k := range n {
		ts := t0.Add(time.Duration(k) * step)
		date, tod := ts.Format("02/01/2006"), ts.Format("15:04:05")

		switch r := rng.Float64(); {
		case r < gapRate:
			fmt.Fprintf(w, "%s\t%s\t%s\t0\n", date, tod, domain.MissingSentinel)
			continue
		case r < gapRate*1.1:
			fmt.Fprintf(w, "%s\t%s\tERR\n", date, tod)
			continue
		}

		v := value(p, ts.Sub(t0).Hours(), phase, rng)
		v = math.Max(bounds.Min, math.Min(bounds.Max, v))
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%.3f\n", date, tod, v, math.Abs(rng.NormFloat64()*0.05))
	}
	return w.Flush()
}

// value is a plausible reading for p, h hours into the series.
func value(p domain.Parameter, h, phase float64, rng *rand.Rand) float64 {
	noise := rng.NormFloat64()
	day := 2 * math.Pi * (h - 14) / 24 // diurnal, peaking mid-afternoon

	switch p {
	case domain.AirTemperature:
		return 27 + 4*math.Cos(day) + 0.3*noise
	case domain.AirPressure:
		return 1010 + 1.2*math.Cos(2*day) + 0.2*noise
	case domain.Humidity:
		return 82 - 10*math.Cos(day) + noise
	case domain.Dewpoint:
		return 23 + 0.8*math.Cos(day) + 0.2*noise
	case domain.WindSpeed:
		return math.Abs(3 + 2*math.Cos(day) + 0.8*noise)
	case domain.WindDir:
		return math.Mod(220+25*math.Sin(day)+5*noise+360, 360)
	case domain.Surge:
		return 2.5 + 0.4*math.Sin(2*math.Pi*h/12.42+phase) + 0.05*noise
	case domain.TideHeight:
		m2 := 1.1 * math.Cos(2*math.Pi*h/12.42-phase*0.3)
		s2 := 0.35 * math.Cos(2*math.Pi*h/12.0-phase*0.2)
		k1 := 0.12 * math.Cos(2*math.Pi*h/23.93)
		return 3.2 + m2 + s2 + k1 + 0.03*noise
	default:
		return 0
	}
}
