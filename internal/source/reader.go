package source

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/couchcryptid/station-data-ingest/internal/domain"
)

// ReadStats counts what a station read produced.
type ReadStats struct {
	Lines     int
	Readings  int
	Missing   int // sentinel rows
	Malformed int
}

// Reader turns the per-parameter files of a station into reading streams.
type Reader struct {
	dir     string
	cursors *CursorStore
	logger  *slog.Logger
}

// NewReader creates a Reader over the files in dir.
func NewReader(dir string, cursors *CursorStore, logger *slog.Logger) *Reader {
	return &Reader{dir: dir, cursors: cursors, logger: logger}
}

// FilePath is where the readings of one station parameter are appended.
func FilePath(dir, station string, p domain.Parameter) string {
	return filepath.Join(dir, fmt.Sprintf("%s %s.txt", station, p))
}

// ReadStation reads the new lines of every parameter file the station reports
// and parses them. A file that cannot be read contributes nothing this cycle.
func (r *Reader) ReadStation(st domain.StationConfig) ([]domain.Stream, ReadStats) {
	var stats ReadStats
	streams := make([]domain.Stream, 0, len(st.Parameters))

	for _, p := range st.Parameters {
		path := FilePath(r.dir, st.ID, p)
		lines, err := r.cursors.ReadNewLines(path)
		if err != nil {
			r.logger.Warn("read source file failed", "station", st.ID, "parameter", p.String(), "file", path, "error", err)
			continue
		}
		if len(lines) == 0 {
			continue
		}
		stats.Lines += len(lines)

		readings, dropped := domain.ParseLines(st.ID, p, lines)
		for _, err := range dropped {
			if errors.Is(err, domain.ErrMissingValue) {
				stats.Missing++
				continue
			}
			stats.Malformed++
			r.logger.Debug("dropping malformed row", "station", st.ID, "parameter", p.String(), "error", err)
		}
		stats.Readings += len(readings)

		if len(readings) > 0 {
			streams = append(streams, domain.Stream{Parameter: p, Readings: readings})
		}
	}
	return streams, stats
}

// Paths lists every source file the stations read from.
func Paths(dir string, stations []domain.StationConfig) []string {
	var out []string
	for _, st := range stations {
		for _, p := range st.Parameters {
			out = append(out, FilePath(dir, st.ID, p))
		}
	}
	return out
}
