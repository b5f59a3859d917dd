package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// HeaderPrefix starts every header line of a source file.
	HeaderPrefix = "Date"

	// MissingSentinel is written by the logger when the sensor produced no reading.
	MissingSentinel = "9999.999"

	sourceTimeLayout = "02/01/2006 15:04:05"
)

// ErrMissingValue marks a row carrying the missing-value sentinel.
var ErrMissingValue = errors.New("missing value sentinel")

// ParseLine parses one tab-separated source line for the given station and parameter.
// Rows carrying the sentinel return ErrMissingValue; malformed rows return a
// KindParse error.
func ParseLine(station string, p Parameter, line string) (RawReading, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, "\t")
	if len(fields) < 3 {
		return RawReading{}, E(KindParse, "parse line", fmt.Errorf("expected at least 3 fields, got %d", len(fields)))
	}

	raw := strings.TrimSpace(fields[2])
	if raw == MissingSentinel {
		return RawReading{}, ErrMissingValue
	}

	ts, err := time.ParseInLocation(sourceTimeLayout,
		strings.TrimSpace(fields[0])+" "+strings.TrimSpace(fields[1]), time.UTC)
	if err != nil {
		return RawReading{}, E(KindParse, "parse timestamp", err)
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return RawReading{}, E(KindParse, "parse value", err)
	}
	if v == 9999.999 {
		return RawReading{}, ErrMissingValue
	}

	return RawReading{Timestamp: ts, Parameter: p, Value: v, Station: station}, nil
}

// ParseLines parses the new lines of one (station, parameter) file. Header and
// blank lines are skipped; every other line either yields a reading or is
// dropped, with its error returned alongside so callers can count and log it.
func ParseLines(station string, p Parameter, lines []string) ([]RawReading, []error) {
	readings := make([]RawReading, 0, len(lines))
	var dropped []error
	for _, line := range lines {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, HeaderPrefix) {
			continue
		}
		r, err := ParseLine(station, p, line)
		if err != nil {
			dropped = append(dropped, err)
			continue
		}
		readings = append(readings, r)
	}
	return readings, dropped
}
