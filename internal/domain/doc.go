// Package domain models coastal weather-station observations and the
// data-quality rules applied to them before persistence.
//
// # Source Files
//
// Each station logger writes one append-only text file per measured parameter,
// named "<station> <parameter>.txt", e.g. "SM 2 TIDE HEIGHT.txt". Lines are
// tab-separated:
//
//	Date<TAB>Time<TAB>Value<TAB>QualityFlag
//	14/03/2025	10:05:00	22.510	0
//
// Date is DD/MM/YYYY and Time is HH:MM:SS, interpreted as UTC. Header lines
// start with "Date" and are skipped. The logger writes 9999.999 when the
// sensor produced no reading; such rows are treated as missing.
//
// # Parameters
//
// The parameter set is closed. Each parameter has a physical valid range used
// by range validation:
//
//	AIR TEMPERATURE  -2 .. 50    °C
//	AIR PRESSURE    900 .. 1100  hPa
//	HUMIDITY          0 .. 100   %
//	DEWPOINT        -60 .. 60    °C
//	WIND SPEED        0 .. 150   km/h
//	WIND DIR          0 .. 360   degrees
//	SURGE             1 .. 5     m
//	TIDE HEIGHT       0 .. 16    m
//
// # Quality Passes
//
// After the per-parameter streams of a station are outer-joined on timestamp,
// each parameter column goes through range validation, time-weighted gap
// filling, and Savitzky-Golay smoothing. TIDE HEIGHT additionally goes through
// a [TideModel]: local extrema flags for short records, or a harmonic
// reconstruction once a full day of 5-minute samples is available. Rows that
// still miss a value afterwards are dropped for the cycle.
//
// # Identity
//
// An observation is identified by (timestamp, station). Persistence upserts on
// that key, so replaying the same source region never creates duplicates.
package domain
