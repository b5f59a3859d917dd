package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestNewReport(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	defer SetClock(clockwork.NewFakeClockAt(now))()

	base := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	rows := []Observation{
		{Timestamp: base.Add(10 * time.Minute), Station: "SM 3", Tide: &TideMarks{High: true}},
		{Timestamp: base, Station: "SM 3", Tide: &TideMarks{Low: true}},
		{Timestamp: base.Add(5 * time.Minute), Station: "SM 3"},
		{Timestamp: base.Add(15 * time.Minute), Station: "SM 3", Tide: &TideMarks{}},
	}

	got := NewReport("c-1", "SM 3", rows, "extrema")
	assert.Equal(t, Report{
		CycleID:     "c-1",
		Station:     "SM 3",
		Rows:        4,
		First:       base,
		Last:        base.Add(15 * time.Minute),
		TideHighs:   1,
		TideLows:    1,
		TideModel:   "extrema",
		GeneratedAt: now,
	}, got)
}

func TestSetClockRestores(t *testing.T) {
	fixed := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	restore := SetClock(clockwork.NewFakeClockAt(fixed))
	assert.Equal(t, fixed, NewReport("c", "SM 1", nil, "").GeneratedAt)

	restore()
	assert.NotEqual(t, fixed, NewReport("c", "SM 1", nil, "").GeneratedAt)
}
