package buffer

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/station-data-ingest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC)

func obs(station string, minute int, temp float64) domain.Observation {
	o := domain.Observation{
		Timestamp: t0.Add(time.Duration(minute) * time.Minute),
		Station:   station,
		Longitude: 9.46,
		Latitude:  3.80,
	}
	o.Values.Set(domain.AirTemperature, temp)
	return o
}

func temp(t *testing.T, o domain.Observation) float64 {
	t.Helper()
	v, ok := o.Values.Get(domain.AirTemperature)
	require.True(t, ok)
	return v
}

func TestOffline_AddDeduplicatesByKey(t *testing.T) {
	b, err := Open(filepath.Join(t.TempDir(), "buf.json"), slog.Default())
	require.NoError(t, err)

	require.NoError(t, b.Add([]domain.Observation{obs("SM 1", 0, 20), obs("SM 1", 5, 21)}))
	require.NoError(t, b.Add([]domain.Observation{obs("SM 1", 5, 21.5), obs("SM 2", 5, 19)}))

	assert.Equal(t, 3, b.Len())
	pending := b.Pending("SM 1")
	require.Len(t, pending, 2)
	assert.True(t, pending[0].Timestamp.Before(pending[1].Timestamp))
	assert.InDelta(t, 21.5, temp(t, pending[1]), 1e-9)
}

func TestOffline_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "buf.json")
	b, err := Open(path, slog.Default())
	require.NoError(t, err)

	o := obs("SM 3", 10, 24)
	o.Values.Set(domain.TideHeight, 3.2)
	o.Tide = &domain.TideMarks{Low: true}
	require.NoError(t, b.Add([]domain.Observation{o, obs("SM 3", 15, 24.2)}))

	reopened, err := Open(path, slog.Default())
	require.NoError(t, err)
	require.Equal(t, 2, reopened.Len())

	got := reopened.Pending("SM 3")[0]
	assert.Equal(t, o.Key(), got.Key())
	assert.Equal(t, o.Values.Map(), got.Values.Map())
	require.NotNil(t, got.Tide)
	assert.True(t, got.Tide.Low)
}

func TestOffline_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buf.json")
	b, err := Open(path, slog.Default())
	require.NoError(t, err)

	a, c := obs("SM 1", 0, 20), obs("SM 1", 5, 21)
	require.NoError(t, b.Add([]domain.Observation{a, c}))
	require.NoError(t, b.Remove([]domain.Key{a.Key(), obs("SM 9", 0, 0).Key()}))

	assert.Equal(t, 1, b.Len())

	reopened, err := Open(path, slog.Default())
	require.NoError(t, err)
	require.Len(t, reopened.Pending("SM 1"), 1)
	assert.Equal(t, c.Key(), reopened.Pending("SM 1")[0].Key())
}

func TestOffline_ReloadMergesDuplicateKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buf.json")
	doc := `[
		{"timestamp":"2025-03-14T10:00:00Z","station":"SM 1","longitude":9.46,"latitude":3.8,"AIR TEMPERATURE":20},
		{"timestamp":"2025-03-14T10:00:00Z","station":"SM 1","longitude":9.46,"latitude":3.8,"AIR TEMPERATURE":20.5}
	]`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	b, err := Open(path, slog.Default())
	require.NoError(t, err)
	require.Equal(t, 1, b.Len())
	assert.InDelta(t, 20.5, temp(t, b.Pending("SM 1")[0]), 1e-9)
}

func TestOffline_CorruptFileMovedAside(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buf.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"station":`), 0o600))

	b, err := Open(path, slog.Default())
	require.NoError(t, err)
	assert.Zero(t, b.Len())

	_, err = os.Stat(path + ".corrupt")
	require.NoError(t, err)
}
