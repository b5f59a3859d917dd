//go:build integration

package integration_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/station-data-ingest/internal/adapter/postgres"
	"github.com/couchcryptid/station-data-ingest/internal/archive"
	"github.com/couchcryptid/station-data-ingest/internal/buffer"
	"github.com/couchcryptid/station-data-ingest/internal/domain"
	"github.com/couchcryptid/station-data-ingest/internal/observability"
	"github.com/couchcryptid/station-data-ingest/internal/pipeline"
	"github.com/couchcryptid/station-data-ingest/internal/source"
	"github.com/couchcryptid/station-data-ingest/internal/supervisor"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(ts time.Time, station string, surge float64) domain.Observation {
	o := domain.Observation{Timestamp: ts, Station: station, Longitude: 9.46, Latitude: 3.80}
	o.Values.Set(domain.Surge, surge)
	return o
}

func connectStore(ctx context.Context, t *testing.T, url string) *postgres.Store {
	t.Helper()
	st, err := postgres.Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.EnsureSchema(ctx))
	return st
}

func TestPostgresStore_UpsertAndDedup(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st := connectStore(ctx, t, startPostgres(ctx, t))
	base := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	require.NoError(t, st.Upsert(ctx, []domain.Observation{
		row(base, "SM 1", 2.0),
		row(base.Add(5*time.Minute), "SM 1", 2.1),
	}))

	keys, err := st.ExistingKeys(ctx, "SM 1", []time.Time{base, base.Add(10 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, map[domain.Key]bool{row(base, "SM 1", 0).Key(): true}, keys)

	// Same key again: replaced, never duplicated.
	require.NoError(t, st.Upsert(ctx, []domain.Observation{row(base, "SM 1", 2.5)}))
	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	docs, err := st.ExportAll(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	v, ok := docs[0].Values.Get(domain.Surge)
	require.True(t, ok)
	assert.InDelta(t, 2.5, v, 1e-9)
	assert.Equal(t, base, docs[0].Timestamp)

	size, err := st.SizeBytes(ctx)
	require.NoError(t, err)
	assert.Positive(t, size)

	require.NoError(t, st.Purge(ctx))
	n, err = st.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPostgresStore_ArchiveOverLimit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	url := startPostgres(ctx, t)
	st := connectStore(ctx, t, url)
	base := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	require.NoError(t, st.Upsert(ctx, []domain.Observation{row(base, "SM 2", 3), row(base, "SM 3", 3)}))

	dir := t.TempDir()
	sup := supervisor.New(
		pgConnector(url),
		archive.NewWriter(dir, clockwork.NewFakeClockAt(base)),
		supervisor.Config{RetryDelay: time.Second, SizeLimitBytes: 1},
		discardLogger(), observability.NewMetricsForTesting(),
	)
	defer sup.Close()

	_, err := sup.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, sup.Maintain(ctx))

	archived, err := archive.Read(filepath.Join(dir, "archive_20250314T100000Z.jsonl.zst"))
	require.NoError(t, err)
	assert.Len(t, archived, 2)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPipelineAgainstPostgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	url := startPostgres(ctx, t)
	st := connectStore(ctx, t, url)

	dir := t.TempDir()
	station, err := domain.NewStationConfig("SM 4", 9.6857, 4.0539, []domain.Parameter{domain.WindSpeed, domain.WindDir}, nil)
	require.NoError(t, err)
	writeLines(t, source.FilePath(dir, station.ID, domain.WindSpeed),
		"Date\tTime\tWIND SPEED\tSD",
		"14/03/2025\t10:00:00\t4.0\t0",
		"14/03/2025\t10:05:00\t4.0\t0",
		"14/03/2025\t10:10:00\t9999.999\t0")
	writeLines(t, source.FilePath(dir, station.ID, domain.WindDir),
		"14/03/2025\t10:00:00\t180\t0",
		"14/03/2025\t10:05:00\t400\t0",
		"14/03/2025\t10:10:00\t190\t0")

	buf, err := buffer.Open(filepath.Join(dir, "buffer.json"), discardLogger())
	require.NoError(t, err)

	sup := supervisor.New(
		pgConnector(url),
		archive.NewWriter(t.TempDir(), nil),
		supervisor.Config{RetryDelay: time.Second, SizeLimitBytes: 400 << 20},
		discardLogger(), observability.NewMetricsForTesting(),
	)
	defer sup.Close()

	cursors := source.NewCursorStore(filepath.Join(dir, "cursors.json"), discardLogger())
	p := pipeline.New(
		pipeline.Config{Stations: []domain.StationConfig{station}, PollInterval: time.Minute},
		source.NewReader(dir, cursors, discardLogger()),
		nil, buf, sup, discardLogger(), observability.NewMetricsForTesting(),
	).WithCursors(cursors)

	res := p.RunCycle(ctx)
	require.Len(t, res.Stations, 1)

	// The out-of-range direction at 10:05 is interpolated back in; 10:10 has
	// no speed reading and is dropped as incomplete.
	assert.Equal(t, 2, res.Stations[0].Persisted)
	assert.Equal(t, 1, res.Stations[0].Quality.Incomplete)
	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = os.Stat(filepath.Join(dir, "cursors.json"))
	require.NoError(t, err, "cursors saved at end of cycle")

	res = p.RunCycle(ctx)
	assert.Zero(t, res.Stations[0].Persisted)
}

func pgConnector(url string) supervisor.Connector {
	return func(ctx context.Context) (supervisor.Store, error) {
		st, err := postgres.Connect(ctx, url)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	var data []byte
	for _, l := range lines {
		data = append(data, l+"\n"...)
	}
	require.NoError(t, os.WriteFile(path, data, 0o600))
}
