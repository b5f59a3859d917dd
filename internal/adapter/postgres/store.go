// Package postgres is the remote observation store.
//
// Observations live in a single table keyed by (ts, station). Parameter
// values are kept in a jsonb column holding one field per parameter name, so
// the document shape read back matches the persisted document exactly.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/station-data-ingest/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS observations (
    ts        timestamptz      NOT NULL,
    station   text             NOT NULL,
    longitude double precision NOT NULL,
    latitude  double precision NOT NULL,
    readings  jsonb            NOT NULL,
    tide_high boolean,
    tide_low  boolean,
    PRIMARY KEY (ts, station)
)`

// Rows whose content is unchanged are left alone, so repeating a write is a no-op.
const upsertQuery = `
INSERT INTO observations (ts, station, longitude, latitude, readings, tide_high, tide_low)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (ts, station) DO UPDATE
SET longitude = EXCLUDED.longitude,
    latitude  = EXCLUDED.latitude,
    readings  = EXCLUDED.readings,
    tide_high = EXCLUDED.tide_high,
    tide_low  = EXCLUDED.tide_low
WHERE (observations.longitude, observations.latitude, observations.readings, observations.tide_high, observations.tide_low)
    IS DISTINCT FROM (EXCLUDED.longitude, EXCLUDED.latitude, EXCLUDED.readings, EXCLUDED.tide_high, EXCLUDED.tide_low)`

// Store is a pgx-backed observation store.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for url and verifies it with a ping.
func Connect(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, domain.E(domain.KindConfig, "parse database url", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, classify("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classify("ping", err)
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the observations table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return classify("ensure schema", err)
}

// Ping checks that the store answers.
func (s *Store) Ping(ctx context.Context) error {
	return classify("ping", s.pool.Ping(ctx))
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// ExistingKeys returns which of the candidate timestamps are already stored
// for station.
func (s *Store) ExistingKeys(ctx context.Context, station string, ts []time.Time) (map[domain.Key]bool, error) {
	found := make(map[domain.Key]bool)
	if len(ts) == 0 {
		return found, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT ts FROM observations WHERE station = $1 AND ts = ANY($2)`, station, ts)
	if err != nil {
		return nil, classify("existing keys", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, classify("existing keys", err)
		}
		found[domain.Key{Station: station, At: t.UTC().UnixNano()}] = true
	}
	return found, classify("existing keys", rows.Err())
}

// Upsert writes rows as one batch. The batch runs in a single implicit
// transaction: either every row is written or none is.
func (s *Store) Upsert(ctx context.Context, rows []domain.Observation) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range rows {
		o := &rows[i]
		var high, low *bool
		if o.Tide != nil {
			high, low = &o.Tide.High, &o.Tide.Low
		}
		batch.Queue(upsertQuery, o.Timestamp.UTC(), o.Station, o.Longitude, o.Latitude, o.Values.Map(), high, low)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range rows {
		if _, err := res.Exec(); err != nil {
			return classify("upsert", err)
		}
	}
	return nil
}

// SizeBytes reports the storage footprint of the observations table,
// indexes and toast included.
func (s *Store) SizeBytes(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT pg_total_relation_size('observations')`).Scan(&n)
	return n, classify("size", err)
}

// Count returns the number of stored observations.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM observations`).Scan(&n)
	return n, classify("count", err)
}

// ExportAll reads every stored observation ordered by station and time.
func (s *Store) ExportAll(ctx context.Context) ([]domain.Observation, error) {
	rows, err := s.pool.Query(ctx, `
SELECT ts, station, longitude, latitude, readings, tide_high, tide_low
FROM observations
ORDER BY station, ts`)
	if err != nil {
		return nil, classify("export", err)
	}
	defer rows.Close()

	var out []domain.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, classify("export", rows.Err())
}

// Purge deletes every stored observation.
func (s *Store) Purge(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE observations`)
	return classify("purge", err)
}

func scanObservation(rows pgx.Rows) (domain.Observation, error) {
	var (
		o         domain.Observation
		readings  map[string]float64
		high, low *bool
	)
	if err := rows.Scan(&o.Timestamp, &o.Station, &o.Longitude, &o.Latitude, &readings, &high, &low); err != nil {
		return domain.Observation{}, classify("export", err)
	}
	o.Timestamp = o.Timestamp.UTC()
	for name, v := range readings {
		p, err := domain.ParseParameter(name)
		if err != nil {
			return domain.Observation{}, fmt.Errorf("observation %s at %s: %w", o.Station, o.Timestamp, err)
		}
		o.Values.Set(p, v)
	}
	if high != nil || low != nil {
		o.Tide = &domain.TideMarks{High: high != nil && *high, Low: low != nil && *low}
	}
	return o, nil
}

// classify maps store errors onto the ingestion error kinds. Data exceptions
// and integrity violations mean the batch itself is bad; anything else is
// treated as the store being unreachable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", "23":
			return domain.E(domain.KindWriteRejected, op, err)
		}
	}
	return domain.E(domain.KindStoreUnavailable, op, err)
}
