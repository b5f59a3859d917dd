package pipeline

import (
	"context"
	"slices"
	"time"

	"github.com/couchcryptid/station-data-ingest/internal/domain"
)

// KeyedWriter is the part of the store the deduplicating writer needs.
type KeyedWriter interface {
	ExistingKeys(ctx context.Context, station string, ts []time.Time) (map[domain.Key]bool, error)
	Upsert(ctx context.Context, rows []domain.Observation) error
}

// Write drops the rows of station whose key is already stored and upserts the
// rest as a single batch. It returns the rows it wrote. Nothing left to write
// is not an error.
func Write(ctx context.Context, store KeyedWriter, station string, rows []domain.Observation) ([]domain.Observation, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	ts := make([]time.Time, len(rows))
	for i := range rows {
		ts[i] = rows[i].Timestamp
	}
	existing, err := store.ExistingKeys(ctx, station, ts)
	if err != nil {
		return nil, err
	}

	fresh := make([]domain.Observation, 0, len(rows))
	for _, o := range rows {
		if !existing[o.Key()] {
			fresh = append(fresh, o)
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	if err := store.Upsert(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// union merges buffered and fresh rows of one station. A fresh row replaces a
// buffered row with the same key. The result is ordered by timestamp.
func union(buffered, fresh []domain.Observation) []domain.Observation {
	if len(buffered) == 0 {
		return fresh
	}

	byKey := make(map[domain.Key]domain.Observation, len(buffered)+len(fresh))
	for _, o := range buffered {
		byKey[o.Key()] = o
	}
	for _, o := range fresh {
		byKey[o.Key()] = o
	}

	out := make([]domain.Observation, 0, len(byKey))
	for _, o := range byKey {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b domain.Observation) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}
