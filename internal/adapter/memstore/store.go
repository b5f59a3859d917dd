// Package memstore is an in-memory observation store. It backs dry runs and
// tests; it has the same keyed-upsert semantics as the postgres store.
package memstore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/station-data-ingest/internal/domain"
)

// ErrDown is returned by every call while the store is marked down.
var ErrDown = domain.E(domain.KindStoreUnavailable, "memstore", errDown{})

type errDown struct{}

func (errDown) Error() string { return "store is down" }

// Store keeps observations in a map keyed by (timestamp, station).
type Store struct {
	mu      sync.Mutex
	docs    map[domain.Key]domain.Observation
	down    bool
	reject  map[string]bool
	size    int64 // overrides the computed footprint when > 0
	changed int
}

// New returns an empty store.
func New() *Store {
	return &Store{docs: make(map[domain.Key]domain.Observation), reject: make(map[string]bool)}
}

// SetDown makes every call fail with a store-unavailable error until reset.
func (s *Store) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// Reject makes upserts containing rows of station fail as write-rejected.
func (s *Store) Reject(station string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject[station] = true
}

// SetSize pins the reported footprint. Zero reports the encoded size of the documents.
func (s *Store) SetSize(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = n
}

func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return ErrDown
	}
	return nil
}

func (s *Store) ExistingKeys(_ context.Context, station string, ts []time.Time) (map[domain.Key]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, ErrDown
	}
	found := make(map[domain.Key]bool)
	for _, t := range ts {
		k := domain.Key{Station: station, At: t.UTC().UnixNano()}
		if _, ok := s.docs[k]; ok {
			found[k] = true
		}
	}
	return found, nil
}

// Upsert writes all rows or none.
func (s *Store) Upsert(_ context.Context, rows []domain.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return ErrDown
	}
	for _, o := range rows {
		if s.reject[o.Station] {
			return domain.E(domain.KindWriteRejected, "memstore upsert", errRejected(o.Station))
		}
	}
	for _, o := range rows {
		k := o.Key()
		if prev, ok := s.docs[k]; ok && sameDocument(prev, o) {
			continue
		}
		s.docs[k] = o
		s.changed++
	}
	return nil
}

func (s *Store) SizeBytes(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return 0, ErrDown
	}
	if s.size > 0 {
		return s.size, nil
	}
	var n int64
	for _, o := range s.docs {
		data, err := json.Marshal(o)
		if err != nil {
			return 0, fmt.Errorf("encode %s: %w", o.Key(), err)
		}
		n += int64(len(data))
	}
	return n, nil
}

func (s *Store) ExportAll(context.Context) ([]domain.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, ErrDown
	}
	return s.sortedLocked(), nil
}

func (s *Store) Purge(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return ErrDown
	}
	s.docs = make(map[domain.Key]domain.Observation)
	s.size = 0
	return nil
}

// Close is a no-op; the contents survive reconnects.
func (s *Store) Close() {}

// Count returns the number of stored documents.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Documents returns every stored document ordered by station and time.
func (s *Store) Documents() []domain.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Changes returns how many documents were inserted or replaced with new content.
func (s *Store) Changes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

func (s *Store) sortedLocked() []domain.Observation {
	out := make([]domain.Observation, 0, len(s.docs))
	for _, o := range s.docs {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b domain.Observation) int {
		if n := cmp.Compare(a.Station, b.Station); n != 0 {
			return n
		}
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}

func sameDocument(a, b domain.Observation) bool {
	da, errA := json.Marshal(a)
	db, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(da) == string(db)
}

type errRejected string

func (e errRejected) Error() string { return "rows rejected for station " + string(e) }
