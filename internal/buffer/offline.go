// Package buffer holds observations that could not reach the store.
//
// The buffer is a single JSON file: an array of documents in the persisted
// shape. Entries are keyed by (timestamp, station); adding an entry whose key
// is already buffered replaces it. Every mutation rewrites the file atomically
// before returning, so a crash never leaves a half-written buffer.
package buffer

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/couchcryptid/station-data-ingest/internal/domain"
)

// Offline is a durable, key-deduplicated holding area for observations.
type Offline struct {
	mu      sync.Mutex
	path    string
	entries map[domain.Key]domain.Observation
	logger  *slog.Logger
}

// Open loads the buffer at path. A missing file is an empty buffer. A file
// that cannot be decoded is moved aside to <path>.corrupt and the buffer
// starts empty.
func Open(path string, logger *slog.Logger) (*Offline, error) {
	b := &Offline{
		path:    path,
		entries: make(map[domain.Key]domain.Observation),
		logger:  logger,
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return b, nil
		}
		return nil, fmt.Errorf("read offline buffer: %w", err)
	}
	if len(data) == 0 {
		return b, nil
	}

	var docs []domain.Observation
	if err := json.Unmarshal(data, &docs); err != nil {
		aside := path + ".corrupt"
		logger.Error("offline buffer unreadable, moving aside", "file", path, "moved_to", aside, "error", err)
		if rerr := os.Rename(path, aside); rerr != nil {
			return nil, fmt.Errorf("move corrupt offline buffer: %w", rerr)
		}
		return b, nil
	}
	// Later entries win on reload, same as Add.
	for _, o := range docs {
		b.entries[o.Key()] = o
	}
	if len(docs) > 0 {
		logger.Info("offline buffer loaded", "file", path, "rows", len(b.entries))
	}
	return b, nil
}

// Add buffers rows, replacing any buffered row with the same key, and
// persists the result.
func (b *Offline) Add(rows []domain.Observation) error {
	if len(rows) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, o := range rows {
		b.entries[o.Key()] = o
	}
	return b.persistLocked()
}

// Pending returns the buffered rows of one station ordered by timestamp.
func (b *Offline) Pending(station string) []domain.Observation {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.Observation
	for k, o := range b.entries {
		if k.Station == station {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, c domain.Observation) int {
		return a.Timestamp.Compare(c.Timestamp)
	})
	return out
}

// Remove drops the given keys once they are confirmed persisted or
// superseded. Unknown keys are ignored.
func (b *Offline) Remove(keys []domain.Key) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for _, k := range keys {
		if _, ok := b.entries[k]; ok {
			delete(b.entries, k)
			removed++
		}
	}
	if removed == 0 {
		return nil
	}
	return b.persistLocked()
}

// Len returns the number of buffered rows.
func (b *Offline) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *Offline) persistLocked() error {
	docs := make([]domain.Observation, 0, len(b.entries))
	for _, o := range b.entries {
		docs = append(docs, o)
	}
	slices.SortFunc(docs, func(a, c domain.Observation) int {
		if n := cmp.Compare(a.Station, c.Station); n != 0 {
			return n
		}
		return a.Timestamp.Compare(c.Timestamp)
	})

	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode offline buffer: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o750); err != nil {
		return fmt.Errorf("write offline buffer: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write offline buffer: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("write offline buffer: %w", err)
	}
	return nil
}
