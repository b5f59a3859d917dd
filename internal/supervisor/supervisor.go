// Package supervisor owns the remote store handle.
//
// The supervisor is a small state machine:
//
//	DISCONNECTED --connect ok--> CONNECTED --failure--> RETRYING --connect ok--> CONNECTED
//
// RETRYING has no retry limit. Callers never keep a handle across cycles;
// they ask for the current one with Acquire and report failures with Fail.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/station-data-ingest/internal/domain"
	"github.com/couchcryptid/station-data-ingest/internal/observability"
	"github.com/jonboulle/clockwork"
)

// State is the connection state of the supervised store.
type State int32

const (
	Disconnected State = iota
	Connected
	Retrying
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Retrying:
		return "retrying"
	default:
		return "disconnected"
	}
}

// Store is the remote observation store as used by the ingestion loop.
type Store interface {
	Ping(ctx context.Context) error
	ExistingKeys(ctx context.Context, station string, ts []time.Time) (map[domain.Key]bool, error)
	Upsert(ctx context.Context, rows []domain.Observation) error
	SizeBytes(ctx context.Context) (int64, error)
	ExportAll(ctx context.Context) ([]domain.Observation, error)
	Purge(ctx context.Context) error
	Close()
}

// Connector opens a new store handle.
type Connector func(ctx context.Context) (Store, error)

// Archiver persists a store dump and returns where it went.
type Archiver interface {
	Write(docs []domain.Observation) (string, error)
}

// Config tunes retry and maintenance behavior.
type Config struct {
	RetryDelay     time.Duration
	ConnectTimeout time.Duration
	SizeLimitBytes int64
	Clock          clockwork.Clock
}

// Supervisor tracks the store connection and runs size-threshold maintenance.
type Supervisor struct {
	connect  Connector
	archiver Archiver
	cfg      Config
	logger   *slog.Logger
	metrics  *observability.Metrics

	dialMu sync.Mutex // serializes connection attempts

	mu      sync.Mutex
	store   Store
	state   State
	lastErr error

	everConnected atomic.Bool
}

// New creates a disconnected Supervisor.
func New(connect Connector, archiver Archiver, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Supervisor {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 3 * time.Second
	}
	return &Supervisor{
		connect:  connect,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Acquire returns the current store handle, connecting first when not
// connected. A failed attempt moves the supervisor to RETRYING and returns a
// store-unavailable error. State stays readable while a connection attempt is
// in flight; concurrent attempts are serialized.
func (s *Supervisor) Acquire(ctx context.Context) (Store, error) {
	s.dialMu.Lock()
	defer s.dialMu.Unlock()

	s.mu.Lock()
	if s.state == Connected && s.store != nil {
		st := s.store
		s.mu.Unlock()
		return st, nil
	}
	prev := s.state
	s.mu.Unlock()

	st, err := s.dial(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if prev != Retrying {
			s.logger.Warn("store unreachable, retrying", "error", err, "retry_delay", s.cfg.RetryDelay)
		} else {
			s.logger.Debug("store still unreachable", "error", err)
		}
		s.setStateLocked(Retrying)
		s.lastErr = err
		return nil, domain.E(domain.KindStoreUnavailable, "connect", err)
	}

	if prev == Retrying {
		s.logger.Info("store connection restored")
	} else {
		s.logger.Info("store connected")
	}
	s.store = st
	s.lastErr = nil
	s.setStateLocked(Connected)
	s.everConnected.Store(true)
	return st, nil
}

// dial opens and pings a new handle within the connect timeout.
func (s *Supervisor) dial(ctx context.Context) (Store, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	st, err := s.connect(attemptCtx)
	if err != nil {
		return nil, err
	}
	if err := st.Ping(attemptCtx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// Fail reports that a store call failed. The handle is dropped and the
// supervisor moves to RETRYING.
func (s *Supervisor) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		s.store.Close()
		s.store = nil
	}
	if s.state != Retrying {
		s.logger.Warn("store connection lost", "error", err)
	}
	s.lastErr = err
	s.setStateLocked(Retrying)
}

// Delay is how long the loop sleeps before its next cycle: the retry delay
// while RETRYING, the poll interval otherwise.
func (s *Supervisor) Delay(pollInterval time.Duration) time.Duration {
	if s.State() == Retrying {
		return s.cfg.RetryDelay
	}
	return pollInterval
}

// Wait sleeps for Delay(pollInterval). Outside RETRYING a value on wake ends
// the sleep early. It returns false when ctx is cancelled first.
func (s *Supervisor) Wait(ctx context.Context, pollInterval time.Duration, wake <-chan struct{}) bool {
	d := s.Delay(pollInterval)
	if s.State() == Retrying {
		wake = nil
	}
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := s.cfg.Clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	case <-wake:
		return true
	}
}

// Maintain runs the size-threshold check once. When the store footprint
// exceeds the limit, every document is exported to an archive and then
// purged. Nothing happens unless CONNECTED.
func (s *Supervisor) Maintain(ctx context.Context) error {
	if s.State() != Connected {
		return nil
	}
	st, err := s.Acquire(ctx)
	if err != nil {
		return err
	}

	size, err := st.SizeBytes(ctx)
	if err != nil {
		return s.storeError("measure store size", err)
	}
	s.metrics.StoreSizeBytes.Set(float64(size))
	if size <= s.cfg.SizeLimitBytes {
		return nil
	}

	s.logger.Info("store over size limit, archiving", "size_bytes", size, "limit_bytes", s.cfg.SizeLimitBytes)

	docs, err := st.ExportAll(ctx)
	if err != nil {
		return s.storeError("export store", err)
	}
	path, err := s.archiver.Write(docs)
	if err != nil {
		// Without an archive on disk the purge must not run.
		return fmt.Errorf("write archive: %w", err)
	}
	s.metrics.ArchivesWritten.Inc()

	if err := st.Purge(ctx); err != nil {
		return s.storeError("purge store", err)
	}
	s.logger.Info("store archived and purged", "archive", path, "documents", len(docs))
	return nil
}

// CheckReadiness reports ready once the store has been reached at least once.
func (s *Supervisor) CheckReadiness(_ context.Context) error {
	if !s.everConnected.Load() {
		s.mu.Lock()
		last := s.lastErr
		s.mu.Unlock()
		if last != nil {
			return fmt.Errorf("store not reached yet: %w", last)
		}
		return errors.New("store not reached yet")
	}
	return nil
}

// Close releases the current handle.
func (s *Supervisor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		s.store.Close()
		s.store = nil
	}
	s.setStateLocked(Disconnected)
}

func (s *Supervisor) storeError(op string, err error) error {
	if domain.IsStoreUnavailable(err) {
		s.Fail(err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Supervisor) setStateLocked(st State) {
	s.state = st
	s.metrics.SupervisorState.Set(float64(st))
}
