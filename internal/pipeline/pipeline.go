package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/station-data-ingest/internal/domain"
	"github.com/couchcryptid/station-data-ingest/internal/observability"
	"github.com/couchcryptid/station-data-ingest/internal/source"
	"github.com/couchcryptid/station-data-ingest/internal/supervisor"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// StationReader yields the reading streams appended since the last call.
type StationReader interface {
	ReadStation(st domain.StationConfig) ([]domain.Stream, source.ReadStats)
}

// Buffer holds rows that could not reach the store.
type Buffer interface {
	Add(rows []domain.Observation) error
	Pending(station string) []domain.Observation
	Remove(keys []domain.Key) error
	Len() int
}

// Connection hands out the current store handle and paces the loop.
type Connection interface {
	Acquire(ctx context.Context) (supervisor.Store, error)
	Fail(err error)
	Maintain(ctx context.Context) error
	Wait(ctx context.Context, pollInterval time.Duration, wake <-chan struct{}) bool
	CheckReadiness(ctx context.Context) error
	State() supervisor.State
}

// ReportPublisher announces persisted station batches.
type ReportPublisher interface {
	Publish(ctx context.Context, report domain.Report) error
}

// CursorSaver persists read positions.
type CursorSaver interface {
	Save() error
}

// Config is the static part of the ingestion loop.
type Config struct {
	Stations     []domain.StationConfig
	PollInterval time.Duration
	Clock        clockwork.Clock // defaults to the real clock
}

// Pipeline runs ingestion cycles: read, merge, filter, dedup and persist,
// one station at a time in configuration order.
type Pipeline struct {
	cfg     Config
	reader  StationReader
	filter  *domain.QualityFilter
	buffer  Buffer
	conn    Connection
	reports ReportPublisher
	cursors CursorSaver
	wake    <-chan struct{}
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool

	mu          sync.Mutex
	cycles      int64
	lastCycleID string
	lastCycleAt time.Time
}

// New creates a Pipeline. Reports, cursor persistence and early wakeups are
// optional and attached with the With methods.
func New(cfg Config, reader StationReader, filter *domain.QualityFilter, buf Buffer, conn Connection, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if filter == nil {
		filter = domain.NewQualityFilter()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		cfg:     cfg,
		reader:  reader,
		filter:  filter,
		buffer:  buf,
		conn:    conn,
		logger:  logger,
		metrics: metrics,
	}
}

// WithReports publishes a report after each persisted station batch.
func (p *Pipeline) WithReports(r ReportPublisher) *Pipeline {
	p.reports = r
	return p
}

// WithCursors saves read positions at the end of every cycle.
func (p *Pipeline) WithCursors(c CursorSaver) *Pipeline {
	p.cursors = c
	return p
}

// WithWake ends the inter-cycle sleep early when ch delivers.
func (p *Pipeline) WithWake(ch <-chan struct{}) *Pipeline {
	p.wake = ch
	return p
}

// CheckReadiness returns nil once a full cycle has run and the store has been
// reached at least once.
func (p *Pipeline) CheckReadiness(ctx context.Context) error {
	if !p.ready.Load() {
		return errors.New("no ingestion cycle has completed yet")
	}
	return p.conn.CheckReadiness(ctx)
}

// Run executes ingestion cycles until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "stations", len(p.cfg.Stations), "poll_interval", p.cfg.PollInterval)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		p.RunCycle(ctx)

		if !p.conn.Wait(ctx, p.cfg.PollInterval, p.wake) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// StationResult is what one station contributed to a cycle.
type StationResult struct {
	Station   string
	Read      source.ReadStats
	Quality   domain.QualityReport
	Fresh     int // rows that passed the quality filter
	Persisted int // rows newly written to the store
	Buffered  int // rows routed to the offline buffer
	Rejected  int // rows the store refused
}

// CycleResult summarizes one pass over every station.
type CycleResult struct {
	ID       string
	Stations []StationResult
}

// RunCycle processes every station once, then runs store maintenance.
func (p *Pipeline) RunCycle(ctx context.Context) CycleResult {
	start := p.cfg.Clock.Now()
	res := CycleResult{ID: uuid.NewString()}
	logger := p.logger.With("cycle_id", res.ID)

	for _, st := range p.cfg.Stations {
		if ctx.Err() != nil {
			break
		}
		res.Stations = append(res.Stations, p.processStation(ctx, logger, res.ID, st))
	}

	if err := p.conn.Maintain(ctx); err != nil {
		logger.Error("store maintenance failed", "error", err)
	}
	if p.cursors != nil {
		if err := p.cursors.Save(); err != nil {
			logger.Warn("failed to save cursors", "error", err)
		}
	}

	p.metrics.BufferSize.Set(float64(p.buffer.Len()))
	p.metrics.CycleDuration.Observe(p.cfg.Clock.Since(start).Seconds())
	p.mu.Lock()
	p.cycles++
	p.lastCycleID = res.ID
	p.lastCycleAt = start.UTC()
	p.mu.Unlock()
	p.ready.Store(true)
	return res
}

// Status reports the loop's progress and the store connection state.
func (p *Pipeline) Status() domain.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return domain.Status{
		Stations:    len(p.cfg.Stations),
		Store:       p.conn.State().String(),
		Buffered:    p.buffer.Len(),
		Cycles:      p.cycles,
		LastCycleID: p.lastCycleID,
		LastCycleAt: p.lastCycleAt,
	}
}

func (p *Pipeline) processStation(ctx context.Context, logger *slog.Logger, cycleID string, st domain.StationConfig) StationResult {
	logger = logger.With("station", st.ID)
	res := StationResult{Station: st.ID}

	streams, stats := p.reader.ReadStation(st)
	res.Read = stats
	p.metrics.ReadingsParsed.Add(float64(stats.Readings))
	p.metrics.RowsDropped.WithLabelValues(observability.DropMissing).Add(float64(stats.Missing))
	p.metrics.RowsDropped.WithLabelValues(observability.DropMalformed).Add(float64(stats.Malformed))

	var fresh []domain.Observation
	if len(streams) > 0 {
		filtered, quality, err := p.filter.Apply(domain.Merge(st, streams...))
		if err != nil {
			logger.Error("quality filter failed, skipping new rows", "error", err)
		} else {
			fresh = filtered.Rows
			res.Quality = quality
			p.metrics.RowsDropped.WithLabelValues(observability.DropOutOfRange).Add(float64(quality.OutOfRange))
			p.metrics.RowsDropped.WithLabelValues(observability.DropIncomplete).Add(float64(quality.Incomplete))
		}
	}
	res.Fresh = len(fresh)

	pending := p.buffer.Pending(st.ID)
	candidates := union(pending, fresh)
	if len(candidates) == 0 {
		return res
	}

	store, err := p.conn.Acquire(ctx)
	if err != nil {
		res.Buffered = p.bufferRows(logger, candidates)
		return res
	}

	written, err := Write(ctx, store, st.ID, candidates)
	switch {
	case err == nil:
		res.Persisted = len(written)
		p.metrics.RowsPersisted.Add(float64(len(written)))
		p.clearBuffered(logger, pending)
		logger.Info("station cycle persisted", "fresh", len(fresh), "flushed", len(pending), "written", len(written))
		if len(written) > 0 {
			p.publish(ctx, logger, domain.NewReport(cycleID, st.ID, written, res.Quality.TideModel))
		}

	case domain.KindOf(err) == domain.KindWriteRejected:
		res.Rejected = len(candidates)
		p.metrics.RowsDropped.WithLabelValues(observability.DropRejected).Add(float64(len(candidates)))
		logger.Error("store rejected batch, skipping", "rows", len(candidates), "error", err)
		p.clearBuffered(logger, pending)

	default:
		if ctx.Err() == nil {
			p.conn.Fail(err)
		}
		res.Buffered = p.bufferRows(logger, candidates)
	}
	return res
}

func (p *Pipeline) bufferRows(logger *slog.Logger, rows []domain.Observation) int {
	if err := p.buffer.Add(rows); err != nil {
		logger.Error("failed to write offline buffer", "rows", len(rows), "error", err)
		return 0
	}
	p.metrics.RowsBuffered.Add(float64(len(rows)))
	logger.Warn("store unavailable, rows buffered", "rows", len(rows), "buffer_size", p.buffer.Len())
	return len(rows)
}

func (p *Pipeline) clearBuffered(logger *slog.Logger, pending []domain.Observation) {
	if len(pending) == 0 {
		return
	}
	keys := make([]domain.Key, len(pending))
	for i := range pending {
		keys[i] = pending[i].Key()
	}
	if err := p.buffer.Remove(keys); err != nil {
		logger.Error("failed to clear flushed rows from offline buffer", "rows", len(keys), "error", err)
	}
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, report domain.Report) {
	if p.reports == nil {
		return
	}
	if err := p.reports.Publish(ctx, report); err != nil {
		p.metrics.ReportsPublished.WithLabelValues("error").Inc()
		logger.Warn("report trigger failed", "error", err)
		return
	}
	p.metrics.ReportsPublished.WithLabelValues("success").Inc()
}
