package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "station_ingest"

// Drop reasons used as the "reason" label of RowsDropped.
const (
	DropMissing    = "missing"
	DropMalformed  = "malformed"
	DropOutOfRange = "out_of_range"
	DropIncomplete = "incomplete"
	DropRejected   = "rejected"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the ingestion loop.
type Metrics struct {
	ReadingsParsed  prometheus.Counter
	RowsDropped     *prometheus.CounterVec // labels: reason
	RowsPersisted   prometheus.Counter
	RowsBuffered    prometheus.Counter
	BufferSize      prometheus.Gauge
	PipelineRunning prometheus.Gauge

	CycleDuration prometheus.Histogram

	// Store supervision.
	SupervisorState prometheus.Gauge // 0 disconnected, 1 connected, 2 retrying
	StoreSizeBytes  prometheus.Gauge
	ArchivesWritten prometheus.Counter

	ReportsPublished *prometheus.CounterVec // labels: outcome={success,error}
}

func newMetrics() *Metrics {
	return &Metrics{
		ReadingsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_parsed_total",
			Help:      "Total readings parsed from source files.",
		}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Rows or values discarded, by reason.",
		}, []string{"reason"}),
		RowsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_persisted_total",
			Help:      "Observations written to the store.",
		}),
		RowsBuffered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_buffered_total",
			Help:      "Observations routed to the offline buffer.",
		}),
		BufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "offline_buffer_rows",
			Help:      "Observations currently held in the offline buffer.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the ingestion loop is active, 0 when shut down.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one ingestion cycle over all stations.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		SupervisorState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_connection_state",
			Help:      "0 disconnected, 1 connected, 2 retrying.",
		}),
		StoreSizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_size_bytes",
			Help:      "Last measured storage footprint of the observation store.",
		}),
		ArchivesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_written_total",
			Help:      "Archive files written before a size-threshold purge.",
		}),
		ReportsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_published_total",
			Help:      "Report trigger messages by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ReadingsParsed,
		m.RowsDropped,
		m.RowsPersisted,
		m.RowsBuffered,
		m.BufferSize,
		m.PipelineRunning,
		m.CycleDuration,
		m.SupervisorState,
		m.StoreSizeBytes,
		m.ArchivesWritten,
		m.ReportsPublished,
	}
}

// NewMetrics creates and registers all ingestion metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered nowhere, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
