// Package metrics provides Prometheus metrics for the trigger catalog.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trigger catalog.
type Metrics struct {
	// Chunk metrics
	ChunksProcessed *prometheus.CounterVec
	ChunksSkipped   *prometheus.CounterVec
	ChunksFailed    *prometheus.CounterVec
	ChunkDuration   *prometheus.HistogramVec
	InFlightChunks  prometheus.Gauge

	// File metrics
	FilesProcessed *prometheus.CounterVec
	FilesFailed    *prometheus.CounterVec
	TriggersFound  *prometheus.CounterVec
	LedgerRows     *prometheus.CounterVec

	// Fetch metrics
	FetchAttempts *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	RetryAttempts *prometheus.CounterVec
	MirrorLookups *prometheus.CounterVec

	// Error metrics
	CatalogErrors *prometheus.CounterVec
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init registers the metrics with the default registry and installs them as
// the global instance. Call this once at startup.
func Init(namespace string) *Metrics {
	m := New(namespace, prometheus.DefaultRegisterer)
	defaultMetrics = m
	return m
}

// New builds a Metrics set registered with reg.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "trigger_catalog"
	}
	factory := promauto.With(reg)
	station := []string{"network", "station", "channel"}

	return &Metrics{
		ChunksProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_processed_total",
				Help:      "Total number of time chunks fetched and detected",
			},
			station,
		),
		ChunksSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_skipped_total",
				Help:      "Total number of time chunks skipped (day already in ledger)",
			},
			station,
		),
		ChunksFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_failed_total",
				Help:      "Total number of time chunks that failed",
			},
			append(station, "stage"),
		),
		ChunkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chunk_duration_seconds",
				Help:      "Time to fetch, extract and detect one chunk",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
			},
			station,
		),
		InFlightChunks: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_chunks",
				Help:      "Number of chunks currently being processed",
			},
		),
		FilesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_processed_total",
				Help:      "Total number of waveform files run through the detector",
			},
			station,
		),
		FilesFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_failed_total",
				Help:      "Total number of waveform files that failed decode or detection",
			},
			append(station, "stage"),
		),
		TriggersFound: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "triggers_detected_total",
				Help:      "Total number of STA/LTA trigger intervals detected",
			},
			station,
		),
		LedgerRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_rows_total",
				Help:      "Total number of rows appended to the trigger ledger",
			},
			station,
		),
		FetchAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_attempts_total",
				Help:      "Total number of HTTP requests to the waveform service",
			},
			append(station, "outcome"),
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Time for a single waveform service request",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			station,
		),
		RetryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"network", "operation"},
		),
		MirrorLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mirror_lookups_total",
				Help:      "Archive mirror lookups by result",
			},
			[]string{"network", "outcome"},
		),
		CatalogErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_errors_total",
				Help:      "Total number of chunk catalog write errors",
			},
			[]string{"network"},
		),
	}
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// Handler returns the HTTP handler serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	return http.ListenAndServe(address, Handler())
}

// Labels is a convenience type for metric labels.
type Labels struct {
	Network   string
	Station   string
	Channel   string
	Stage     string
	Outcome   string
	Operation string
}

func (l Labels) station() []string {
	return []string{l.Network, l.Station, l.Channel}
}

// IncChunksProcessed increments the chunks processed counter.
func (m *Metrics) IncChunksProcessed(l Labels) {
	m.ChunksProcessed.WithLabelValues(l.station()...).Inc()
}

// IncChunksSkipped increments the chunks skipped counter.
func (m *Metrics) IncChunksSkipped(l Labels) {
	m.ChunksSkipped.WithLabelValues(l.station()...).Inc()
}

// IncChunksFailed increments the chunks failed counter for l.Stage.
func (m *Metrics) IncChunksFailed(l Labels) {
	m.ChunksFailed.WithLabelValues(append(l.station(), l.Stage)...).Inc()
}

// ObserveChunkDuration records the end-to-end time of one chunk.
func (m *Metrics) ObserveChunkDuration(l Labels, seconds float64) {
	m.ChunkDuration.WithLabelValues(l.station()...).Observe(seconds)
}

// SetInFlightChunks sets the number of in-flight chunks.
func (m *Metrics) SetInFlightChunks(count float64) {
	m.InFlightChunks.Set(count)
}

// IncFilesProcessed increments the files processed counter.
func (m *Metrics) IncFilesProcessed(l Labels) {
	m.FilesProcessed.WithLabelValues(l.station()...).Inc()
}

// IncFilesFailed increments the failed files counter for l.Stage.
func (m *Metrics) IncFilesFailed(l Labels) {
	m.FilesFailed.WithLabelValues(append(l.station(), l.Stage)...).Inc()
}

// AddTriggers adds to the detected triggers counter.
func (m *Metrics) AddTriggers(l Labels, count float64) {
	m.TriggersFound.WithLabelValues(l.station()...).Add(count)
}

// IncLedgerRows increments the ledger rows counter.
func (m *Metrics) IncLedgerRows(l Labels) {
	m.LedgerRows.WithLabelValues(l.station()...).Inc()
}

// IncFetchAttempts counts one request with outcome l.Outcome.
func (m *Metrics) IncFetchAttempts(l Labels) {
	m.FetchAttempts.WithLabelValues(append(l.station(), l.Outcome)...).Inc()
}

// ObserveFetchDuration records the duration of a single request.
func (m *Metrics) ObserveFetchDuration(l Labels, seconds float64) {
	m.FetchDuration.WithLabelValues(l.station()...).Observe(seconds)
}

// IncRetryAttempts increments the retry attempts counter.
func (m *Metrics) IncRetryAttempts(l Labels) {
	m.RetryAttempts.WithLabelValues(l.Network, l.Operation).Inc()
}

// IncMirrorLookups counts a mirror lookup with outcome l.Outcome.
func (m *Metrics) IncMirrorLookups(l Labels) {
	m.MirrorLookups.WithLabelValues(l.Network, l.Outcome).Inc()
}

// IncCatalogErrors increments the catalog errors counter.
func (m *Metrics) IncCatalogErrors(l Labels) {
	m.CatalogErrors.WithLabelValues(l.Network).Inc()
}
