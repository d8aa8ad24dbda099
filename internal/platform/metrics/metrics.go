package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the audio chunker.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	errorsTotal          prometheus.Counter
	uploadsTotal         prometheus.Counter
	runsStartedTotal     prometheus.Counter
	runsFailedTotal      prometheus.Counter
	segmentsCreatedTotal prometheus.Counter
	filesDeletedTotal    prometheus.Counter
	storedFiles          prometheus.Gauge
	storedSegments       prometheus.Gauge
	progressObservers    prometheus.Gauge
}

// New creates and registers Prometheus metrics for the chunker.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chunker_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chunker_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		uploadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chunker_uploads_total",
			Help: "Total number of audio files uploaded",
		}),
		runsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chunker_runs_started_total",
			Help: "Total number of chunking runs accepted",
		}),
		runsFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chunker_runs_failed_total",
			Help: "Total number of chunking runs that aborted with a failure",
		}),
		segmentsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chunker_segments_created_total",
			Help: "Total number of segments materialized and persisted",
		}),
		filesDeletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chunker_files_deleted_total",
			Help: "Total number of source files deleted (with their segments)",
		}),
		storedFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chunker_stored_files",
			Help: "Number of source files currently in the metadata store",
		}),
		storedSegments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chunker_stored_segments",
			Help: "Number of segments currently in the metadata store",
		}),
		progressObservers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chunker_progress_observers",
			Help: "Number of websocket observers currently attached",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.uploadsTotal,
		m.runsStartedTotal,
		m.runsFailedTotal,
		m.segmentsCreatedTotal,
		m.filesDeletedTotal,
		m.storedFiles,
		m.storedSegments,
		m.progressObservers,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncUploads increments the uploads counter.
func (m *Metrics) IncUploads() {
	m.uploadsTotal.Inc()
}

// IncRunsStarted increments the runs started counter.
func (m *Metrics) IncRunsStarted() {
	m.runsStartedTotal.Inc()
}

// IncRunsFailed increments the runs failed counter.
func (m *Metrics) IncRunsFailed() {
	m.runsFailedTotal.Inc()
}

// IncSegmentsCreated increments the segments created counter.
func (m *Metrics) IncSegmentsCreated() {
	m.segmentsCreatedTotal.Inc()
}

// IncFilesDeleted increments the files deleted counter.
func (m *Metrics) IncFilesDeleted() {
	m.filesDeletedTotal.Inc()
}

// SetStoredFiles sets the stored files gauge.
func (m *Metrics) SetStoredFiles(n int) {
	m.storedFiles.Set(float64(n))
}

// SetStoredSegments sets the stored segments gauge.
func (m *Metrics) SetStoredSegments(n int) {
	m.storedSegments.Set(float64(n))
}

// SetProgressObservers sets the attached observers gauge.
func (m *Metrics) SetProgressObservers(n int) {
	m.progressObservers.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. stored files/segments).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
