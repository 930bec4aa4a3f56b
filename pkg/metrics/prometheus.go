// Package metrics provides Prometheus metrics for the pool scoring service.
package metrics

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Resolution
	resolutions       *prometheus.CounterVec
	resolutionLatency *prometheus.HistogramVec
	resolutionErrors  *prometheus.CounterVec
	tieBreaks         *prometheus.CounterVec
	coWinners         *prometheus.CounterVec
	raceConflicts     prometheus.Counter
	flaggedPickSets   prometheus.Counter
	invalidations     *prometheus.CounterVec

	// Events
	eventsPublished     prometheus.Counter
	eventsPublishErrors prometheus.Counter

	// Queue and workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueued           prometheus.Counter
	queueRejected           prometheus.Counter
	jobsProcessed           prometheus.Counter
	jobsFailed              prometheus.Counter
	jobsDuplicate           prometheus.Counter
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Observer

	// Scheduler
	schedulerRuns     prometheus.Counter
	schedulerEnqueued prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager atomic.Pointer[Manager] //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager.Store(NewManager(WithPrometheusRegistry(customRegistry)))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "poolscore",
		subsystem:        "engine",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// SetGlobal replaces the manager used by the package-level recorders.
func SetGlobal(m *Manager) {
	if m != nil {
		globalManager.Store(m)
	}
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.resolutions = m.counterVec("resolutions_total", "Resolution attempts by scope type and outcome", "scope_type", "outcome")
	m.resolutionLatency = m.histogramVec("resolution_latency_milliseconds", "Time to resolve a scope in milliseconds", "scope_type")
	m.resolutionErrors = m.counterVec("resolution_errors_total", "Resolutions that failed on a collaborator", "scope_type")
	m.tieBreaks = m.counterVec("tie_breaks_total", "Tied winning groups by whether guesses decided them", "scope_type", "used")
	m.coWinners = m.counterVec("co_winners_total", "Winner records naming more than one participant", "scope_type")
	m.raceConflicts = m.counter("race_conflicts_total", "Inserts that lost the race to a concurrent resolution")
	m.flaggedPickSets = m.counter("flagged_pick_sets_total", "Participants scored with an invalid confidence set")
	m.invalidations = m.counterVec("invalidations_total", "Winner records removed for recomputation", "scope_type")

	m.eventsPublished = m.counter("events_published_total", "Winner events published")
	m.eventsPublishErrors = m.counter("events_publish_errors_total", "Winner events that failed to publish")

	m.queueSize = m.gauge("queue_size", "Resolution jobs waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum number of queued resolution jobs")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Resolution jobs accepted by the queue")
	m.queueRejected = m.counter("queue_rejected_total", "Resolution jobs rejected because the queue was full")
	m.jobsProcessed = m.counter("jobs_processed_total", "Resolution jobs completed by workers")
	m.jobsFailed = m.counter("jobs_failed_total", "Resolution jobs that returned an error")
	m.jobsDuplicate = m.counter("jobs_duplicate_total", "Resolution jobs skipped because the scope was already pending")
	m.workerCount = m.gauge("worker_count", "Number of running workers")
	m.workerProcessingLatency = m.histogramVec("worker_processing_latency_milliseconds", "Worker time per job in milliseconds").WithLabelValues()

	m.schedulerRuns = m.counter("scheduler_runs_total", "Scheduled pending-scope sweeps")
	m.schedulerEnqueued = m.counter("scheduler_enqueued_total", "Scopes enqueued by the scheduler")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")
}

func get() *Manager {
	m := globalManager.Load()
	if m == nil || !m.enabled {
		return nil
	}
	return m
}

// RecordResolution counts a resolution attempt and its latency.
func RecordResolution(scopeType, outcome string, latencyMs float64) {
	if m := get(); m != nil {
		m.resolutions.WithLabelValues(scopeType, outcome).Inc()
		m.resolutionLatency.WithLabelValues(scopeType).Observe(latencyMs)
	}
}

// RecordResolutionError counts a resolution that failed on I/O.
func RecordResolutionError(scopeType string) {
	if m := get(); m != nil {
		m.resolutionErrors.WithLabelValues(scopeType).Inc()
	}
}

// RecordTieBreak counts a tied winning group.
func RecordTieBreak(scopeType string, used bool) {
	if m := get(); m != nil {
		m.tieBreaks.WithLabelValues(scopeType, strconv.FormatBool(used)).Inc()
	}
}

// RecordCoWinners counts a record with shared winners.
func RecordCoWinners(scopeType string) {
	if m := get(); m != nil {
		m.coWinners.WithLabelValues(scopeType).Inc()
	}
}

// RecordRaceConflict counts a lost insert race.
func RecordRaceConflict() {
	if m := get(); m != nil {
		m.raceConflicts.Inc()
	}
}

// RecordFlaggedPickSets adds n participants with invalid confidence sets.
func RecordFlaggedPickSets(n int) {
	if m := get(); m != nil && n > 0 {
		m.flaggedPickSets.Add(float64(n))
	}
}

// RecordInvalidation counts a removed winner record.
func RecordInvalidation(scopeType string) {
	if m := get(); m != nil {
		m.invalidations.WithLabelValues(scopeType).Inc()
	}
}

// RecordEventPublished counts a published winner event.
func RecordEventPublished() {
	if m := get(); m != nil {
		m.eventsPublished.Inc()
	}
}

// RecordEventPublishError counts a failed publish.
func RecordEventPublishError() {
	if m := get(); m != nil {
		m.eventsPublishErrors.Inc()
	}
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if m := get(); m != nil {
		m.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if m := get(); m != nil {
		m.queueCapacity.Set(float64(capacity))
	}
}

// RecordQueueEnqueue counts an accepted job.
func RecordQueueEnqueue() {
	if m := get(); m != nil {
		m.queueEnqueued.Inc()
	}
}

// RecordQueueRejected counts a job dropped on a full queue.
func RecordQueueRejected() {
	if m := get(); m != nil {
		m.queueRejected.Inc()
	}
}

// RecordJobProcessed counts a completed job and its latency.
func RecordJobProcessed(latencyMs float64) {
	if m := get(); m != nil {
		m.jobsProcessed.Inc()
		m.workerProcessingLatency.Observe(latencyMs)
	}
}

// RecordJobFailed counts a failed job.
func RecordJobFailed() {
	if m := get(); m != nil {
		m.jobsFailed.Inc()
	}
}

// RecordJobDuplicate counts a job skipped by the deduper.
func RecordJobDuplicate() {
	if m := get(); m != nil {
		m.jobsDuplicate.Inc()
	}
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	if m := get(); m != nil {
		m.workerCount.Set(float64(count))
	}
}

// RecordSchedulerRun counts a sweep and the scopes it enqueued.
func RecordSchedulerRun(enqueued int) {
	if m := get(); m != nil {
		m.schedulerRuns.Inc()
		m.schedulerEnqueued.Add(float64(enqueued))
	}
}

// RecordHTTPRequest records an HTTP request and its duration in milliseconds.
func RecordHTTPRequest(endpoint, method string, statusCode int, durationMs float64) {
	if m := get(); m != nil {
		code := strconv.Itoa(statusCode)
		m.httpRequests.WithLabelValues(endpoint, method, code).Inc()
		m.httpRequestDuration.WithLabelValues(endpoint, method, code).Observe(durationMs)
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
