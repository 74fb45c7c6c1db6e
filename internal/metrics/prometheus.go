// Package metrics provides Prometheus metrics for report runs and the daemon
// that schedules them. All collectors live on a private registry exposed
// through GetRegistry for the /metrics handler.
package metrics

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace for all openvas-reporter metrics
	namespace = "openvas_reporter"

	// Subsystems
	subsystemSystem = "system"
	subsystemAPI    = "api"
)

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	// Run metrics
	runsTotal        *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	reportPolls      prometheus.Counter
	targetHosts      prometheus.Gauge
	deliveryFailures prometheus.Counter
	lastSuccess      prometheus.Gauge

	// API metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	// System metrics
	memoryUsage prometheus.Gauge
	goroutines  prometheus.Gauge
	uptime      prometheus.Gauge

	startTime  time.Time
	lastUpdate time.Time
	mu         sync.RWMutex
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	pm.initRunMetrics()
	pm.initAPIMetrics()
	pm.initSystemMetrics()
	pm.registerMetrics()

	// Standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

func (pm *PrometheusMetrics) initRunMetrics() {
	pm.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of report runs by final status",
		},
		[]string{"status"},
	)

	// Waiting for a report dominates; full scans take minutes to hours.
	pm.stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of report run steps in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 30, 60, 300, 900, 1800, 3600, 7200, 14400},
		},
		[]string{"step"},
	)

	pm.reportPolls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_polls_total",
			Help:      "Total number of report status queries",
		},
	)

	pm.targetHosts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_hosts",
			Help:      "Number of hosts in the most recently discovered subnet",
		},
	)

	pm.deliveryFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Total number of reports that were written but could not be mailed",
		},
	)

	pm.lastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that delivered its report",
		},
	)
}

func (pm *PrometheusMetrics) initAPIMetrics() {
	pm.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	pm.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
}

func (pm *PrometheusMetrics) initSystemMetrics() {
	pm.memoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "memory_bytes",
			Help:      "Current memory usage in bytes",
		},
	)

	pm.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	pm.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Application uptime in seconds",
		},
	)
}

func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(
		pm.runsTotal,
		pm.stepDuration,
		pm.reportPolls,
		pm.targetHosts,
		pm.deliveryFailures,
		pm.lastSuccess,
		pm.httpRequests,
		pm.httpDuration,
		pm.memoryUsage,
		pm.goroutines,
		pm.uptime,
	)
}

// GetRegistry returns the Prometheus registry for HTTP handler
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// Run metrics. These methods satisfy the orchestrator's Recorder.

// RecordStep records how long one run step took.
func (pm *PrometheusMetrics) RecordStep(step string, duration time.Duration) {
	pm.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordPoll counts a report status query.
func (pm *PrometheusMetrics) RecordPoll() {
	pm.reportPolls.Inc()
}

// RecordTargetHosts sets the host count of the current target.
func (pm *PrometheusMetrics) RecordTargetHosts(count int) {
	pm.targetHosts.Set(float64(count))
}

// RecordDeliveryFailure counts a report that could not be mailed.
func (pm *PrometheusMetrics) RecordDeliveryFailure() {
	pm.deliveryFailures.Inc()
}

// RecordRun counts a finished run. Successful runs also move the last
// success timestamp.
func (pm *PrometheusMetrics) RecordRun(status string, finishedAt time.Time) {
	pm.runsTotal.WithLabelValues(status).Inc()
	if status == "succeeded" {
		pm.lastSuccess.Set(float64(finishedAt.Unix()))
	}
}

// API metrics

// RecordHTTPRequest counts an HTTP request and records its duration.
func (pm *PrometheusMetrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	pm.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	pm.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// System metrics

// UpdateSystemMetrics updates all system metrics with current values
func (pm *PrometheusMetrics) UpdateSystemMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	pm.memoryUsage.Set(float64(memStats.Alloc))
	pm.goroutines.Set(float64(runtime.NumGoroutine()))
	pm.uptime.Set(time.Since(pm.startTime).Seconds())

	pm.lastUpdate = time.Now()
}

// GetUptime returns the application uptime
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// GetLastUpdate returns the last system metrics update time
func (pm *PrometheusMetrics) GetLastUpdate() time.Time {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.lastUpdate
}

// StartPeriodicUpdates refreshes system metrics every interval until ctx ends.
func (pm *PrometheusMetrics) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.UpdateSystemMetrics()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.UpdateSystemMetrics()
		}
	}
}
