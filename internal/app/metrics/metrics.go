// Package metrics exposes the application's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dashboard",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dashboard",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dashboard",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dashboard",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Dataset cache lookups by key and outcome.",
		},
		[]string{"key", "outcome"},
	)

	datasetDerives = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dashboard",
			Subsystem: "orchestrator",
			Name:      "derives_total",
			Help:      "Dataset derivations by key and result.",
		},
		[]string{"key", "success"},
	)

	datasetDeriveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dashboard",
			Subsystem: "orchestrator",
			Name:      "derive_duration_seconds",
			Help:      "Duration of dataset derivations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"key"},
	)

	refreshCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dashboard",
			Subsystem: "orchestrator",
			Name:      "refresh_cycles_total",
			Help:      "Background refresh cycles by result.",
		},
		[]string{"success"},
	)

	refreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dashboard",
			Subsystem: "orchestrator",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of full refresh cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	renderPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dashboard",
			Subsystem: "chart",
			Name:      "render_passes_total",
			Help:      "Chart render passes by chart type.",
		},
		[]string{"type"},
	)

	renderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dashboard",
			Subsystem: "chart",
			Name:      "render_duration_seconds",
			Help:      "Duration of chart render passes.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"type"},
	)

	websocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dashboard",
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected websocket clients.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		cacheLookups,
		datasetDerives,
		datasetDeriveDuration,
		refreshCycles,
		refreshDuration,
		renderPasses,
		renderDuration,
		websocketClients,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered collectors.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordCacheLookup records one dataset cache lookup.
func RecordCacheLookup(key string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	cacheLookups.WithLabelValues(canonicalKey(key), outcome).Inc()
}

// RecordDatasetDerive records one dataset derivation.
func RecordDatasetDerive(key string, duration time.Duration, success bool) {
	key = canonicalKey(key)
	datasetDerives.WithLabelValues(key, strconv.FormatBool(success)).Inc()
	datasetDeriveDuration.WithLabelValues(key).Observe(duration.Seconds())
}

// RecordRefreshCycle records one background refresh cycle.
func RecordRefreshCycle(duration time.Duration, success bool) {
	refreshCycles.WithLabelValues(strconv.FormatBool(success)).Inc()
	refreshDuration.Observe(duration.Seconds())
}

// RecordRenderPass records one chart render pass.
func RecordRenderPass(chartType string, duration time.Duration) {
	renderPasses.WithLabelValues(chartType).Inc()
	renderDuration.WithLabelValues(chartType).Observe(duration.Seconds())
}

// SetWebsocketClients sets the connected client gauge.
func SetWebsocketClients(n int) {
	websocketClients.Set(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalKey collapses window-parameterised chart keys into one label so
// the cardinality stays bounded.
func canonicalKey(key string) string {
	if strings.HasPrefix(key, "chart:") {
		return "chart"
	}
	return key
}

// canonicalPath bounds the path label space: trailing segments beyond the
// route depth are dropped, and per-resource IDs on parameterised routes
// collapse into a placeholder.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	if len(parts) == 3 && parts[0] == "api" && parts[1] == "annotations" {
		parts[2] = "{id}"
	}
	return "/" + strings.Join(parts, "/")
}
