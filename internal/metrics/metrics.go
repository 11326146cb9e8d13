// Package metrics provides Prometheus metrics for the dpack server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dpack_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dpack_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dpack_sessions_active",
			Help: "Number of loaded archive sessions",
		},
	)

	archiveLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dpack_archive_loads_total",
			Help: "Total archive loads",
		},
		[]string{"status"},
	)

	overlayWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dpack_overlay_writes_total",
			Help: "Total overlay writes by content kind",
		},
		[]string{"kind"},
	)

	resolveFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dpack_image_resolve_failures_total",
			Help: "Total image children that failed to resolve",
		},
	)

	exportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dpack_exports_total",
			Help: "Total exports",
		},
		[]string{"status"},
	)

	exportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dpack_export_duration_seconds",
			Help:    "Time to gather and compress an export",
			Buckets: prometheus.DefBuckets,
		},
	)

	exportBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dpack_export_bytes_total",
			Help: "Total bytes of exported archives",
		},
	)

	previewHandlesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dpack_preview_handles_active",
			Help: "Number of unreleased preview handles",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func SetSessionsActive(n int) {
	sessionsActive.Set(float64(n))
}

func RecordArchiveLoad(success bool) {
	archiveLoadsTotal.WithLabelValues(status(success)).Inc()
}

func RecordOverlayWrite(kind string) {
	overlayWritesTotal.WithLabelValues(kind).Inc()
}

func RecordResolveFailures(n int) {
	resolveFailuresTotal.Add(float64(n))
}

// RecordExport records one export attempt.
func RecordExport(size int, duration time.Duration, success bool) {
	exportsTotal.WithLabelValues(status(success)).Inc()
	if success {
		exportDuration.Observe(duration.Seconds())
		exportBytes.Add(float64(size))
	}
}

func SetPreviewHandlesActive(n int) {
	previewHandlesActive.Set(float64(n))
}
