// Package metrics provides Prometheus metrics for accessors and transfers.
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
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsaccess_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fsaccess_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Accessor metrics
	accessorOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsaccess_accessor_operations_total",
			Help: "Total accessor operations by backend type and outcome",
		},
		[]string{"backend", "operation", "status"},
	)

	accessorOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fsaccess_accessor_operation_duration_seconds",
			Help:    "Accessor operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	listingSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsaccess_listing_skipped_total",
			Help: "Directory entries that vanished between enumeration and stat",
		},
		[]string{"backend"},
	)

	// Transfer metrics
	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsaccess_transfers_total",
			Help: "Total object transfers by strategy and outcome",
		},
		[]string{"strategy", "status"},
	)

	transferBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsaccess_transfer_bytes_total",
			Help: "Total bytes moved by the transfer engine",
		},
		[]string{"strategy"},
	)

	transferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fsaccess_transfer_duration_seconds",
			Help:    "Object transfer duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	// S3 metrics
	s3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fsaccess_s3_operation_duration_seconds",
			Help:    "S3 operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	s3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsaccess_s3_operations_total",
			Help: "Total S3 operations",
		},
		[]string{"operation", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAccessorOperation records one accessor call.
func RecordAccessorOperation(backend, operation string, duration time.Duration, success bool) {
	accessorOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	accessorOperationsTotal.WithLabelValues(backend, operation, statusLabel(success)).Inc()
}

// RecordListingSkip records a child skipped during a race-tolerant listing.
func RecordListingSkip(backend string) {
	listingSkippedTotal.WithLabelValues(backend).Inc()
}

// RecordTransfer records a finished transfer.
func RecordTransfer(strategy string, bytes int64, duration time.Duration, success bool) {
	transfersTotal.WithLabelValues(strategy, statusLabel(success)).Inc()
	transferDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	if bytes > 0 {
		transferBytes.WithLabelValues(strategy).Add(float64(bytes))
	}
}

// RecordS3Operation records an S3 operation.
func RecordS3Operation(operation string, duration time.Duration, success bool) {
	s3OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	s3OperationsTotal.WithLabelValues(operation, statusLabel(success)).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
// Requests are labelled by their mux pattern so object paths do not
// explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
	})
}
