package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Batch metrics
	batchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_batch_runs_total",
			Help: "Total number of batch runs by batch and outcome",
		},
		[]string{"batch", "outcome"},
	)

	batchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retention_batch_duration_seconds",
			Help:    "Batch run duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"batch"},
	)

	batchItemFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_batch_item_failures_total",
			Help: "Members skipped by a batch because of a per-member error",
		},
		[]string{"batch"},
	)

	// Business metrics
	riskScoresUpdated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_risk_scores_updated_total",
			Help: "Total number of member risk scores written",
		},
		[]string{"level"},
	)

	actionItemsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_action_items_created_total",
			Help: "Total number of action items generated",
		},
		[]string{"type"},
	)

	actionItemsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "retention_action_items_suppressed_total",
			Help: "Action items not created because an equal or higher open action exists",
		},
	)

	actionStatusChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_action_items_status_changed_total",
			Help: "Total number of action item status transitions",
		},
		[]string{"from_status", "to_status"},
	)

	syncRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_sync_records_total",
			Help: "Records upserted by the upstream sync job",
		},
		[]string{"sync_type"},
	)

	upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_upstream_requests_total",
			Help: "Requests made to the upstream gym API",
		},
		[]string{"endpoint", "status"},
	)

	upstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retention_upstream_request_duration_seconds",
			Help:    "Upstream gym API request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	// Database metrics
	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routePattern labels requests by their chi route template so member and
// action IDs do not explode label cardinality
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// --- Batch metric helpers ---

// RecordBatchRun records the outcome and duration of a batch
func RecordBatchRun(batch string, ok bool, duration time.Duration) {
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	batchRunsTotal.WithLabelValues(batch, outcome).Inc()
	batchDuration.WithLabelValues(batch).Observe(duration.Seconds())
}

// RecordBatchItemFailure records a member skipped because of an error
func RecordBatchItemFailure(batch string) {
	batchItemFailures.WithLabelValues(batch).Inc()
}

// RecordRiskScoreUpdated records a written risk score
func RecordRiskScoreUpdated(level string) {
	riskScoresUpdated.WithLabelValues(level).Inc()
}

// RecordActionCreated records a generated action item
func RecordActionCreated(actionType string) {
	actionItemsCreated.WithLabelValues(actionType).Inc()
}

// RecordActionSuppressed records a deduplicated action
func RecordActionSuppressed() {
	actionItemsSuppressed.Inc()
}

// RecordActionStatusChange records an action item status transition
func RecordActionStatusChange(fromStatus, toStatus string) {
	actionStatusChanged.WithLabelValues(fromStatus, toStatus).Inc()
}

// RecordSyncRecords records upserted upstream records
func RecordSyncRecords(syncType string, count int) {
	syncRecordsTotal.WithLabelValues(syncType).Add(float64(count))
}

// RecordUpstreamRequest records a call to the upstream gym API
func RecordUpstreamRequest(endpoint string, status int, duration time.Duration) {
	upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	upstreamRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordDBConnections records active database connections
func RecordDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}
