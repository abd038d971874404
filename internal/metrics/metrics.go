package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the insights service.
type Metrics struct {
	// Upstream fetch metrics
	Fetches      *prometheus.CounterVec
	FetchErrors  *prometheus.CounterVec
	FetchLatency *prometheus.HistogramVec
	FetchRows    prometheus.Histogram
	FetchRetries prometheus.Counter
	StaleFetches prometheus.Counter

	// Hydration metrics
	Hydrations        *prometheus.CounterVec
	SnapshotCacheHits *prometheus.CounterVec

	// Dispatcher metrics
	Dispatches      *prometheus.CounterVec
	ComputeDuration *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	// System metrics
	DBConnections *prometheus.GaugeVec
	RateLimitHits *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics *Metrics

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		Fetches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetches_total",
				Help:      "Upstream metric fetches by source and outcome",
			},
			[]string{"source", "outcome"}, // outcome: ok, fetch_error, shape_error
		),
		FetchErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_errors_total",
				Help:      "Upstream fetch failures by error kind",
			},
			[]string{"source", "kind"},
		),
		FetchLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_latency_seconds",
				Help:      "Upstream fetch latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"source"},
		),
		FetchRows: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_rows",
				Help:      "Row counts returned by upstream fetches",
				Buckets:   []float64{10, 100, 1000, 10000, 100000},
			},
		),
		FetchRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_retries_total",
				Help:      "Bounded retries attempted against the upstream",
			},
		),
		StaleFetches: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_fetches_total",
				Help:      "Fetch results discarded because a newer query superseded them",
			},
		),
		Hydrations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hydrations_total",
				Help:      "Data store hydrations by result (applied or skipped)",
			},
			[]string{"result"},
		),
		SnapshotCacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_cache_total",
				Help:      "Redis snapshot cache lookups by result",
			},
			[]string{"result"}, // hit, miss, error
		),
		Dispatches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intel_dispatches_total",
				Help:      "Intelligence dispatch decisions (dispatched, deduped, collapsed)",
			},
			[]string{"result"},
		),
		ComputeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "intel_compute_seconds",
				Help:      "Background intelligence computation duration",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"step"},
		),
		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by path and status",
			},
			[]string{"path", "status"},
		),
		HTTPLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"path"},
		),
		DBConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections",
				Help:      "Database connection pool stats",
			},
			[]string{"state"}, // idle, in_use, total
		),
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint", "ip"},
		),
	}

	DefaultMetrics = m
	return m
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordFetch records a completed upstream fetch.
func (m *Metrics) RecordFetch(source, outcome string, rows int, latency time.Duration) {
	m.Fetches.WithLabelValues(source, outcome).Inc()
	m.FetchLatency.WithLabelValues(source).Observe(latency.Seconds())
	if outcome == "ok" {
		m.FetchRows.Observe(float64(rows))
	}
}

// RecordFetchError records a fetch failure by kind.
func (m *Metrics) RecordFetchError(source, kind string) {
	m.FetchErrors.WithLabelValues(source, kind).Inc()
}

// RecordHydration records a hydration attempt.
func (m *Metrics) RecordHydration(applied bool) {
	result := "skipped"
	if applied {
		result = "applied"
	}
	m.Hydrations.WithLabelValues(result).Inc()
}

// RecordSnapshotCache records a snapshot cache lookup result.
func (m *Metrics) RecordSnapshotCache(result string) {
	m.SnapshotCacheHits.WithLabelValues(result).Inc()
}

// RecordDispatch records a dispatcher decision.
func (m *Metrics) RecordDispatch(result string) {
	m.Dispatches.WithLabelValues(result).Inc()
}

// RecordCompute records one background computation step.
func (m *Metrics) RecordCompute(step string, d time.Duration) {
	m.ComputeDuration.WithLabelValues(step).Observe(d.Seconds())
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(path string, status int, latency time.Duration) {
	m.HTTPRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(path).Observe(latency.Seconds())
}

// UpdateDBStats updates database connection metrics.
func (m *Metrics) UpdateDBStats(idle, inUse, total int) {
	m.DBConnections.WithLabelValues("idle").Set(float64(idle))
	m.DBConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnections.WithLabelValues("total").Set(float64(total))
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint, ip string) {
	m.RateLimitHits.WithLabelValues(endpoint, ip).Inc()
}
