package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Token metrics
	TokensIssuedTotal       *prometheus.CounterVec
	TokenRotationsTotal     *prometheus.CounterVec
	TokenReplaysTotal       prometheus.Counter
	TokenVerificationsTotal *prometheus.CounterVec
	TokensRevokedTotal      *prometheus.CounterVec
	TokenSweepDeletedTotal  *prometheus.CounterVec

	// RBAC metrics
	AccessChecksTotal    *prometheus.CounterVec
	AccessCheckDuration  *prometheus.HistogramVec

	// Rate limit metrics
	RateLimitChecksTotal   *prometheus.CounterVec
	RateLimitDegradedTotal prometheus.Counter
	RateLimitBypassTotal   prometheus.Counter
	PlanCacheHitsTotal     prometheus.Counter
	PlanCacheMissesTotal   prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Redis metrics
	RedisCommandsTotal   *prometheus.CounterVec
	RedisCommandDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Token metrics
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_tokens_issued_total",
				Help: "Total number of token pairs issued",
			},
			[]string{"grant"},
		),
		TokenRotationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_token_rotations_total",
				Help: "Total number of refresh token rotations",
			},
			[]string{"status"},
		),
		TokenReplaysTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatekeeper_token_replays_total",
				Help: "Total number of refresh token replay detections",
			},
		),
		TokenVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_token_verifications_total",
				Help: "Total number of access token verifications",
			},
			[]string{"result"},
		),
		TokensRevokedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_tokens_revoked_total",
				Help: "Total number of refresh tokens revoked",
			},
			[]string{"reason"},
		),
		TokenSweepDeletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_token_sweep_deleted_total",
				Help: "Total number of rows deleted by the retention sweep",
			},
			[]string{"table"},
		),

		// RBAC metrics
		AccessChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_access_checks_total",
				Help: "Total number of RBAC access checks",
			},
			[]string{"decision", "reason"},
		),
		AccessCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_access_check_duration_seconds",
				Help:    "RBAC access check duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"decision"},
		),

		// Rate limit metrics
		RateLimitChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_ratelimit_checks_total",
				Help: "Total number of rate limit checks",
			},
			[]string{"decision", "window"},
		),
		RateLimitDegradedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatekeeper_ratelimit_degraded_total",
				Help: "Total number of rate limit checks that failed open due to store errors",
			},
		),
		RateLimitBypassTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatekeeper_ratelimit_bypass_total",
				Help: "Total number of requests that skipped rate limiting via the bypass list",
			},
		),
		PlanCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatekeeper_plan_cache_hits_total",
				Help: "Total number of billing plan cache hits",
			},
		),
		PlanCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatekeeper_plan_cache_misses_total",
				Help: "Total number of billing plan cache misses",
			},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatekeeper_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatekeeper_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		// Redis metrics
		RedisCommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_redis_commands_total",
				Help: "Total number of Redis commands",
			},
			[]string{"command", "status"},
		),
		RedisCommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_redis_command_duration_seconds",
				Help:    "Redis command duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"command"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TokensIssuedTotal,
		m.TokenRotationsTotal,
		m.TokenReplaysTotal,
		m.TokenVerificationsTotal,
		m.TokensRevokedTotal,
		m.TokenSweepDeletedTotal,
		m.AccessChecksTotal,
		m.AccessCheckDuration,
		m.RateLimitChecksTotal,
		m.RateLimitDegradedTotal,
		m.RateLimitBypassTotal,
		m.PlanCacheHitsTotal,
		m.PlanCacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.RedisCommandsTotal,
		m.RedisCommandDuration,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
