package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics (operational endpoints)
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Cross-tenant metrics
	CrossTenantChecksTotal       *prometheus.CounterVec
	CrossTenantCheckDuration     prometheus.Histogram
	CrossTenantRulesExpiredTotal prometheus.Counter

	// Permission resolution metrics
	PermissionCacheTotal         *prometheus.CounterVec
	PermissionResolutionDuration prometheus.Histogram
	AssignmentsDeactivatedTotal  prometheus.Counter

	// Risk metrics
	RiskScore         prometheus.Histogram
	MFADecisionsTotal *prometheus.CounterVec

	// Privacy metrics
	PrivacyDecisionsTotal *prometheus.CounterVec

	// Background jobs
	SweepRunsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive    prometheus.Gauge
	DBConnectionsIdle      prometheus.Gauge
	DBConnectionsWaitCount prometheus.Gauge

	// Redis metrics
	RedisCommandsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantguard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		CrossTenantChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_crosstenant_checks_total",
				Help: "Total number of cross-tenant access checks",
			},
			[]string{"allowed"},
		),
		CrossTenantCheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tenantguard_crosstenant_check_duration_seconds",
				Help:    "Cross-tenant check duration in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
		),
		CrossTenantRulesExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenantguard_crosstenant_rules_expired_total",
				Help: "Total number of cross-tenant rules deactivated after expiry",
			},
		),

		PermissionCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_permission_cache_total",
				Help: "Effective permission cache lookups",
			},
			[]string{"result"},
		),
		PermissionResolutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tenantguard_permission_resolution_duration_seconds",
				Help:    "Role inheritance resolution duration in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
			},
		),
		AssignmentsDeactivatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenantguard_assignments_deactivated_total",
				Help: "Total number of role assignments deactivated after expiry",
			},
		),

		RiskScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tenantguard_risk_score",
				Help:    "Distribution of computed session risk scores",
				Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
		),
		MFADecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_mfa_decisions_total",
				Help: "Total number of MFA requirement decisions",
			},
			[]string{"required"},
		),

		PrivacyDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_privacy_decisions_total",
				Help: "Total number of privacy visibility decisions",
			},
			[]string{"field", "allowed"},
		),

		SweepRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_sweep_runs_total",
				Help: "Total number of background sweep runs",
			},
			[]string{"job", "status"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantguard_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantguard_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantguard_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),

		RedisCommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_redis_commands_total",
				Help: "Total number of Redis commands",
			},
			[]string{"command", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CrossTenantChecksTotal,
		m.CrossTenantCheckDuration,
		m.CrossTenantRulesExpiredTotal,
		m.PermissionCacheTotal,
		m.PermissionResolutionDuration,
		m.AssignmentsDeactivatedTotal,
		m.RiskScore,
		m.MFADecisionsTotal,
		m.PrivacyDecisionsTotal,
		m.SweepRunsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.RedisCommandsTotal,
	)

	return m
}

// RecordDBStats copies connection pool statistics into the database gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
}

// BoolLabel formats a boolean as a metric label value
func BoolLabel(b bool) string {
	return strconv.FormatBool(b)
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

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
