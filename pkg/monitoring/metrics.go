package monitoring

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector handles Prometheus metrics collection. Each collector owns
// its registry so several gateways can live in one process.
type MetricsCollector struct {
	serviceName string
	registry    *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	admissionsTotal     *prometheus.CounterVec
	authAttemptsTotal   *prometheus.CounterVec
	quotaRejections     *prometheus.CounterVec
	maintenanceEnabled  prometheus.Gauge
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(serviceName string) *MetricsCollector {
	constLabels := prometheus.Labels{"service": serviceName}

	m := &MetricsCollector{
		serviceName: serviceName,
		registry:    prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: constLabels,
			},
			[]string{"method", "endpoint", "status_code"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "Duration of HTTP requests in seconds",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: constLabels,
			},
			[]string{"method", "endpoint"},
		),
		admissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "gateway_admission_decisions_total",
				Help:        "Terminal admission decisions by pipeline stage",
				ConstLabels: constLabels,
			},
			[]string{"stage", "outcome"},
		),
		authAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_attempts_total",
				Help:        "Total number of credential validation attempts",
				ConstLabels: constLabels,
			},
			[]string{"scheme", "status"},
		),
		quotaRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "gateway_quota_rejections_total",
				Help:        "Requests rejected by the quota gate",
				ConstLabels: constLabels,
			},
			[]string{"class"},
		),
		maintenanceEnabled: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "gateway_maintenance_enabled",
				Help:        "1 while the maintenance flag is set",
				ConstLabels: constLabels,
			},
		),
	}

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.admissionsTotal,
		m.authAttemptsTotal,
		m.quotaRejections,
		m.maintenanceEnabled,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry, mostly for tests
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordAdmission records the terminal outcome of the admission pipeline
func (m *MetricsCollector) RecordAdmission(stage, outcome string) {
	m.admissionsTotal.WithLabelValues(stage, outcome).Inc()
}

// RecordAuthAttempt records a credential validation attempt
func (m *MetricsCollector) RecordAuthAttempt(scheme, status string) {
	m.authAttemptsTotal.WithLabelValues(scheme, status).Inc()
}

// RecordQuotaRejection records a rejected request for a route class
func (m *MetricsCollector) RecordQuotaRejection(class string) {
	m.quotaRejections.WithLabelValues(class).Inc()
}

// SetMaintenance records the current maintenance flag
func (m *MetricsCollector) SetMaintenance(enabled bool) {
	if enabled {
		m.maintenanceEnabled.Set(1)
		return
	}
	m.maintenanceEnabled.Set(0)
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// endpointLabel is the mux path template so ids do not explode cardinality.
func endpointLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
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
