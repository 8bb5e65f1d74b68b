// Package metrics exposes Prometheus counters for the auth and report flows.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered for one server instance
type Metrics struct {
	registry *prometheus.Registry

	CodeRequests      *prometheus.CounterVec
	CodeVerifications *prometheus.CounterVec
	ReportSubmissions *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CodeRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "potholes",
			Name:      "code_requests_total",
			Help:      "One-time code requests by outcome.",
		}, []string{"result"}),
		CodeVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "potholes",
			Name:      "code_verifications_total",
			Help:      "One-time code verifications by outcome.",
		}, []string{"result"}),
		ReportSubmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "potholes",
			Name:      "report_submissions_total",
			Help:      "Report submissions by outcome.",
		}, []string{"result"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "potholes",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request latency labelled with the matched chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
