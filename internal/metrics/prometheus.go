// Package metrics provides a Prometheus metrics registry for the gateway.
//
// All metrics are scoped to a private registry (not the global default) so
// they don't interfere with host-level metrics when embedded in other
// applications. The /metrics HTTP handler is exposed via Handler().
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Registry holds all exported metrics, named and labeled after the
// distillation source's observability module.
type Registry struct {
	reg *prometheus.Registry

	// apibridge_requests_total{connector,method,status}
	requestsTotal *prometheus.CounterVec

	// apibridge_request_duration_seconds{connector,method}
	requestDuration *prometheus.HistogramVec

	// apibridge_upstream_requests_total{connector,provider,status}
	upstreamRequests *prometheus.CounterVec

	// apibridge_upstream_duration_seconds{connector,provider}
	upstreamDuration *prometheus.HistogramVec

	// apibridge_cache_hits_total{connector} / apibridge_cache_misses_total{connector}
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// apibridge_rate_limit_exceeded_total{connector}
	rateLimitExceeded *prometheus.CounterVec

	// apibridge_budget_spent_usd{connector,month}
	budgetSpent *prometheus.GaugeVec

	// apibridge_provider_health{connector,provider} — 1=healthy, 0=unhealthy
	providerHealth *prometheus.GaugeVec

	// apibridge_schema_drift_total{connector}
	schemaDrift *prometheus.CounterVec

	info *prometheus.GaugeVec

	metricsHandler fasthttp.RequestHandler
}

// New creates a Registry and registers every metric against a private
// prometheus.Registry.
func New(version, mode string) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &Registry{
		reg: reg,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apibridge_requests_total",
				Help: "Total number of requests",
			},
			[]string{"connector", "method", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apibridge_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"connector", "method"},
		),

		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apibridge_upstream_requests_total",
				Help: "Total upstream provider requests",
			},
			[]string{"connector", "provider", "status"},
		),

		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apibridge_upstream_duration_seconds",
				Help:    "Upstream request duration",
				Buckets: []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"connector", "provider"},
		),

		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "apibridge_cache_hits_total", Help: "Cache hits"},
			[]string{"connector"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "apibridge_cache_misses_total", Help: "Cache misses"},
			[]string{"connector"},
		),

		rateLimitExceeded: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "apibridge_rate_limit_exceeded_total", Help: "Rate limit exceeded count"},
			[]string{"connector"},
		),

		budgetSpent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "apibridge_budget_spent_usd", Help: "Current budget spent in USD"},
			[]string{"connector", "month"},
		),

		providerHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "apibridge_provider_health", Help: "Provider health status (1=healthy, 0=unhealthy)"},
			[]string{"connector", "provider"},
		),

		schemaDrift: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "apibridge_schema_drift_total", Help: "Schema drift detections"},
			[]string{"connector"},
		),

		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "apibridge_info", Help: "ApiBridge build information"},
			[]string{"version", "mode"},
		),
	}

	reg.MustRegister(
		r.requestsTotal,
		r.requestDuration,
		r.upstreamRequests,
		r.upstreamDuration,
		r.cacheHits,
		r.cacheMisses,
		r.rateLimitExceeded,
		r.budgetSpent,
		r.providerHealth,
		r.schemaDrift,
		r.info,
	)

	r.info.WithLabelValues(version, mode).Set(1)

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(h)

	return r
}

// RecordRequest records one gateway-facing request.
func (r *Registry) RecordRequest(connector, method string, status int, durSeconds float64) {
	r.requestsTotal.WithLabelValues(connector, method, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(connector, method).Observe(durSeconds)
}

// RecordUpstream records one upstream provider attempt.
func (r *Registry) RecordUpstream(connector, provider string, status int, durSeconds float64) {
	r.upstreamRequests.WithLabelValues(connector, provider, strconv.Itoa(status)).Inc()
	r.upstreamDuration.WithLabelValues(connector, provider).Observe(durSeconds)
}

func (r *Registry) RecordCacheHit(connector string)  { r.cacheHits.WithLabelValues(connector).Inc() }
func (r *Registry) RecordCacheMiss(connector string) { r.cacheMisses.WithLabelValues(connector).Inc() }

func (r *Registry) RecordRateLimitExceeded(connector string) {
	r.rateLimitExceeded.WithLabelValues(connector).Inc()
}

func (r *Registry) SetBudgetSpent(connector, month string, usd float64) {
	r.budgetSpent.WithLabelValues(connector, month).Set(usd)
}

func (r *Registry) SetProviderHealth(connector, provider string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	r.providerHealth.WithLabelValues(connector, provider).Set(v)
}

func (r *Registry) RecordSchemaDrift(connector string) {
	r.schemaDrift.WithLabelValues(connector).Inc()
}

// Handler returns the fasthttp handler serving this registry's /metrics.
func (r *Registry) Handler() fasthttp.RequestHandler {
	return r.metricsHandler
}

func (r *Registry) PromRegistry() *prometheus.Registry { return r.reg }
