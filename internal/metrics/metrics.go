// Package metrics provides Prometheus metrics instrumentation for the router.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request outcome label values.
const (
	OutcomeProxied     = "proxied"
	OutcomeFixedStatus = "fixed_status"
	OutcomeNotFound    = "not_found"
	OutcomeNoTable     = "no_table"
	OutcomeError       = "error"
)

// Collector provides metrics recording interface.
// This allows components to record metrics without direct prometheus dependency.
type Collector interface {
	// Request metrics
	RecordRequest(ctx context.Context, backend, outcome string, duration time.Duration)
	RecordProxyError(ctx context.Context, backend, errorType string)

	// Routing table metrics
	RecordTableRules(ctx context.Context, count int)
	RecordTableReload(ctx context.Context, source, status string, duration time.Duration)
	RecordInvalidRules(ctx context.Context, source string, count int)

	// Translation metrics
	RecordTranslateDuration(ctx context.Context, kind string, duration time.Duration)
	RecordBackendResolution(ctx context.Context, resolver, result string)
}

// prometheusCollector implements Collector using Prometheus metrics.
type prometheusCollector struct {
	// Request metrics
	requestDuration  *prometheus.HistogramVec
	requestsTotal    *prometheus.CounterVec
	proxyErrorsTotal *prometheus.CounterVec

	// Routing table metrics
	tableRules        prometheus.Gauge
	reloadDuration    *prometheus.HistogramVec
	reloadsTotal      *prometheus.CounterVec
	invalidRulesTotal *prometheus.GaugeVec

	// Translation metrics
	translateDuration  *prometheus.HistogramVec
	backendResolutions *prometheus.CounterVec
}

// NewCollector creates a new Prometheus metrics collector and registers metrics.
func NewCollector(reg prometheus.Registerer) Collector {
	c := &prometheusCollector{}
	c.initRequestMetrics()
	c.initTableMetrics()
	c.initTranslateMetrics()
	c.register(reg)

	return c
}

// RecordRequest records a routed request.
func (c *prometheusCollector) RecordRequest(
	_ context.Context,
	backend, outcome string,
	duration time.Duration,
) {
	c.requestDuration.WithLabelValues(backend, outcome).Observe(duration.Seconds())
	c.requestsTotal.WithLabelValues(backend, outcome).Inc()
}

// RecordProxyError records a failure to reach a backend.
func (c *prometheusCollector) RecordProxyError(_ context.Context, backend, errorType string) {
	c.proxyErrorsTotal.WithLabelValues(backend, errorType).Inc()
}

// RecordTableRules records the number of rules in the active table.
func (c *prometheusCollector) RecordTableRules(_ context.Context, count int) {
	c.tableRules.Set(float64(count))
}

// RecordTableReload records a routing table reload attempt.
func (c *prometheusCollector) RecordTableReload(
	_ context.Context,
	source, status string,
	duration time.Duration,
) {
	c.reloadDuration.WithLabelValues(source).Observe(duration.Seconds())
	c.reloadsTotal.WithLabelValues(source, status).Inc()
}

// RecordInvalidRules records the number of rules skipped by the last reload.
func (c *prometheusCollector) RecordInvalidRules(_ context.Context, source string, count int) {
	c.invalidRulesTotal.WithLabelValues(source).Set(float64(count))
}

// RecordTranslateDuration records how long translating one object kind took.
func (c *prometheusCollector) RecordTranslateDuration(
	_ context.Context,
	kind string,
	duration time.Duration,
) {
	c.translateDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordBackendResolution records a backend address resolution result.
func (c *prometheusCollector) RecordBackendResolution(_ context.Context, resolver, result string) {
	c.backendResolutions.WithLabelValues(resolver, result).Inc()
}

func (c *prometheusCollector) initRequestMetrics() {
	c.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingress_router_request_duration_seconds",
			Help:    "Duration of routed requests including the backend round trip",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"backend", "outcome"},
	)
	c.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingress_router_requests_total",
			Help: "Total routed requests by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)
	c.proxyErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingress_router_proxy_errors_total",
			Help: "Total backend errors by type",
		},
		[]string{"backend", "error_type"},
	)
}

func (c *prometheusCollector) initTableMetrics() {
	c.tableRules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingress_router_table_rules",
			Help: "Rules in the active routing table, including reserved prefixes",
		},
	)
	c.reloadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingress_router_table_reload_duration_seconds",
			Help:    "Duration of routing table reloads",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"source"},
	)
	c.reloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingress_router_table_reloads_total",
			Help: "Total routing table reloads by source and status",
		},
		[]string{"source", "status"},
	)
	c.invalidRulesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingress_router_invalid_rules",
			Help: "Rules skipped by the last reload because they failed validation",
		},
		[]string{"source"},
	)
}

func (c *prometheusCollector) initTranslateMetrics() {
	c.translateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingress_router_translate_duration_seconds",
			Help:    "Duration of translating Kubernetes objects into routing rules",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
		[]string{"kind"},
	)
	c.backendResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingress_router_backend_resolutions_total",
			Help: "Backend address resolution results",
		},
		[]string{"resolver", "result"},
	)
}

func (c *prometheusCollector) register(reg prometheus.Registerer) {
	reg.MustRegister(
		c.requestDuration,
		c.requestsTotal,
		c.proxyErrorsTotal,
		c.tableRules,
		c.reloadDuration,
		c.reloadsTotal,
		c.invalidRulesTotal,
		c.translateDuration,
		c.backendResolutions,
	)
}

// NoopCollector is a no-op implementation of Collector for testing.
type NoopCollector struct{}

// NewNoopCollector creates a new no-op collector.
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

// RecordRequest is a no-op.
func (c *NoopCollector) RecordRequest(_ context.Context, _, _ string, _ time.Duration) {}

// RecordProxyError is a no-op.
func (c *NoopCollector) RecordProxyError(_ context.Context, _, _ string) {}

// RecordTableRules is a no-op.
func (c *NoopCollector) RecordTableRules(_ context.Context, _ int) {}

// RecordTableReload is a no-op.
func (c *NoopCollector) RecordTableReload(_ context.Context, _, _ string, _ time.Duration) {}

// RecordInvalidRules is a no-op.
func (c *NoopCollector) RecordInvalidRules(_ context.Context, _ string, _ int) {}

// RecordTranslateDuration is a no-op.
func (c *NoopCollector) RecordTranslateDuration(_ context.Context, _ string, _ time.Duration) {}

// RecordBackendResolution is a no-op.
func (c *NoopCollector) RecordBackendResolution(_ context.Context, _, _ string) {}
