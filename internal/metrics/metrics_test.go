package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorInterface(t *testing.T) {
	t.Parallel()

	var _ Collector = (*prometheusCollector)(nil)
	var _ Collector = (*NoopCollector)(nil)
}

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)

	require.NotNil(t, collector)
	assert.IsType(t, &prometheusCollector{}, collector)
}

func TestNoopCollector(t *testing.T) {
	t.Parallel()

	collector := NewNoopCollector()
	require.NotNil(t, collector)

	ctx := context.Background()

	assert.NotPanics(t, func() {
		collector.RecordRequest(ctx, "frontend:80", OutcomeProxied, time.Millisecond)
		collector.RecordProxyError(ctx, "frontend:80", ErrorTypeTimeout)
		collector.RecordTableRules(ctx, 9)
		collector.RecordTableReload(ctx, "file", "success", time.Millisecond)
		collector.RecordInvalidRules(ctx, "file", 1)
		collector.RecordTranslateDuration(ctx, "Ingress", time.Millisecond)
		collector.RecordBackendResolution(ctx, "dns", "resolved")
	})
}

func TestMetricsRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	// Vec metrics only show up in Gather once a label set exists
	collector.RecordRequest(ctx, "frontend:80", OutcomeProxied, time.Millisecond)
	collector.RecordProxyError(ctx, "frontend:80", ErrorTypeRefused)
	collector.RecordTableRules(ctx, 1)
	collector.RecordTableReload(ctx, "kubernetes", "success", time.Millisecond)
	collector.RecordInvalidRules(ctx, "kubernetes", 0)
	collector.RecordTranslateDuration(ctx, "HTTPRoute", time.Millisecond)
	collector.RecordBackendResolution(ctx, "service", "resolved")

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	expectedMetrics := []string{
		"ingress_router_request_duration_seconds",
		"ingress_router_requests_total",
		"ingress_router_proxy_errors_total",
		"ingress_router_table_rules",
		"ingress_router_table_reload_duration_seconds",
		"ingress_router_table_reloads_total",
		"ingress_router_invalid_rules",
		"ingress_router_translate_duration_seconds",
		"ingress_router_backend_resolutions_total",
	}

	registeredMetrics := make(map[string]bool)
	for _, mf := range metricFamilies {
		registeredMetrics[mf.GetName()] = true
	}

	for _, expected := range expectedMetrics {
		assert.True(t, registeredMetrics[expected], "metric %s should be registered", expected)
	}
}

func TestRecordRequest(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordRequest(ctx, "pricing-service:12000", OutcomeProxied, 20*time.Millisecond)
	collector.RecordRequest(ctx, "pricing-service:12000", OutcomeProxied, 30*time.Millisecond)
	collector.RecordRequest(ctx, "", OutcomeNotFound, time.Millisecond)

	proxied := testutil.ToFloat64(collector.requestsTotal.WithLabelValues("pricing-service:12000", OutcomeProxied))
	notFound := testutil.ToFloat64(collector.requestsTotal.WithLabelValues("", OutcomeNotFound))

	assert.Equal(t, float64(2), proxied)
	assert.Equal(t, float64(1), notFound)
	assert.Equal(t, 2, testutil.CollectAndCount(collector.requestDuration))
}

func TestRecordProxyError(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordProxyError(ctx, "user-service:5000", ErrorTypeTimeout)
	collector.RecordProxyError(ctx, "user-service:5000", ErrorTypeTimeout)
	collector.RecordProxyError(ctx, "user-service:5000", ErrorTypeRefused)

	timeoutCount := testutil.ToFloat64(collector.proxyErrorsTotal.WithLabelValues("user-service:5000", ErrorTypeTimeout))
	refusedCount := testutil.ToFloat64(collector.proxyErrorsTotal.WithLabelValues("user-service:5000", ErrorTypeRefused))

	assert.Equal(t, float64(2), timeoutCount)
	assert.Equal(t, float64(1), refusedCount)
}

func TestRecordTableRules(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordTableRules(ctx, 10)
	collector.RecordTableRules(ctx, 9)

	assert.Equal(t, float64(9), testutil.ToFloat64(collector.tableRules))
}

func TestRecordTableReload(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordTableReload(ctx, "file", "success", time.Millisecond)
	collector.RecordTableReload(ctx, "file", "partial", time.Millisecond)

	successCount := testutil.ToFloat64(collector.reloadsTotal.WithLabelValues("file", "success"))
	partialCount := testutil.ToFloat64(collector.reloadsTotal.WithLabelValues("file", "partial"))

	assert.Equal(t, float64(1), successCount)
	assert.Equal(t, float64(1), partialCount)
	assert.Equal(t, 1, testutil.CollectAndCount(collector.reloadDuration))
}

func TestRecordInvalidRules(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordInvalidRules(ctx, "kubernetes", 3)
	collector.RecordInvalidRules(ctx, "kubernetes", 0)

	assert.Equal(t, float64(0), testutil.ToFloat64(collector.invalidRulesTotal.WithLabelValues("kubernetes")))
}

func TestRecordTranslateDuration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordTranslateDuration(ctx, "Ingress", 100*time.Millisecond)

	count := testutil.CollectAndCount(collector.translateDuration)
	assert.Equal(t, 1, count)
}

func TestRecordBackendResolution(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordBackendResolution(ctx, "service", "resolved")
	collector.RecordBackendResolution(ctx, "service", "unresolvable")

	resolved := testutil.ToFloat64(collector.backendResolutions.WithLabelValues("service", "resolved"))
	unresolvable := testutil.ToFloat64(collector.backendResolutions.WithLabelValues("service", "unresolvable"))

	assert.Equal(t, float64(1), resolved)
	assert.Equal(t, float64(1), unresolvable)
}
