package ingress

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/lexfrei/ingress-router/internal/metrics"
	"github.com/lexfrei/ingress-router/internal/routing"
)

// RouteAdapter defines the interface for adapting different object kinds
// (Ingress, HTTPRoute) to routing rules.
type RouteAdapter[R any] interface {
	// RouteKind returns the object kind, used in logs, sources and metrics.
	RouteKind() string

	// GetMeta returns object metadata (namespace, name).
	GetMeta(obj *R) (string, string)

	// Accepts reports whether this router is responsible for obj.
	Accepts(obj *R) bool

	// ExtractRules extracts the routing rules of a single object in
	// declaration order.
	ExtractRules(ctx context.Context, obj *R, logger *slog.Logger) ([]routing.Rule, []BackendRefError)
}

// GenericBuilder converts a list of objects of one kind into routing rules.
type GenericBuilder[R any] struct {
	metrics metrics.Collector
	logger  *slog.Logger
	adapter RouteAdapter[R]
}

// NewGenericBuilder creates a new GenericBuilder with the specified configuration.
func NewGenericBuilder[R any](
	m metrics.Collector,
	logger *slog.Logger,
	adapter RouteAdapter[R],
) *GenericBuilder[R] {
	if logger == nil {
		logger = slog.Default()
	}

	if m == nil {
		m = metrics.NewNoopCollector()
	}

	return &GenericBuilder[R]{
		metrics: m,
		logger:  logger.With("builder", adapter.RouteKind()),
		adapter: adapter,
	}
}

// Build converts objs to routing rules. Objects are visited sorted by
// namespace and name; rules keep their declaration order within an object.
func (b *GenericBuilder[R]) Build(ctx context.Context, objs []R) BuildResult {
	startTime := time.Now()

	order := make([]int, 0, len(objs))

	for i := range objs {
		if b.adapter.Accepts(&objs[i]) {
			order = append(order, i)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		nsI, nameI := b.adapter.GetMeta(&objs[order[i]])
		nsJ, nameJ := b.adapter.GetMeta(&objs[order[j]])

		if nsI != nsJ {
			return nsI < nsJ
		}

		return nameI < nameJ
	})

	//nolint:prealloc // size depends on variable rules per object
	var rules []routing.Rule

	//nolint:prealloc // size depends on variable rules per object
	var failedRefs []BackendRefError

	for _, idx := range order {
		objRules, objFailed := b.adapter.ExtractRules(ctx, &objs[idx], b.logger)
		rules = append(rules, objRules...)
		failedRefs = append(failedRefs, objFailed...)
	}

	b.metrics.RecordTranslateDuration(ctx, b.adapter.RouteKind(), time.Since(startTime))

	return BuildResult{
		Rules:      rules,
		FailedRefs: failedRefs,
	}
}
