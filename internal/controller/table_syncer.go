package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lexfrei/ingress-router/internal/ingress"
	"github.com/lexfrei/ingress-router/internal/metrics"
	"github.com/lexfrei/ingress-router/internal/routing"
)

// Reload outcomes recorded in metrics.
const (
	reloadApplied   = "applied"
	reloadPartial   = "partial"
	reloadUnchanged = "unchanged"
	reloadRejected  = "rejected"
)

// TableSink receives compiled routing tables.
type TableSink interface {
	Table() *routing.Table
	SetTable(table *routing.Table)
}

// SyncResult describes one translate and compile pass.
type SyncResult struct {
	ingress.Result

	// Objects are the inputs of the pass.
	Objects *ingress.Objects

	// Invalid lists the rules Compile skipped.
	Invalid []*routing.RuleError

	// Changed is true when a new table was installed.
	Changed bool
}

// TableSyncer turns routing objects into a routing table and installs it.
// It is shared by the file and cluster sources; passes are serialized.
type TableSyncer struct {
	translator *ingress.Translator
	sink       TableSink
	metrics    metrics.Collector
	logger     *slog.Logger
	options    []routing.Option

	mu sync.Mutex
}

// NewTableSyncer creates a TableSyncer. m and logger may be nil.
func NewTableSyncer(
	translator *ingress.Translator,
	sink TableSink,
	m metrics.Collector,
	logger *slog.Logger,
	opts ...routing.Option,
) *TableSyncer {
	if m == nil {
		m = metrics.NewNoopCollector()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &TableSyncer{
		translator: translator,
		sink:       sink,
		metrics:    m,
		logger:     logger.With("component", "table-syncer"),
		options:    opts,
	}
}

// Apply installs the table built from objs. Invalid rules are logged,
// counted and skipped; the remaining rules are applied.
func (s *TableSyncer) Apply(ctx context.Context, source string, objs *ingress.Objects) (*SyncResult, error) {
	return s.apply(ctx, source, objs, false)
}

// ApplyStrict is Apply that refuses configuration with invalid rules or
// without any rule. The current table is kept on error.
func (s *TableSyncer) ApplyStrict(ctx context.Context, source string, objs *ingress.Objects) (*SyncResult, error) {
	return s.apply(ctx, source, objs, true)
}

//nolint:funlen // sequential sync steps
func (s *TableSyncer) apply(ctx context.Context, source string, objs *ingress.Objects, strict bool) (*SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	startTime := time.Now()
	logger := s.logger.With("source", source)

	result := &SyncResult{
		Result:  s.translator.Translate(ctx, objs),
		Objects: objs,
	}

	for _, failed := range result.FailedRefs {
		logger.Warn("backend reference dropped",
			"kind", failed.Kind,
			"object", failed.RouteNamespace+"/"+failed.RouteName,
			"backend", failed.BackendNS+"/"+failed.BackendName,
			"reason", failed.Reason,
		)
	}

	table, err := routing.Compile(result.Rules, s.options...)
	if err != nil {
		var invalid *routing.InvalidRulesError
		if !errors.As(err, &invalid) {
			s.metrics.RecordTableReload(ctx, source, reloadRejected, time.Since(startTime))

			return result, errors.Wrap(err, "failed to compile routing table")
		}

		result.Invalid = invalid.Errors

		for _, ruleErr := range invalid.Errors {
			logger.Error("invalid routing rule skipped", "rule", ruleErr.Rule.String(), "error", ruleErr.Err)
		}
	}

	s.metrics.RecordInvalidRules(ctx, source, len(result.Invalid))

	if strict {
		if len(result.Invalid) > 0 {
			s.metrics.RecordTableReload(ctx, source, reloadRejected, time.Since(startTime))

			return result, errors.Wrap(err, "configuration rejected")
		}

		if len(result.Rules) == 0 {
			s.metrics.RecordTableReload(ctx, source, reloadRejected, time.Since(startTime))

			return result, errors.Wrapf(routing.ErrNoRules, "%d objects translated", objs.Len())
		}
	}

	current := s.sink.Table()
	if current != nil && current.Equal(table) {
		logger.Debug("routing table unchanged", "rules", table.Len())
		s.metrics.RecordTableReload(ctx, source, reloadUnchanged, time.Since(startTime))

		return result, nil
	}

	added, removed := routing.Diff(current, table)
	for i := range added {
		logger.Debug("rule added", "rule", added[i].String())
	}

	for i := range removed {
		logger.Debug("rule removed", "rule", removed[i].String())
	}

	s.sink.SetTable(table)
	result.Changed = true

	status := reloadApplied
	if len(result.Invalid) > 0 {
		status = reloadPartial
	}

	s.metrics.RecordTableRules(ctx, table.Len())
	s.metrics.RecordTableReload(ctx, source, status, time.Since(startTime))

	logger.Info("routing table updated",
		"rules", table.Len(),
		"added", len(added),
		"removed", len(removed),
		"invalid", len(result.Invalid),
	)

	return result, nil
}
