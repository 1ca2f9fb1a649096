package cmd

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/lexfrei/ingress-router/internal/controller"
	"github.com/lexfrei/ingress-router/internal/ingress"
	"github.com/lexfrei/ingress-router/internal/manifest"
	"github.com/lexfrei/ingress-router/internal/metrics"
	"github.com/lexfrei/ingress-router/internal/routing"
)

const (
	sourceFile       = "file"
	sourceKubernetes = "kubernetes"
)

// tableHolder is a TableSink for commands that compile a table once.
type tableHolder struct {
	table *routing.Table
}

func (h *tableHolder) Table() *routing.Table {
	return h.table
}

func (h *tableHolder) SetTable(table *routing.Table) {
	h.table = table
}

func newTableSyncer(sink controller.TableSink, m metrics.Collector, logger *slog.Logger) *controller.TableSyncer {
	translator := ingress.NewTranslator(translatorConfig(), m, logger)

	return controller.NewTableSyncer(translator, sink, m, logger,
		routing.WithReservedPrefixes(viper.GetBool("reserve-service-prefixes")))
}

func manifestPaths() ([]string, error) {
	paths := viper.GetStringSlice("manifests")
	if len(paths) == 0 {
		return nil, errors.Wrap(manifest.ErrNoManifests, "set --manifests or ROUTER_MANIFESTS")
	}

	return paths, nil
}

func loadObjects(logger *slog.Logger) (*ingress.Objects, error) {
	paths, err := manifestPaths()
	if err != nil {
		return nil, err
	}

	objs, err := manifest.NewLoader(logger).Load(paths...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load manifests")
	}

	return objs, nil
}

// loadTable compiles the configured manifests and refuses invalid rules.
func loadTable(ctx context.Context, logger *slog.Logger) (*routing.Table, error) {
	objs, err := loadObjects(logger)
	if err != nil {
		return nil, err
	}

	holder := &tableHolder{}

	_, err = newTableSyncer(holder, nil, logger).ApplyStrict(ctx, sourceFile, objs)
	if err != nil {
		return nil, err
	}

	return holder.table, nil
}
