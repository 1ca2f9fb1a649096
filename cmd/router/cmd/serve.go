package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	ctrl "sigs.k8s.io/controller-runtime"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/lexfrei/ingress-router/internal/backend"
	"github.com/lexfrei/ingress-router/internal/controller"
	"github.com/lexfrei/ingress-router/internal/manifest"
	"github.com/lexfrei/ingress-router/internal/metrics"
	"github.com/lexfrei/ingress-router/internal/proxy"
)

const readHeaderTimeout = 10 * time.Second

//nolint:gochecknoglobals // cobra command pattern
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the router",
	Long: `Run the router. With --source=file the table is built from --manifests and
reloaded when they change; invalid configuration at startup is refused. With
--source=kubernetes Ingress and HTTPRoute objects are watched in the cluster.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.String("source", sourceFile, "Routing source (file, kubernetes)")
	flags.String("listen-addr", ":8080", "Address of the routing listener")
	flags.String("metrics-addr", ":9090", "Address for metrics endpoint (empty disables)")
	flags.String("health-addr", ":8081", "Address for health probe endpoint (empty disables)")
	flags.Bool("watch", true, "Reload manifests when they change (file source)")
	flags.Duration("watch-debounce", manifest.DefaultDebounce, "Quiet period before a manifest reload")
	flags.Duration("backend-timeout", proxy.DefaultTimeout, "Timeout of a proxied request (negative disables)")
	flags.Duration("shutdown-timeout", 15*time.Second, "Grace period for in-flight requests on shutdown")
	flags.String("cluster-domain", backend.DefaultClusterDomain, "Kubernetes cluster domain")
	flags.String("namespace", "", "Namespace for backends without one; restricts watched objects (kubernetes source)")
	flags.StringSlice("backend-override", nil, "Fixed upstream for a service, as service[.namespace]=url")
	flags.String("controller-name", controller.DefaultControllerName, "Controller name written to HTTPRoute status")

	_ = viper.BindPFlags(flags)

	rootCmd.AddCommand(serveCmd)
}

func serveDefaults() {
	viper.SetDefault("source", sourceFile)
	viper.SetDefault("listen-addr", ":8080")
	viper.SetDefault("metrics-addr", ":9090")
	viper.SetDefault("health-addr", ":8081")
	viper.SetDefault("watch", true)
	viper.SetDefault("watch-debounce", manifest.DefaultDebounce)
	viper.SetDefault("backend-timeout", proxy.DefaultTimeout)
	viper.SetDefault("shutdown-timeout", 15*time.Second)
	viper.SetDefault("cluster-domain", backend.DefaultClusterDomain)
	viper.SetDefault("controller-name", controller.DefaultControllerName)
}

//nolint:funlen // sequential startup steps
func runServe(cmd *cobra.Command, _ []string) error {
	logger := setupLogger(os.Stdout)
	slog.SetDefault(logger)

	ctrl.SetLogger(logr.FromSlogHandler(logger.Handler()))

	source := viper.GetString("source")
	if source != sourceFile && source != sourceKubernetes {
		return errors.Newf("unknown source %q, expected %s or %s", source, sourceFile, sourceKubernetes)
	}

	logger.Info("starting ingress-router",
		"version", version,
		"gitsha", gitsha,
		"source", source,
	)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(ctrlmetrics.Registry)

	overrides, err := backend.ParseOverrides(viper.GetStringSlice("backend-override"))
	if err != nil {
		return err
	}

	var (
		mgr    ctrl.Manager
		lookup backend.Resolver = backend.ClusterDNS{
			ClusterDomain: viper.GetString("cluster-domain"),
			Namespace:     viper.GetString("namespace"),
		}
	)

	if source == sourceKubernetes {
		mgr, err = newManager()
		if err != nil {
			return err
		}

		lookup = backend.NewServiceResolver(mgr.GetClient(),
			viper.GetString("cluster-domain"), viper.GetString("namespace"), logger)
	}

	handler := proxy.New(proxy.Config{
		Resolver: backend.NewChain(collector, overrides, lookup),
		Timeout:  viper.GetDuration("backend-timeout"),
		Metrics:  collector,
		Logger:   logger,
	})

	tables := newTableSyncer(handler, collector, logger)

	group, groupCtx := errgroup.WithContext(ctx)

	if mgr != nil {
		err = startClusterSource(groupCtx, group, mgr, tables)
	} else {
		err = startFileSource(groupCtx, group, tables, collector, logger)
	}

	if err != nil {
		return err
	}

	shutdownTimeout := viper.GetDuration("shutdown-timeout")

	serve(groupCtx, group, logger, "router", viper.GetString("listen-addr"), handler, shutdownTimeout)
	serve(groupCtx, group, logger, "metrics", viper.GetString("metrics-addr"),
		newMetricsHandler(ctrlmetrics.Registry), shutdownTimeout)
	serve(groupCtx, group, logger, "health", viper.GetString("health-addr"),
		newHealthHandler(handler.Ready), shutdownTimeout)

	err = group.Wait()
	if err != nil {
		return errors.Wrap(err, "router stopped")
	}

	logger.Info("ingress-router stopped")

	return nil
}

func newManager() (ctrl.Manager, error) {
	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load kubeconfig")
	}

	return controller.NewManager(restConfig, clusterConfig())
}

func clusterConfig() *controller.Config {
	return &controller.Config{
		GatewayClassName: viper.GetString("gateway-class-name"),
		ControllerName:   viper.GetString("controller-name"),
		Namespace:        viper.GetString("namespace"),
	}
}

func startClusterSource(ctx context.Context, group *errgroup.Group, mgr ctrl.Manager, tables *controller.TableSyncer) error {
	_, err := controller.Setup(mgr, clusterConfig(), tables)
	if err != nil {
		return errors.Wrap(err, "failed to set up controllers")
	}

	group.Go(func() error {
		return errors.Wrap(mgr.Start(ctx), "manager stopped")
	})

	return nil
}

// startFileSource installs the table built from the manifests, refusing
// invalid configuration, and starts the reload loop when watching.
func startFileSource(
	ctx context.Context,
	group *errgroup.Group,
	tables *controller.TableSyncer,
	collector metrics.Collector,
	logger *slog.Logger,
) error {
	paths, err := manifestPaths()
	if err != nil {
		return err
	}

	loader := manifest.NewLoader(logger)

	objs, err := loader.Load(paths...)
	if err != nil {
		return errors.Wrap(err, "failed to load manifests")
	}

	_, err = tables.ApplyStrict(ctx, sourceFile, objs)
	if err != nil {
		return errors.Wrap(err, "initial routing configuration refused")
	}

	if !viper.GetBool("watch") {
		return nil
	}

	watcher, err := manifest.NewWatcher(paths, logger)
	if err != nil {
		return err
	}

	watcher.SetDebounce(viper.GetDuration("watch-debounce"))

	group.Go(func() error {
		return watcher.Run(ctx, func(ctx context.Context) {
			reloadManifests(ctx, loader, paths, tables, collector, logger)
		})
	})

	return nil
}

// reloadManifests applies changed manifests. Invalid rules are skipped by
// the syncer; manifests that cannot be read keep the current table.
func reloadManifests(
	ctx context.Context,
	loader *manifest.Loader,
	paths []string,
	tables *controller.TableSyncer,
	collector metrics.Collector,
	logger *slog.Logger,
) {
	startTime := time.Now()

	objs, err := loader.Load(paths...)
	if err != nil {
		collector.RecordTableReload(ctx, sourceFile, "rejected", time.Since(startTime))
		logger.Error("manifest reload failed, keeping the current routing table", "error", err)

		return
	}

	_, err = tables.Apply(ctx, sourceFile, objs)
	if err != nil {
		logger.Error("routing table reload failed", "error", err)
	}
}

// serve runs an HTTP server until ctx is done. An empty or "0" address
// disables the server.
func serve(
	ctx context.Context,
	group *errgroup.Group,
	logger *slog.Logger,
	name, addr string,
	handler http.Handler,
	shutdownTimeout time.Duration,
) {
	if addr == "" || addr == "0" {
		logger.Info("server disabled", "server", name)

		return
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	group.Go(func() error {
		logger.Info("server listening", "server", name, "addr", addr)

		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return errors.Wrapf(err, "%s server failed", name)
	})

	group.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		return errors.Wrapf(server.Shutdown(shutdownCtx), "%s server shutdown", name)
	})
}
