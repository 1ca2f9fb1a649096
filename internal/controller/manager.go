package controller

import (
	"github.com/cockroachdb/errors"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	"sigs.k8s.io/controller-runtime/pkg/metrics/server"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
	gatewayv1beta1 "sigs.k8s.io/gateway-api/apis/v1beta1"
)

// DefaultControllerName is reported in HTTPRoute status.
const DefaultControllerName = "lexfrei.github.io/ingress-router"

// Config holds the configuration of the cluster source.
// Values are typically populated from CLI flags or environment variables.
type Config struct {
	// GatewayClassName enables HTTPRoute support for Gateways of this class.
	GatewayClassName string

	// ControllerName is reported in HTTPRoute status.
	ControllerName string

	// Namespace restricts watched namespaced objects. Empty watches all.
	Namespace string
}

// NewScheme returns a scheme with the core, networking and Gateway API types.
func NewScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(gatewayv1.Install(scheme))
	utilruntime.Must(gatewayv1beta1.Install(scheme))

	return scheme
}

// NewManager creates a controller-runtime manager. Its own metrics and
// health servers are disabled; the router serves both.
func NewManager(restConfig *rest.Config, cfg *Config) (ctrl.Manager, error) {
	options := ctrl.Options{
		Scheme: NewScheme(),
		Metrics: server.Options{
			BindAddress: "0",
		},
		HealthProbeBindAddress: "0",
	}

	if cfg.Namespace != "" {
		options.Cache = cache.Options{
			DefaultNamespaces: map[string]cache.Config{cfg.Namespace: {}},
		}
	}

	mgr, err := ctrl.NewManager(restConfig, options)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create manager")
	}

	return mgr, nil
}

// Setup registers the reconcilers and the startup sync on mgr and returns
// the ClusterSyncer driving tables.
//
//nolint:noinlineerr // inline error handling for controller pattern
func Setup(mgr ctrl.Manager, cfg *Config, tables *TableSyncer) (*ClusterSyncer, error) {
	syncer := NewClusterSyncer(mgr.GetClient(), tables, cfg.GatewayClassName, cfg.Namespace)

	ingressReconciler := &IngressReconciler{
		Client: mgr.GetClient(),
		Syncer: syncer,
	}

	if err := ingressReconciler.SetupWithManager(mgr); err != nil {
		return nil, err
	}

	if cfg.GatewayClassName != "" {
		controllerName := cfg.ControllerName
		if controllerName == "" {
			controllerName = DefaultControllerName
		}

		routeReconciler := &HTTPRouteReconciler{
			Client:           mgr.GetClient(),
			Syncer:           syncer,
			GatewayClassName: cfg.GatewayClassName,
			ControllerName:   controllerName,
		}

		if err := routeReconciler.SetupWithManager(mgr); err != nil {
			return nil, err
		}
	}

	if err := mgr.Add(syncer); err != nil {
		return nil, errors.Wrap(err, "failed to add startup sync runnable")
	}

	return syncer, nil
}
