package controller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	networkingv1 "k8s.io/api/networking/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
	gatewayv1beta1 "sigs.k8s.io/gateway-api/apis/v1beta1"

	"github.com/lexfrei/ingress-router/internal/ingress"
)

// sourceKubernetes labels reloads driven by the cluster.
const sourceKubernetes = "kubernetes"

// SyncHook is called after every cluster sync pass that produced a result.
type SyncHook func(ctx context.Context, result *SyncResult, syncErr error)

// ClusterSyncer lists routing objects from the cluster and applies them
// through a TableSyncer. Every reconcile triggers a full pass, so the table
// always reflects the complete cluster state.
type ClusterSyncer struct {
	reader           client.Reader
	tables           *TableSyncer
	gatewayClassName string
	namespace        string

	hooksMu sync.Mutex
	hooks   []SyncHook

	// startupComplete is set once the startup sync has run. Reconcilers
	// requeue until then.
	startupComplete atomic.Bool
}

// NewClusterSyncer creates a ClusterSyncer. HTTPRoutes, Gateways and
// ReferenceGrants are only listed when gatewayClassName is set. An empty
// namespace lists all namespaces.
func NewClusterSyncer(reader client.Reader, tables *TableSyncer, gatewayClassName, namespace string) *ClusterSyncer {
	return &ClusterSyncer{
		reader:           reader,
		tables:           tables,
		gatewayClassName: gatewayClassName,
		namespace:        namespace,
	}
}

// AddHook registers a hook run after each sync.
func (c *ClusterSyncer) AddHook(hook SyncHook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()

	c.hooks = append(c.hooks, hook)
}

// Started reports whether the startup sync has run.
func (c *ClusterSyncer) Started() bool {
	return c.startupComplete.Load()
}

// Sync lists all routing objects and applies them.
func (c *ClusterSyncer) Sync(ctx context.Context) (*SyncResult, error) {
	objs, err := c.listObjects(ctx)
	if err != nil {
		return nil, err
	}

	result, syncErr := c.tables.Apply(ctx, sourceKubernetes, objs)

	c.hooksMu.Lock()
	hooks := make([]SyncHook, len(c.hooks))
	copy(hooks, c.hooks)
	c.hooksMu.Unlock()

	for _, hook := range hooks {
		hook(ctx, result, syncErr)
	}

	return result, syncErr
}

// Start implements manager.Runnable for the startup sync.
func (c *ClusterSyncer) Start(ctx context.Context) error {
	// Reconcilers proceed even when the first pass failed.
	defer c.startupComplete.Store(true)

	logger := slog.Default().With("component", "startup-sync")
	logger.Info("performing startup sync of routing table")

	_, err := c.Sync(ctx)
	if err != nil {
		logger.Error("startup sync failed", "error", err)
	} else {
		logger.Info("startup sync completed successfully")
	}

	return nil
}

//nolint:funlen // one list call per kind
func (c *ClusterSyncer) listObjects(ctx context.Context) (*ingress.Objects, error) {
	var opts []client.ListOption
	if c.namespace != "" {
		opts = append(opts, client.InNamespace(c.namespace))
	}

	objs := &ingress.Objects{}

	var ingresses networkingv1.IngressList

	err := c.reader.List(ctx, &ingresses, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list ingresses")
	}

	objs.Ingresses = ingresses.Items

	var classes networkingv1.IngressClassList

	err = c.reader.List(ctx, &classes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list ingressclasses")
	}

	objs.IngressClasses = classes.Items

	if c.gatewayClassName == "" {
		return objs, nil
	}

	var routes gatewayv1.HTTPRouteList

	err = c.reader.List(ctx, &routes, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list httproutes")
	}

	objs.HTTPRoutes = routes.Items

	var gateways gatewayv1.GatewayList

	err = c.reader.List(ctx, &gateways)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list gateways")
	}

	objs.Gateways = gateways.Items

	var grants gatewayv1beta1.ReferenceGrantList

	err = c.reader.List(ctx, &grants)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list referencegrants")
	}

	objs.ReferenceGrants = grants.Items

	return objs, nil
}
