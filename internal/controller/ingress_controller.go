package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"
)

// startupPendingRequeueDelay is the delay before retrying when startup sync is not yet complete.
const startupPendingRequeueDelay = 1 * time.Second

// IngressReconciler resyncs the routing table when an Ingress or
// IngressClass changes.
type IngressReconciler struct {
	client.Client

	// Syncer rebuilds the routing table.
	Syncer *ClusterSyncer
}

func (r *IngressReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	if !r.Syncer.Started() {
		return ctrl.Result{RequeueAfter: startupPendingRequeueDelay}, nil
	}

	logger := slog.Default().With("ingress", req.NamespacedName)

	var ing networkingv1.Ingress

	err := r.Get(ctx, req.NamespacedName, &ing)

	switch {
	case apierrors.IsNotFound(err):
		logger.Info("ingress deleted, triggering full sync")
	case err != nil:
		return ctrl.Result{}, errors.Wrap(err, "failed to get ingress")
	default:
		logger.Info("reconciling ingress")
	}

	_, err = r.Syncer.Sync(ctx)
	if err != nil {
		return ctrl.Result{}, errors.Wrap(err, "failed to sync routing table")
	}

	return ctrl.Result{}, nil
}

func (r *IngressReconciler) SetupWithManager(mgr ctrl.Manager) error {
	err := ctrl.NewControllerManagedBy(mgr).
		For(&networkingv1.Ingress{},
			// Annotations carry rewrite-target and use-regex and do not bump
			// the generation.
			builder.WithPredicates(predicate.Or[client.Object](
				predicate.GenerationChangedPredicate{},
				predicate.AnnotationChangedPredicate{},
			))).
		Watches(
			&networkingv1.IngressClass{},
			handler.EnqueueRequestsFromMapFunc(listRequests(r.Client,
				func() *networkingv1.IngressList { return &networkingv1.IngressList{} },
				func(obj client.Object, list *networkingv1.IngressList) []reconcile.Request {
					return FindIngressesForClass(obj, list.Items)
				},
			)),
		).
		Complete(r)
	if err != nil {
		return errors.Wrap(err, "failed to setup ingress controller")
	}

	return nil
}
