package controller

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/util/retry"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
	gatewayv1beta1 "sigs.k8s.io/gateway-api/apis/v1beta1"

	"github.com/lexfrei/ingress-router/internal/ingress"
	"github.com/lexfrei/ingress-router/internal/routebinding"
	"github.com/lexfrei/ingress-router/internal/routing"
)

// Route status messages.
const (
	routeAcceptedMessage = "Route accepted and programmed in the routing table"
	resolvedRefsMessage  = "All references resolved"
)

// HTTPRouteReconciler resyncs the routing table when an HTTPRoute, Gateway
// or ReferenceGrant changes, and reports Accepted and ResolvedRefs
// conditions on attached routes.
type HTTPRouteReconciler struct {
	client.Client

	// Syncer rebuilds the routing table.
	Syncer *ClusterSyncer

	// GatewayClassName filters which routes to process.
	GatewayClassName string

	// ControllerName is reported in HTTPRoute status.
	ControllerName string
}

func (r *HTTPRouteReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	if !r.Syncer.Started() {
		return ctrl.Result{RequeueAfter: startupPendingRequeueDelay}, nil
	}

	logger := slog.Default().With("httproute", req.NamespacedName)

	var route gatewayv1.HTTPRoute

	err := r.Get(ctx, req.NamespacedName, &route)

	switch {
	case apierrors.IsNotFound(err):
		logger.Info("httproute deleted, triggering full sync")
	case err != nil:
		return ctrl.Result{}, errors.Wrap(err, "failed to get httproute")
	default:
		logger.Info("reconciling httproute")
	}

	_, err = r.Syncer.Sync(ctx)
	if err != nil {
		return ctrl.Result{}, errors.Wrap(err, "failed to sync routing table")
	}

	return ctrl.Result{}, nil
}

// updateStatuses is a SyncHook writing status to every attached route.
func (r *HTTPRouteReconciler) updateStatuses(ctx context.Context, result *SyncResult, syncErr error) {
	if result == nil {
		return
	}

	logger := slog.Default().With("component", "httproute-status")

	for i := range result.HTTPRoutes {
		route := &result.HTTPRoutes[i]

		err := r.updateRouteStatus(ctx, route, result, syncErr)
		if err != nil {
			logger.Error("failed to update httproute status",
				"route", route.Namespace+"/"+route.Name,
				"error", err,
			)
		}
	}
}

func (r *HTTPRouteReconciler) updateRouteStatus(
	ctx context.Context,
	route *gatewayv1.HTTPRoute,
	result *SyncResult,
	syncErr error,
) error {
	routeKey := types.NamespacedName{Name: route.Name, Namespace: route.Namespace}
	failedRefs := failedRefsFor(result.FailedRefs, route)
	invalid := invalidRulesFor(result.Invalid, route)

	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		var freshRoute gatewayv1.HTTPRoute

		err := r.Get(ctx, routeKey, &freshRoute)
		if err != nil {
			return errors.Wrap(err, "failed to get fresh httproute")
		}

		parents := routebinding.AttachedParents(&freshRoute, result.Objects.Gateways, r.GatewayClassName)
		conditions := routeConditions(freshRoute.Generation, failedRefs, invalid, syncErr)

		// Keep entries written by other controllers.
		statuses := make([]gatewayv1.RouteParentStatus, 0, len(freshRoute.Status.Parents)+len(parents))
		for _, parent := range freshRoute.Status.Parents {
			if string(parent.ControllerName) != r.ControllerName {
				statuses = append(statuses, parent)
			}
		}

		for _, ref := range parents {
			namespace := gatewayv1.Namespace(freshRoute.Namespace)
			if ref.Namespace != nil {
				namespace = *ref.Namespace
			}

			statuses = append(statuses, gatewayv1.RouteParentStatus{
				ParentRef: gatewayv1.ParentReference{
					Group:       ref.Group,
					Kind:        ref.Kind,
					Namespace:   &namespace,
					Name:        ref.Name,
					SectionName: ref.SectionName,
					Port:        ref.Port,
				},
				ControllerName: gatewayv1.GatewayController(r.ControllerName),
				Conditions:     conditions,
			})
		}

		freshRoute.Status.Parents = statuses

		err = r.Status().Update(ctx, &freshRoute)
		if err != nil {
			return errors.Wrap(err, "failed to update httproute status")
		}

		return nil
	})

	return errors.Wrap(err, "failed to update httproute status after retries")
}

func routeConditions(
	generation int64,
	failedRefs []ingress.BackendRefError,
	invalid []*routing.RuleError,
	syncErr error,
) []metav1.Condition {
	now := metav1.Now()

	accepted := metav1.Condition{
		Type:               string(gatewayv1.RouteConditionAccepted),
		Status:             metav1.ConditionTrue,
		ObservedGeneration: generation,
		LastTransitionTime: now,
		Reason:             string(gatewayv1.RouteReasonAccepted),
		Message:            routeAcceptedMessage,
	}

	switch {
	case syncErr != nil:
		accepted.Status = metav1.ConditionFalse
		accepted.Reason = string(gatewayv1.RouteReasonPending)
		accepted.Message = syncErr.Error()
	case len(invalid) > 0:
		msgs := make([]string, 0, len(invalid))
		for _, ruleErr := range invalid {
			msgs = append(msgs, ruleErr.Error())
		}

		accepted.Status = metav1.ConditionFalse
		accepted.Reason = string(gatewayv1.RouteReasonUnsupportedValue)
		accepted.Message = strings.Join(msgs, "; ")
	}

	resolved := metav1.Condition{
		Type:               string(gatewayv1.RouteConditionResolvedRefs),
		Status:             metav1.ConditionTrue,
		ObservedGeneration: generation,
		LastTransitionTime: now,
		Reason:             string(gatewayv1.RouteReasonResolvedRefs),
		Message:            resolvedRefsMessage,
	}

	if len(failedRefs) > 0 {
		var msgBuilder strings.Builder

		msgBuilder.WriteString("Backend references not resolved: ")

		for i, failedRef := range failedRefs {
			if i > 0 {
				msgBuilder.WriteString(", ")
			}

			msgBuilder.WriteString(failedRef.BackendNS + "/" + failedRef.BackendName + " (" + failedRef.Message + ")")
		}

		resolved.Status = metav1.ConditionFalse
		resolved.Reason = failedRefs[0].Reason
		resolved.Message = msgBuilder.String()
	}

	return []metav1.Condition{accepted, resolved}
}

func failedRefsFor(refs []ingress.BackendRefError, route *gatewayv1.HTTPRoute) []ingress.BackendRefError {
	var out []ingress.BackendRefError

	for _, ref := range refs {
		if ref.Kind == "HTTPRoute" && ref.RouteNamespace == route.Namespace && ref.RouteName == route.Name {
			out = append(out, ref)
		}
	}

	return out
}

func invalidRulesFor(invalid []*routing.RuleError, route *gatewayv1.HTTPRoute) []*routing.RuleError {
	prefix := "HTTPRoute " + route.Namespace + "/" + route.Name + " "

	var out []*routing.RuleError

	for _, ruleErr := range invalid {
		if strings.HasPrefix(ruleErr.Rule.Source, prefix) {
			out = append(out, ruleErr)
		}
	}

	return out
}

func (r *HTTPRouteReconciler) SetupWithManager(mgr ctrl.Manager) error {
	r.Syncer.AddHook(r.updateStatuses)

	newRouteList := func() *gatewayv1.HTTPRouteList { return &gatewayv1.HTTPRouteList{} }

	err := ctrl.NewControllerManagedBy(mgr).
		For(&gatewayv1.HTTPRoute{}).
		// Filter out status-only updates to prevent infinite reconciliation loops.
		WithEventFilter(predicate.GenerationChangedPredicate{}).
		Watches(
			&gatewayv1.Gateway{},
			handler.EnqueueRequestsFromMapFunc(listRequests(r.Client, newRouteList,
				func(obj client.Object, list *gatewayv1.HTTPRouteList) []reconcile.Request {
					return FindRoutesForGateway(obj, r.GatewayClassName, list.Items)
				},
			)),
		).
		Watches(
			&gatewayv1beta1.ReferenceGrant{},
			handler.EnqueueRequestsFromMapFunc(listRequests(r.Client, newRouteList,
				func(obj client.Object, list *gatewayv1.HTTPRouteList) []reconcile.Request {
					return FindRoutesForReferenceGrant(obj, list.Items)
				},
			)),
		).
		Complete(r)
	if err != nil {
		return errors.Wrap(err, "failed to setup httproute controller")
	}

	return nil
}
