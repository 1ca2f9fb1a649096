package controller

import (
	"context"
	"slices"

	networkingv1 "k8s.io/api/networking/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
	gatewayv1beta1 "sigs.k8s.io/gateway-api/apis/v1beta1"
)

// kindGateway is the Gateway API kind for Gateway resources.
const kindGateway = "Gateway"

func requestFor(namespace, name string) reconcile.Request {
	return reconcile.Request{NamespacedName: client.ObjectKey{Namespace: namespace, Name: name}}
}

// FindRoutesForGateway returns reconcile requests for routes that reference
// the given Gateway.
func FindRoutesForGateway(obj client.Object, gatewayClassName string, routes []gatewayv1.HTTPRoute) []reconcile.Request {
	gateway, ok := obj.(*gatewayv1.Gateway)
	if !ok {
		return nil
	}

	if gateway.Spec.GatewayClassName != gatewayv1.ObjectName(gatewayClassName) {
		return nil
	}

	var requests []reconcile.Request

	for i := range routes {
		route := &routes[i]

		for _, ref := range route.Spec.ParentRefs {
			if ref.Kind != nil && *ref.Kind != kindGateway {
				continue
			}

			namespace := route.Namespace
			if ref.Namespace != nil {
				namespace = string(*ref.Namespace)
			}

			if string(ref.Name) == gateway.Name && namespace == gateway.Namespace {
				requests = append(requests, requestFor(route.Namespace, route.Name))

				break
			}
		}
	}

	return requests
}

// FindRoutesForReferenceGrant returns reconcile requests for routes with
// backends in the ReferenceGrant's namespace.
func FindRoutesForReferenceGrant(obj client.Object, routes []gatewayv1.HTTPRoute) []reconcile.Request {
	refGrant, ok := obj.(*gatewayv1beta1.ReferenceGrant)
	if !ok {
		return nil
	}

	var requests []reconcile.Request

	for i := range routes {
		if slices.Contains(crossNamespaceBackends(&routes[i]), refGrant.Namespace) {
			requests = append(requests, requestFor(routes[i].Namespace, routes[i].Name))
		}
	}

	return requests
}

// crossNamespaceBackends returns the unique backend namespaces that differ
// from the route's own namespace.
func crossNamespaceBackends(route *gatewayv1.HTTPRoute) []string {
	var namespaces []string

	for _, rule := range route.Spec.Rules {
		for _, ref := range rule.BackendRefs {
			if ref.Namespace == nil {
				continue
			}

			ns := string(*ref.Namespace)
			if ns != route.Namespace && !slices.Contains(namespaces, ns) {
				namespaces = append(namespaces, ns)
			}
		}
	}

	return namespaces
}

// FindIngressesForClass returns reconcile requests for Ingresses affected by
// a change of the IngressClass: those naming it and, since the class may have
// become the default, those naming no class.
func FindIngressesForClass(obj client.Object, ingresses []networkingv1.Ingress) []reconcile.Request {
	class, ok := obj.(*networkingv1.IngressClass)
	if !ok {
		return nil
	}

	var requests []reconcile.Request

	for i := range ingresses {
		ing := &ingresses[i]

		name := ing.Annotations["kubernetes.io/ingress.class"]
		if ing.Spec.IngressClassName != nil {
			name = *ing.Spec.IngressClassName
		}

		if name == "" || name == class.Name {
			requests = append(requests, requestFor(ing.Namespace, ing.Name))
		}
	}

	return requests
}

// listRequests adapts a list-and-map function to handler.MapFunc.
func listRequests[L client.ObjectList](
	reader client.Reader,
	newList func() L,
	mapFn func(obj client.Object, list L) []reconcile.Request,
) func(context.Context, client.Object) []reconcile.Request {
	return func(ctx context.Context, obj client.Object) []reconcile.Request {
		list := newList()

		err := reader.List(ctx, list)
		if err != nil {
			return nil
		}

		return mapFn(obj, list)
	}
}
