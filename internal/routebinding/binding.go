package routebinding

import (
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
)

const kindGateway = gatewayv1.Kind("Gateway")

// AttachedParents returns the parentRefs of route that point at a Gateway
// of className with at least one listener accepting the route.
func AttachedParents(
	route *gatewayv1.HTTPRoute,
	gateways []gatewayv1.Gateway,
	className string,
) []gatewayv1.ParentReference {
	var attached []gatewayv1.ParentReference

	for _, ref := range route.Spec.ParentRefs {
		gw := findGateway(gateways, route.Namespace, ref)
		if gw == nil || string(gw.Spec.GatewayClassName) != className {
			continue
		}

		if ListenerAccepts(gw, route.Namespace, ref) {
			attached = append(attached, ref)
		}
	}

	return attached
}

// ListenerAccepts reports whether a listener of gw selected by ref's
// sectionName and port admits an HTTPRoute from routeNamespace.
func ListenerAccepts(gw *gatewayv1.Gateway, routeNamespace string, ref gatewayv1.ParentReference) bool {
	for _, listener := range selectedListeners(gw, ref) {
		if namespaceAllowed(listener.AllowedRoutes, gw.Namespace, routeNamespace) {
			return true
		}
	}

	return false
}

// SelectorParents returns the parentRefs of route that were not attached only
// because every selected listener restricts namespaces with a label selector.
// Selectors are not evaluated, so such listeners admit no routes.
func SelectorParents(
	route *gatewayv1.HTTPRoute,
	gateways []gatewayv1.Gateway,
	className string,
) []gatewayv1.ParentReference {
	var skipped []gatewayv1.ParentReference

	for _, ref := range route.Spec.ParentRefs {
		gw := findGateway(gateways, route.Namespace, ref)
		if gw == nil || string(gw.Spec.GatewayClassName) != className {
			continue
		}

		if ListenerAccepts(gw, route.Namespace, ref) {
			continue
		}

		for _, listener := range selectedListeners(gw, ref) {
			if namespacesFrom(listener.AllowedRoutes) == gatewayv1.NamespacesFromSelector {
				skipped = append(skipped, ref)

				break
			}
		}
	}

	return skipped
}

// selectedListeners returns the HTTPRoute-capable listeners of gw matching
// ref's sectionName and port.
func selectedListeners(gw *gatewayv1.Gateway, ref gatewayv1.ParentReference) []*gatewayv1.Listener {
	var listeners []*gatewayv1.Listener

	for i := range gw.Spec.Listeners {
		listener := &gw.Spec.Listeners[i]

		if ref.SectionName != nil && listener.Name != *ref.SectionName {
			continue
		}

		if ref.Port != nil && listener.Port != *ref.Port {
			continue
		}

		if !IsRouteKindAllowed(listener.AllowedRoutes, listener.Protocol, KindHTTPRoute) {
			continue
		}

		listeners = append(listeners, listener)
	}

	return listeners
}

func namespacesFrom(allowedRoutes *gatewayv1.AllowedRoutes) gatewayv1.FromNamespaces {
	if allowedRoutes != nil && allowedRoutes.Namespaces != nil && allowedRoutes.Namespaces.From != nil {
		return *allowedRoutes.Namespaces.From
	}

	return gatewayv1.NamespacesFromSame
}

// namespaceAllowed applies allowedRoutes.namespaces. Selector is not
// evaluated because Namespace labels are not watched; it admits nothing.
func namespaceAllowed(allowedRoutes *gatewayv1.AllowedRoutes, gatewayNamespace, routeNamespace string) bool {
	switch namespacesFrom(allowedRoutes) {
	case gatewayv1.NamespacesFromAll:
		return true
	case gatewayv1.NamespacesFromSame:
		return gatewayNamespace == routeNamespace
	default:
		return false
	}
}

func findGateway(gateways []gatewayv1.Gateway, routeNamespace string, ref gatewayv1.ParentReference) *gatewayv1.Gateway {
	if ref.Group != nil && *ref.Group != gatewayv1.GroupName {
		return nil
	}

	if ref.Kind != nil && *ref.Kind != kindGateway {
		return nil
	}

	namespace := routeNamespace
	if ref.Namespace != nil {
		namespace = string(*ref.Namespace)
	}

	for i := range gateways {
		if gateways[i].Namespace == namespace && gateways[i].Name == string(ref.Name) {
			return &gateways[i]
		}
	}

	return nil
}
