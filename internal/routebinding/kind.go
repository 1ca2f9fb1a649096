package routebinding

import (
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
)

// KindHTTPRoute is the only route kind the router attaches.
const KindHTTPRoute = gatewayv1.Kind("HTTPRoute")

// IsRouteKindAllowed reports whether a listener admits routeKind. A listener
// without allowedRoutes.kinds admits HTTPRoute when it speaks HTTP or HTTPS
// and nothing otherwise.
func IsRouteKindAllowed(
	allowedRoutes *gatewayv1.AllowedRoutes,
	protocol gatewayv1.ProtocolType,
	routeKind gatewayv1.Kind,
) bool {
	if allowedRoutes == nil || len(allowedRoutes.Kinds) == 0 {
		return routeKind == KindHTTPRoute &&
			(protocol == gatewayv1.HTTPProtocolType || protocol == gatewayv1.HTTPSProtocolType)
	}

	for _, rgk := range allowedRoutes.Kinds {
		if rgk.Kind == routeKind && isGatewayGroup(rgk.Group) {
			return true
		}
	}

	return false
}

// isGatewayGroup treats an unset or empty group as the Gateway API group.
func isGatewayGroup(group *gatewayv1.Group) bool {
	return group == nil || *group == "" || *group == gatewayv1.GroupName
}
