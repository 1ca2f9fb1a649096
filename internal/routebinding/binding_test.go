package routebinding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
)

func gateway(namespace, name, class string, listeners ...gatewayv1.Listener) gatewayv1.Gateway {
	return gatewayv1.Gateway{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
		Spec: gatewayv1.GatewaySpec{
			GatewayClassName: gatewayv1.ObjectName(class),
			Listeners:        listeners,
		},
	}
}

func httpListener(name string, port gatewayv1.PortNumber, from gatewayv1.FromNamespaces) gatewayv1.Listener {
	return gatewayv1.Listener{
		Name:     gatewayv1.SectionName(name),
		Protocol: gatewayv1.HTTPProtocolType,
		Port:     port,
		AllowedRoutes: &gatewayv1.AllowedRoutes{
			Namespaces: &gatewayv1.RouteNamespaces{From: &from},
		},
	}
}

func route(namespace string, refs ...gatewayv1.ParentReference) *gatewayv1.HTTPRoute {
	return &gatewayv1.HTTPRoute{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: "r"},
		Spec: gatewayv1.HTTPRouteSpec{
			CommonRouteSpec: gatewayv1.CommonRouteSpec{ParentRefs: refs},
		},
	}
}

func TestAttachedParents(t *testing.T) {
	t.Parallel()

	otherNS := gatewayv1.Namespace("infra")
	section := gatewayv1.SectionName("web")
	missingSection := gatewayv1.SectionName("admin")
	port := gatewayv1.PortNumber(8080)
	serviceKind := gatewayv1.Kind("Service")

	gateways := []gatewayv1.Gateway{
		gateway("crypto", "edge", "ingress-router", httpListener("web", 80, gatewayv1.NamespacesFromSame)),
		gateway("infra", "shared", "ingress-router", httpListener("web", 8080, gatewayv1.NamespacesFromAll)),
		gateway("crypto", "foreign", "other-class", httpListener("web", 80, gatewayv1.NamespacesFromAll)),
	}

	tests := []struct {
		name     string
		route    *gatewayv1.HTTPRoute
		expected int
	}{
		{
			name:     "same namespace gateway",
			route:    route("crypto", gatewayv1.ParentReference{Name: "edge"}),
			expected: 1,
		},
		{
			name:     "other class ignored",
			route:    route("crypto", gatewayv1.ParentReference{Name: "foreign"}),
			expected: 0,
		},
		{
			name:     "cross namespace rejected by Same",
			route:    route("billing", gatewayv1.ParentReference{Name: "edge", Namespace: ptrTo(gatewayv1.Namespace("crypto"))}),
			expected: 0,
		},
		{
			name:     "cross namespace allowed by All",
			route:    route("crypto", gatewayv1.ParentReference{Name: "shared", Namespace: &otherNS}),
			expected: 1,
		},
		{
			name:     "matching section and port",
			route:    route("crypto", gatewayv1.ParentReference{Name: "shared", Namespace: &otherNS, SectionName: &section, Port: &port}),
			expected: 1,
		},
		{
			name:     "unknown section",
			route:    route("crypto", gatewayv1.ParentReference{Name: "edge", SectionName: &missingSection}),
			expected: 0,
		},
		{
			name:     "non gateway parent kind",
			route:    route("crypto", gatewayv1.ParentReference{Name: "edge", Kind: &serviceKind}),
			expected: 0,
		},
		{
			name:     "missing gateway",
			route:    route("crypto", gatewayv1.ParentReference{Name: "nope"}),
			expected: 0,
		},
		{
			name: "two parents both attached",
			route: route("crypto",
				gatewayv1.ParentReference{Name: "edge"},
				gatewayv1.ParentReference{Name: "shared", Namespace: &otherNS},
			),
			expected: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Len(t, AttachedParents(tt.route, gateways, "ingress-router"), tt.expected)
		})
	}
}

func TestListenerAccepts_SelectorAdmitsNothing(t *testing.T) {
	t.Parallel()

	gw := gateway("crypto", "edge", "ingress-router", httpListener("web", 80, gatewayv1.NamespacesFromSelector))

	assert.False(t, ListenerAccepts(&gw, "crypto", gatewayv1.ParentReference{Name: "edge"}))
}

func TestSelectorParents(t *testing.T) {
	t.Parallel()

	gateways := []gatewayv1.Gateway{
		gateway("crypto", "edge", "ingress-router", httpListener("web", 80, gatewayv1.NamespacesFromSelector)),
		gateway("crypto", "mixed", "ingress-router",
			httpListener("selected", 80, gatewayv1.NamespacesFromSelector),
			httpListener("same", 8080, gatewayv1.NamespacesFromSame),
		),
		gateway("crypto", "other", "other-class", httpListener("web", 80, gatewayv1.NamespacesFromSelector)),
	}

	tests := []struct {
		name     string
		route    *gatewayv1.HTTPRoute
		expected []gatewayv1.ObjectName
	}{
		{
			name:     "selector listener drops the parent",
			route:    route("crypto", gatewayv1.ParentReference{Name: "edge"}),
			expected: []gatewayv1.ObjectName{"edge"},
		},
		{
			name:  "another listener admits the route",
			route: route("crypto", gatewayv1.ParentReference{Name: "mixed"}),
		},
		{
			name:     "only the selector listener is selected",
			route:    route("crypto", gatewayv1.ParentReference{Name: "mixed", SectionName: ptrTo(gatewayv1.SectionName("selected"))}),
			expected: []gatewayv1.ObjectName{"mixed"},
		},
		{
			name:  "other gateway class is ignored",
			route: route("crypto", gatewayv1.ParentReference{Name: "other"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var names []gatewayv1.ObjectName
			for _, ref := range SelectorParents(tt.route, gateways, "ingress-router") {
				names = append(names, ref.Name)
			}

			assert.Equal(t, tt.expected, names)
		})
	}
}

func ptrTo[T any](v T) *T {
	return &v
}
