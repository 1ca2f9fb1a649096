package controller

import (
	"context"
	"sync"
	"time"

	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"

	"github.com/lexfrei/ingress-router/internal/ingress"
	"github.com/lexfrei/ingress-router/internal/metrics"
	"github.com/lexfrei/ingress-router/internal/routing"
)

const testGatewayClass = "ingress-router"

// memorySink stores the installed table.
type memorySink struct {
	mu    sync.Mutex
	table *routing.Table
	swaps int
}

func (s *memorySink) Table() *routing.Table {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.table
}

func (s *memorySink) SetTable(table *routing.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.table = table
	s.swaps++
}

// reloadRecorder captures reload outcomes.
type reloadRecorder struct {
	*metrics.NoopCollector

	mu       sync.Mutex
	statuses []string
	invalid  []int
}

func newReloadRecorder() *reloadRecorder {
	return &reloadRecorder{NoopCollector: metrics.NewNoopCollector()}
}

func (r *reloadRecorder) RecordTableReload(_ context.Context, _, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.statuses = append(r.statuses, status)
}

func (r *reloadRecorder) RecordInvalidRules(_ context.Context, _ string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.invalid = append(r.invalid, count)
}

func ptrTo[T any](v T) *T {
	return &v
}

func newFakeClient(objs ...client.Object) client.Client {
	return fake.NewClientBuilder().
		WithScheme(NewScheme()).
		WithObjects(objs...).
		WithStatusSubresource(&gatewayv1.HTTPRoute{}).
		Build()
}

func newTableSyncer(sink TableSink, m metrics.Collector, gatewayClass string) *TableSyncer {
	translator := ingress.NewTranslator(ingress.Config{GatewayClassName: gatewayClass}, m, nil)

	return NewTableSyncer(translator, sink, m, nil)
}

func apiIngress(service string, port int32) *networkingv1.Ingress {
	return &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Namespace:   "crypto",
			Name:        service,
			Annotations: map[string]string{ingress.AnnRewriteTarget: "/api/$2"},
		},
		Spec: networkingv1.IngressSpec{
			IngressClassName: ptrTo("nginx"),
			Rules: []networkingv1.IngressRule{{
				IngressRuleValue: networkingv1.IngressRuleValue{HTTP: &networkingv1.HTTPIngressRuleValue{
					Paths: []networkingv1.HTTPIngressPath{{
						Path:     "/" + service + "/api(/|$)(.*)",
						PathType: ptrTo(networkingv1.PathTypeImplementationSpecific),
						Backend: networkingv1.IngressBackend{Service: &networkingv1.IngressServiceBackend{
							Name: service,
							Port: networkingv1.ServiceBackendPort{Number: port},
						}},
					}},
				}},
			}},
		},
	}
}

func frontendIngress() *networkingv1.Ingress {
	return &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{Namespace: "crypto", Name: "frontend"},
		Spec: networkingv1.IngressSpec{
			IngressClassName: ptrTo("nginx"),
			Rules: []networkingv1.IngressRule{{
				IngressRuleValue: networkingv1.IngressRuleValue{HTTP: &networkingv1.HTTPIngressRuleValue{
					Paths: []networkingv1.HTTPIngressPath{{
						Path:     "/",
						PathType: ptrTo(networkingv1.PathTypePrefix),
						Backend: networkingv1.IngressBackend{Service: &networkingv1.IngressServiceBackend{
							Name: "frontend",
							Port: networkingv1.ServiceBackendPort{Number: 80},
						}},
					}},
				}},
			}},
		},
	}
}

func edgeGateway() *gatewayv1.Gateway {
	return &gatewayv1.Gateway{
		ObjectMeta: metav1.ObjectMeta{Namespace: "crypto", Name: "edge"},
		Spec: gatewayv1.GatewaySpec{
			GatewayClassName: testGatewayClass,
			Listeners: []gatewayv1.Listener{
				{Name: "http", Protocol: gatewayv1.HTTPProtocolType, Port: 80},
			},
		},
	}
}

func httpRoute(name, backendNamespace string) *gatewayv1.HTTPRoute {
	ref := gatewayv1.HTTPBackendRef{BackendRef: gatewayv1.BackendRef{
		BackendObjectReference: gatewayv1.BackendObjectReference{
			Name: "alert-service",
			Port: ptrTo(gatewayv1.PortNumber(5000)),
		},
	}}

	if backendNamespace != "" {
		ref.Namespace = ptrTo(gatewayv1.Namespace(backendNamespace))
	}

	return &gatewayv1.HTTPRoute{
		ObjectMeta: metav1.ObjectMeta{Namespace: "crypto", Name: name, Generation: 3},
		Spec: gatewayv1.HTTPRouteSpec{
			CommonRouteSpec: gatewayv1.CommonRouteSpec{
				ParentRefs: []gatewayv1.ParentReference{{Name: "edge"}},
			},
			Rules: []gatewayv1.HTTPRouteRule{{
				Matches: []gatewayv1.HTTPRouteMatch{{Path: &gatewayv1.HTTPPathMatch{
					Type:  ptrTo(gatewayv1.PathMatchPathPrefix),
					Value: ptrTo("/alerts"),
				}}},
				BackendRefs: []gatewayv1.HTTPBackendRef{ref},
			}},
		},
	}
}
