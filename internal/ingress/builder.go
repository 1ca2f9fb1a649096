package ingress

import (
	"context"
	"log/slog"

	networkingv1 "k8s.io/api/networking/v1"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
	gatewayv1beta1 "sigs.k8s.io/gateway-api/apis/v1beta1"

	"github.com/lexfrei/ingress-router/internal/metrics"
	"github.com/lexfrei/ingress-router/internal/routing"
)

const (
	// DefaultHTTPPort is the port used when a backendRef omits one.
	DefaultHTTPPort = 80

	// DefaultIngressClass is the ingress class claimed by default.
	DefaultIngressClass = "nginx"

	// Backend reference constants.
	backendGroupCore      = ""     // Core resources (Service, Pod, etc.) use empty group
	backendGroupCoreAlias = "core" // Accept "core" as backwards-compatible alias
	backendKindService    = "Service"

	// partialMessage is logged for every configuration detail that cannot be
	// expressed as a routing rule.
	partialMessage = "route configuration partially applied"
)

// Objects is the set of Kubernetes objects routing rules are built from.
type Objects struct {
	Ingresses       []networkingv1.Ingress
	IngressClasses  []networkingv1.IngressClass
	HTTPRoutes      []gatewayv1.HTTPRoute
	Gateways        []gatewayv1.Gateway
	ReferenceGrants []gatewayv1beta1.ReferenceGrant
}

// Len returns the number of routing objects.
func (o *Objects) Len() int {
	return len(o.Ingresses) + len(o.HTTPRoutes)
}

// BackendRefError represents a backend reference that could not be turned
// into a routing rule.
type BackendRefError struct {
	Kind           string
	RouteNamespace string
	RouteName      string
	BackendName    string
	BackendNS      string
	Reason         string // Gateway API reason, e.g. "RefNotPermitted"
	Message        string
}

// BuildResult contains the build output of one object kind.
type BuildResult struct {
	Rules      []routing.Rule
	FailedRefs []BackendRefError
}

// Result is the output of Translate.
type Result struct {
	// Rules are in translation order: Ingresses, then HTTPRoutes, each sorted
	// by namespace and name.
	Rules []routing.Rule

	// FailedRefs lists backends that were dropped.
	FailedRefs []BackendRefError

	// HTTPRoutes are the routes attached to one of our Gateways.
	HTTPRoutes []gatewayv1.HTTPRoute
}

// Config configures a Translator.
type Config struct {
	// IngressClass is the ingress class this router claims.
	IngressClass string

	// WatchWithoutClass claims Ingresses that name no class.
	WatchWithoutClass bool

	// GatewayClassName selects the Gateways whose HTTPRoutes are translated.
	// Empty disables HTTPRoute translation.
	GatewayClassName string
}

// Translator converts Ingress and HTTPRoute objects into routing rules.
type Translator struct {
	cfg     Config
	metrics metrics.Collector
	logger  *slog.Logger
}

// NewTranslator creates a Translator. m and logger may be nil.
func NewTranslator(cfg Config, m metrics.Collector, logger *slog.Logger) *Translator {
	if cfg.IngressClass == "" {
		cfg.IngressClass = DefaultIngressClass
	}

	if m == nil {
		m = metrics.NewNoopCollector()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Translator{cfg: cfg, metrics: m, logger: logger}
}

// Translate builds the routing rules for objs. Objects outside our ingress
// class or not attached to our Gateways are ignored. The result does not
// depend on the order of objs.
func (t *Translator) Translate(ctx context.Context, objs *Objects) Result {
	ingresses := NewGenericBuilder[networkingv1.Ingress](t.metrics, t.logger, &IngressAdapter{
		IngressClass:      t.cfg.IngressClass,
		WatchWithoutClass: t.cfg.WatchWithoutClass,
		DefaultClass:      isDefaultClass(objs.IngressClasses, t.cfg.IngressClass),
	})

	ingressResult := ingresses.Build(ctx, objs.Ingresses)

	result := Result{
		Rules:      ingressResult.Rules,
		FailedRefs: ingressResult.FailedRefs,
	}

	if t.cfg.GatewayClassName == "" {
		return result
	}

	attached := AttachedHTTPRoutes(objs.HTTPRoutes, objs.Gateways, t.cfg.GatewayClassName, t.logger)

	routes := NewGenericBuilder[gatewayv1.HTTPRoute](t.metrics, t.logger, &HTTPRouteAdapter{
		Grants: ReferenceGrants(objs.ReferenceGrants),
	})

	routeResult := routes.Build(ctx, attached)

	result.Rules = append(result.Rules, routeResult.Rules...)
	result.FailedRefs = append(result.FailedRefs, routeResult.FailedRefs...)
	result.HTTPRoutes = attached

	return result
}
