package ingress

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	networkingv1 "k8s.io/api/networking/v1"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"

	"github.com/lexfrei/ingress-router/internal/routing"
)

// IngressAdapter adapts networking.k8s.io/v1 Ingress for use with GenericBuilder.
type IngressAdapter struct {
	// IngressClass is the class this router claims.
	IngressClass string

	// WatchWithoutClass claims Ingresses that name no class.
	WatchWithoutClass bool

	// DefaultClass is true when IngressClass is the cluster default, which
	// also claims Ingresses that name no class.
	DefaultClass bool
}

// RouteKind returns "Ingress".
func (*IngressAdapter) RouteKind() string {
	return "Ingress"
}

// GetMeta returns the namespace and name of the Ingress.
func (*IngressAdapter) GetMeta(ing *networkingv1.Ingress) (string, string) {
	return ing.Namespace, ing.Name
}

// Accepts reports whether the Ingress belongs to our ingress class:
// spec.ingressClassName first, then the legacy annotation, then the
// no-class policy.
func (a *IngressAdapter) Accepts(ing *networkingv1.Ingress) bool {
	if ing.Spec.IngressClassName != nil {
		return *ing.Spec.IngressClassName == a.IngressClass
	}

	if v, ok := ing.Annotations[annIngressClass]; ok {
		return v == a.IngressClass
	}

	return a.WatchWithoutClass || a.DefaultClass
}

// ExtractRules converts every rule path of the Ingress, in order.
func (a *IngressAdapter) ExtractRules(
	_ context.Context,
	ing *networkingv1.Ingress,
	logger *slog.Logger,
) ([]routing.Rule, []BackendRefError) {
	ann := NewAnnotationParser(ing.Annotations)
	useRegex := ann.UseRegex()
	rewrite := ann.RewriteTarget()

	if ing.Spec.DefaultBackend != nil {
		logger.Info(partialMessage,
			"ingress", fmt.Sprintf("%s/%s", ing.Namespace, ing.Name),
			"reason", "defaultBackend ignored, unmatched requests answer 404",
		)
	}

	if len(ing.Spec.TLS) > 0 {
		logger.Debug("tls section ignored, TLS is terminated in front of the router",
			"ingress", fmt.Sprintf("%s/%s", ing.Namespace, ing.Name),
		)
	}

	var (
		rules      []routing.Rule
		failedRefs []BackendRefError
	)

	for ruleIdx, rule := range ing.Spec.Rules {
		if rule.HTTP == nil {
			continue
		}

		for pathIdx, path := range rule.HTTP.Paths {
			source := fmt.Sprintf("Ingress %s/%s rule %d path %d", ing.Namespace, ing.Name, ruleIdx, pathIdx)

			backend, failed := a.backendFor(ing, path.Backend)
			if failed != nil {
				logger.Info(partialMessage,
					"ingress", fmt.Sprintf("%s/%s", ing.Namespace, ing.Name),
					"reason", failed.Message,
					"path", path.Path,
				)

				failedRefs = append(failedRefs, *failed)

				continue
			}

			pattern, mode := ingressPath(path, useRegex)

			r := routing.Rule{
				Host:    rule.Host,
				Path:    pattern,
				Mode:    mode,
				Backend: backend,
				Source:  source,
			}

			if mode == routing.ImplementationSpecific {
				r.RewriteTarget = rewrite
			}

			rules = append(rules, r)
		}
	}

	return rules, failedRefs
}

// ingressPath maps an Ingress path to a routing pattern and mode. Without
// regex annotations ImplementationSpecific behaves as Prefix. With them every
// path is a regex; Exact paths are anchored at both ends.
func ingressPath(path networkingv1.HTTPIngressPath, useRegex bool) (string, routing.MatchMode) {
	value := path.Path
	if value == "" {
		value = "/"
	}

	pathType := networkingv1.PathTypeImplementationSpecific
	if path.PathType != nil {
		pathType = *path.PathType
	}

	if useRegex {
		if pathType == networkingv1.PathTypeExact {
			return regexp.QuoteMeta(value) + "$", routing.ImplementationSpecific
		}

		return value, routing.ImplementationSpecific
	}

	if pathType == networkingv1.PathTypeExact {
		return value, routing.Exact
	}

	return value, routing.Prefix
}

func (a *IngressAdapter) backendFor(ing *networkingv1.Ingress, b networkingv1.IngressBackend) (routing.Backend, *BackendRefError) {
	failed := &BackendRefError{
		Kind:           a.RouteKind(),
		RouteNamespace: ing.Namespace,
		RouteName:      ing.Name,
		BackendNS:      ing.Namespace,
	}

	if b.Service == nil {
		failed.Reason = string(gatewayv1.RouteReasonInvalidKind)
		failed.Message = "resource backends are not supported"

		return routing.Backend{}, failed
	}

	failed.BackendName = b.Service.Name

	if b.Service.Port.Number == 0 && b.Service.Port.Name == "" {
		failed.Reason = string(gatewayv1.RouteReasonUnsupportedValue)
		failed.Message = fmt.Sprintf("service %q has no port", b.Service.Name)

		return routing.Backend{}, failed
	}

	return routing.Backend{
		Service:   b.Service.Name,
		Namespace: ing.Namespace,
		Port:      b.Service.Port.Number,
		PortName:  b.Service.Port.Name,
	}, nil
}

// isDefaultClass reports whether the IngressClass named class is marked as
// the cluster default.
func isDefaultClass(classes []networkingv1.IngressClass, class string) bool {
	for i := range classes {
		if classes[i].Name != class {
			continue
		}

		return NewAnnotationParser(classes[i].Annotations).GetBool(annDefaultIngressClass, false)
	}

	return false
}
