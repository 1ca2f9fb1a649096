package ingress

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"

	"github.com/lexfrei/ingress-router/internal/routebinding"
	"github.com/lexfrei/ingress-router/internal/routing"
)

// HTTPRouteAdapter adapts HTTPRoute for use with GenericBuilder.
type HTTPRouteAdapter struct {
	// Grants permits cross-namespace backendRefs.
	Grants ReferenceGrants
}

// RouteKind returns "HTTPRoute".
func (*HTTPRouteAdapter) RouteKind() string {
	return "HTTPRoute"
}

// GetMeta returns the namespace and name of the route.
func (*HTTPRouteAdapter) GetMeta(route *gatewayv1.HTTPRoute) (string, string) {
	return route.Namespace, route.Name
}

// Accepts returns true; attachment is decided by AttachedHTTPRoutes.
func (*HTTPRouteAdapter) Accepts(*gatewayv1.HTTPRoute) bool {
	return true
}

// hostnames returns the route hostnames, or a single any-host entry.
func hostnames(route *gatewayv1.HTTPRoute) []string {
	if len(route.Spec.Hostnames) == 0 {
		return []string{""}
	}

	hosts := make([]string, 0, len(route.Spec.Hostnames))
	for _, h := range route.Spec.Hostnames {
		hosts = append(hosts, string(h))
	}

	return hosts
}

// ExtractRules converts each rule and match of the route into routing rules,
// one per hostname.
func (a *HTTPRouteAdapter) ExtractRules(
	_ context.Context,
	route *gatewayv1.HTTPRoute,
	logger *slog.Logger,
) ([]routing.Rule, []BackendRefError) {
	var (
		rules      []routing.Rule
		failedRefs []BackendRefError
	)

	routeKey := fmt.Sprintf("%s/%s", route.Namespace, route.Name)
	log := logger.With("route", routeKey)

	for ruleIdx, rule := range route.Spec.Rules {
		backend, failed := a.resolveBackendRef(route, rule.BackendRefs, log)
		if failed != nil {
			failedRefs = append(failedRefs, *failed)
		}

		if backend == nil {
			continue
		}

		rewrite := pathRewrite(rule.Filters, log)

		matches := rule.Matches
		if len(matches) == 0 {
			matches = []gatewayv1.HTTPRouteMatch{{}}
		}

		for matchIdx, match := range matches {
			logUnsupportedMatch(log, match)

			path, mode := matchPath(match.Path)

			for _, host := range hostnames(route) {
				r := routing.Rule{
					Host:    host,
					Path:    path,
					Mode:    mode,
					Backend: *backend,
					Source:  fmt.Sprintf("HTTPRoute %s rule %d match %d", routeKey, ruleIdx, matchIdx),
				}
				rewrite.applyTo(&r, log)

				rules = append(rules, r)
			}
		}
	}

	return rules, failedRefs
}

func matchPath(pathMatch *gatewayv1.HTTPPathMatch) (string, routing.MatchMode) {
	if pathMatch == nil {
		return "/", routing.Prefix
	}

	path := "/"
	if pathMatch.Value != nil && *pathMatch.Value != "" {
		path = *pathMatch.Value
	}

	pathType := gatewayv1.PathMatchPathPrefix
	if pathMatch.Type != nil {
		pathType = *pathMatch.Type
	}

	switch pathType {
	case gatewayv1.PathMatchExact:
		return path, routing.Exact
	case gatewayv1.PathMatchRegularExpression:
		return path, routing.ImplementationSpecific
	default:
		return path, routing.Prefix
	}
}

// rewriteFilter is the URLRewrite path modifier of a route rule.
type rewriteFilter struct {
	replacePrefix *string
	replaceFull   *string
}

func pathRewrite(filters []gatewayv1.HTTPRouteFilter, log *slog.Logger) rewriteFilter {
	var rw rewriteFilter

	for _, filter := range filters {
		if filter.Type != gatewayv1.HTTPRouteFilterURLRewrite || filter.URLRewrite == nil {
			log.Info(partialMessage,
				"reason", "filter not supported by the router",
				"filter", string(filter.Type),
			)

			continue
		}

		if filter.URLRewrite.Hostname != nil {
			log.Info(partialMessage,
				"reason", "hostname rewrite not supported, the original Host is forwarded",
				"hostname", string(*filter.URLRewrite.Hostname),
			)
		}

		modifier := filter.URLRewrite.Path
		if modifier == nil {
			continue
		}

		switch modifier.Type {
		case gatewayv1.PrefixMatchHTTPPathModifier:
			rw.replacePrefix = modifier.ReplacePrefixMatch
		case gatewayv1.FullPathHTTPPathModifier:
			rw.replaceFull = modifier.ReplaceFullPath
		}
	}

	return rw
}

// applyTo sets the rewrite on r. Prefix and Exact matches keep their mode and
// precedence and get a literal replacement; regular expression matches get a
// static rewrite target.
func (rw rewriteFilter) applyTo(r *routing.Rule, log *slog.Logger) {
	if r.Mode != routing.ImplementationSpecific {
		switch {
		case rw.replaceFull != nil:
			r.Replace = routing.PathReplace{Mode: routing.ReplaceFull, Value: *rw.replaceFull}
		case rw.replacePrefix != nil:
			r.Replace = routing.PathReplace{Mode: routing.ReplacePrefix, Value: *rw.replacePrefix}
		}

		return
	}

	switch {
	case rw.replaceFull != nil:
		r.RewriteTarget = escapeTemplate(*rw.replaceFull)
	case rw.replacePrefix != nil:
		log.Info(partialMessage,
			"reason", "ReplacePrefixMatch requires a PathPrefix match, the path is forwarded unchanged",
			"path", r.Path,
		)
	}
}

// escapeTemplate escapes '$' so a literal path survives rewrite expansion.
func escapeTemplate(s string) string {
	if s == "" {
		return "/"
	}

	return strings.ReplaceAll(s, "$", "$$")
}

func logUnsupportedMatch(log *slog.Logger, match gatewayv1.HTTPRouteMatch) {
	if len(match.Headers) > 0 {
		log.Info(partialMessage,
			"reason", "header matching not supported by the router",
			"ignored_headers", len(match.Headers),
		)
	}

	if len(match.QueryParams) > 0 {
		log.Info(partialMessage,
			"reason", "query parameter matching not supported by the router",
			"ignored_params", len(match.QueryParams),
		)
	}

	if match.Method != nil {
		log.Info(partialMessage,
			"reason", "method matching not supported by the router",
			"ignored_method", string(*match.Method),
		)
	}
}

// resolveBackendRef picks the highest weight backendRef. It returns a nil
// backend when the rule has no usable backend.
func (a *HTTPRouteAdapter) resolveBackendRef(
	route *gatewayv1.HTTPRoute,
	refs []gatewayv1.HTTPBackendRef,
	log *slog.Logger,
) (*routing.Backend, *BackendRefError) {
	if len(refs) == 0 {
		return nil, nil
	}

	if len(refs) > 1 {
		log.Info(partialMessage,
			"reason", "multiple backendRefs specified, using only highest weight",
			"total_backends", len(refs),
			"ignored_backends", len(refs)-1,
		)
	}

	selectedIdx := heaviestBackendRef(refs)
	if selectedIdx == -1 {
		return nil, nil
	}

	ref := refs[selectedIdx].BackendRef

	failed := &BackendRefError{
		Kind:           a.RouteKind(),
		RouteNamespace: route.Namespace,
		RouteName:      route.Name,
		BackendName:    string(ref.Name),
		BackendNS:      route.Namespace,
	}

	if ref.Namespace != nil {
		failed.BackendNS = string(*ref.Namespace)
	}

	if ref.Group != nil && *ref.Group != backendGroupCore && *ref.Group != backendGroupCoreAlias {
		failed.Reason = string(gatewayv1.RouteReasonInvalidKind)
		failed.Message = fmt.Sprintf("backend group %q not supported", *ref.Group)

		return nil, failed
	}

	if ref.Kind != nil && *ref.Kind != backendKindService {
		failed.Reason = string(gatewayv1.RouteReasonInvalidKind)
		failed.Message = fmt.Sprintf("backend kind %q not supported", *ref.Kind)

		return nil, failed
	}

	if !a.Grants.AllowsService(route.Namespace, failed.BackendNS, failed.BackendName) {
		failed.Reason = string(gatewayv1.RouteReasonRefNotPermitted)
		failed.Message = fmt.Sprintf("cross-namespace backend reference to %s/%s not permitted by ReferenceGrant",
			failed.BackendNS, failed.BackendName)

		return nil, failed
	}

	port := int32(DefaultHTTPPort)
	if ref.Port != nil {
		port = int32(*ref.Port)
	}

	return &routing.Backend{
		Service:   failed.BackendName,
		Namespace: failed.BackendNS,
		Port:      port,
	}, nil
}

// AttachedHTTPRoutes returns the routes with at least one parentRef to a
// Gateway of className that accepts them. Parents dropped because a listener
// uses a namespace selector are logged.
func AttachedHTTPRoutes(
	routes []gatewayv1.HTTPRoute,
	gateways []gatewayv1.Gateway,
	className string,
	logger *slog.Logger,
) []gatewayv1.HTTPRoute {
	var attached []gatewayv1.HTTPRoute

	for i := range routes {
		for _, ref := range routebinding.SelectorParents(&routes[i], gateways, className) {
			logger.Info(partialMessage,
				"route", fmt.Sprintf("%s/%s", routes[i].Namespace, routes[i].Name),
				"gateway", string(ref.Name),
				"reason", "listener allowedRoutes namespace selector not supported, the listener admits no routes",
			)
		}

		if len(routebinding.AttachedParents(&routes[i], gateways, className)) > 0 {
			attached = append(attached, routes[i])
		}
	}

	return attached
}
