// Package ingress translates Kubernetes routing objects into routing rules.
//
// # Ingress
//
// Ingresses of the configured class are converted path by path. The NGINX
// annotations nginx.ingress.kubernetes.io/rewrite-target and use-regex turn
// every path of the Ingress into a case-insensitive regex; Exact paths are
// then anchored at both ends. Without them ImplementationSpecific paths are
// treated as Prefix. spec.defaultBackend and resource backends are ignored.
//
// # HTTPRoute
//
// HTTPRoutes attached to a Gateway of the configured GatewayClass are
// converted match by match. URLRewrite path modifiers on PathPrefix and Exact
// matches become literal replacements that keep the match mode, so a
// rewritten /api still loses to a longer /api/v2 and stays case-sensitive:
//
//	PathPrefix /api + ReplacePrefixMatch /v1  =>  Prefix /api, /api/x -> /v1/x
//	PathPrefix /api + ReplaceFullPath /v1     =>  Prefix /api, /api/x -> /v1
//
// On RegularExpression matches only ReplaceFullPath applies, as a static
// rewrite target. Listeners restricting namespaces with a selector admit no
// routes; dropped parents are logged.
//
// Only the highest weight backendRef of a rule is used. Header, query and
// method matches and other filters are ignored and logged.
//
// # Ordering
//
// Objects are translated sorted by namespace and name, Ingresses first,
// so the resulting rule list does not depend on list order.
package ingress
