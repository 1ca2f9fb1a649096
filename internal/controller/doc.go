// Package controller keeps the routing table in sync with the cluster.
//
// Two reconcilers feed a single ClusterSyncer:
//
//   - IngressReconciler watches Ingress and IngressClass resources.
//   - HTTPRouteReconciler watches HTTPRoute, Gateway and ReferenceGrant
//     resources when a GatewayClass is configured, and writes Accepted and
//     ResolvedRefs conditions to attached routes.
//
// Every event triggers a full pass: all routing objects are listed from the
// cache, translated and compiled, and the table is swapped only when it
// changed. Invalid rules are skipped and logged so one bad object never
// takes down the routes of the others.
//
// The TableSyncer also serves the file source, which applies manifests
// loaded from disk through the same path.
package controller
