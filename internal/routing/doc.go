// Package routing implements the ingress routing table: an ordered set of
// path-matching rules that selects a backend for a request and optionally
// rewrites the forwarded path.
//
// # Host Selection
//
// The request host selects exactly one host group, in this order:
//
//   - the exact host (case-insensitive, port ignored)
//   - the most specific "*.domain" wildcard matching one extra label
//   - the any-host group (rules with an empty or "*" host)
//
// Only the rules of the selected group are evaluated.
//
// # Precedence
//
// Inside a host group the first matching rule wins, evaluated as:
//
//  1. Exact rules, in declaration order
//  2. ImplementationSpecific (regex) rules, in declaration order
//  3. Prefix rules, longest path first
//
// Regex rules are anchored at the start of the path and case-insensitive.
//
// # Rewrites
//
// A regex rule may carry a rewrite target such as "/api/$2". Capture groups
// are resolved when the table is compiled; a reference to a missing group is
// a configuration error, never a runtime surprise. When the template ends in
// "/$N" and group N is empty the trailing slash is dropped, so
// "/pricing-service/api" is forwarded as "/api".
//
// # Reserved Prefixes
//
// For every regex rule starting with a literal segment, such as
// "/pricing-service/api(/|$)(.*)", the segment "/pricing-service" is reserved
// with a 404 rule. Paths under a service namespace that are not part of its
// API are therefore not found instead of falling through to "/".
package routing
