package routing

import (
	"fmt"
	"strconv"
	"strings"
)

// MatchMode selects how a rule's Path is compared against a request path.
type MatchMode int

const (
	// Prefix matches on path element boundaries: "/foo" matches "/foo",
	// "/foo/" and "/foo/bar" but not "/foobar". "/" matches every path.
	Prefix MatchMode = iota

	// Exact matches the path verbatim.
	Exact

	// ImplementationSpecific treats Path as a regular expression anchored at
	// the start of the request path and matched case-insensitively.
	ImplementationSpecific
)

// String returns the Kubernetes pathType spelling of the mode.
func (m MatchMode) String() string {
	switch m {
	case Prefix:
		return "Prefix"
	case Exact:
		return "Exact"
	case ImplementationSpecific:
		return "ImplementationSpecific"
	}

	return "MatchMode(" + strconv.Itoa(int(m)) + ")"
}

// ParseMatchMode parses a Kubernetes pathType value. "Regex" is accepted as an
// alias for ImplementationSpecific.
func ParseMatchMode(s string) (MatchMode, bool) {
	switch strings.ToLower(s) {
	case "prefix", "pathprefix":
		return Prefix, true
	case "exact":
		return Exact, true
	case "implementationspecific", "regex", "regularexpression":
		return ImplementationSpecific, true
	}

	return Prefix, false
}

// Backend identifies where a matched request goes.
type Backend struct {
	// Service is the name of the target Service.
	Service string

	// Namespace of the Service. Empty means the resolver's default namespace.
	Namespace string

	// Port is the numeric service port. Zero when PortName is used.
	Port int32

	// PortName is a named service port, resolved at request time.
	PortName string

	// Status, when non-zero, makes this a fixed-status backend: the router
	// answers with this HTTP status and never proxies.
	Status int
}

// IsStatus reports whether the backend is a fixed-status backend.
func (b Backend) IsStatus() bool {
	return b.Status != 0
}

// String renders the backend as "service.namespace:port" or "status:404".
func (b Backend) String() string {
	if b.IsStatus() {
		return "status:" + strconv.Itoa(b.Status)
	}

	name := b.Service
	if b.Namespace != "" {
		name += "." + b.Namespace
	}

	if b.PortName != "" {
		return name + ":" + b.PortName
	}

	return name + ":" + strconv.Itoa(int(b.Port))
}

// ReplaceMode selects how a PathReplace rewrites a Prefix or Exact match.
type ReplaceMode int

const (
	// ReplaceNone forwards the path unchanged.
	ReplaceNone ReplaceMode = iota

	// ReplacePrefix substitutes the matched prefix and keeps the remainder:
	// "/api" replaced with "/v1" forwards "/api/coins" as "/v1/coins".
	ReplacePrefix

	// ReplaceFull forwards Value in place of the whole path.
	ReplaceFull
)

// PathReplace is a literal path substitution for Prefix and Exact rules. The
// rule keeps its match mode and precedence.
type PathReplace struct {
	Mode  ReplaceMode
	Value string
}

// IsSet reports whether the replacement changes the forwarded path.
func (p PathReplace) IsSet() bool {
	return p.Mode != ReplaceNone
}

// String renders the replacement as "prefix:/v1" or "path:/v1".
func (p PathReplace) String() string {
	switch p.Mode {
	case ReplacePrefix:
		return "prefix:" + p.Value
	case ReplaceFull:
		return "path:" + p.Value
	}

	return ""
}

// apply rewrites path, whose first len(matched) bytes matched the rule.
func (p PathReplace) apply(matched, path string) string {
	var out string

	switch p.Mode {
	case ReplacePrefix:
		out = strings.TrimRight(p.Value, "/") + path[len(matched):]
	case ReplaceFull:
		out = p.Value
	default:
		return path
	}

	if out == "" {
		return "/"
	}

	return out
}

// Rule is a single routing table entry.
type Rule struct {
	// Host is matched against the request Host header. Empty or "*" matches
	// every host; "*.example.com" matches exactly one additional label.
	Host string

	// Path is the literal path for Prefix and Exact rules and the regular
	// expression for ImplementationSpecific rules.
	Path string

	// Mode is the path match mode.
	Mode MatchMode

	// RewriteTarget is an optional template for the forwarded path. It may
	// reference capture groups as $1, ${1}, $name or ${name}; "$$" is a
	// literal dollar sign. Empty means the path is forwarded unchanged.
	RewriteTarget string

	// Replace is an optional literal rewrite for Prefix and Exact rules.
	Replace PathReplace

	// Backend is the destination of matched requests.
	Backend Backend

	// Source describes where the rule came from, for logs and errors.
	Source string
}

// String renders the rule on a single line.
func (r *Rule) String() string {
	host := r.Host
	if host == "" {
		host = "*"
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "%s %s %s -> %s", host, r.Mode, r.Path, r.Backend)

	if rewrite := r.Rewrite(); rewrite != "" {
		fmt.Fprintf(&sb, " rewrite %s", rewrite)
	}

	return sb.String()
}

// Rewrite returns the rewrite target or literal replacement, or "".
func (r *Rule) Rewrite() string {
	if r.RewriteTarget != "" {
		return r.RewriteTarget
	}

	return r.Replace.String()
}

// key identifies a rule for deduplication and equality. Source is excluded:
// the same rule declared twice is the same rule.
type key struct {
	host    string
	path    string
	mode    MatchMode
	rewrite string
	replace PathReplace
	backend Backend
}

func (r *Rule) key() key {
	return key{
		host:    normalizeHost(r.Host),
		path:    r.Path,
		mode:    r.Mode,
		rewrite: r.RewriteTarget,
		replace: r.Replace,
		backend: r.Backend,
	}
}
