// Package backend resolves routing backends to upstream URLs at request time.
package backend

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/lexfrei/ingress-router/internal/metrics"
	"github.com/lexfrei/ingress-router/internal/routing"
)

const (
	// DefaultHTTPSPort is the service port that is dialled with TLS.
	DefaultHTTPSPort = 443

	// DefaultClusterDomain is the Kubernetes cluster domain suffix.
	DefaultClusterDomain = "cluster.local"

	schemeHTTP  = "http"
	schemeHTTPS = "https"
)

var (
	// ErrUnresolvable is returned when a backend definitely has no address.
	// Chain stops at this error.
	ErrUnresolvable = errors.New("backend unresolvable")

	// ErrNoMatch is returned by a resolver that has no entry for a backend.
	// Chain moves on to the next resolver.
	ErrNoMatch = errors.New("no resolver entry for backend")
)

// Resolver maps a backend to the base URL requests are forwarded to.
type Resolver interface {
	Resolve(ctx context.Context, b routing.Backend) (*url.URL, error)
}

// Named is implemented by resolvers that report a name for metrics labels.
type Named interface {
	Name() string
}

func nameOf(r Resolver) string {
	if n, ok := r.(Named); ok {
		return n.Name()
	}

	return fmt.Sprintf("%T", r)
}

func schemeFor(port int32) string {
	if port == DefaultHTTPSPort {
		return schemeHTTPS
	}

	return schemeHTTP
}

// ClusterDNS resolves backends to cluster-local service DNS names:
//
//	http://<service>.<namespace>.svc.<cluster-domain>:<port>
//
// Port 443 uses the https scheme. Named ports cannot be resolved without the
// Service object and fail with ErrUnresolvable.
type ClusterDNS struct {
	ClusterDomain string
	Namespace     string
}

// Name returns "dns".
func (ClusterDNS) Name() string {
	return "dns"
}

// Resolve builds the cluster DNS URL for b.
func (d ClusterDNS) Resolve(_ context.Context, b routing.Backend) (*url.URL, error) {
	if b.PortName != "" && b.Port == 0 {
		return nil, errors.Wrapf(ErrUnresolvable, "named port %q of service %q needs the Service object", b.PortName, b.Service)
	}

	domain := d.ClusterDomain
	if domain == "" {
		domain = DefaultClusterDomain
	}

	return &url.URL{
		Scheme: schemeFor(b.Port),
		Host:   fmt.Sprintf("%s.%s.svc.%s:%d", b.Service, namespaceOf(b, d.Namespace), domain, b.Port),
	}, nil
}

func namespaceOf(b routing.Backend, fallback string) string {
	if b.Namespace != "" {
		return b.Namespace
	}

	if fallback != "" {
		return fallback
	}

	return "default"
}

// Overrides maps service names to fixed URLs, for running the router outside
// a cluster. Keys are "service" or "service.namespace"; the more specific key
// wins.
type Overrides map[string]*url.URL

// ParseOverrides parses "service=url" pairs.
func ParseOverrides(pairs []string) (Overrides, error) {
	out := make(Overrides, len(pairs))

	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" || raw == "" {
			return nil, errors.Newf("invalid backend override %q, expected service=url", pair)
		}

		target, err := url.Parse(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid backend override %q", pair)
		}

		if target.Scheme == "" || target.Host == "" {
			return nil, errors.Newf("backend override %q must be an absolute URL", pair)
		}

		out[name] = target
	}

	return out, nil
}

// Name returns "override".
func (Overrides) Name() string {
	return "override"
}

// Resolve returns the override for b, or ErrNoMatch.
func (o Overrides) Resolve(_ context.Context, b routing.Backend) (*url.URL, error) {
	if b.Namespace != "" {
		if target, ok := o[b.Service+"."+b.Namespace]; ok {
			return cloneURL(target), nil
		}
	}

	if target, ok := o[b.Service]; ok {
		return cloneURL(target), nil
	}

	return nil, errors.Wrapf(ErrNoMatch, "service %q", b.Service)
}

func cloneURL(u *url.URL) *url.URL {
	c := *u

	return &c
}

// Chain tries resolvers in order. ErrNoMatch moves on to the next resolver,
// any other error or a URL ends the chain.
type Chain struct {
	resolvers []Resolver
	metrics   metrics.Collector
}

// NewChain creates a Chain. m may be nil.
func NewChain(m metrics.Collector, resolvers ...Resolver) *Chain {
	if m == nil {
		m = metrics.NewNoopCollector()
	}

	return &Chain{resolvers: resolvers, metrics: m}
}

// Resolve returns the first URL produced by the chain.
func (c *Chain) Resolve(ctx context.Context, b routing.Backend) (*url.URL, error) {
	for _, r := range c.resolvers {
		target, err := r.Resolve(ctx, b)

		switch {
		case err == nil:
			c.metrics.RecordBackendResolution(ctx, nameOf(r), "resolved")

			return target, nil
		case errors.Is(err, ErrNoMatch):
			continue
		default:
			c.metrics.RecordBackendResolution(ctx, nameOf(r), "unresolvable")

			return nil, err
		}
	}

	c.metrics.RecordBackendResolution(ctx, "chain", "unresolvable")

	return nil, errors.Wrapf(ErrUnresolvable, "no resolver for backend %s", b)
}
