package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/cockroachdb/errors"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/lexfrei/ingress-router/internal/routing"
)

// ServiceResolver resolves backends by reading the Service object. It handles
// ExternalName services and named ports, and falls back to cluster-local DNS
// when the Service cannot be read for any reason other than NotFound.
type ServiceResolver struct {
	client client.Reader
	dns    ClusterDNS
	logger *slog.Logger
}

// NewServiceResolver creates a ServiceResolver. namespace is used for
// backends that do not carry one.
func NewServiceResolver(c client.Reader, clusterDomain, namespace string, logger *slog.Logger) *ServiceResolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &ServiceResolver{
		client: c,
		dns:    ClusterDNS{ClusterDomain: clusterDomain, Namespace: namespace},
		logger: logger.With("component", "service-resolver"),
	}
}

// Name returns "service".
func (*ServiceResolver) Name() string {
	return "service"
}

// Resolve fetches the Service for b and builds its URL.
func (r *ServiceResolver) Resolve(ctx context.Context, b routing.Backend) (*url.URL, error) {
	if r.client == nil {
		return r.dns.Resolve(ctx, b)
	}

	namespace := namespaceOf(b, r.dns.Namespace)
	svc := &corev1.Service{}

	err := r.client.Get(ctx, types.NamespacedName{Name: b.Service, Namespace: namespace}, svc)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, errors.Wrapf(ErrUnresolvable, "Service %s/%s not found", namespace, b.Service)
		}

		r.logger.Warn("failed to fetch Service, using cluster-local DNS",
			"service", fmt.Sprintf("%s/%s", namespace, b.Service),
			"error", err.Error(),
		)

		return r.dns.Resolve(ctx, b)
	}

	port, err := servicePort(svc, b)
	if err != nil {
		return nil, err
	}

	if svc.Spec.Type == corev1.ServiceTypeExternalName {
		return &url.URL{
			Scheme: schemeFor(port),
			Host:   fmt.Sprintf("%s:%d", svc.Spec.ExternalName, port),
		}, nil
	}

	resolved := b
	resolved.Namespace = namespace
	resolved.Port = port
	resolved.PortName = ""

	return r.dns.Resolve(ctx, resolved)
}

// servicePort returns the numeric port for b, looking named ports up in the
// Service spec.
func servicePort(svc *corev1.Service, b routing.Backend) (int32, error) {
	if b.PortName == "" {
		return b.Port, nil
	}

	for _, p := range svc.Spec.Ports {
		if p.Name == b.PortName {
			return p.Port, nil
		}
	}

	return 0, errors.Wrapf(ErrUnresolvable, "Service %s/%s has no port named %q",
		svc.Namespace, svc.Name, b.PortName)
}
