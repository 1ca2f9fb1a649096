package ingress

import (
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
	gatewayv1beta1 "sigs.k8s.io/gateway-api/apis/v1beta1"
)

// ReferenceGrants permits cross-namespace backend references.
type ReferenceGrants []gatewayv1beta1.ReferenceGrant

// AllowsService reports whether an HTTPRoute in fromNamespace may reference
// Service name in toNamespace. Same-namespace references are always allowed.
func (g ReferenceGrants) AllowsService(fromNamespace, toNamespace, name string) bool {
	if fromNamespace == toNamespace {
		return true
	}

	for i := range g {
		grant := &g[i]
		if grant.Namespace != toNamespace {
			continue
		}

		if grantsFrom(grant.Spec.From, fromNamespace) && grantsTo(grant.Spec.To, name) {
			return true
		}
	}

	return false
}

func grantsFrom(from []gatewayv1beta1.ReferenceGrantFrom, namespace string) bool {
	for _, f := range from {
		if string(f.Group) == gatewayv1.GroupName &&
			f.Kind == "HTTPRoute" &&
			string(f.Namespace) == namespace {
			return true
		}
	}

	return false
}

func grantsTo(to []gatewayv1beta1.ReferenceGrantTo, name string) bool {
	for _, t := range to {
		if t.Group != backendGroupCore || t.Kind != backendKindService {
			continue
		}

		if t.Name == nil || string(*t.Name) == name {
			return true
		}
	}

	return false
}
