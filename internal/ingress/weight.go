package ingress

import gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"

// defaultBackendWeight applies to backendRefs that set no weight.
const defaultBackendWeight int32 = 1

// backendWeight returns the effective weight of ref. Zero disables it.
func backendWeight(ref *gatewayv1.HTTPBackendRef) int32 {
	if ref.Weight == nil {
		return defaultBackendWeight
	}

	return *ref.Weight
}

// heaviestBackendRef returns the index of the backendRef with the highest
// weight, the first one on ties, or -1 when every ref is disabled. The router
// forwards to a single backend, so traffic splitting collapses to the
// heaviest ref.
func heaviestBackendRef(refs []gatewayv1.HTTPBackendRef) int {
	selected := -1

	var heaviest int32

	for i := range refs {
		weight := backendWeight(&refs[i])
		if weight <= 0 {
			continue
		}

		if selected == -1 || weight > heaviest {
			selected, heaviest = i, weight
		}
	}

	return selected
}
