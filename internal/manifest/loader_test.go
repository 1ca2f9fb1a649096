package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexfrei/ingress-router/internal/manifest"
)

const pricingIngress = `apiVersion: networking.k8s.io/v1
kind: Ingress
metadata:
  name: pricing-service
  namespace: crypto
  annotations:
    nginx.ingress.kubernetes.io/rewrite-target: /api/$2
spec:
  ingressClassName: nginx
  rules:
    - http:
        paths:
          - path: /pricing-service/api(/|$)(.*)
            pathType: ImplementationSpecific
            backend:
              service:
                name: pricing-service
                port:
                  number: 12000
`

const deployment = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: pricing-service
spec:
  replicas: 1
`

const frontendJSON = `{
  "apiVersion": "networking.k8s.io/v1",
  "kind": "Ingress",
  "metadata": {"name": "frontend"},
  "spec": {
    "rules": [{"http": {"paths": [{
      "path": "/",
      "pathType": "Prefix",
      "backend": {"service": {"name": "frontend", "port": {"number": 80}}}
    }]}}]
  }
}
`

const gatewayList = `apiVersion: v1
kind: List
items:
  - apiVersion: gateway.networking.k8s.io/v1
    kind: Gateway
    metadata:
      name: edge
      namespace: crypto
    spec:
      gatewayClassName: ingress-router
      listeners:
        - name: http
          protocol: HTTP
          port: 80
  - apiVersion: gateway.networking.k8s.io/v1
    kind: HTTPRoute
    metadata:
      name: alerts
      namespace: crypto
    spec:
      parentRefs:
        - name: edge
      rules:
        - backendRefs:
            - name: alert-service
              port: 5000
  - apiVersion: gateway.networking.k8s.io/v1beta1
    kind: ReferenceGrant
    metadata:
      name: allow
      namespace: monitoring
    spec:
      from:
        - group: gateway.networking.k8s.io
          kind: HTTPRoute
          namespace: crypto
      to:
        - group: ""
          kind: Service
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_MultiDocumentFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "all.yaml", "# leading comment\n---\n"+pricingIngress+"---\n"+deployment+"---\n")

	objs, err := manifest.NewLoader(nil).Load(path)
	require.NoError(t, err)

	require.Len(t, objs.Ingresses, 1)
	ing := objs.Ingresses[0]
	assert.Equal(t, "crypto", ing.Namespace)
	assert.Equal(t, "pricing-service", ing.Name)
	assert.Equal(t, "/api/$2", ing.Annotations["nginx.ingress.kubernetes.io/rewrite-target"])
	require.Len(t, ing.Spec.Rules, 1)
	assert.Equal(t, int32(12000), ing.Spec.Rules[0].HTTP.Paths[0].Backend.Service.Port.Number)
}

func TestLoad_Directory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "10-pricing.yml", pricingIngress)
	writeFile(t, dir, "20-frontend.json", frontendJSON)
	writeFile(t, dir, "30-gateway.yaml", gatewayList)
	writeFile(t, dir, "README.md", "not a manifest")
	writeFile(t, dir, "nested/ignored.yaml", pricingIngress)

	objs, err := manifest.NewLoader(nil).Load(dir)
	require.NoError(t, err)

	require.Len(t, objs.Ingresses, 2)
	assert.Equal(t, "pricing-service", objs.Ingresses[0].Name)
	assert.Equal(t, "frontend", objs.Ingresses[1].Name)
	assert.Equal(t, "default", objs.Ingresses[1].Namespace)

	require.Len(t, objs.Gateways, 1)
	assert.Equal(t, "ingress-router", string(objs.Gateways[0].Spec.GatewayClassName))
	require.Len(t, objs.HTTPRoutes, 1)
	require.Len(t, objs.HTTPRoutes[0].Spec.Rules, 1)
	assert.Equal(t, "alert-service", string(objs.HTTPRoutes[0].Spec.Rules[0].BackendRefs[0].Name))
	require.Len(t, objs.ReferenceGrants, 1)
	assert.Equal(t, "monitoring", objs.ReferenceGrants[0].Namespace)
}

func TestLoad_Kustomization(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "base/ingress.yaml", pricingIngress)
	writeFile(t, dir, "base/deployment.yaml", deployment)
	writeFile(t, dir, "base/kustomization.yaml", `apiVersion: kustomize.config.k8s.io/v1beta1
kind: Kustomization
resources:
  - ingress.yaml
  - deployment.yaml
`)
	writeFile(t, dir, "overlay/kustomization.yaml", `apiVersion: kustomize.config.k8s.io/v1beta1
kind: Kustomization
namespace: staging
resources:
  - ../base
`)

	overlay := filepath.Join(dir, "overlay")
	assert.True(t, manifest.IsKustomization(overlay))

	objs, err := manifest.NewLoader(nil).Load(overlay)
	require.NoError(t, err)

	require.Len(t, objs.Ingresses, 1)
	assert.Equal(t, "staging", objs.Ingresses[0].Namespace)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	malformed := writeFile(t, dir, "bad.yaml", "apiVersion: v1\nkind: [unclosed\n")
	noKind := writeFile(t, dir, "nokind.yaml", "metadata:\n  name: x\n")
	badField := writeFile(t, dir, "badfield.yaml", `apiVersion: networking.k8s.io/v1
kind: Ingress
metadata:
  name: broken
spec:
  rules: "not a list"
`)

	tests := []struct {
		name  string
		paths []string
	}{
		{name: "no paths", paths: nil},
		{name: "missing file", paths: []string{filepath.Join(dir, "missing.yaml")}},
		{name: "malformed yaml", paths: []string{malformed}},
		{name: "document without kind", paths: []string{noKind}},
		{name: "field of the wrong type", paths: []string{badField}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := manifest.NewLoader(nil).Load(tt.paths...)
			require.Error(t, err)
		})
	}
}

func TestIsManifestFile(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]bool{
		"a.yaml":      true,
		"a.YML":       true,
		"a.json":      true,
		"a.yaml.swp":  false,
		"README.md":   false,
		"kustomize":   false,
		".hidden.yml": true,
	} {
		assert.Equal(t, want, manifest.IsManifestFile(name), name)
	}
}

func TestLoad_DeployOverlay(t *testing.T) {
	t.Parallel()

	objs, err := manifest.NewLoader(nil).Load("../../deploy/overlays/production")
	require.NoError(t, err)

	require.Len(t, objs.Ingresses, 5)

	for i := range objs.Ingresses {
		ing := &objs.Ingresses[i]
		assert.Equal(t, "crypto-tracker", ing.Namespace, ing.Name)
		require.Len(t, ing.Spec.Rules, 1, ing.Name)
		assert.Equal(t, "crypto.example.com", ing.Spec.Rules[0].Host, ing.Name)
	}
}
