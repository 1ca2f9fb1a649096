package ingress

import (
	"strconv"
	"strings"
)

// Annotation prefix for ingress-nginx compatible annotations.
const nginxAnnotationPrefix = "nginx.ingress.kubernetes.io/"

// Annotation keys.
const (
	AnnRewriteTarget = nginxAnnotationPrefix + "rewrite-target"
	AnnUseRegex      = nginxAnnotationPrefix + "use-regex"

	// annIngressClass is the deprecated class annotation, still widely used.
	annIngressClass = "kubernetes.io/ingress.class"

	// annDefaultIngressClass marks the cluster default IngressClass.
	annDefaultIngressClass = "ingressclass.kubernetes.io/is-default-class"
)

// AnnotationParser extracts typed values from Kubernetes annotations.
type AnnotationParser struct {
	annotations map[string]string
}

// NewAnnotationParser creates a parser for the given annotation map.
func NewAnnotationParser(annotations map[string]string) *AnnotationParser {
	return &AnnotationParser{annotations: annotations}
}

// GetString returns the trimmed annotation value or the default.
func (p *AnnotationParser) GetString(key, defaultVal string) string {
	if v := strings.TrimSpace(p.annotations[key]); v != "" {
		return v
	}

	return defaultVal
}

// GetBool returns the annotation value as a bool, or the default.
func (p *AnnotationParser) GetBool(key string, defaultVal bool) bool {
	v := strings.TrimSpace(p.annotations[key])
	if v == "" {
		return defaultVal
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}

	return b
}

// RewriteTarget returns the rewrite-target annotation.
func (p *AnnotationParser) RewriteTarget() string {
	return p.GetString(AnnRewriteTarget, "")
}

// UseRegex reports whether paths are regular expressions. A rewrite target
// implies regex paths, as in ingress-nginx.
func (p *AnnotationParser) UseRegex() bool {
	return p.GetBool(AnnUseRegex, false) || p.RewriteTarget() != ""
}
