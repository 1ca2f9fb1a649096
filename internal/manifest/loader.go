package manifest

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
	gatewayv1beta1 "sigs.k8s.io/gateway-api/apis/v1beta1"
	"sigs.k8s.io/kustomize/api/krusty"
	"sigs.k8s.io/kustomize/kyaml/filesys"

	"github.com/lexfrei/ingress-router/internal/ingress"
)

// ErrNoManifests is returned when no path was given.
var ErrNoManifests = errors.New("no manifest paths")

// kustomizationFiles are the file names that mark a kustomization root.
var kustomizationFiles = []string{"kustomization.yaml", "kustomization.yml", "Kustomization"}

var (
	gvkIngress        = networkingv1.SchemeGroupVersion.WithKind("Ingress")
	gvkIngressClass   = networkingv1.SchemeGroupVersion.WithKind("IngressClass")
	gvkHTTPRoute      = gatewayv1.SchemeGroupVersion.WithKind("HTTPRoute")
	gvkGateway        = gatewayv1.SchemeGroupVersion.WithKind("Gateway")
	gvkReferenceGrant = gatewayv1beta1.SchemeGroupVersion.WithKind("ReferenceGrant")

	// gvkReferenceGrantV1 is accepted for clusters serving ReferenceGrant as v1.
	gvkReferenceGrantV1 = schema.GroupVersionKind{Group: gatewayv1.GroupName, Version: "v1", Kind: "ReferenceGrant"}
)

// Loader reads routing objects from manifest files and directories.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a Loader. logger may be nil.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Loader{logger: logger.With("component", "manifest-loader")}
}

// Load reads every path. A file may hold several YAML or JSON documents,
// including v1 List objects. A directory holding a kustomization file is
// rendered with kustomize; any other directory contributes its .yaml, .yml
// and .json files, non-recursively, in name order. Kinds other than Ingress,
// IngressClass, HTTPRoute, Gateway and ReferenceGrant are skipped.
func (l *Loader) Load(paths ...string) (*ingress.Objects, error) {
	if len(paths) == 0 {
		return nil, ErrNoManifests
	}

	objs := &ingress.Objects{}

	for _, path := range paths {
		err := l.loadPath(path, objs)
		if err != nil {
			return nil, err
		}
	}

	l.logger.Debug("manifests loaded",
		"paths", paths,
		"ingresses", len(objs.Ingresses),
		"httproutes", len(objs.HTTPRoutes),
	)

	return objs, nil
}

func (l *Loader) loadPath(path string, objs *ingress.Objects) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", path)
	}

	if !info.IsDir() {
		return l.loadFile(path, objs)
	}

	if IsKustomization(path) {
		return l.loadKustomization(path, objs)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read directory %s", path)
	}

	for _, entry := range entries {
		if entry.IsDir() || !IsManifestFile(entry.Name()) {
			continue
		}

		err = l.loadFile(filepath.Join(path, entry.Name()), objs)
		if err != nil {
			return err
		}
	}

	return nil
}

func (l *Loader) loadFile(path string, objs *ingress.Objects) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}

	return errors.Wrapf(l.decode(data, path, objs), "failed to load %s", path)
}

func (l *Loader) loadKustomization(dir string, objs *ingress.Objects) error {
	kustomizer := krusty.MakeKustomizer(krusty.MakeDefaultOptions())

	resources, err := kustomizer.Run(filesys.MakeFsOnDisk(), dir)
	if err != nil {
		return errors.Wrapf(err, "failed to build kustomization %s", dir)
	}

	data, err := resources.AsYaml()
	if err != nil {
		return errors.Wrapf(err, "failed to render kustomization %s", dir)
	}

	return errors.Wrapf(l.decode(data, dir, objs), "failed to load kustomization %s", dir)
}

// decode appends the routing objects of a multi-document stream to objs.
// JSON is valid YAML, so both go through the YAML document reader.
func (l *Loader) decode(data []byte, source string, objs *ingress.Objects) error {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(bytes.NewReader(data)))

	for index := 0; ; index++ {
		raw, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return errors.Wrapf(err, "failed to read document %d", index)
		}

		jsonData, err := utilyaml.ToJSON(raw)
		if err != nil {
			return errors.Wrapf(err, "failed to parse document %d", index)
		}

		if trimmed := bytes.TrimSpace(jsonData); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			continue
		}

		var doc unstructured.Unstructured

		err = doc.UnmarshalJSON(jsonData)
		if err != nil {
			return errors.Wrapf(err, "failed to decode document %d", index)
		}

		err = l.add(&doc, source, objs)
		if err != nil {
			return err
		}
	}
}

func (l *Loader) add(doc *unstructured.Unstructured, source string, objs *ingress.Objects) error {
	if doc.IsList() {
		return errors.Wrap(doc.EachListItem(func(item runtime.Object) error {
			u, ok := item.(*unstructured.Unstructured)
			if !ok {
				return errors.Newf("unexpected list item %T", item)
			}

			return l.add(u, source, objs)
		}), "failed to read list")
	}

	gvk := doc.GroupVersionKind()

	var err error

	switch gvk {
	case gvkIngress:
		err = appendConverted(doc, &objs.Ingresses)
	case gvkIngressClass:
		err = appendConverted(doc, &objs.IngressClasses)
	case gvkHTTPRoute:
		err = appendConverted(doc, &objs.HTTPRoutes)
	case gvkGateway:
		err = appendConverted(doc, &objs.Gateways)
	case gvkReferenceGrant, gvkReferenceGrantV1:
		err = appendConverted(doc, &objs.ReferenceGrants)
	default:
		l.logger.Debug("skipping non-routing object",
			"source", source,
			"kind", gvk.Kind,
			"name", doc.GetName(),
		)

		return nil
	}

	return errors.Wrapf(err, "%s %s/%s", gvk.Kind, doc.GetNamespace(), doc.GetName())
}

// appendConverted converts doc to T and appends it. Objects without a
// namespace are placed in "default", as kubectl would.
func appendConverted[T any](doc *unstructured.Unstructured, out *[]T) error {
	if doc.GetNamespace() == "" && doc.GetKind() != gvkIngressClass.Kind {
		doc.SetNamespace("default")
	}

	var obj T

	err := runtime.DefaultUnstructuredConverter.FromUnstructured(doc.Object, &obj)
	if err != nil {
		return errors.Wrap(err, "failed to convert object")
	}

	*out = append(*out, obj)

	return nil
}

// IsKustomization reports whether dir holds a kustomization file.
func IsKustomization(dir string) bool {
	for _, name := range kustomizationFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}

	return false
}

// IsManifestFile reports whether name has a manifest file extension.
func IsManifestFile(name string) bool {
	return slices.Contains([]string{".yaml", ".yml", ".json"}, strings.ToLower(filepath.Ext(name)))
}
