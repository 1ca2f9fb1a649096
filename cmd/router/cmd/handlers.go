package cmd

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
)

var errNoTable = errors.New("no routing table loaded")

func newMetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}

// newHealthHandler serves /healthz and /readyz. The router is ready once a
// routing table is installed.
func newHealthHandler(ready func() bool) http.Handler {
	checks := map[string]*healthz.Handler{
		"/healthz": {Checks: map[string]healthz.Checker{"ping": healthz.Ping}},
		"/readyz": {Checks: map[string]healthz.Checker{
			"routing-table": func(*http.Request) error {
				if !ready() {
					return errNoTable
				}

				return nil
			},
		}},
	}

	mux := http.NewServeMux()

	for path, handler := range checks {
		mux.Handle(path, http.StripPrefix(path, handler))
		mux.Handle(path+"/", http.StripPrefix(path, handler))
	}

	return mux
}
