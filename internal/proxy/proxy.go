// Package proxy serves HTTP by matching each request against the active
// routing table and reverse proxying it to the selected backend.
package proxy

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/lexfrei/ingress-router/internal/backend"
	"github.com/lexfrei/ingress-router/internal/metrics"
	"github.com/lexfrei/ingress-router/internal/routing"
)

const (
	// HeaderRequestID carries the request ID to the backend and the client.
	HeaderRequestID = "X-Request-Id"

	// HeaderOriginalURI carries the client request URI to the backend.
	HeaderOriginalURI = "X-Original-URI"

	// DefaultTimeout bounds a single backend round trip.
	DefaultTimeout = 30 * time.Second
)

// Config holds Handler configuration.
type Config struct {
	// Resolver maps backends to upstream URLs. Required.
	Resolver backend.Resolver

	// Transport is shared by every backend. Defaults to NewTransport(DefaultTransportConfig).
	Transport http.RoundTripper

	// Timeout bounds each proxied request. Zero means DefaultTimeout,
	// a negative value disables it.
	Timeout time.Duration

	Metrics metrics.Collector
	Logger  *slog.Logger
}

// Handler routes requests through the active routing table.
type Handler struct {
	table    atomic.Pointer[routing.Table]
	resolver backend.Resolver
	timeout  time.Duration
	proxy    *httputil.ReverseProxy
	metrics  metrics.Collector
	logger   *slog.Logger
}

// requestState travels with the request through the reverse proxy.
type requestState struct {
	requestID string
	match     routing.Match
	target    *url.URL
	failed    bool
}

type stateKey struct{}

func stateFrom(ctx context.Context) *requestState {
	state, _ := ctx.Value(stateKey{}).(*requestState)

	return state
}

// New creates a Handler. It answers 503 until SetTable is called.
func New(cfg Config) *Handler {
	h := &Handler{
		resolver: cfg.Resolver,
		timeout:  cfg.Timeout,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}

	if h.timeout == 0 {
		h.timeout = DefaultTimeout
	}

	if h.metrics == nil {
		h.metrics = metrics.NewNoopCollector()
	}

	if h.logger == nil {
		h.logger = slog.Default()
	}

	h.logger = h.logger.With("component", "proxy")

	transport := cfg.Transport
	if transport == nil {
		transport = NewTransport(DefaultTransportConfig)
	}

	h.proxy = &httputil.ReverseProxy{
		Rewrite:      rewrite,
		Transport:    transport,
		ErrorHandler: h.handleError,
	}

	return h
}

// SetTable atomically replaces the active routing table.
func (h *Handler) SetTable(table *routing.Table) {
	h.table.Store(table)
}

// Table returns the active routing table, or nil.
func (h *Handler) Table() *routing.Table {
	return h.table.Load()
}

// Ready reports whether a routing table has been loaded.
func (h *Handler) Ready() bool {
	return h.table.Load() != nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	w.Header().Set(HeaderRequestID, requestID)

	table := h.table.Load()
	if table == nil {
		h.reject(w, r, NewError(http.StatusServiceUnavailable).WithDetails("routing table not loaded"),
			requestID, "", metrics.OutcomeNoTable, start)

		return
	}

	match, found := table.Match(r.Host, r.URL.EscapedPath())
	if !found {
		h.reject(w, r, NewError(http.StatusNotFound), requestID, "", metrics.OutcomeNotFound, start)

		return
	}

	backendName := match.Backend.String()

	if match.Backend.IsStatus() {
		h.reject(w, r, NewError(match.Backend.Status), requestID, backendName, metrics.OutcomeFixedStatus, start)

		return
	}

	ctx := r.Context()

	if h.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	target, err := h.resolver.Resolve(ctx, match.Backend)
	if err != nil {
		h.logger.Warn("backend unresolvable",
			"request_id", requestID,
			"backend", backendName,
			"rule", match.Rule.Source,
			"error", err.Error(),
		)
		h.metrics.RecordProxyError(ctx, backendName, metrics.ClassifyProxyError(err))
		h.reject(w, r, NewError(http.StatusBadGateway).WithDetails("backend unresolvable"),
			requestID, backendName, metrics.OutcomeError, start)

		return
	}

	state := &requestState{requestID: requestID, match: match, target: target}
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	h.proxy.ServeHTTP(rec, r.WithContext(context.WithValue(ctx, stateKey{}, state)))

	outcome := metrics.OutcomeProxied
	if state.failed {
		outcome = metrics.OutcomeError
	}

	h.metrics.RecordRequest(ctx, backendName, outcome, time.Since(start))
	h.logger.Debug("request routed",
		"request_id", requestID,
		"method", r.Method,
		"host", r.Host,
		"path", r.URL.EscapedPath(),
		"backend", backendName,
		"forwarded_path", match.Path,
		"status", rec.status,
		"duration", time.Since(start),
	)
}

func (h *Handler) reject(
	w http.ResponseWriter,
	r *http.Request,
	e *Error,
	requestID, backendName, outcome string,
	start time.Time,
) {
	e.WithRequestID(requestID).WriteJSON(w)

	h.metrics.RecordRequest(r.Context(), backendName, outcome, time.Since(start))
	h.logger.Debug("request rejected",
		"request_id", requestID,
		"method", r.Method,
		"host", r.Host,
		"path", r.URL.EscapedPath(),
		"status", e.Code,
	)
}

// rewrite builds the outbound request: the backend URL joined with the
// forwarded path, the client query, the original Host and forwarding headers.
func rewrite(pr *httputil.ProxyRequest) {
	state := stateFrom(pr.In.Context())

	setEscapedPath(pr.Out.URL, state.match.Path)
	pr.SetURL(state.target)
	pr.Out.Host = pr.In.Host

	if prior, ok := pr.In.Header["X-Forwarded-For"]; ok {
		pr.Out.Header["X-Forwarded-For"] = prior
	}

	pr.SetXForwarded()

	pr.Out.Header.Set(HeaderRequestID, state.requestID)
	pr.Out.Header.Set(HeaderOriginalURI, pr.In.URL.RequestURI())
}

// setEscapedPath sets u's path from an escaped path without re-encoding it.
func setEscapedPath(u *url.URL, escaped string) {
	path, err := url.PathUnescape(escaped)
	if err != nil {
		u.Path = escaped
		u.RawPath = ""

		return
	}

	u.Path = path
	u.RawPath = escaped
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	state := stateFrom(r.Context())

	var (
		backendName string
		requestID   string
	)

	if state != nil {
		state.failed = true
		backendName = state.match.Backend.String()
		requestID = state.requestID
	}

	errorType := metrics.ClassifyProxyError(err)
	h.metrics.RecordProxyError(r.Context(), backendName, errorType)

	h.logger.Warn("backend request failed",
		"request_id", requestID,
		"backend", backendName,
		"error_type", errorType,
		"error", err.Error(),
	)

	resp := NewError(http.StatusBadGateway)
	if errors.Is(err, context.DeadlineExceeded) || errorType == metrics.ErrorTypeTimeout {
		resp = NewError(http.StatusGatewayTimeout)
	}

	resp.WithRequestID(requestID).WriteJSON(w)
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter

	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
