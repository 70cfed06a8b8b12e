package frontend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcpbridge/mcpbridge/internal/auth"
	"github.com/mcpbridge/mcpbridge/internal/metrics"
	"github.com/mcpbridge/mcpbridge/internal/port/inbound"
	"github.com/mcpbridge/mcpbridge/pkg/mcp"
)

// protocolVersion is advertised on every response via MCP-Protocol-Version.
const protocolVersion = "2025-06-18"

// HttpFrontend serves the Streamable-HTTP MCP surface: POST for
// request/response, GET for a Server-Sent Events stream carrying
// server-initiated traffic, with CORS/Origin and auth enforcement.
type HttpFrontend struct {
	bindAddr       string
	endpointPath   string
	allowedOrigins []string
	jwt            *auth.JwtValidator
	apiKey         *auth.ApiKeyValidator
	logger         *slog.Logger
	metrics        *metrics.Metrics
	promGatherer   prometheus.Gatherer

	mu     sync.Mutex
	server *http.Server
	closed bool

	sseMu   sync.Mutex
	sseSubs map[chan []byte]struct{}
}

// Option configures an HttpFrontend.
type Option func(*HttpFrontend)

// WithJwtValidator attaches JWT bearer-token verification.
func WithJwtValidator(v *auth.JwtValidator) Option {
	return func(f *HttpFrontend) { f.jwt = v }
}

// WithApiKeyValidator attaches header-based API-key verification.
func WithApiKeyValidator(v *auth.ApiKeyValidator) Option {
	return func(f *HttpFrontend) { f.apiKey = v }
}

// WithMetrics attaches a Prometheus collector set for recording request
// counters/latency. Pair with WithPrometheusGatherer to also expose
// /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *HttpFrontend) { f.metrics = m }
}

// WithPrometheusGatherer exposes gatherer's collected metrics at /metrics.
func WithPrometheusGatherer(gatherer prometheus.Gatherer) Option {
	return func(f *HttpFrontend) { f.promGatherer = gatherer }
}

// NewHttpFrontend constructs an HttpFrontend bound to bindAddr, serving the
// MCP surface at endpointPath (default "/mcp").
func NewHttpFrontend(bindAddr, endpointPath string, allowedOrigins []string, logger *slog.Logger, opts ...Option) *HttpFrontend {
	if endpointPath == "" {
		endpointPath = "/mcp"
	}
	f := &HttpFrontend{
		bindAddr:       bindAddr,
		endpointPath:   endpointPath,
		allowedOrigins: allowedOrigins,
		logger:         logger,
		sseSubs:        make(map[chan []byte]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Serve binds bindAddr and serves until ctx is cancelled or Close is
// called.
func (f *HttpFrontend) Serve(ctx context.Context, proxy inbound.ProxyService) error {
	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		f.broadcastReverseTraffic(ctx, proxy)
	}()
	defer func() { <-forwardDone }()

	mux := http.NewServeMux()
	mux.HandleFunc(f.endpointPath, f.dnsRebindingProtect(f.authenticate(f.mcpHandler(proxy))))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if f.promGatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(f.promGatherer, promhttp.HandlerOpts{}))
	}

	srv := &http.Server{Addr: f.bindAddr, Handler: mux}
	f.mu.Lock()
	f.server = srv
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = f.Close()
	}()

	if f.logger != nil {
		f.logger.Info("http frontend listening", "addr", f.bindAddr, "path", f.endpointPath)
	}

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (f *HttpFrontend) mcpHandler(proxy inbound.ProxyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("MCP-Protocol-Version", protocolVersion)

		switch r.Method {
		case http.MethodOptions:
			f.handleOptions(w, r)
		case http.MethodGet:
			f.handleSSE(w, r)
		case http.MethodPost:
			f.handlePost(w, r, proxy)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (f *HttpFrontend) handleOptions(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin != "" && f.originAllowed(origin) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, MCP-Session-Id, X-API-Key")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *HttpFrontend) handlePost(w http.ResponseWriter, r *http.Request, proxy inbound.ProxyService) {
	sessionID := r.Header.Get("MCP-Session-Id")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	w.Header().Set("MCP-Session-Id", sessionID)

	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20+1))
	if err != nil {
		http.Error(w, "error reading body", http.StatusBadRequest)
		return
	}

	decoded, err := mcp.Decode(body)
	if err != nil {
		resp := proxy.HandleMalformed(mcp.NewRequestID(rawID(body)))
		f.writeJSON(w, http.StatusOK, resp)
		return
	}

	switch m := decoded.(type) {
	case *mcp.Request:
		if m.IsNotification() {
			_ = proxy.HandleNotification(r.Context(), m)
			w.WriteHeader(http.StatusAccepted)
			return
		}
		if sized := proxy.HandleSized(body, m.ID); sized != nil {
			f.writeJSON(w, http.StatusOK, sized)
			return
		}
		start := time.Now()
		resp := proxy.HandleRequest(r.Context(), m)
		if f.metrics != nil {
			status := "ok"
			if resp != nil && resp.Error != nil {
				status = "error"
			}
			f.metrics.RequestsTotal.WithLabelValues(m.Method, status).Inc()
			f.metrics.RequestDuration.WithLabelValues(m.Method).Observe(time.Since(start).Seconds())
		}
		f.writeJSON(w, http.StatusOK, resp)
	case *mcp.Response:
		if err := proxy.ResolveReverseResponse(r.Context(), m.ID, m); err != nil && f.logger != nil {
			f.logger.WarnContext(r.Context(), "reverse response resolution failed", "error", err)
		}
		w.WriteHeader(http.StatusAccepted)
	default:
		http.Error(w, "unrecognized message", http.StatusBadRequest)
	}
}

func (f *HttpFrontend) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := make(chan []byte, 64)
	f.sseMu.Lock()
	f.sseSubs[ch] = struct{}{}
	f.sseMu.Unlock()
	defer func() {
		f.sseMu.Lock()
		delete(f.sseSubs, ch)
		f.sseMu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", raw)
			flusher.Flush()
		}
	}
}

func (f *HttpFrontend) broadcastReverseTraffic(ctx context.Context, proxy inbound.ProxyService) {
	notifications := proxy.Notifications()
	reverse := proxy.ReverseRequests()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			f.broadcast(n)
		case rr, ok := <-reverse:
			if !ok {
				return
			}
			clientFacing := proxy.IntakeReverseRequest(rr.ID)
			rewritten := *rr
			rewritten.ID = clientFacing
			f.broadcast(&rewritten)
		}
	}
}

func (f *HttpFrontend) broadcast(v any) {
	raw, err := mcp.Encode(v)
	if err != nil {
		return
	}
	f.sseMu.Lock()
	defer f.sseMu.Unlock()
	for ch := range f.sseSubs {
		select {
		case ch <- raw:
		default:
		}
	}
}

// dnsRebindingProtect validates the Origin header against the allowlist. An
// empty allowlist blocks every request carrying an Origin header (local-only
// default deny); requests without an Origin header (same-origin or
// non-browser) are always allowed.
func (f *HttpFrontend) dnsRebindingProtect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || f.originAllowed(origin) {
			next(w, r)
			return
		}
		http.Error(w, "forbidden: origin not allowed", http.StatusForbidden)
	}
}

func (f *HttpFrontend) originAllowed(origin string) bool {
	for _, allowed := range f.allowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

// authenticate enforces the configured JWT or API-key validator, if any.
// With neither configured, every request passes (auth is opt-in).
func (f *HttpFrontend) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if f.jwt == nil && f.apiKey == nil {
			next(w, r)
			return
		}

		if f.jwt != nil {
			authz := r.Header.Get("Authorization")
			token := strings.TrimPrefix(authz, "Bearer ")
			if token != authz {
				if _, err := f.jwt.Validate(token); err == nil {
					next(w, r)
					return
				}
			}
		}

		if f.apiKey != nil {
			key := r.Header.Get(f.apiKey.HeaderName())
			if f.apiKey.Validate(key) {
				next(w, r)
				return
			}
		}

		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
}

func (f *HttpFrontend) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return
	}
	_, _ = w.Write(buf.Bytes())
}

// Close stops the listener and every open SSE stream. It is idempotent.
func (f *HttpFrontend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true

	f.sseMu.Lock()
	for ch := range f.sseSubs {
		close(ch)
	}
	f.sseSubs = make(map[chan []byte]struct{})
	f.sseMu.Unlock()

	if f.server == nil {
		return nil
	}
	return f.server.Close()
}

var _ inbound.FrontendServer = (*HttpFrontend)(nil)
