package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcpbridge/mcpbridge/internal/adapter/inbound/frontend"
	"github.com/mcpbridge/mcpbridge/internal/adapter/outbound/connector"
	"github.com/mcpbridge/mcpbridge/internal/adapter/outbound/transport"
	"github.com/mcpbridge/mcpbridge/internal/auth"
	"github.com/mcpbridge/mcpbridge/internal/domain/introspect"
	"github.com/mcpbridge/mcpbridge/internal/domain/policy"
	"github.com/mcpbridge/mcpbridge/internal/metrics"
	"github.com/mcpbridge/mcpbridge/internal/port/inbound"
	"github.com/mcpbridge/mcpbridge/internal/port/outbound"
	"github.com/mcpbridge/mcpbridge/internal/service"
	"github.com/mcpbridge/mcpbridge/pkg/serverspec"
)

// ClientName/ClientVersion identify this proxy to a backend during
// initialize.
const (
	ClientName    = "mcpbridge"
	ClientVersion = "0.1.0"
	protocolVer   = "2025-06-18"
)

// Orchestrator is C7: it dials a backend transport from a built Config and
// either drives a one-shot introspection (run_inspect) or stands up a
// frontend listener against a live Proxy Service (run_serve).
type Orchestrator struct {
	cfg    *Config
	logger *slog.Logger
}

// NewOrchestrator builds an Orchestrator over cfg.
func NewOrchestrator(cfg *Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, logger: logger}
}

func (o *Orchestrator) hostPolicy() *policy.HostPolicy {
	return policy.NewHostPolicy(o.cfg.AllowPrivateHosts)
}

// dialBackend opens the Transport named by cfg.Backend.Kind.
func (o *Orchestrator) dialBackend(ctx context.Context) (outbound.Transport, error) {
	b := o.cfg.Backend
	switch b.Kind {
	case KindStdio:
		allowlist := policy.NewCommandAllowlist(o.cfg.CommandAllowlist, o.cfg.PermissiveCommand)
		return transport.NewStdioTransport(ctx, allowlist, b.Stdio.Command, b.Stdio.Args, b.Stdio.ExtraEnvKeys)
	case KindTcp:
		hostPort := fmt.Sprintf("%s:%d", b.Tcp.Host, b.Tcp.Port)
		return transport.DialTcp(ctx, o.hostPolicy(), hostPort, o.cfg.ConnectTimeout)
	case KindUnix:
		return transport.DialUnix(ctx, b.Unix.Path, b.Unix.Root, o.cfg.ConnectTimeout)
	case KindHttp:
		return transport.NewHttpTransport(ctx, o.hostPolicy(), b.Http.URL, b.Http.BearerToken.Reveal(), o.cfg.ConnectTimeout)
	case KindWebSocket:
		return transport.DialWebSocket(ctx, o.hostPolicy(), b.WebSocket.URL, b.WebSocket.BearerToken.Reveal(), o.cfg.ConnectTimeout)
	default:
		return nil, fmt.Errorf("config: unknown backend kind %q", b.Kind)
	}
}

// RunInspect dials the backend, runs the initialize/list handshake, and
// returns the resulting ServerSpec. The backend connection is closed
// before returning.
func (o *Orchestrator) RunInspect(ctx context.Context) (*serverspec.ServerSpec, error) {
	tr, err := o.dialBackend(ctx)
	if err != nil {
		return nil, fmt.Errorf("config: dial backend: %w", err)
	}

	conn := connector.New(tr, o.logger)
	runDone := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { runDone <- conn.Run(runCtx) }()
	defer func() {
		_ = conn.Close()
		cancel()
		<-runDone
	}()

	inspector := introspect.New(
		conn,
		introspect.ClientInfo{Name: ClientName, Version: ClientVersion},
		protocolVer,
		o.logger,
		introspect.WithTimeout(o.cfg.IntrospectBudget),
	)

	return inspector.Introspect(ctx)
}

// RunServe dials the backend, stands up the configured frontend listener,
// and blocks until ctx is cancelled, then drains in-flight requests for up
// to cfg.ShutdownGrace before returning.
func (o *Orchestrator) RunServe(ctx context.Context) error {
	if o.cfg.Frontend == nil {
		return errors.New("config: run_serve requires a configured frontend")
	}

	tr, err := o.dialBackend(ctx)
	if err != nil {
		return fmt.Errorf("config: dial backend: %w", err)
	}

	conn := connector.New(tr, o.logger)
	// serveCtx outlives ctx so in-flight requests and the connector keep
	// running through the shutdown grace period; cancel ends them.
	serveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	connectorDone := make(chan error, 1)
	go func() { connectorDone <- conn.Run(serveCtx) }()

	proxy := service.New(
		conn,
		o.logger,
		service.WithRequestTimeout(o.cfg.RequestTimeout),
		service.WithMaxRequestSize(o.cfg.MaxRequestSize),
	)

	server, err := o.buildFrontend()
	if err != nil {
		cancel()
		_ = conn.Close()
		<-connectorDone
		return err
	}

	serveDone := make(chan error, 1)
	go func() { serveDone <- server.Serve(serveCtx, proxy) }()

	select {
	case <-ctx.Done():
	case err := <-serveDone:
		cancel()
		_ = proxy.Close()
		_ = conn.Close()
		<-connectorDone
		return err
	}

	// Graceful shutdown: stop accepting new frontend work, then give
	// in-flight requests ShutdownGrace to finish before tearing the
	// backend connection down.
	_ = server.Close()
	grace := o.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	select {
	case <-serveDone:
	case <-time.After(grace):
	}

	cancel()
	_ = proxy.Close()
	_ = conn.Close()
	<-connectorDone
	return nil
}

// buildFrontend constructs the concrete frontend adapter named by
// cfg.Frontend.Kind, wiring auth/metrics for the Http variant.
func (o *Orchestrator) buildFrontend() (inbound.FrontendServer, error) {
	fc := o.cfg.Frontend
	switch fc.Kind {
	case KindStdio:
		return frontend.NewStdioFrontend(o.logger), nil
	case KindTcp:
		o.warnIfUnauthenticatedNonLoopback(fc.Tcp.BindAddr, false)
		return frontend.NewTcpFrontend(fc.Tcp.BindAddr, o.logger), nil
	case KindUnix:
		return frontend.NewUnixFrontend(fc.Unix.Path, fc.Unix.Root, o.logger), nil
	case KindWebSocket:
		o.warnIfUnauthenticatedNonLoopback(fc.WebSocket.BindAddr, false)
		return frontend.NewWebSocketFrontend(fc.WebSocket.BindAddr, fc.WebSocket.Path, o.logger), nil
	case KindHttp:
		reg := prometheus.NewRegistry()
		opts := []frontend.Option{
			frontend.WithMetrics(metrics.New(reg)),
			frontend.WithPrometheusGatherer(reg),
		}
		authenticated := o.cfg.Jwt != nil || o.cfg.ApiKey != nil
		if o.cfg.Jwt != nil {
			opts = append(opts, frontend.WithJwtValidator(auth.NewJwtValidator(o.cfg.Jwt.Secret, o.cfg.Jwt.Issuer, o.cfg.Jwt.Audience)))
		}
		if o.cfg.ApiKey != nil {
			opts = append(opts, frontend.WithApiKeyValidator(auth.NewApiKeyValidator(o.cfg.ApiKey.HeaderName, o.cfg.ApiKey.KeyHashes)))
		}
		o.warnIfUnauthenticatedNonLoopback(fc.Http.BindAddr, authenticated)
		return frontend.NewHttpFrontend(fc.Http.BindAddr, fc.Http.EndpointPath, fc.Http.AllowedOrigins, o.logger, opts...), nil
	default:
		return nil, fmt.Errorf("config: unknown frontend kind %q", fc.Kind)
	}
}

// warnIfUnauthenticatedNonLoopback logs a startup warning when a network
// frontend binds to a non-loopback address with no auth validator
// configured, since traffic on that listener is then reachable from outside
// this host with no credential check at all.
func (o *Orchestrator) warnIfUnauthenticatedNonLoopback(bindAddr string, authenticated bool) {
	if authenticated || o.logger == nil {
		return
	}
	if isLoopbackBindAddr(bindAddr) {
		return
	}
	o.logger.Warn("frontend is binding to a non-loopback address without authentication",
		"bind_addr", bindAddr)
}

// isLoopbackBindAddr reports whether addr (a "host:port" bind address) names
// a loopback host. An addr with no resolvable host part (parse failure, or a
// bare ":port" meaning "all interfaces") is treated as non-loopback, since
// that's the more dangerous default to assume.
func isLoopbackBindAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
