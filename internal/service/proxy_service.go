// Package service implements the Proxy Service (C5): the single
// handle(frame) operation every frontend adapter drives, plus the Session
// that owns one Backend Connector and one IdTranslator for the lifetime of
// a client↔server relationship.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpbridge/mcpbridge/internal/domain/idtranslate"
	"github.com/mcpbridge/mcpbridge/internal/mcperr"
	"github.com/mcpbridge/mcpbridge/internal/port/inbound"
	"github.com/mcpbridge/mcpbridge/internal/port/outbound"
	"github.com/mcpbridge/mcpbridge/pkg/mcp"
)

// DefaultRequestTimeout bounds how long the Proxy Service waits for a
// backend reply before synthesizing a timeout response to the client.
const DefaultRequestTimeout = 60 * time.Second

// DefaultMaxRequestSize bounds a single client-originated frame.
const DefaultMaxRequestSize = 10 << 20

// ProxyService is the default inbound.ProxyService implementation. One
// instance is created per Session.
type ProxyService struct {
	connector  outbound.BackendConnector
	translator *idtranslate.Translator
	reverse    *idtranslate.Translator // tracks server-initiated (reverse) requests by server-issued id
	logger     *slog.Logger

	requestTimeout time.Duration
	maxRequestSize int

	reapStop chan struct{}
	reapDone chan struct{}

	closeOnce sync.Once
}

// Option configures a ProxyService.
type Option func(*ProxyService)

// WithRequestTimeout overrides DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(p *ProxyService) { p.requestTimeout = d }
}

// WithMaxRequestSize overrides DefaultMaxRequestSize.
func WithMaxRequestSize(n int) Option {
	return func(p *ProxyService) { p.maxRequestSize = n }
}

// New constructs a ProxyService bound to one backend connector and starts
// its TTL reaper. The caller is responsible for driving connector.Run in
// its own goroutine.
func New(connector outbound.BackendConnector, logger *slog.Logger, opts ...Option) *ProxyService {
	p := &ProxyService{
		connector:      connector,
		logger:         logger,
		requestTimeout: DefaultRequestTimeout,
		maxRequestSize: DefaultMaxRequestSize,
		reapStop:       make(chan struct{}),
		reapDone:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	ttl := p.requestTimeout + 5*time.Second
	p.translator = idtranslate.New(ttl, "p-")
	p.reverse = idtranslate.New(ttl, "r-")

	go p.reapLoop()

	return p
}

// HandleRequest implements the request lifecycle: intake, rewrite id,
// forward, await-with-timeout, resolve-or-fail.
func (p *ProxyService) HandleRequest(ctx context.Context, req *mcp.Request) *mcp.Response {
	clientID := req.ID

	sink := make(chan *mcp.Response, 1)
	backendID, ok := p.translator.IntakeIfAbsent(clientID, sink)
	if !ok {
		return mcp.NewErrorResponse(clientID, mcperr.ErrDuplicateID.Code, mcperr.ErrDuplicateID.Message)
	}

	rewritten := *req
	rewritten.ID = backendID

	replyCh, err := p.connector.SendRequest(ctx, &rewritten)
	if err != nil {
		p.translator.Resolve(backendID)
		return mcp.NewErrorResponse(clientID, mcperr.CodeOf(err), mcperr.SafeMessage(err))
	}

	timer := time.NewTimer(p.requestTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-replyCh:
		p.translator.Resolve(backendID)
		if !ok {
			return mcp.NewErrorResponse(clientID, mcp.CodeInternalError, mcperr.SafeMessage(mcperr.ErrConnectionClosed))
		}
		out := *resp
		out.ID = clientID
		return &out
	case resp := <-sink:
		// The reaper or Close already removed the mapping and synthesized
		// this failure with the client's id.
		return resp
	case <-timer.C:
		p.translator.Resolve(backendID)
		return mcp.NewErrorResponse(clientID, mcp.CodeRequestTimeout, "request timeout")
	case <-ctx.Done():
		p.translator.Resolve(backendID)
		return mcp.NewErrorResponse(clientID, mcp.CodeInternalError, mcperr.SafeMessage(mcperr.ErrConnectionClosed))
	}
}

// HandleNotification forwards a client notification with no id rewrite.
func (p *ProxyService) HandleNotification(ctx context.Context, notif *mcp.Request) error {
	return p.connector.SendNotification(ctx, notif)
}

// HandleMalformed synthesizes a parse-error response for a frame that
// failed to decode, preserving whatever raw id bytes could be recovered.
func (p *ProxyService) HandleMalformed(rawID mcp.RequestID) *mcp.Response {
	return mcp.NewErrorResponse(rawID, mcp.CodeParseError, "parse error")
}

// HandleSized enforces the request-size bound ahead of HandleRequest,
// returning an error response directly when the frame is oversized.
func (p *ProxyService) HandleSized(raw []byte, id mcp.RequestID) *mcp.Response {
	if len(raw) > p.maxRequestSize {
		return mcp.NewErrorResponse(id, mcp.CodeInvalidRequest, "request exceeds maximum size")
	}
	return nil
}

// Notifications exposes the backend connector's notification channel to
// the frontend adapter driving this session.
func (p *ProxyService) Notifications() <-chan *mcp.Request {
	return p.connector.Notifications()
}

// ReverseRequests exposes the backend connector's reverse-request channel.
// ResolveReverseResponse must be called with the client's eventual answer.
func (p *ProxyService) ReverseRequests() <-chan *mcp.Request {
	return p.connector.ReverseRequests()
}

// IntakeReverseRequest registers a server-initiated request with the
// reverse translator and returns the id to present to the frontend client,
// symmetric to HandleRequest's client-facing intake.
func (p *ProxyService) IntakeReverseRequest(serverID mcp.RequestID) mcp.RequestID {
	sink := make(chan *mcp.Response, 1)
	return p.reverse.Intake(serverID, sink)
}

// ResolveReverseResponse looks up the original server-issued id for a
// client's answer to a reverse request and forwards it to the backend with
// that id restored.
func (p *ProxyService) ResolveReverseResponse(ctx context.Context, clientFacingID mcp.RequestID, resp *mcp.Response) error {
	m, ok := p.reverse.Resolve(clientFacingID)
	if !ok {
		if p.logger != nil {
			p.logger.WarnContext(ctx, "reverse response with unknown id, dropping", "id", clientFacingID.String())
		}
		return nil
	}
	out := *resp
	out.ID = m.ClientID
	return p.connector.SendResponse(ctx, &out)
}

func (p *ProxyService) reapLoop() {
	defer close(p.reapDone)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			for _, m := range p.translator.Reap(now) {
				m.Sink <- mcp.NewErrorResponse(m.ClientID, mcp.CodeRequestTimeout, "request timeout")
			}
			for _, m := range p.reverse.Reap(now) {
				close(m.Sink)
			}
		case <-p.reapStop:
			return
		}
	}
}

// Close tears down the session: stops the reaper, resolves every
// outstanding mapping with ConnectionClosed, and closes the backend
// connector.
func (p *ProxyService) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.reapStop)
		<-p.reapDone

		for _, m := range p.translator.DrainAll() {
			m.Sink <- mcp.NewErrorResponse(m.ClientID, mcp.CodeInternalError, mcperr.SafeMessage(mcperr.ErrConnectionClosed))
		}
		for _, m := range p.reverse.DrainAll() {
			close(m.Sink)
		}

		err = p.connector.Close()
	})
	return err
}

var _ inbound.ProxyService = (*ProxyService)(nil)
