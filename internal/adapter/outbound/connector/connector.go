// Package connector implements the Backend Connector (C2): one Transport
// Adapter plus request/response correlation, a notification sink, and a
// reverse (server-initiated request) channel.
package connector

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mcpbridge/mcpbridge/internal/mcperr"
	"github.com/mcpbridge/mcpbridge/internal/port/outbound"
	"github.com/mcpbridge/mcpbridge/pkg/mcp"
)

// DefaultMaxInFlight bounds the connector's own backend_id -> waiter table,
// independent of (and downstream from) the Proxy Service's IdTranslator.
const DefaultMaxInFlight = 10000

// Connector is the default outbound.BackendConnector implementation.
type Connector struct {
	transport outbound.Transport
	logger    *slog.Logger
	maxInFlight int

	mu       sync.Mutex
	waiters  map[string]chan *mcp.Response
	closed   bool

	notifications   chan *mcp.Request
	reverseRequests chan *mcp.Request
}

// New wraps transport as a BackendConnector.
func New(transport outbound.Transport, logger *slog.Logger) *Connector {
	return &Connector{
		transport:       transport,
		logger:          logger,
		maxInFlight:     DefaultMaxInFlight,
		waiters:         make(map[string]chan *mcp.Response),
		notifications:   make(chan *mcp.Request, 256),
		reverseRequests: make(chan *mcp.Request, 64),
	}
}

// WithMaxInFlight overrides DefaultMaxInFlight.
func (c *Connector) WithMaxInFlight(n int) *Connector {
	c.maxInFlight = n
	return c
}

func (c *Connector) SendRequest(ctx context.Context, req *mcp.Request) (<-chan *mcp.Response, error) {
	ch := make(chan *mcp.Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, mcperr.ErrConnectionClosed
	}
	if len(c.waiters) >= c.maxInFlight {
		c.mu.Unlock()
		return nil, mcperr.ErrTooManyInFlight
	}
	c.waiters[req.ID.Key()] = ch
	c.mu.Unlock()

	raw, err := mcp.Encode(req)
	if err != nil {
		c.removeWaiter(req.ID.Key())
		return nil, err
	}

	if err := c.transport.Send(ctx, raw); err != nil {
		c.removeWaiter(req.ID.Key())
		return nil, err
	}

	return ch, nil
}

func (c *Connector) SendNotification(ctx context.Context, notif *mcp.Request) error {
	raw, err := mcp.Encode(notif)
	if err != nil {
		return err
	}
	return c.transport.Send(ctx, raw)
}

func (c *Connector) SendResponse(ctx context.Context, resp *mcp.Response) error {
	raw, err := mcp.Encode(resp)
	if err != nil {
		return err
	}
	return c.transport.Send(ctx, raw)
}

func (c *Connector) Notifications() <-chan *mcp.Request {
	return c.notifications
}

func (c *Connector) ReverseRequests() <-chan *mcp.Request {
	return c.reverseRequests
}

// Run drives the background read loop until ctx is cancelled or the
// transport closes. On exit, every in-flight waiter is resolved by being
// closed with no value, which callers interpret as ConnectionClosed.
func (c *Connector) Run(ctx context.Context) error {
	defer c.drainWaiters()
	defer close(c.notifications)
	defer close(c.reverseRequests)

	for {
		raw, err := c.transport.Receive(ctx)
		if err != nil {
			if c.logger != nil {
				c.logger.DebugContext(ctx, "backend read loop exiting", "error", err)
			}
			return err
		}

		decoded, err := mcp.Decode(raw)
		if err != nil {
			if c.logger != nil {
				c.logger.WarnContext(ctx, "backend sent unparseable frame, dropping", "error", err)
			}
			continue
		}

		switch m := decoded.(type) {
		case *mcp.Response:
			c.dispatchResponse(ctx, m)
		case *mcp.Request:
			if m.IsNotification() {
				select {
				case c.notifications <- m:
				case <-ctx.Done():
					return ctx.Err()
				}
			} else {
				select {
				case c.reverseRequests <- m:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func (c *Connector) dispatchResponse(ctx context.Context, resp *mcp.Response) {
	key := resp.ID.Key()

	c.mu.Lock()
	ch, ok := c.waiters[key]
	if ok {
		delete(c.waiters, key)
	}
	c.mu.Unlock()

	if !ok {
		if c.logger != nil {
			c.logger.WarnContext(ctx, "backend response with unknown id, dropping", "id", resp.ID.String())
		}
		return
	}

	ch <- resp
}

func (c *Connector) removeWaiter(key string) {
	c.mu.Lock()
	delete(c.waiters, key)
	c.mu.Unlock()
}

func (c *Connector) drainWaiters() {
	c.mu.Lock()
	c.closed = true
	waiters := c.waiters
	c.waiters = make(map[string]chan *mcp.Response)
	c.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}

func (c *Connector) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.transport.Close()
}

var _ outbound.BackendConnector = (*Connector)(nil)
