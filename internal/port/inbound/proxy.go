// Package inbound defines the inbound port interfaces: the Proxy Service
// (C5) that frontend adapters call into, and the FrontendServer shape every
// concrete frontend transport implements.
package inbound

import (
	"context"

	"github.com/mcpbridge/mcpbridge/pkg/mcp"
)

// ProxyService is the single operation C5 exposes to every frontend
// adapter: handle one decoded frame and get back the frame to send in
// reply, if any (a Notification produces no reply).
type ProxyService interface {
	// HandleRequest processes a client-originated JSON-RPC request and
	// returns the response to deliver to that same client.
	HandleRequest(ctx context.Context, req *mcp.Request) *mcp.Response

	// HandleNotification forwards a client-originated notification to the
	// backend with no id rewrite and no reply expected.
	HandleNotification(ctx context.Context, notif *mcp.Request) error

	// HandleMalformed synthesizes a JSON-RPC parse-error response for a
	// frame that failed to decode at all, preserving whatever raw id bytes
	// could still be extracted.
	HandleMalformed(rawID mcp.RequestID) *mcp.Response

	// HandleSized enforces the request-size bound ahead of HandleRequest,
	// returning a ready-to-send error response when raw is oversized, or
	// nil when the frame is within bounds.
	HandleSized(raw []byte, id mcp.RequestID) *mcp.Response

	// Notifications exposes backend-originated notifications for the
	// frontend to forward to its client in arrival order.
	Notifications() <-chan *mcp.Request

	// ReverseRequests exposes server-initiated requests (e.g. sampling)
	// the frontend must forward to its client and answer via
	// ResolveReverseResponse once the client replies.
	ReverseRequests() <-chan *mcp.Request

	// IntakeReverseRequest registers a server-initiated request and
	// returns the id to present to the frontend client in its place.
	IntakeReverseRequest(serverID mcp.RequestID) mcp.RequestID

	// ResolveReverseResponse forwards the client's answer to a reverse
	// request back to the backend with the original server-issued id.
	ResolveReverseResponse(ctx context.Context, clientFacingID mcp.RequestID, resp *mcp.Response) error

	// Close tears down the session's IdTranslator and releases its backend
	// connector, resolving every outstanding mapping with ConnectionClosed.
	Close() error
}

// FrontendServer is the shape every concrete frontend transport adapter
// implements: accept client connections/frames and drive them through a
// ProxyService, blocking until ctx is cancelled or an unrecoverable error
// occurs.
type FrontendServer interface {
	Serve(ctx context.Context, proxy ProxyService) error
	Close() error
}
