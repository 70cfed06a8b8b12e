// Package outbound defines the outbound port interfaces used by the proxy
// core to reach a backend MCP server: the raw byte-level Transport (C1) and
// the BackendConnector built on top of it (C2).
package outbound

import (
	"context"

	"github.com/mcpbridge/mcpbridge/pkg/mcp"
)

// Transport is the capability set every transport adapter implements:
// send_message, receive_message, close, is_connected. All adapters
// guarantee the newline/frame-per-message framing invariant and apply
// back-pressure by blocking Send until the underlying channel accepts the
// write.
type Transport interface {
	// Send writes one message frame. Blocks under back-pressure; returns
	// TransportClosed if the connection is gone, MessageTooLarge if the
	// encoded frame exceeds the configured limit.
	Send(ctx context.Context, raw []byte) error

	// Receive blocks until the next frame arrives, the transport closes, or
	// ctx is cancelled. Returns FramingError if the payload isn't valid
	// JSON-RPC-shaped JSON.
	Receive(ctx context.Context) ([]byte, error)

	// Close is idempotent and releases the underlying connection.
	Close() error

	// IsConnected reports whether the transport believes it still has a
	// live connection. It is best-effort; Send/Receive are authoritative.
	IsConnected() bool
}

// BackendConnector owns one Transport and layers request/response
// correlation, a notification sink, and a reverse (server-initiated
// request) channel on top of it.
type BackendConnector interface {
	// SendRequest serializes req (after the Proxy Service has already
	// rewritten its id to a backend id), writes it, and returns a channel
	// that receives exactly one *mcp.Response when the matching reply
	// arrives, or is closed without a value if the connector shuts down
	// first.
	SendRequest(ctx context.Context, req *mcp.Request) (<-chan *mcp.Response, error)

	// SendNotification writes a notification with no id rewrite and no
	// correlation bookkeeping.
	SendNotification(ctx context.Context, notif *mcp.Request) error

	// SendResponse writes a response with no correlation bookkeeping, used
	// to answer a server-initiated reverse request (e.g. sampling) once the
	// frontend client has supplied its answer.
	SendResponse(ctx context.Context, resp *mcp.Response) error

	// Notifications returns the channel on which inbound backend
	// notifications are delivered in arrival order.
	Notifications() <-chan *mcp.Request

	// ReverseRequests returns the channel on which unexpected
	// server-initiated requests (e.g. sampling) are delivered.
	ReverseRequests() <-chan *mcp.Request

	// Run starts the background read loop. It blocks until ctx is
	// cancelled or the transport closes, at which point every in-flight
	// waiter is resolved with a ConnectionClosed error.
	Run(ctx context.Context) error

	// Close shuts down the connector and its underlying transport.
	Close() error
}
