package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcpbridge/mcpbridge/internal/domain/policy"
	"github.com/mcpbridge/mcpbridge/internal/mcperr"
)

// WebSocketTransport frames one JSON-RPC message per text frame.
type WebSocketTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// DialWebSocket validates endpoint against hostPolicy, then performs the
// WebSocket handshake with an optional bearer token in the Authorization
// header.
func DialWebSocket(ctx context.Context, hostPolicy *policy.HostPolicy, endpoint, bearer string, connectTimeout time.Duration) (*WebSocketTransport, error) {
	if _, err := hostPolicy.ValidateURL(httpEquivalent(endpoint)); err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: connectTimeout,
		NetDialContext:   hostPolicy.SafeDialContext(connectTimeout),
	}

	header := http.Header{}
	if bearer != "" {
		header.Set("Authorization", "Bearer "+bearer)
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("transport: websocket dial %q: %w", endpoint, err)
	}

	return &WebSocketTransport{conn: conn}, nil
}

// httpEquivalent rewrites a ws(s):// URL to http(s):// so the shared
// HostPolicy.ValidateURL scheme check applies unchanged.
func httpEquivalent(endpoint string) string {
	switch {
	case len(endpoint) >= 6 && endpoint[:6] == "wss://":
		return "https://" + endpoint[6:]
	case len(endpoint) >= 5 && endpoint[:5] == "ws://":
		return "http://" + endpoint[5:]
	default:
		return endpoint
	}
}

func (t *WebSocketTransport) Send(ctx context.Context, raw []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return mcperr.Wrap(mcperr.KindTransportClosed, 0, "transport: websocket write failed", err)
	}
	return nil
}

func (t *WebSocketTransport) Receive(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
	}
	msgType, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, mcperr.Wrap(mcperr.KindTransportClosed, 0, "transport: websocket read failed", err)
	}
	if msgType != websocket.TextMessage {
		return nil, mcperr.Wrap(mcperr.KindFramingError, 0, "transport: unexpected websocket frame type", nil)
	}
	return data, nil
}

func (t *WebSocketTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return t.conn.Close()
}

func (t *WebSocketTransport) IsConnected() bool {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	return !t.closed
}
