package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/mcpbridge/mcpbridge/internal/domain/policy"
)

// TcpTransport frames newline-delimited JSON over a plain TCP connection.
type TcpTransport struct {
	*lineTransport
}

// DialTcp validates hostPort against hostPolicy and connects with a
// DNS-rebinding-resistant dialer, pinning the resolved IP between the
// safety check and the connection attempt.
func DialTcp(ctx context.Context, hostPolicy *policy.HostPolicy, hostPort string, connectTimeout time.Duration) (*TcpTransport, error) {
	host, port, err := hostPolicy.ValidateHostPort(hostPort)
	if err != nil {
		return nil, err
	}

	dial := hostPolicy.SafeDialContext(connectTimeout)
	conn, err := dial(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("transport: tcp dial %q: %w", hostPort, err)
	}

	return &TcpTransport{lineTransport: newLineTransport(conn, DefaultMaxFrameSize)}, nil
}
