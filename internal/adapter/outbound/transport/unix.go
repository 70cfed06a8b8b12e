package transport

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/mcpbridge/mcpbridge/internal/domain/policy"
)

// UnixTransport frames newline-delimited JSON over a Unix domain socket.
type UnixTransport struct {
	*lineTransport
}

// DialUnix canonicalizes socketPath against root (the approved socket
// directory) before connecting, rejecting any path that escapes it.
func DialUnix(ctx context.Context, socketPath, root string, connectTimeout time.Duration) (*UnixTransport, error) {
	resolved, err := policy.CanonicalizePath(socketPath, root)
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, "unix", resolved)
	if err != nil {
		return nil, fmt.Errorf("transport: unix dial %q: %w", filepath.Clean(socketPath), err)
	}

	return &UnixTransport{lineTransport: newLineTransport(conn, DefaultMaxFrameSize)}, nil
}
