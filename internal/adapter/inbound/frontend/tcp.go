package frontend

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mcpbridge/mcpbridge/internal/port/inbound"
)

// TcpFrontend accepts newline-delimited-JSON connections on a bound TCP
// listener. Each accepted connection runs its own session concurrently;
// one Session per connection shares the Proxy Service instance it was
// constructed with (a single upstream backend; no multi-backend routing).
type TcpFrontend struct {
	bindAddr string
	logger   *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

// NewTcpFrontend constructs a TcpFrontend bound to addr once Serve is
// called.
func NewTcpFrontend(bindAddr string, logger *slog.Logger) *TcpFrontend {
	return &TcpFrontend{bindAddr: bindAddr, logger: logger}
}

// Serve listens on bindAddr and accepts connections until ctx is
// cancelled or Close is called. It then stops reading from the open
// connections and returns once their in-flight requests are answered.
func (f *TcpFrontend) Serve(ctx context.Context, proxy inbound.ProxyService) error {
	ln, err := net.Listen("tcp", f.bindAddr)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.listener = ln
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = f.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	// Once accepting stops, reads on open connections are unblocked too,
	// so each session ends after answering its in-flight requests.
	stopReading, stop := context.WithCancel(context.Background())
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if f.isClosed() {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			defer context.AfterFunc(stopReading, func() { _ = c.SetReadDeadline(time.Now()) })()
			if err := runLineSession(ctx, proxy, c, c, f.logger); err != nil && f.logger != nil {
				f.logger.DebugContext(ctx, "tcp frontend session ended", "error", err)
			}
		}(conn)
	}
}

func (f *TcpFrontend) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Close stops accepting new connections. It is idempotent.
func (f *TcpFrontend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if f.listener == nil {
		return nil
	}
	err := f.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

var _ inbound.FrontendServer = (*TcpFrontend)(nil)
