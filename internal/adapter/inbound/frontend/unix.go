package frontend

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/mcpbridge/mcpbridge/internal/domain/policy"
	"github.com/mcpbridge/mcpbridge/internal/port/inbound"
)

// UnixFrontend accepts newline-delimited-JSON connections on a bound Unix
// domain socket, canonicalized against root before binding.
type UnixFrontend struct {
	path   string
	root   string
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

// NewUnixFrontend constructs a UnixFrontend bound to path (a descendant of
// root) once Serve is called.
func NewUnixFrontend(path, root string, logger *slog.Logger) *UnixFrontend {
	return &UnixFrontend{path: path, root: root, logger: logger}
}

// Serve binds the Unix socket and accepts connections until ctx is
// cancelled or Close is called. It then stops reading from the open
// connections and returns once their in-flight requests are answered.
func (f *UnixFrontend) Serve(ctx context.Context, proxy inbound.ProxyService) error {
	resolved, err := policy.CanonicalizePath(f.path, f.root)
	if err != nil {
		return err
	}
	_ = os.Remove(resolved)

	ln, err := net.Listen("unix", resolved)
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
				f.logger.DebugContext(ctx, "unix frontend session ended", "error", err)
			}
		}(conn)
	}
}

func (f *UnixFrontend) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Close stops accepting new connections and removes the socket file. It is
// idempotent.
func (f *UnixFrontend) Close() error {
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

var _ inbound.FrontendServer = (*UnixFrontend)(nil)
