package frontend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mcpbridge/mcpbridge/internal/port/inbound"
	"github.com/mcpbridge/mcpbridge/pkg/mcp"
)

// WebSocketFrontend accepts one JSON-RPC message per text frame, using
// gorilla/websocket for the framed handshake and read/write, the same
// library the backend-side WebSocket adapter uses.
type WebSocketFrontend struct {
	bindAddr string
	path     string
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	server *http.Server
	closed bool
}

// NewWebSocketFrontend constructs a WebSocketFrontend bound to bindAddr,
// accepting upgrade requests on path (default "/" if empty).
func NewWebSocketFrontend(bindAddr, path string, logger *slog.Logger) *WebSocketFrontend {
	if path == "" {
		path = "/"
	}
	return &WebSocketFrontend{
		bindAddr: bindAddr,
		path:     path,
		logger:   logger,
		upgrader: websocket.Upgrader{
			// Deny-all for browser origins: only requests that carry no
			// Origin header are accepted; there is no option to allow
			// other origins.
			CheckOrigin: func(r *http.Request) bool { return r.Header.Get("Origin") == "" },
		},
	}
}

// Serve binds bindAddr and serves WebSocket upgrade requests until ctx is
// cancelled or Close is called.
func (f *WebSocketFrontend) Serve(ctx context.Context, proxy inbound.ProxyService) error {
	mux := http.NewServeMux()
	mux.HandleFunc(f.path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			if f.logger != nil {
				f.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
			}
			return
		}
		defer conn.Close()
		f.runSession(ctx, proxy, conn)
	})

	srv := &http.Server{Addr: f.bindAddr, Handler: mux}
	f.mu.Lock()
	f.server = srv
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = f.Close()
	}()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (f *WebSocketFrontend) runSession(ctx context.Context, proxy inbound.ProxyService, conn *websocket.Conn) {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeMu sync.Mutex
	write := func(raw []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, raw)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		forwardReverseTraffic(sessionCtx, proxy, write, f.logger)
	}()
	defer func() { cancel(); <-forwardDone }()

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		decoded, err := mcp.Decode(raw)
		if err != nil {
			resp := proxy.HandleMalformed(mcp.NewRequestID(rawID(raw)))
			if writeResponse(write, resp) != nil {
				return
			}
			continue
		}

		switch m := decoded.(type) {
		case *mcp.Request:
			if m.IsNotification() {
				_ = proxy.HandleNotification(sessionCtx, m)
				continue
			}
			if sized := proxy.HandleSized(raw, m.ID); sized != nil {
				if writeResponse(write, sized) != nil {
					return
				}
				continue
			}
			wg.Add(1)
			go func(req *mcp.Request) {
				defer wg.Done()
				resp := proxy.HandleRequest(sessionCtx, req)
				_ = writeResponse(write, resp)
			}(m)
		case *mcp.Response:
			_ = proxy.ResolveReverseResponse(sessionCtx, m.ID, m)
		}
	}
}

// Close stops the listener. It is idempotent.
func (f *WebSocketFrontend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if f.server == nil {
		return nil
	}
	return f.server.Close()
}

var _ inbound.FrontendServer = (*WebSocketFrontend)(nil)
