// Package frontend implements the frontend-side Transport Adapters (C1,
// inbound direction): the listening/accepting half that speaks to MCP
// clients and drives a Proxy Service, one file per TransportKind.
package frontend

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/mcpbridge/mcpbridge/internal/port/inbound"
	"github.com/mcpbridge/mcpbridge/pkg/mcp"
)

// maxLineSize bounds a single newline-framed line read from a frontend
// client, independent of the Proxy Service's own request-size guard, so a
// pathological client can't exhaust the scanner's internal buffer.
const maxLineSize = 32 << 20

// runLineSession drives one newline-delimited-JSON client connection
// (Stdio/Tcp/Unix) against proxy until reading r ends (end of input or a
// read error) or writing an immediate error response fails, then waits for
// its in-flight requests to be answered before returning. Cancelling ctx
// cancels those requests but does not interrupt a blocked read of r.
// Each client request is dispatched to its own
// goroutine so multiple requests can be in flight at once, matching the
// Proxy Service's AwaitingReply state machine; notifications and
// reverse requests are interleaved onto the same writer under a mutex.
func runLineSession(ctx context.Context, proxy inbound.ProxyService, r io.Reader, w io.Writer, logger *slog.Logger) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeMu sync.Mutex
	write := func(raw []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if _, err := w.Write(raw); err != nil {
			return err
		}
		_, err := w.Write([]byte("\n"))
		return err
	}

	var wg sync.WaitGroup

	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		forwardReverseTraffic(sessionCtx, proxy, write, logger)
	}()
	defer func() { cancel(); <-forwardDone }()
	defer wg.Wait()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimRight(scanner.Bytes(), "\r")
		if len(line) == 0 {
			continue
		}
		raw := append([]byte(nil), line...)

		decoded, err := mcp.Decode(raw)
		if err != nil {
			resp := proxy.HandleMalformed(mcp.NewRequestID(rawID(raw)))
			if werr := writeResponse(write, resp); werr != nil {
				return werr
			}
			continue
		}

		switch m := decoded.(type) {
		case *mcp.Request:
			if m.IsNotification() {
				if err := proxy.HandleNotification(sessionCtx, m); err != nil && logger != nil {
					logger.WarnContext(sessionCtx, "frontend notification forward failed", "error", err)
				}
				continue
			}
			if sized := proxy.HandleSized(raw, m.ID); sized != nil {
				if werr := writeResponse(write, sized); werr != nil {
					return werr
				}
				continue
			}
			wg.Add(1)
			go func(req *mcp.Request) {
				defer wg.Done()
				resp := proxy.HandleRequest(sessionCtx, req)
				if werr := writeResponse(write, resp); werr != nil && logger != nil {
					logger.DebugContext(sessionCtx, "frontend write failed", "error", werr)
				}
			}(m)
		case *mcp.Response:
			if err := proxy.ResolveReverseResponse(sessionCtx, m.ID, m); err != nil && logger != nil {
				logger.WarnContext(sessionCtx, "reverse response resolution failed", "error", err)
			}
		}
	}

	return scanner.Err()
}

func forwardReverseTraffic(ctx context.Context, proxy inbound.ProxyService, write func([]byte) error, logger *slog.Logger) {
	notifications := proxy.Notifications()
	reverse := proxy.ReverseRequests()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			raw, err := mcp.Encode(n)
			if err != nil {
				continue
			}
			if err := write(raw); err != nil {
				return
			}
		case rr, ok := <-reverse:
			if !ok {
				return
			}
			clientFacing := proxy.IntakeReverseRequest(rr.ID)
			rewritten := *rr
			rewritten.ID = clientFacing
			raw, err := mcp.Encode(&rewritten)
			if err != nil {
				continue
			}
			if err := write(raw); err != nil {
				return
			}
			_ = logger
		}
	}
}

func writeResponse(write func([]byte) error, resp *mcp.Response) error {
	if resp == nil {
		return nil
	}
	raw, err := mcp.Encode(resp)
	if err != nil {
		return err
	}
	return write(raw)
}

// rawID extracts the "id" field from a line that failed structural
// decoding, so HandleMalformed can still answer with the client's original
// id shape intact.
func rawID(raw []byte) []byte {
	msg, _ := mcp.WrapMessage(raw, mcp.ClientToServer)
	return msg.RawID()
}
