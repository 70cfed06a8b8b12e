// Package transport implements the concrete Transport Adapters (C1): one
// byte-channel per transport kind, each guaranteeing the newline/SSE-frame
// framing invariant and back-pressure on send.
package transport

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/mcpbridge/mcpbridge/internal/mcperr"
)

// DefaultMaxFrameSize bounds a single decoded frame for the line-delimited
// transports (Stdio, Tcp, Unix), mirroring the request/response body
// budgets of the policy layer.
const DefaultMaxFrameSize = 10 << 20

// lineTransport frames messages as newline-delimited JSON over an
// io.ReadWriteCloser, shared by Stdio, Tcp, and Unix, which all use the
// identical newline-delimited encoding.
type lineTransport struct {
	rwc         io.ReadWriteCloser
	scanner     *bufio.Scanner
	writeMu     sync.Mutex
	closeMu     sync.Mutex
	closed      bool
	maxFrame    int
	receiveChan chan receivedLine
	readOnce    sync.Once
}

type receivedLine struct {
	data []byte
	err  error
}

func newLineTransport(rwc io.ReadWriteCloser, maxFrame int) *lineTransport {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}
	scanner := bufio.NewScanner(rwc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrame)
	return &lineTransport{
		rwc:         rwc,
		scanner:     scanner,
		maxFrame:    maxFrame,
		receiveChan: make(chan receivedLine, 1),
	}
}

// Send writes one frame followed by a mandatory trailing newline.
func (t *lineTransport) Send(ctx context.Context, raw []byte) error {
	if len(raw) > t.maxFrame {
		return mcperr.ErrMessageTooLarge
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.isClosed() {
		return mcperr.ErrConnectionClosed
	}

	if _, err := t.rwc.Write(append(append([]byte(nil), raw...), '\n')); err != nil {
		return mcperr.Wrap(mcperr.KindTransportClosed, 0, "transport: write failed", err)
	}
	return nil
}

// Receive blocks for the next line, tolerating a trailing \r per the
// framing table's receipt tolerance for \r\n.
func (t *lineTransport) Receive(ctx context.Context) ([]byte, error) {
	t.readOnce.Do(func() {
		go t.readLoop()
	})

	select {
	case line, ok := <-t.receiveChan:
		if !ok {
			return nil, mcperr.ErrConnectionClosed
		}
		if line.err != nil {
			return nil, line.err
		}
		return line.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *lineTransport) readLoop() {
	defer close(t.receiveChan)
	for t.scanner.Scan() {
		line := t.scanner.Bytes()
		for len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		cp := append([]byte(nil), line...)
		t.receiveChan <- receivedLine{data: cp}
	}
	if err := t.scanner.Err(); err != nil {
		t.receiveChan <- receivedLine{err: mcperr.Wrap(mcperr.KindFramingError, 0, "transport: framing error", err)}
	}
}

func (t *lineTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.rwc.Close()
}

func (t *lineTransport) IsConnected() bool {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	return !t.closed
}

func (t *lineTransport) isClosed() bool {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	return t.closed
}
