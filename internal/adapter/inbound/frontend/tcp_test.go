package frontend

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"
)

func TestTcpFrontend_RoundTrip(t *testing.T) {
	proxy := newFakeProxy()
	f := NewTcpFrontend("127.0.0.1:0", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- f.Serve(ctx, proxy) }()

	addr := waitForListener(t, f)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		t.Fatalf("ReadBytes() error = %v", err)
	}

	var resp map[string]any
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("response not valid JSON: %v (%q)", err, line)
	}
	if resp["id"].(float64) != 1 {
		t.Errorf("response id = %v, want 1", resp["id"])
	}

	if err := f.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close() second call error = %v, want nil (idempotent)", err)
	}

	select {
	case err := <-serveErr:
		if err != nil {
			t.Errorf("Serve() returned error after Close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Serve() did not return after Close")
	}
}

// waitForListener polls f's bound address until Serve has assigned its
// listener, avoiding a fixed sleep.
func waitForListener(t *testing.T, f *TcpFrontend) string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		f.mu.Lock()
		ln := f.listener
		f.mu.Unlock()
		if ln != nil {
			return ln.Addr().String()
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for TcpFrontend to bind")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
