package frontend

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/mcpbridge/mcpbridge/internal/auth"
	"github.com/mcpbridge/mcpbridge/internal/secret"
	"github.com/mcpbridge/mcpbridge/pkg/mcp"
)

func startHttpFrontend(t *testing.T, opts ...Option) (addr string, proxy *fakeProxy, stop func()) {
	t.Helper()
	addr = freeAddr(t)
	proxy = newFakeProxy()
	f := NewHttpFrontend(addr, "/mcp", []string{"https://allowed.example.com"}, nil, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Serve(ctx, proxy)
	}()
	waitForHTTPServer(t, addr)

	return addr, proxy, func() {
		cancel()
		f.Close()
		<-done
	}
}

func TestHttpFrontend_PostRequestResponse(t *testing.T) {
	addr, proxy, stop := startHttpFrontend(t)
	defer stop()

	resp, err := http.Post("http://"+addr+"/mcp", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["id"].(float64) != 1 {
		t.Errorf("response id = %v, want 1", body["id"])
	}
	if resp.Header.Get("MCP-Session-Id") == "" {
		t.Error("missing MCP-Session-Id header")
	}
	if proxy.requestCount() != 1 {
		t.Errorf("requestCount = %d, want 1", proxy.requestCount())
	}
}

func TestHttpFrontend_PostNotificationAccepted(t *testing.T) {
	addr, proxy, stop := startHttpFrontend(t)
	defer stop()

	resp, err := http.Post("http://"+addr+"/mcp", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/progress"}`))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
	if proxy.notificationCount() != 1 {
		t.Errorf("notificationCount = %d, want 1", proxy.notificationCount())
	}
}

func TestHttpFrontend_HealthEndpoint(t *testing.T) {
	addr, _, stop := startHttpFrontend(t)
	defer stop()

	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHttpFrontend_DisallowedOriginRejected(t *testing.T) {
	addr, _, stop := startHttpFrontend(t)
	defer stop()

	req, _ := http.NewRequest(http.MethodPost, "http://"+addr+"/mcp", strings.NewReader(`{}`))
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestHttpFrontend_AllowedOriginPasses(t *testing.T) {
	addr, _, stop := startHttpFrontend(t)
	defer stop()

	req, _ := http.NewRequest(http.MethodPost, "http://"+addr+"/mcp",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	req.Header.Set("Origin", "https://allowed.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHttpFrontend_OptionsPreflight(t *testing.T) {
	addr, _, stop := startHttpFrontend(t)
	defer stop()

	req, _ := http.NewRequest(http.MethodOptions, "http://"+addr+"/mcp", nil)
	req.Header.Set("Origin", "https://allowed.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "https://allowed.example.com" {
		t.Error("missing Access-Control-Allow-Origin for an allowed origin")
	}
}

func TestHttpFrontend_ApiKeyAuthEnforced(t *testing.T) {
	addr := freeAddr(t)
	proxy := newFakeProxy()
	hash, err := auth.HashApiKey("right-key")
	if err != nil {
		t.Fatalf("HashApiKey() error = %v", err)
	}
	validator := auth.NewApiKeyValidator("X-API-Key", []string{hash})

	f := NewHttpFrontend(addr, "/mcp", nil, nil, WithApiKeyValidator(validator))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); f.Serve(ctx, proxy) }()
	waitForHTTPServer(t, addr)
	defer func() { cancel(); f.Close(); <-done }()

	unauthed, err := http.Post("http://"+addr+"/mcp", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	unauthed.Body.Close()
	if unauthed.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without key = %d, want 401", unauthed.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, "http://"+addr+"/mcp",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	req.Header.Set("X-API-Key", "right-key")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Errorf("status with key = %d, want 200", authed.StatusCode)
	}
}

func TestHttpFrontend_JwtAuthEnforced(t *testing.T) {
	addr := freeAddr(t)
	proxy := newFakeProxy()
	sharedSecret := secret.New("a-shared-secret-at-least-this-long")
	validator := auth.NewJwtValidator(sharedSecret, "", "")

	f := NewHttpFrontend(addr, "/mcp", nil, nil, WithJwtValidator(validator))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); f.Serve(ctx, proxy) }()
	waitForHTTPServer(t, addr)
	defer func() { cancel(); f.Close(); <-done }()

	resp, err := http.Post("http://"+addr+"/mcp", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", resp.StatusCode)
	}
}

func TestHttpFrontend_SSEStreamReceivesNotification(t *testing.T) {
	addr, proxy, stop := startHttpFrontend(t)
	defer stop()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer reqCancel()
	req, _ := http.NewRequestWithContext(reqCtx, http.MethodGet, "http://"+addr+"/mcp", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	proxy.notifications <- &mcp.Request{JSONRPC: "2.0", Method: "notifications/message"}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("ReadString() error waiting for event data = %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			if !strings.Contains(line, "notifications/message") {
				t.Errorf("SSE payload = %q, want to contain method name", line)
			}
			return
		}
	}
}
