package service

import (
	"context"
	"testing"
	"time"

	"github.com/mcpbridge/mcpbridge/pkg/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConnector lets tests script backend replies keyed by the rewritten
// backend id the ProxyService assigns via Intake.
type fakeConnector struct {
	onSendRequest func(req *mcp.Request) (<-chan *mcp.Response, error)
	notifications chan *mcp.Request
	reverse       chan *mcp.Request
	closed        bool
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		notifications: make(chan *mcp.Request, 4),
		reverse:       make(chan *mcp.Request, 4),
	}
}

func (f *fakeConnector) SendRequest(ctx context.Context, req *mcp.Request) (<-chan *mcp.Response, error) {
	return f.onSendRequest(req)
}
func (f *fakeConnector) SendNotification(ctx context.Context, notif *mcp.Request) error { return nil }
func (f *fakeConnector) SendResponse(ctx context.Context, resp *mcp.Response) error      { return nil }
func (f *fakeConnector) Notifications() <-chan *mcp.Request                             { return f.notifications }
func (f *fakeConnector) ReverseRequests() <-chan *mcp.Request                           { return f.reverse }
func (f *fakeConnector) Run(ctx context.Context) error                                  { <-ctx.Done(); return ctx.Err() }
func (f *fakeConnector) Close() error                                                   { f.closed = true; return nil }

func TestHandleRequestRewritesIDAndRestoresIt(t *testing.T) {
	fc := newFakeConnector()
	var capturedBackendID mcp.RequestID
	fc.onSendRequest = func(req *mcp.Request) (<-chan *mcp.Response, error) {
		capturedBackendID = req.ID
		ch := make(chan *mcp.Response, 1)
		ch <- &mcp.Response{JSONRPC: "2.0", ID: req.ID, Result: []byte(`{"ok":true}`)}
		return ch, nil
	}

	p := New(fc, nil)
	defer p.Close()

	clientID := mcp.StringID("client-7")
	resp := p.HandleRequest(context.Background(), &mcp.Request{JSONRPC: "2.0", ID: clientID, Method: "tools/call"})

	require.NotNil(t, resp)
	assert.Equal(t, clientID.Key(), resp.ID.Key())
	assert.NotEqual(t, clientID.Key(), capturedBackendID.Key())
	assert.True(t, capturedBackendID.IsString())
}

func TestHandleRequestTimesOut(t *testing.T) {
	fc := newFakeConnector()
	fc.onSendRequest = func(req *mcp.Request) (<-chan *mcp.Response, error) {
		return make(chan *mcp.Response), nil // never delivers
	}

	p := New(fc, nil, WithRequestTimeout(20*time.Millisecond))
	defer p.Close()

	clientID := mcp.StringID("client-1")
	resp := p.HandleRequest(context.Background(), &mcp.Request{JSONRPC: "2.0", ID: clientID, Method: "slow"})

	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.CodeRequestTimeout, resp.Error.Code)
}

func TestHandleRequestRejectsDuplicateInFlightID(t *testing.T) {
	fc := newFakeConnector()
	blocker := make(chan *mcp.Response)
	fc.onSendRequest = func(req *mcp.Request) (<-chan *mcp.Response, error) {
		return blocker, nil // never delivers, keeps the first request in flight
	}

	p := New(fc, nil, WithRequestTimeout(time.Minute))
	defer p.Close()

	clientID := mcp.StringID("dup-client")
	firstDone := make(chan *mcp.Response, 1)
	go func() {
		firstDone <- p.HandleRequest(context.Background(), &mcp.Request{JSONRPC: "2.0", ID: clientID, Method: "slow"})
	}()
	time.Sleep(20 * time.Millisecond) // let the first HandleRequest register its mapping

	resp := p.HandleRequest(context.Background(), &mcp.Request{JSONRPC: "2.0", ID: clientID, Method: "slow"})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.CodeInvalidRequest, resp.Error.Code)
	assert.Equal(t, clientID.Key(), resp.ID.Key())

	select {
	case <-firstDone:
		t.Fatal("the first in-flight request must not be resolved by the rejected duplicate")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleSizedRejectsOversizedFrame(t *testing.T) {
	fc := newFakeConnector()
	p := New(fc, nil, WithMaxRequestSize(8))
	defer p.Close()

	resp := p.HandleSized(make([]byte, 64), mcp.StringID("x"))
	require.NotNil(t, resp)
	assert.Equal(t, mcp.CodeInvalidRequest, resp.Error.Code)
}

func TestHandleMalformedPreservesRawID(t *testing.T) {
	fc := newFakeConnector()
	p := New(fc, nil)
	defer p.Close()

	resp := p.HandleMalformed(mcp.IntID(42))
	assert.Equal(t, mcp.CodeParseError, resp.Error.Code)
	assert.Equal(t, mcp.IntID(42).Key(), resp.ID.Key())
}

func TestCloseResolvesOutstandingMappingsWithConnectionClosed(t *testing.T) {
	fc := newFakeConnector()
	blocker := make(chan *mcp.Response)
	fc.onSendRequest = func(req *mcp.Request) (<-chan *mcp.Response, error) {
		return blocker, nil
	}

	p := New(fc, nil, WithRequestTimeout(time.Minute))

	done := make(chan *mcp.Response, 1)
	go func() {
		done <- p.HandleRequest(context.Background(), &mcp.Request{JSONRPC: "2.0", ID: mcp.StringID("c1"), Method: "x"})
	}()

	time.Sleep(20 * time.Millisecond) // let HandleRequest register its mapping
	require.NoError(t, p.Close())

	select {
	case resp := <-done:
		require.NotNil(t, resp.Error)
	case <-time.After(time.Second):
		t.Fatal("HandleRequest did not return after Close")
	}
	assert.True(t, fc.closed)
}
