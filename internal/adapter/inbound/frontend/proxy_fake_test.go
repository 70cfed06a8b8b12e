package frontend

import (
	"context"
	"sync"

	"github.com/mcpbridge/mcpbridge/pkg/mcp"
)

// fakeProxy is a minimal inbound.ProxyService double used by every adapter
// test in this package: it answers every request with a fixed echo result,
// records notifications, and lets a test inject backend-originated
// notifications/reverse requests onto the channels a frontend forwards.
type fakeProxy struct {
	mu            sync.Mutex
	notifications chan *mcp.Request
	reverse       chan *mcp.Request
	nextReverseID int

	handledRequests      []*mcp.Request
	handledNotifications []*mcp.Request
	resolvedResponses    []*mcp.Response
	closed                bool
}

func newFakeProxy() *fakeProxy {
	return &fakeProxy{
		notifications: make(chan *mcp.Request, 8),
		reverse:       make(chan *mcp.Request, 8),
	}
}

func (f *fakeProxy) HandleRequest(ctx context.Context, req *mcp.Request) *mcp.Response {
	f.mu.Lock()
	f.handledRequests = append(f.handledRequests, req)
	f.mu.Unlock()

	resp, err := mcp.NewResultResponse(req.ID, map[string]string{"echo": req.Method})
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.CodeInternalError, err.Error())
	}
	return resp
}

func (f *fakeProxy) HandleNotification(ctx context.Context, notif *mcp.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handledNotifications = append(f.handledNotifications, notif)
	return nil
}

func (f *fakeProxy) HandleMalformed(rawID mcp.RequestID) *mcp.Response {
	return mcp.NewErrorResponse(rawID, mcp.CodeParseError, "parse error")
}

func (f *fakeProxy) HandleSized(raw []byte, id mcp.RequestID) *mcp.Response {
	return nil
}

func (f *fakeProxy) Notifications() <-chan *mcp.Request {
	return f.notifications
}

func (f *fakeProxy) ReverseRequests() <-chan *mcp.Request {
	return f.reverse
}

func (f *fakeProxy) IntakeReverseRequest(serverID mcp.RequestID) mcp.RequestID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextReverseID++
	return mcp.IntID(int64(f.nextReverseID))
}

func (f *fakeProxy) ResolveReverseResponse(ctx context.Context, clientFacingID mcp.RequestID, resp *mcp.Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolvedResponses = append(f.resolvedResponses, resp)
	return nil
}

func (f *fakeProxy) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeProxy) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handledRequests)
}

func (f *fakeProxy) notificationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handledNotifications)
}

func (f *fakeProxy) resolvedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resolvedResponses)
}
