package execution

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shhac/wirebench/internal/model"
)

// manualClock only moves when advanced.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeHTTP struct {
	fn func(ctx context.Context, req HTTPRequest, onChunk func(string)) (HTTPResponse, error)

	mu   sync.Mutex
	seen []HTTPRequest
}

func (f *fakeHTTP) SendHTTP(ctx context.Context, req HTTPRequest, onChunk func(string)) (HTTPResponse, error) {
	f.mu.Lock()
	f.seen = append(f.seen, req)
	f.mu.Unlock()
	return f.fn(ctx, req, onChunk)
}

func (f *fakeHTTP) requests() []HTTPRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]HTTPRequest(nil), f.seen...)
}

type fakeConn struct {
	mu      sync.Mutex
	sent    []string
	closed  bool
	sendErr error
}

func (c *fakeConn) Send(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeWS struct {
	open func(ctx context.Context, target string, h WebSocketHandler) (WebSocketConn, error)

	mu      sync.Mutex
	handler WebSocketHandler
}

func (f *fakeWS) OpenWebSocket(ctx context.Context, target string, h WebSocketHandler) (WebSocketConn, error) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
	return f.open(ctx, target, h)
}

func (f *fakeWS) events() WebSocketHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

type fakeGRPC struct {
	services    []string
	methods     map[string][]string
	discoverErr error
	invoke      func(ctx context.Context, req GRPCRequest) (GRPCResponse, error)
}

func (f *fakeGRPC) ListServices(context.Context, string) ([]string, error) {
	if f.discoverErr != nil {
		return nil, f.discoverErr
	}
	return f.services, nil
}

func (f *fakeGRPC) ListMethods(_ context.Context, _ string, service string) ([]string, error) {
	return f.methods[service], nil
}

func (f *fakeGRPC) InvokeUnary(ctx context.Context, req GRPCRequest) (GRPCResponse, error) {
	return f.invoke(ctx, req)
}

// outcomes collects hook calls.
type outcomes struct {
	mu  sync.Mutex
	all []Outcome
}

func (o *outcomes) hook(out Outcome) {
	o.mu.Lock()
	o.all = append(o.all, out)
	o.mu.Unlock()
}

func (o *outcomes) list() []Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Outcome(nil), o.all...)
}

func newTab(t *testing.T, kind model.Kind) *model.Tab {
	t.Helper()
	w := model.NewWorkspace()
	tab, err := w.Collections()[0].CreateTab(kind)
	require.NoError(t, err)
	return tab
}

func wait(t *testing.T, a *Attempt) {
	t.Helper()
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("attempt did not finish")
	}
}
