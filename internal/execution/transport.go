package execution

import (
	"context"
	"time"

	"github.com/shhac/wirebench/internal/model"
)

// HTTPRequest is one outgoing HTTP request.
type HTTPRequest struct {
	Method  string
	Target  string
	Headers []model.Header // applied in order, a later value replaces an earlier one
	Body    string
}

// HTTPResponse is what an HTTP transport returns. Non-2xx statuses are
// responses, not errors.
type HTTPResponse struct {
	StatusCode int
	Status     string
	Headers    []model.Header
	Body       string
	Duration   time.Duration
}

// HTTPTransport sends HTTP requests. onChunk receives body fragments in
// read order before SendHTTP returns.
type HTTPTransport interface {
	SendHTTP(ctx context.Context, req HTTPRequest, onChunk func(string)) (HTTPResponse, error)
}

// WebSocketHandler receives events of an open connection. OnClosed is
// called at most once, and never after Close was called by the client.
type WebSocketHandler struct {
	OnMessage func(text string)
	OnClosed  func(reason string, err error)
}

// WebSocketConn is an open WebSocket connection.
type WebSocketConn interface {
	Send(ctx context.Context, text string) error
	Close() error
}

// WebSocketTransport performs WebSocket handshakes. Cancelling ctx aborts
// a handshake in progress.
type WebSocketTransport interface {
	OpenWebSocket(ctx context.Context, target string, h WebSocketHandler) (WebSocketConn, error)
}

// GRPCRequest is one unary call.
type GRPCRequest struct {
	Target     string
	Descriptor string
	Service    string
	Method     string
	Payload    string // JSON
	Metadata   []model.Header
}

// GRPCResponse is what a unary call returned. Headers and trailers are
// filled even when the call failed with a status.
type GRPCResponse struct {
	Payload  string
	Headers  []model.Header
	Trailers []model.Header
}

// GRPCTransport discovers services from a descriptor source and invokes
// unary methods.
type GRPCTransport interface {
	ListServices(ctx context.Context, descriptor string) ([]string, error)
	ListMethods(ctx context.Context, descriptor, service string) ([]string, error)
	InvokeUnary(ctx context.Context, req GRPCRequest) (GRPCResponse, error)
}
