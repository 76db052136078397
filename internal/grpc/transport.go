package grpc

import (
	"context"
	"log/slog"

	"github.com/shhac/wirebench/internal/execution"
)

// Transport implements execution.GRPCTransport over a connection pool
// and a descriptor loader.
type Transport struct {
	pool   *ConnectionPool
	loader *Loader
	logger *slog.Logger
}

var _ execution.GRPCTransport = (*Transport)(nil)

// NewTransport wires a pool and a loader sharing it.
func NewTransport(opts PoolOptions, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool := NewConnectionPool(opts, logger)
	return &Transport{
		pool:   pool,
		loader: NewLoader(pool, logger),
		logger: logger,
	}
}

// Pool returns the connection pool.
func (t *Transport) Pool() *ConnectionPool { return t.pool }

// Describe loads source afresh and returns its catalog.
func (t *Transport) Describe(ctx context.Context, source string) (*Catalog, error) {
	return t.loader.Reload(ctx, source)
}

// ListServices reloads source and returns its service names, sorted.
func (t *Transport) ListServices(ctx context.Context, source string) ([]string, error) {
	c, err := t.loader.Reload(ctx, source)
	if err != nil {
		return nil, err
	}
	return c.Services(), nil
}

// ListMethods returns the methods of service in declaration order.
func (t *Transport) ListMethods(ctx context.Context, source, service string) ([]string, error) {
	c, err := t.loader.Get(ctx, source)
	if err != nil {
		return nil, err
	}
	return c.Methods(service)
}

// InvokeUnary resolves the method in the request's descriptor source and
// calls it on the request target. Without a descriptor the target itself
// is asked via reflection.
func (t *Transport) InvokeUnary(ctx context.Context, req execution.GRPCRequest) (execution.GRPCResponse, error) {
	source := req.Descriptor
	if source == "" {
		source = ReflectScheme + req.Target
	}
	c, err := t.loader.Get(ctx, source)
	if err != nil {
		return execution.GRPCResponse{}, err
	}
	md, err := c.Method(req.Service, req.Method)
	if err != nil {
		return execution.GRPCResponse{}, err
	}
	outgoing, err := BuildMetadata(req.Metadata)
	if err != nil {
		return execution.GRPCResponse{}, err
	}
	call, err := prepareUnary(md, req.Payload, outgoing)
	if err != nil {
		return execution.GRPCResponse{}, err
	}
	conn, err := t.pool.Get(ctx, req.Target)
	if err != nil {
		return execution.GRPCResponse{}, err
	}

	res, err := call.invoke(ctx, conn, t.logger)
	return execution.GRPCResponse{
		Payload:  res.Response,
		Headers:  mdHeaders(res.Headers),
		Trailers: mdHeaders(res.Trailers),
	}, err
}

// Close closes every pooled connection.
func (t *Transport) Close() {
	t.pool.CloseAll()
}
