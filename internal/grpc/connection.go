package grpc

import (
	"context"
	"crypto/tls"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/shhac/wirebench/internal/domain"
)

// ConnectionState represents the current state of a pooled connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

// String returns a human-readable representation of the connection state
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// PoolOptions configures how the pool dials targets.
type PoolOptions struct {
	Plaintext   bool
	SkipVerify  bool
	DialTimeout time.Duration
	KeepAlive   time.Duration
}

type pooledConn struct {
	conn  *grpc.ClientConn
	state ConnectionState
}

// ConnectionPool keeps one client connection per target address
type ConnectionPool struct {
	opts   PoolOptions
	logger *slog.Logger

	mu    sync.Mutex
	conns map[string]*pooledConn

	// Callback for state changes
	onStateChange func(target string, state ConnectionState, message string)
}

// NewConnectionPool creates an empty pool
func NewConnectionPool(opts PoolOptions, logger *slog.Logger) *ConnectionPool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ConnectionPool{
		opts:   opts,
		logger: logger,
		conns:  make(map[string]*pooledConn),
	}
}

// connectionFor builds the connection settings for target.
func (p *ConnectionPool) connectionFor(target string) domain.Connection {
	return domain.Connection{
		Address:   target,
		UseTLS:    !p.opts.Plaintext,
		Timeout:   p.opts.DialTimeout,
		KeepAlive: p.opts.KeepAlive,
		TLS:       domain.TLSSettings{SkipVerify: p.opts.SkipVerify},
	}
}

// Get returns the connection for target, creating it on first use
func (p *ConnectionPool) Get(ctx context.Context, target string) (*grpc.ClientConn, error) {
	p.mu.Lock()
	if pc, ok := p.conns[target]; ok {
		p.mu.Unlock()
		return pc.conn, nil
	}
	p.mu.Unlock()

	conn, err := p.dial(ctx, p.connectionFor(target))
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if pc, ok := p.conns[target]; ok {
		// Lost a race with another caller.
		p.mu.Unlock()
		_ = conn.Close()
		return pc.conn, nil
	}
	p.conns[target] = &pooledConn{conn: conn, state: StateConnected}
	p.mu.Unlock()

	p.updateState(target, StateConnected, "Connected to "+target)
	return conn, nil
}

func (p *ConnectionPool) dial(ctx context.Context, cfg domain.Connection) (*grpc.ClientConn, error) {
	p.updateState(cfg.Address, StateConnecting, "Connecting to "+cfg.Address)

	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepAliveInterval(),
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	if cfg.UseTLS {
		tlsCfg := &tls.Config{ServerName: cfg.TLS.ServerName}
		if cfg.TLS.SkipVerify {
			tlsCfg.InsecureSkipVerify = true //nolint:gosec // user opt-in
			p.logger.Warn("using insecure TLS connection (skipping certificate verification)",
				slog.String("address", cfg.Address))
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsCfg)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		p.logger.Debug("using plaintext connection", slog.String("address", cfg.Address))
	}

	// NewClient is lazy; a dial timeout only bounds the explicit warm-up.
	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		p.logger.Error("failed to create gRPC client",
			slog.String("address", cfg.Address),
			slog.Any("error", err),
		)
		p.updateState(cfg.Address, StateError, "Failed to connect: "+err.Error())
		return nil, err
	}
	if cfg.Timeout > 0 {
		warmCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		conn.Connect()
		for st := conn.GetState(); st != connectivity.Ready; st = conn.GetState() {
			if !conn.WaitForStateChange(warmCtx, st) {
				break
			}
		}
	}

	p.logger.Info("gRPC connection established",
		slog.String("address", cfg.Address),
		slog.Bool("tls", cfg.UseTLS),
	)
	return conn, nil
}

// Close closes the connection to target if one is pooled
func (p *ConnectionPool) Close(target string) error {
	p.mu.Lock()
	pc, ok := p.conns[target]
	delete(p.conns, target)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	if err := pc.conn.Close(); err != nil {
		p.logger.Error("failed to close connection",
			slog.String("address", target),
			slog.Any("error", err),
		)
		p.updateState(target, StateError, "Failed to disconnect: "+err.Error())
		return err
	}
	p.logger.Info("gRPC connection closed", slog.String("address", target))
	p.updateState(target, StateDisconnected, "Disconnected")
	return nil
}

// CloseAll closes every pooled connection
func (p *ConnectionPool) CloseAll() {
	p.mu.Lock()
	targets := make([]string, 0, len(p.conns))
	for t := range p.conns {
		targets = append(targets, t)
	}
	p.mu.Unlock()

	for _, t := range targets {
		_ = p.Close(t)
	}
}

// State returns the pool state of target
func (p *ConnectionPool) State(target string) ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pc, ok := p.conns[target]; ok {
		return pc.state
	}
	return StateDisconnected
}

// Len returns the number of pooled connections
func (p *ConnectionPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// SetStateCallback registers a callback function to be called on state changes
func (p *ConnectionPool) SetStateCallback(fn func(target string, state ConnectionState, message string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStateChange = fn
}

// updateState records the state and invokes the callback. It must be
// called without p.mu held.
func (p *ConnectionPool) updateState(target string, state ConnectionState, message string) {
	p.mu.Lock()
	if pc, ok := p.conns[target]; ok {
		pc.state = state
	}
	callback := p.onStateChange
	p.mu.Unlock()

	p.logger.Debug("connection state changed",
		slog.String("address", target),
		slog.String("state", state.String()),
		slog.String("message", message),
	)

	if callback != nil {
		callback(target, state, message)
	}
}
