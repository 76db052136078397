// Package wsclient opens WebSocket connections for the execution
// controller.
package wsclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	apperrors "github.com/shhac/wirebench/internal/errors"
	"github.com/shhac/wirebench/internal/execution"
)

const sendQueue = 64

// Options configures the dialer.
type Options struct {
	HandshakeTimeout time.Duration
	ReadLimit        int64
	HTTPClient       *http.Client
	Header           http.Header
}

// Dialer implements execution.WebSocketTransport.
type Dialer struct {
	opts   Options
	logger *slog.Logger
	dial   func(context.Context, string, *websocket.DialOptions) (*websocket.Conn, *http.Response, error)
}

var _ execution.WebSocketTransport = (*Dialer)(nil)

// New returns a dialer using opts.
func New(opts Options, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dialer{opts: opts, logger: logger, dial: websocket.Dial}
}

// OpenWebSocket performs the handshake and starts the read and write
// loops. Events are delivered to h until the connection ends.
func (d *Dialer) OpenWebSocket(ctx context.Context, target string, h execution.WebSocketHandler) (execution.WebSocketConn, error) {
	handshakeCtx := ctx
	if d.opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		handshakeCtx, cancel = context.WithTimeout(ctx, d.opts.HandshakeTimeout)
		defer cancel()
	}

	conn, resp, err := d.dial(handshakeCtx, target, &websocket.DialOptions{
		HTTPHeader: d.opts.Header.Clone(),
		HTTPClient: d.opts.HTTPClient,
	})
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("handshake rejected with %s: %w", resp.Status, err)
		}
		return nil, apperrors.Wrap(apperrors.KindTransportFailure, "ws.dial", err)
	}
	if d.opts.ReadLimit > 0 {
		conn.SetReadLimit(d.opts.ReadLimit)
	}

	// Handshake timeouts must not end the open connection.
	sessionCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		conn:    conn,
		handler: h,
		ctx:     sessionCtx,
		cancel:  cancel,
		writeCh: make(chan outbound, sendQueue),
		logger:  d.logger.With(slog.String("target", target)),
	}
	go c.readLoop()
	go c.writeLoop()

	d.logger.Debug("websocket connected", slog.String("target", target))
	return c, nil
}

type outbound struct {
	ctx    context.Context
	text   string
	result chan error
}

// Conn is an open connection.
type Conn struct {
	conn    *websocket.Conn
	handler execution.WebSocketHandler
	ctx     context.Context
	cancel  context.CancelFunc
	writeCh chan outbound
	logger  *slog.Logger

	closing  atomic.Bool
	reported sync.Once
	shutOnce sync.Once
}

// Send queues text and waits until it was written.
func (c *Conn) Send(ctx context.Context, text string) error {
	if c.ctx.Err() != nil {
		return apperrors.New(apperrors.KindInvalidState, "ws.send", "websocket session closed")
	}
	msg := outbound{ctx: ctx, text: text, result: make(chan error, 1)}
	select {
	case c.writeCh <- msg:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return apperrors.New(apperrors.KindInvalidState, "ws.send", "websocket session closed")
	}

	select {
	case err := <-msg.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		select {
		case err := <-msg.result:
			return err
		default:
			return apperrors.New(apperrors.KindInvalidState, "ws.send", "websocket session closed")
		}
	}
}

// Close closes the connection with a normal closure. The handler is not
// notified of a closure the client asked for.
func (c *Conn) Close() error {
	c.closing.Store(true)
	return c.shutdown()
}

func (c *Conn) readLoop() {
	defer func() { _ = c.shutdown() }()

	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.reportClosed(err)
			return
		}
		text := string(data)
		if typ == websocket.MessageBinary {
			text = base64.StdEncoding.EncodeToString(data)
		}
		if c.handler.OnMessage != nil && !c.closing.Load() {
			c.handler.OnMessage(text)
		}
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.writeCh:
			err := c.conn.Write(msg.ctx, websocket.MessageText, []byte(msg.text))
			if err != nil {
				err = apperrors.Wrap(apperrors.KindTransportFailure, "ws.send", err)
			}
			msg.result <- err
			if err != nil {
				c.reportClosed(err)
				_ = c.shutdown()
				return
			}
		}
	}
}

// reportClosed tells the handler once why the connection ended, unless
// the client closed it.
func (c *Conn) reportClosed(err error) {
	if c.closing.Load() || c.handler.OnClosed == nil {
		return
	}
	c.reported.Do(func() {
		var ce websocket.CloseError
		if errors.As(err, &ce) {
			reason := ce.Reason
			if reason == "" {
				reason = "status " + strconv.Itoa(int(ce.Code))
			}
			c.logger.Debug("websocket closed by peer", slog.String("reason", reason))
			c.handler.OnClosed(reason, nil)
			return
		}
		c.logger.Debug("websocket read failed", slog.Any("error", err))
		c.handler.OnClosed("", apperrors.Wrap(apperrors.KindTransportFailure, "ws.read", err))
	})
}

func (c *Conn) shutdown() error {
	var err error
	c.shutOnce.Do(func() {
		err = c.conn.Close(websocket.StatusNormalClosure, "")
		c.cancel()
		if errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
			err = nil
		}
		var ce websocket.CloseError
		if errors.As(err, &ce) {
			err = nil
		}
	})
	return err
}
