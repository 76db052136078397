package execution

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	apperrors "github.com/shhac/wirebench/internal/errors"
	"github.com/shhac/wirebench/internal/model"
	"github.com/shhac/wirebench/internal/telemetry"
)

const outboxSize = 64

// session is one WebSocket connection attempt and, once open, its ordered
// outbox. gen is the session generation the attempt was started with.
type session struct {
	tab    *model.Tab
	gen    model.Generation
	ctx    context.Context
	cancel context.CancelFunc
	outbox chan string
	sendMu sync.Mutex
	done   chan struct{}
}

// Connect opens the WebSocket connection of tab. The handshake runs in
// the background; the session reports Connecting until it resolves.
func (c *Controller) Connect(tab *model.Tab) error {
	const op = "execution.connect"
	if err := requireKind(op, tab, model.KindWebSocket); err != nil {
		return err
	}
	if err := c.checkOpen(op); err != nil {
		return err
	}
	if c.ws == nil {
		return apperrors.InvalidState(op, "no WebSocket transport configured")
	}

	ws := tab.WebSocket()
	gen, target, err := ws.BeginConnect()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		tab:    tab,
		gen:    gen,
		ctx:    ctx,
		cancel: cancel,
		outbox: make(chan string, outboxSize),
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	if old := c.sessions[tab.ID()]; old != nil {
		old.cancel()
	}
	c.sessions[tab.ID()] = s
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer close(s.done)
		defer cancel()
		defer c.dropSession(s)
		c.runSession(tab, s, target)
	}()
	return nil
}

// Disconnect closes the connection of tab, or abandons its handshake.
func (c *Controller) Disconnect(tab *model.Tab) error {
	if err := requireKind("execution.disconnect", tab, model.KindWebSocket); err != nil {
		return err
	}
	prev := tab.WebSocket().BeginDisconnect(c.now())

	c.mu.Lock()
	s := c.sessions[tab.ID()]
	delete(c.sessions, tab.ID())
	c.mu.Unlock()

	if s != nil {
		s.cancel()
	}
	if prev != model.Disconnected {
		c.logger.Info("websocket disconnected",
			slog.String("tab", tab.ID()),
			slog.String("from", prev.String()),
		)
	}
	return nil
}

// Send appends text to the transcript and queues it on the connection.
func (c *Controller) Send(tab *model.Tab, text string) error {
	const op = "execution.send"
	if err := requireKind(op, tab, model.KindWebSocket); err != nil {
		return err
	}

	c.mu.Lock()
	s := c.sessions[tab.ID()]
	c.mu.Unlock()
	if s == nil {
		return apperrors.InvalidState(op, "session is %s", tab.WebSocket().State())
	}

	// Transcript order and wire order match.
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	gen, err := tab.WebSocket().AppendSent(text, c.now())
	if err != nil {
		return err
	}
	if gen != s.gen {
		return apperrors.InvalidState(op, "connection was replaced")
	}

	select {
	case s.outbox <- text:
		return nil
	case <-s.ctx.Done():
		return apperrors.InvalidState(op, "connection closed before the message was sent")
	}
}

// SendPending sends the pending message of tab and clears it. A failed
// send puts the message back.
func (c *Controller) SendPending(tab *model.Tab) error {
	const op = "execution.send_pending"
	if err := requireKind(op, tab, model.KindWebSocket); err != nil {
		return err
	}
	ws := tab.WebSocket()
	if strings.TrimSpace(ws.PendingMessage()) == "" {
		return apperrors.InvalidInput(op, "no message to send")
	}
	if st := ws.State(); st != model.Connected {
		return apperrors.InvalidState(op, "session is %s", st)
	}

	text := ws.TakePending()
	if err := c.Send(tab, text); err != nil {
		if ws.PendingMessage() == "" {
			ws.SetPendingMessage(text)
		}
		return err
	}
	return nil
}

func (c *Controller) runSession(tab *model.Tab, s *session, target string) {
	ws := tab.WebSocket()
	ctx, span := c.tel.Start(s.ctx, telemetry.RequestStart{
		Protocol: "websocket",
		Target:   target,
		TabID:    tab.ID(),
	})

	startedAt := c.now()
	out := Outcome{
		TabID:     tab.ID(),
		Protocol:  model.KindWebSocket,
		Method:    "CONNECT",
		Target:    target,
		StartedAt: startedAt,
	}

	conn, err := c.ws.OpenWebSocket(ctx, target, WebSocketHandler{
		OnMessage: func(text string) {
			ws.AppendReceived(s.gen, text, c.now())
		},
		OnClosed: func(reason string, err error) {
			if err != nil {
				if ws.FailConnect(s.gen, model.FailureFrom(err), c.now()) {
					c.logger.Warn("websocket connection lost",
						slog.String("tab", tab.ID()),
						slog.Any("error", err),
					)
				}
			} else if ws.MarkClosed(s.gen, reason, c.now()) {
				c.logger.Info("websocket closed by peer",
					slog.String("tab", tab.ID()),
					slog.String("reason", reason),
				)
			}
			s.cancel()
		},
	})
	out.Elapsed = c.now().Sub(startedAt)

	if err != nil {
		applied := ws.FailConnect(s.gen, model.FailureFrom(err), c.now())
		out.Status, out.Err = model.Failed, err
		if !applied {
			out.Status = model.Cancelled
		} else {
			c.logger.Error("websocket connect failed",
				slog.String("tab", tab.ID()),
				slog.String("target", target),
				slog.Any("error", err),
			)
		}
		span.End(telemetry.RequestResult{Err: err, Cancelled: !applied})
		c.emit(out)
		return
	}

	if !ws.MarkConnected(s.gen, c.now()) {
		_ = conn.Close()
		out.Status = model.Cancelled
		span.End(telemetry.RequestResult{Cancelled: true})
		c.emit(out)
		return
	}
	c.logger.Info("websocket connected",
		slog.String("tab", tab.ID()),
		slog.String("target", target),
	)
	out.Status = model.Completed
	span.End(telemetry.RequestResult{})
	c.emit(out)

	c.pump(tab, s, conn)
}

// pump forwards queued messages until the session ends.
func (c *Controller) pump(tab *model.Tab, s *session, conn WebSocketConn) {
	defer func() { _ = conn.Close() }()
	for {
		select {
		case <-s.ctx.Done():
			return
		case text := <-s.outbox:
			if err := conn.Send(s.ctx, text); err != nil {
				if s.ctx.Err() == nil {
					tab.WebSocket().FailConnect(s.gen, model.FailureFrom(err), c.now())
					c.logger.Warn("websocket send failed",
						slog.String("tab", tab.ID()),
						slog.Any("error", err),
					)
				}
				return
			}
		}
	}
}

func (c *Controller) dropSession(s *session) {
	c.mu.Lock()
	if c.sessions[s.tab.ID()] == s {
		delete(c.sessions, s.tab.ID())
	}
	c.mu.Unlock()
}
