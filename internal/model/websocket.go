package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/shhac/wirebench/internal/errors"
)

// ConnectionState is the state of a WebSocket session.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

// String returns a human-readable representation of the connection state
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// Label returns the text of the connect/disconnect control for s.
func (s ConnectionState) Label() string {
	switch s {
	case Connecting:
		return "Connecting…"
	case Connected:
		return "Disconnect"
	default:
		return "Connect"
	}
}

// Direction tags a transcript entry.
type Direction string

const (
	Sent     Direction = "sent"
	Received Direction = "received"
	Info     Direction = "info" // connection events
)

// TranscriptEntry is one message on a session, in arrival order.
type TranscriptEntry struct {
	Direction Direction
	Text      string
	Timestamp time.Time
}

// WebSocketSession is the record behind a WebSocket tab.
type WebSocketSession struct {
	g  guard
	id string

	target      string
	pending     string
	state       ConnectionState
	gen         Generation
	transcript  []TranscriptEntry
	lastError   *Failure
	closeReason string
}

// NewWebSocketSession returns a disconnected session.
func NewWebSocketSession() *WebSocketSession {
	return &WebSocketSession{id: uuid.NewString()}
}

// Subscribe registers an observer for changes to the session.
func (s *WebSocketSession) Subscribe(fn Observer) (unsubscribe func()) {
	return s.g.Subscribe(fn)
}

// ID returns the persistent record id.
func (s *WebSocketSession) ID() string { return s.id }

func (s *WebSocketSession) Target() string {
	return read(&s.g, func() string { return s.target })
}

func (s *WebSocketSession) PendingMessage() string {
	return read(&s.g, func() string { return s.pending })
}

func (s *WebSocketSession) State() ConnectionState {
	return read(&s.g, func() ConnectionState { return s.state })
}

// ConnectLabel is derived from the connection state.
func (s *WebSocketSession) ConnectLabel() string {
	return s.State().Label()
}

func (s *WebSocketSession) Generation() Generation {
	return read(&s.g, func() Generation { return s.gen })
}

// Transcript returns a copy of the transcript.
func (s *WebSocketSession) Transcript() []TranscriptEntry {
	s.g.mu.RLock()
	defer s.g.mu.RUnlock()
	return append([]TranscriptEntry(nil), s.transcript...)
}

// LastError returns the failure that ended the last connection, if any.
func (s *WebSocketSession) LastError() *Failure {
	s.g.mu.RLock()
	defer s.g.mu.RUnlock()
	if s.lastError == nil {
		return nil
	}
	f := *s.lastError
	return &f
}

// CloseReason returns the reason given when the peer closed the session.
func (s *WebSocketSession) CloseReason() string {
	return read(&s.g, func() string { return s.closeReason })
}

func (s *WebSocketSession) SetTarget(target string) {
	s.g.write(func(e *emitter) {
		s.target = target
		e.emit(FieldTarget)
	})
}

func (s *WebSocketSession) SetPendingMessage(msg string) {
	s.g.write(func(e *emitter) {
		s.pending = msg
		e.emit(FieldPendingMessage)
	})
}

// ClearTranscript empties the transcript.
func (s *WebSocketSession) ClearTranscript() {
	s.g.write(func(e *emitter) {
		s.transcript = nil
		e.emit(FieldTranscript)
	})
}

// BeginConnect moves a disconnected session to Connecting and returns the
// generation of the connection attempt.
func (s *WebSocketSession) BeginConnect() (Generation, string, error) {
	var (
		gen    Generation
		target string
	)
	err := s.g.writeErr(func(e *emitter) error {
		if s.state != Disconnected {
			return apperrors.InvalidState("ws.connect", "session is %s", s.state)
		}
		if strings.TrimSpace(s.target) == "" {
			return apperrors.InvalidInput("ws.connect", "target URL is empty")
		}
		s.gen++
		gen, target = s.gen, s.target
		s.lastError = nil
		s.closeReason = ""
		s.setState(e, Connecting)
		return nil
	})
	return gen, target, err
}

// MarkConnected completes the handshake of attempt gen.
func (s *WebSocketSession) MarkConnected(gen Generation, now time.Time) bool {
	applied := false
	s.g.write(func(e *emitter) {
		if s.gen != gen || s.state != Connecting {
			return
		}
		s.setState(e, Connected)
		s.appendLocked(e, TranscriptEntry{Direction: Info, Text: "connected to " + s.target, Timestamp: now})
		applied = true
	})
	return applied
}

// FailConnect records a failed handshake or a transport error on an open
// session. The session ends up Disconnected.
func (s *WebSocketSession) FailConnect(gen Generation, f Failure, now time.Time) bool {
	applied := false
	s.g.write(func(e *emitter) {
		if s.gen != gen || s.state == Disconnected {
			return
		}
		s.gen++
		s.lastError = &f
		s.setState(e, Disconnected)
		s.appendLocked(e, TranscriptEntry{Direction: Info, Text: "error: " + f.Message, Timestamp: now})
		applied = true
	})
	return applied
}

// AppendReceived adds an inbound message of connection gen.
func (s *WebSocketSession) AppendReceived(gen Generation, text string, now time.Time) bool {
	applied := false
	s.g.write(func(e *emitter) {
		if s.gen != gen || s.state != Connected {
			return
		}
		s.appendLocked(e, TranscriptEntry{Direction: Received, Text: text, Timestamp: now})
		applied = true
	})
	return applied
}

// AppendSent adds an outbound message. The session must be connected.
func (s *WebSocketSession) AppendSent(text string, now time.Time) (Generation, error) {
	var gen Generation
	err := s.g.writeErr(func(e *emitter) error {
		if s.state != Connected {
			return apperrors.InvalidState("ws.send", "session is %s", s.state)
		}
		gen = s.gen
		s.appendLocked(e, TranscriptEntry{Direction: Sent, Text: text, Timestamp: now})
		return nil
	})
	return gen, err
}

// TakePending clears the pending message and returns it.
func (s *WebSocketSession) TakePending() string {
	var msg string
	s.g.write(func(e *emitter) {
		msg = s.pending
		if msg != "" {
			s.pending = ""
			e.emit(FieldPendingMessage)
		}
	})
	return msg
}

// MarkClosed handles a closure the user did not ask for.
func (s *WebSocketSession) MarkClosed(gen Generation, reason string, now time.Time) bool {
	applied := false
	s.g.write(func(e *emitter) {
		if s.gen != gen || s.state == Disconnected {
			return
		}
		s.gen++
		s.closeReason = reason
		s.setState(e, Disconnected)
		text := "connection closed"
		if reason != "" {
			text += ": " + reason
		}
		s.appendLocked(e, TranscriptEntry{Direction: Info, Text: text, Timestamp: now})
		applied = true
	})
	return applied
}

// BeginDisconnect ends the session from the user side, cancelling a
// handshake in progress. It returns the state the session was in.
func (s *WebSocketSession) BeginDisconnect(now time.Time) ConnectionState {
	var prev ConnectionState
	s.g.write(func(e *emitter) {
		prev = s.state
		if prev == Disconnected {
			return
		}
		s.gen++
		s.setState(e, Disconnected)
		text := "disconnected"
		if prev == Connecting {
			text = "connection attempt cancelled"
		}
		s.appendLocked(e, TranscriptEntry{Direction: Info, Text: text, Timestamp: now})
	})
	return prev
}

func (s *WebSocketSession) setState(e *emitter, state ConnectionState) {
	if s.state == state {
		return
	}
	s.state = state
	e.emit(FieldConnection, FieldConnectLabel)
}

func (s *WebSocketSession) appendLocked(e *emitter, entry TranscriptEntry) {
	s.transcript = append(s.transcript, entry)
	e.emit(FieldTranscript)
}
