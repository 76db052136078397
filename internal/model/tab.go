package model

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shhac/wirebench/internal/domain"
	apperrors "github.com/shhac/wirebench/internal/errors"
)

// Kind is the protocol of a tab.
type Kind int

const (
	KindHTTP Kind = iota
	KindWebSocket
	KindGRPC
)

// String returns the display name of the kind.
func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "HTTP"
	case KindWebSocket:
		return "WebSocket"
	case KindGRPC:
		return "gRPC"
	default:
		return "Unknown"
	}
}

// Code returns the on-disk name of the kind.
func (k Kind) Code() string {
	switch k {
	case KindWebSocket:
		return domain.KindWebSocket
	case KindGRPC:
		return domain.KindGRPC
	default:
		return domain.KindHTTP
	}
}

// ParseKind accepts the on-disk names and common aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case domain.KindHTTP, "rest":
		return KindHTTP, nil
	case domain.KindWebSocket, "ws":
		return KindWebSocket, nil
	case domain.KindGRPC:
		return KindGRPC, nil
	}
	return 0, apperrors.InvalidInput("tab.kind", "unknown tab kind %q", s)
}

// DefaultTabName is given to tabs created without a name.
const DefaultTabName = "New request"

// Tab owns exactly one request record of its kind. Tabs are created by a
// Collection and are never shared between collections.
type Tab struct {
	g     guard
	space *Workspace

	id    string
	kind  Kind
	name  string
	label string

	http *HTTPExchange
	ws   *WebSocketSession
	grpc *GRPCCall

	// owner is guarded by space.mu.
	owner *Collection
}

func newTab(space *Workspace, id string, kind Kind, rec any) *Tab {
	if id == "" {
		id = uuid.NewString()
	}
	t := &Tab{space: space, id: id, kind: kind, name: DefaultTabName}
	switch kind {
	case KindHTTP:
		x, _ := rec.(*HTTPExchange)
		if x == nil {
			x = NewHTTPExchange()
		}
		t.http = x
		x.Subscribe(func(c Change) {
			if c.Field == FieldMethod {
				t.refreshLabel()
			}
		})
	case KindWebSocket:
		s, _ := rec.(*WebSocketSession)
		if s == nil {
			s = NewWebSocketSession()
		}
		t.ws = s
	case KindGRPC:
		c, _ := rec.(*GRPCCall)
		if c == nil {
			c = NewGRPCCall()
		}
		t.grpc = c
	}
	t.label = t.computeLabel()
	return t
}

// Subscribe registers an observer for tab changes.
func (t *Tab) Subscribe(fn Observer) (unsubscribe func()) {
	return t.g.Subscribe(fn)
}

// ID returns the persistent tab id.
func (t *Tab) ID() string { return t.id }

// Kind returns the tab protocol.
func (t *Tab) Kind() Kind { return t.kind }

// HTTP returns the record of an HTTP tab, nil otherwise.
func (t *Tab) HTTP() *HTTPExchange { return t.http }

// WebSocket returns the record of a WebSocket tab, nil otherwise.
func (t *Tab) WebSocket() *WebSocketSession { return t.ws }

// GRPC returns the record of a gRPC tab, nil otherwise.
func (t *Tab) GRPC() *GRPCCall { return t.grpc }

func (t *Tab) Name() string {
	return read(&t.g, func() string { return t.name })
}

// SetName renames the tab. Tab names need not be unique.
func (t *Tab) SetName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.InvalidInput("tab.rename", "name must not be empty")
	}
	t.g.write(func(e *emitter) {
		t.name = name
		e.emit(FieldName)
	})
	return nil
}

// DisplayLabel is "HTTP GET" style for HTTP tabs and the protocol name
// otherwise. It follows the record's method.
func (t *Tab) DisplayLabel() string {
	return read(&t.g, func() string { return t.label })
}

// Selected reports whether the tab is the selected tab of its collection.
func (t *Tab) Selected() bool {
	t.space.mu.RLock()
	defer t.space.mu.RUnlock()
	return t.owner != nil && t.owner.selected == t
}

// Collection returns the collection the tab belongs to, nil once closed.
func (t *Tab) Collection() *Collection {
	t.space.mu.RLock()
	defer t.space.mu.RUnlock()
	return t.owner
}

// Status returns the lifecycle state of HTTP and gRPC records. WebSocket
// tabs report InFlight while connecting and Idle otherwise.
func (t *Tab) Status() LifecycleState {
	switch t.kind {
	case KindHTTP:
		return t.http.Status()
	case KindGRPC:
		return t.grpc.Status()
	default:
		if t.ws.State() == Connecting {
			return InFlight
		}
		return Idle
	}
}

func (t *Tab) computeLabel() string {
	switch t.kind {
	case KindHTTP:
		if m := t.http.Method(); m != "" {
			return "HTTP " + string(m)
		}
		return "HTTP"
	case KindWebSocket:
		return "WS"
	default:
		return "gRPC"
	}
}

func (t *Tab) refreshLabel() {
	label := t.computeLabel()
	t.g.write(func(e *emitter) {
		if label != t.label {
			t.label = label
			e.emit(FieldLabel)
		}
	})
}

func (t *Tab) notifySelected() {
	t.g.publishNow(FieldSelected)
}
