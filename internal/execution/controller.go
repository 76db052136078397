package execution

import (
	"context"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/shhac/wirebench/internal/errors"
	"github.com/shhac/wirebench/internal/model"
	"github.com/shhac/wirebench/internal/telemetry"
)

// Outcome summarises one resolved attempt. Hooks receive it after the
// record has been updated.
type Outcome struct {
	TabID      string
	Protocol   model.Kind
	Method     string
	Target     string
	Status     model.LifecycleState
	StatusCode string
	StartedAt  time.Time
	Elapsed    time.Duration
	Size       int64
	Err        error
	Request    string
	Response   string
}

// Attempt is a running request or call.
type Attempt struct {
	TabID      string
	Generation model.Generation

	tab    *model.Tab
	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed once the attempt's goroutine has finished writing back.
func (a *Attempt) Done() <-chan struct{} { return a.done }

// Controller runs attempts for tabs. It owns every transport context and
// is the only writer of response fields.
type Controller struct {
	http HTTPTransport
	ws   WebSocketTransport
	grpc GRPCTransport

	logger       *slog.Logger
	tel          telemetry.Instrumenter
	hooks        []func(Outcome)
	now          func() time.Time
	previewLimit int

	mu       sync.Mutex
	closed   bool
	attempts map[string]*Attempt
	sessions map[string]*session
	wg       sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

func WithHTTPTransport(t HTTPTransport) Option {
	return func(c *Controller) { c.http = t }
}

func WithWebSocketTransport(t WebSocketTransport) Option {
	return func(c *Controller) { c.ws = t }
}

func WithGRPCTransport(t GRPCTransport) Option {
	return func(c *Controller) { c.grpc = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithTelemetry(inst telemetry.Instrumenter) Option {
	return func(c *Controller) {
		if inst != nil {
			c.tel = inst
		}
	}
}

// WithOutcomeHook registers fn to run after every resolved attempt.
func WithOutcomeHook(fn func(Outcome)) Option {
	return func(c *Controller) {
		if fn != nil {
			c.hooks = append(c.hooks, fn)
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithPreviewLimit sets the rune limit of HTTP response previews.
func WithPreviewLimit(n int) Option {
	return func(c *Controller) { c.previewLimit = n }
}

// New creates a controller. Transports that are not configured make the
// matching operations fail with InvalidState.
func New(opts ...Option) *Controller {
	c := &Controller{
		logger:   slog.New(slog.DiscardHandler),
		tel:      telemetry.Noop(),
		now:      time.Now,
		attempts: make(map[string]*Attempt),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cancel stops the running attempt of tab. For WebSocket tabs it aborts
// a handshake in progress. Nothing happens when no attempt is running.
func (c *Controller) Cancel(tab *model.Tab) error {
	if tab == nil {
		return apperrors.InvalidInput("execution.cancel", "no tab")
	}
	var (
		gen model.Generation
		ok  bool
	)
	switch tab.Kind() {
	case model.KindHTTP:
		gen, ok = tab.HTTP().CancelAttempt()
	case model.KindGRPC:
		gen, ok = tab.GRPC().CancelAttempt()
	case model.KindWebSocket:
		if tab.WebSocket().State() == model.Connecting {
			return c.Disconnect(tab)
		}
		return nil
	}
	if !ok {
		return nil
	}

	c.cancelAttempt(tab.ID(), gen)
	c.logger.Debug("attempt cancelled", slog.String("tab", tab.ID()))
	return nil
}

// cancelAttempt ends the context of the attempt of tabID with generation
// gen. A newer attempt registered since the record was cancelled is left
// running.
func (c *Controller) cancelAttempt(tabID string, gen model.Generation) {
	c.mu.Lock()
	a := c.attempts[tabID]
	c.mu.Unlock()
	if a != nil && a.Generation == gen {
		a.cancel()
	}
}

// Release cancels whatever tab has running. The workspace calls it when a
// tab is closed.
func (c *Controller) Release(tab *model.Tab) {
	if tab == nil {
		return
	}
	if tab.Kind() == model.KindWebSocket {
		_ = c.Disconnect(tab)
		return
	}
	_ = c.Cancel(tab)
}

// Close releases every tab with work in flight and waits for the
// attempt goroutines to exit. Later operations fail with InvalidState.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	var tabs []*model.Tab
	for _, a := range c.attempts {
		tabs = append(tabs, a.tab)
	}
	for _, s := range c.sessions {
		tabs = append(tabs, s.tab)
	}
	c.mu.Unlock()

	for _, t := range tabs {
		c.Release(t)
	}
	c.wg.Wait()
}

// launch registers a new attempt and starts run on its own goroutine.
func (c *Controller) launch(tab *model.Tab, gen model.Generation, run func(ctx context.Context, a *Attempt)) *Attempt {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Attempt{
		TabID:      tab.ID(),
		Generation: gen,
		tab:        tab,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	c.mu.Lock()
	c.attempts[tab.ID()] = a
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer close(a.done)
		defer cancel()
		defer c.forget(a)
		run(ctx, a)
	}()
	return a
}

func (c *Controller) forget(a *Attempt) {
	c.mu.Lock()
	if c.attempts[a.TabID] == a {
		delete(c.attempts, a.TabID)
	}
	c.mu.Unlock()
}

func (c *Controller) checkOpen(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return apperrors.InvalidState(op, "controller is closed")
	}
	return nil
}

func (c *Controller) emit(o Outcome) {
	for _, fn := range c.hooks {
		fn(o)
	}
}

func requireKind(op string, tab *model.Tab, kind model.Kind) error {
	if tab == nil {
		return apperrors.InvalidInput(op, "no tab")
	}
	if tab.Kind() != kind {
		return apperrors.InvalidInput(op, "tab %q is a %s tab, not %s", tab.Name(), tab.Kind(), kind)
	}
	return nil
}
