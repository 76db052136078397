package model

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/shhac/wirebench/internal/errors"
)

// Method is an HTTP verb. The zero value means no method was chosen yet
// and is sent as GET.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
)

// Methods lists the supported verbs in menu order.
var Methods = []Method{MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch, MethodHead, MethodOptions}

// ParseMethod validates s case-insensitively. The empty string is unset.
func ParseMethod(s string) (Method, error) {
	if s == "" {
		return "", nil
	}
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Methods {
		if m == known {
			return m, nil
		}
	}
	return "", apperrors.InvalidInput("http.method", "unsupported method %q", s)
}

// PreparedHTTP is the request frozen at the start of an attempt.
type PreparedHTTP struct {
	Method  Method
	Target  string
	Headers []Header
	Body    string
}

// HTTPResult is what the transport produced for one attempt.
type HTTPResult struct {
	StatusCode   int
	StatusText   string
	Headers      []Header
	Body         string
	Elapsed      time.Duration
	PreviewLimit int // zero means DefaultPreviewLimit
}

// HTTPResponse is a read-only view of the response fields.
type HTTPResponse struct {
	Present    bool // false until an attempt has completed
	StatusCode int
	StatusText string
	Headers    []Header
	Raw        string
	Preview    string
	Chunks     []string
	Elapsed    time.Duration
	SizeBytes  int64
	IssuedAt   time.Time
	Failure    *Failure

	FormattedSize    string
	FormattedElapsed string
}

// HTTPExchange is the record behind an HTTP tab.
type HTTPExchange struct {
	g  guard
	id string

	method     Method
	baseTarget string
	query      *FieldBag
	headers    *FieldBag
	auth       *AuthProfile
	body       string

	lc        lifecycle
	startedAt time.Time
	resp      HTTPResponse

	effectiveTarget string
}

// NewHTTPExchange returns an idle exchange with empty tables.
func NewHTTPExchange() *HTTPExchange {
	x := &HTTPExchange{id: uuid.NewString()}
	x.query = newOwnedBag(&x.g, true, func(e *emitter) {
		e.emit(FieldQuery)
		x.recompute(e)
	})
	x.headers = newOwnedBag(&x.g, true, func(e *emitter) { e.emit(FieldHeaders) })
	x.auth = newOwnedAuth(&x.g, func(e *emitter) { e.emit(FieldAuth) })
	return x
}

// Subscribe registers an observer for changes to the exchange.
func (x *HTTPExchange) Subscribe(fn Observer) (unsubscribe func()) {
	return x.g.Subscribe(fn)
}

// ID returns the persistent record id.
func (x *HTTPExchange) ID() string { return x.id }

// Query returns the query parameter table.
func (x *HTTPExchange) Query() *FieldBag { return x.query }

// Headers returns the request header table.
func (x *HTTPExchange) Headers() *FieldBag { return x.headers }

// Auth returns the authentication profile.
func (x *HTTPExchange) Auth() *AuthProfile { return x.auth }

func (x *HTTPExchange) Method() Method {
	return read(&x.g, func() Method { return x.method })
}

func (x *HTTPExchange) BaseTarget() string {
	return read(&x.g, func() string { return x.baseTarget })
}

func (x *HTTPExchange) Body() string {
	return read(&x.g, func() string { return x.body })
}

// EffectiveTarget is the base target with enabled query rows appended.
func (x *HTTPExchange) EffectiveTarget() string {
	return read(&x.g, func() string { return x.effectiveTarget })
}

// Status returns the lifecycle state.
func (x *HTTPExchange) Status() LifecycleState {
	return read(&x.g, func() LifecycleState { return x.lc.status })
}

// Generation returns the generation of the latest attempt.
func (x *HTTPExchange) Generation() Generation {
	return read(&x.g, func() Generation { return x.lc.gen })
}

// Response returns a copy of the response fields.
func (x *HTTPExchange) Response() HTTPResponse {
	x.g.mu.RLock()
	defer x.g.mu.RUnlock()
	r := x.resp
	r.Headers = append([]Header(nil), r.Headers...)
	r.Chunks = append([]string(nil), r.Chunks...)
	if r.Failure != nil {
		f := *r.Failure
		r.Failure = &f
	}
	return r
}

// SetMethod sets the verb. Unknown verbs are rejected.
func (x *HTTPExchange) SetMethod(m Method) error {
	m, err := ParseMethod(string(m))
	if err != nil {
		return err
	}
	x.g.write(func(e *emitter) {
		x.method = m
		e.emit(FieldMethod)
	})
	return nil
}

// SetBaseTarget sets the URL without the query table.
func (x *HTTPExchange) SetBaseTarget(target string) {
	x.g.write(func(e *emitter) {
		x.baseTarget = target
		e.emit(FieldBaseTarget)
		x.recompute(e)
	})
}

// SetBody sets the raw request body.
func (x *HTTPExchange) SetBody(body string) {
	x.g.write(func(e *emitter) {
		x.body = body
		e.emit(FieldBody)
	})
}

// OutgoingHeaders returns the enabled header rows followed by the auth
// contribution, in send order.
func (x *HTTPExchange) OutgoingHeaders() []Header {
	x.g.mu.RLock()
	defer x.g.mu.RUnlock()
	return x.outgoingLocked()
}

func (x *HTTPExchange) outgoingLocked() []Header {
	var hs []Header
	for _, en := range x.headers.enabledLocked() {
		hs = append(hs, Header{Name: en.Key, Value: en.Value})
	}
	if h, ok := x.auth.contributionLocked(); ok {
		hs = append(hs, h)
	}
	return hs
}

// BeginAttempt moves the exchange to InFlight and freezes the request.
// The previous response stays visible until the attempt resolves; only
// the chunk stream restarts.
func (x *HTTPExchange) BeginAttempt(now time.Time) (Generation, PreparedHTTP, error) {
	var (
		gen Generation
		req PreparedHTTP
	)
	err := x.g.writeErr(func(e *emitter) error {
		if strings.TrimSpace(x.baseTarget) == "" {
			return apperrors.InvalidInput("http.start", "target URL is empty")
		}
		g, err := x.lc.begin("http.start")
		if err != nil {
			return err
		}
		gen = g
		method := x.method
		if method == "" {
			method = MethodGet
		}
		req = PreparedHTTP{
			Method:  method,
			Target:  x.effectiveTarget,
			Headers: x.outgoingLocked(),
			Body:    x.body,
		}
		x.startedAt = now
		x.resp.Chunks = nil
		e.emit(FieldStatus, FieldChunks)
		return nil
	})
	return gen, req, err
}

// AppendChunk adds a streamed body fragment. It reports false when gen is
// no longer the running attempt.
func (x *HTTPExchange) AppendChunk(gen Generation, chunk string) bool {
	applied := false
	x.g.write(func(e *emitter) {
		if !x.lc.current(gen) {
			return
		}
		x.resp.Chunks = append(x.resp.Chunks, chunk)
		applied = true
		e.emit(FieldChunks)
	})
	return applied
}

// CompleteAttempt writes the response of attempt gen. Any status code,
// including non-2xx, completes the attempt.
func (x *HTTPExchange) CompleteAttempt(gen Generation, res HTTPResult) bool {
	applied := false
	x.g.write(func(e *emitter) {
		if !x.lc.current(gen) {
			return
		}
		chunks := x.resp.Chunks
		x.resp = HTTPResponse{
			Present:    true,
			StatusCode: res.StatusCode,
			StatusText: res.StatusText,
			Headers:    append([]Header(nil), res.Headers...),
			Raw:        res.Body,
			Preview:    TruncatePreview(res.Body, res.PreviewLimit),
			Chunks:     chunks,
			Elapsed:    res.Elapsed,
			SizeBytes:  int64(len(res.Body)),
			IssuedAt:   x.startedAt,
		}
		x.resp.FormattedSize = FormatSize(x.resp.SizeBytes)
		x.resp.FormattedElapsed = FormatElapsed(x.resp.Elapsed)
		x.lc.status = Completed
		applied = true
		e.emit(FieldResponse, FieldStatus)
	})
	return applied
}

// FailAttempt records a transport failure for attempt gen.
func (x *HTTPExchange) FailAttempt(gen Generation, f Failure, elapsed time.Duration) bool {
	applied := false
	x.g.write(func(e *emitter) {
		if !x.lc.current(gen) {
			return
		}
		x.resp = HTTPResponse{
			Chunks:           x.resp.Chunks,
			Elapsed:          elapsed,
			IssuedAt:         x.startedAt,
			Failure:          &f,
			FormattedElapsed: FormatElapsed(elapsed),
		}
		x.lc.status = Failed
		applied = true
		e.emit(FieldResponse, FieldStatus)
	})
	return applied
}

// CancelAttempt cancels the running attempt and returns the generation it
// cancelled. It is a no-op unless the exchange is InFlight. After it
// returns no write-back of the cancelled attempt can land.
func (x *HTTPExchange) CancelAttempt() (Generation, bool) {
	var (
		gen Generation
		ok  bool
	)
	x.g.write(func(e *emitter) {
		if gen, ok = x.lc.cancel(); ok {
			e.emit(FieldStatus)
		}
	})
	return gen, ok
}

// recompute refreshes derived fields. Callers hold the write lock.
func (x *HTTPExchange) recompute(e *emitter) {
	next := buildEffectiveTarget(x.baseTarget, x.query.enabledLocked())
	if next != x.effectiveTarget {
		x.effectiveTarget = next
		e.emit(FieldEffectiveTarget)
	}
}

// buildEffectiveTarget appends percent-encoded pairs to base. Keys that
// also appear in base's own query string are sent twice.
func buildEffectiveTarget(base string, params []Entry) string {
	if len(params) == 0 {
		return base
	}
	var b strings.Builder
	b.WriteString(base)
	if strings.Contains(base, "?") {
		b.WriteByte('&')
	} else {
		b.WriteByte('?')
	}
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}
