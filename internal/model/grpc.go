package model

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/shhac/wirebench/internal/errors"
	"github.com/tidwall/jsonc"
)

// PreparedGRPC is the call frozen at the start of an attempt.
type PreparedGRPC struct {
	Target     string
	Descriptor string
	Service    string
	Method     string
	Payload    string // JSON with comments stripped
	Metadata   []Header
}

// GRPCResult is what the transport produced for one unary call.
type GRPCResult struct {
	Payload    string
	Headers    []Header
	Trailers   []Header
	StatusCode string
	Elapsed    time.Duration
}

// GRPCCall is the record behind a gRPC tab.
type GRPCCall struct {
	g  guard
	id string

	target     string
	descriptor string
	service    string
	method     string
	metadata   *FieldBag
	payload    string

	services        []string
	methodsBySvc    map[string][]string
	methods         []string
	descriptorError string

	lc        lifecycle
	startedAt time.Time
	response  string
	headers   []Header
	trailers  []Header
	code      string
	elapsed   time.Duration
	issuedAt  time.Time
	failure   *Failure
}

// NewGRPCCall returns an idle call with no descriptor loaded.
func NewGRPCCall() *GRPCCall {
	c := &GRPCCall{id: uuid.NewString()}
	c.metadata = newOwnedBag(&c.g, true, func(e *emitter) { e.emit(FieldMetadata) })
	return c
}

// Subscribe registers an observer for changes to the call.
func (c *GRPCCall) Subscribe(fn Observer) (unsubscribe func()) {
	return c.g.Subscribe(fn)
}

// ID returns the persistent record id.
func (c *GRPCCall) ID() string { return c.id }

// Metadata returns the request metadata table.
func (c *GRPCCall) Metadata() *FieldBag { return c.metadata }

func (c *GRPCCall) Target() string {
	return read(&c.g, func() string { return c.target })
}

func (c *GRPCCall) DescriptorSource() string {
	return read(&c.g, func() string { return c.descriptor })
}

func (c *GRPCCall) Service() string {
	return read(&c.g, func() string { return c.service })
}

func (c *GRPCCall) Method() string {
	return read(&c.g, func() string { return c.method })
}

func (c *GRPCCall) RequestPayload() string {
	return read(&c.g, func() string { return c.payload })
}

func (c *GRPCCall) ResponsePayload() string {
	return read(&c.g, func() string { return c.response })
}

func (c *GRPCCall) Status() LifecycleState {
	return read(&c.g, func() LifecycleState { return c.lc.status })
}

func (c *GRPCCall) Generation() Generation {
	return read(&c.g, func() Generation { return c.lc.gen })
}

// DiscoveredServices lists the services of the loaded descriptor.
func (c *GRPCCall) DiscoveredServices() []string {
	return read(&c.g, func() []string { return slices.Clone(c.services) })
}

// DiscoveredMethods lists the methods of the selected service.
func (c *GRPCCall) DiscoveredMethods() []string {
	return read(&c.g, func() []string { return slices.Clone(c.methods) })
}

// DescriptorError is the message of the last failed descriptor load.
func (c *GRPCCall) DescriptorError() string {
	return read(&c.g, func() string { return c.descriptorError })
}

// StatusCode is the gRPC code name of the last resolved call.
func (c *GRPCCall) StatusCode() string {
	return read(&c.g, func() string { return c.code })
}

// Elapsed is the duration of the last resolved call.
func (c *GRPCCall) Elapsed() time.Duration {
	return read(&c.g, func() time.Duration { return c.elapsed })
}

// IssuedAt is the start time of the last resolved call.
func (c *GRPCCall) IssuedAt() time.Time {
	return read(&c.g, func() time.Time { return c.issuedAt })
}

// ResponseHeaders returns the response header metadata.
func (c *GRPCCall) ResponseHeaders() []Header {
	return read(&c.g, func() []Header { return slices.Clone(c.headers) })
}

// ResponseTrailers returns the response trailer metadata.
func (c *GRPCCall) ResponseTrailers() []Header {
	return read(&c.g, func() []Header { return slices.Clone(c.trailers) })
}

// Failure returns the failure of the last call, if it failed.
func (c *GRPCCall) Failure() *Failure {
	c.g.mu.RLock()
	defer c.g.mu.RUnlock()
	if c.failure == nil {
		return nil
	}
	f := *c.failure
	return &f
}

func (c *GRPCCall) SetTarget(target string) {
	c.g.write(func(e *emitter) {
		c.target = target
		e.emit(FieldTarget)
	})
}

// SetDescriptorSource records the descriptor path without loading it.
func (c *GRPCCall) SetDescriptorSource(source string) {
	c.g.write(func(e *emitter) {
		c.descriptor = source
		e.emit(FieldDescriptor)
	})
}

func (c *GRPCCall) SetRequestPayload(payload string) {
	c.g.write(func(e *emitter) {
		c.payload = payload
		e.emit(FieldPayload)
	})
}

// SetCatalog installs the services and methods discovered from source.
// The current service and method are kept when still present.
func (c *GRPCCall) SetCatalog(source string, services []string, methods map[string][]string) {
	c.g.write(func(e *emitter) {
		c.descriptor = source
		c.descriptorError = ""
		c.services = slices.Clone(services)
		c.methodsBySvc = make(map[string][]string, len(methods))
		for svc, ms := range methods {
			c.methodsBySvc[svc] = slices.Clone(ms)
		}
		if !slices.Contains(c.services, c.service) {
			c.service = ""
			e.emit(FieldService)
		}
		e.emit(FieldDescriptor, FieldServices)
		c.rescope(e)
	})
}

// SetDescriptorError records a failed descriptor load and clears discovery
// together with the selected service and method.
func (c *GRPCCall) SetDescriptorError(source, msg string) {
	c.g.write(func(e *emitter) {
		c.descriptor = source
		c.descriptorError = msg
		c.services = nil
		c.methodsBySvc = nil
		if c.service != "" {
			c.service = ""
			e.emit(FieldService)
		}
		e.emit(FieldDescriptor, FieldServices)
		c.rescope(e)
	})
}

// SetService selects a discovered service and recomputes the method list
// in the same change. A method that is not part of the new service is
// cleared. Without a loaded descriptor only the empty name is accepted.
func (c *GRPCCall) SetService(name string) error {
	return c.g.writeErr(func(e *emitter) error {
		switch {
		case name == "":
		case c.methodsBySvc == nil:
			return apperrors.InvalidInput("grpc.set_service", "no descriptor loaded; cannot select service %q", name)
		case !slices.Contains(c.services, name):
			return apperrors.InvalidInput("grpc.set_service", "service %q is not in the loaded descriptor", name)
		}
		c.service = name
		e.emit(FieldService)
		c.rescope(e)
		return nil
	})
}

// SetMethod selects one of DiscoveredMethods, or clears the selection.
func (c *GRPCCall) SetMethod(name string) error {
	return c.g.writeErr(func(e *emitter) error {
		if name != "" && !slices.Contains(c.methods, name) {
			return apperrors.InvalidInput("grpc.set_method", "method %q is not offered by service %q", name, c.service)
		}
		c.method = name
		e.emit(FieldMethod)
		return nil
	})
}

// rescope recomputes DiscoveredMethods for the current service and drops a
// method that is no longer among them. Callers hold the write lock.
func (c *GRPCCall) rescope(e *emitter) {
	next := c.methodsBySvc[c.service]
	if !slices.Equal(next, c.methods) {
		c.methods = slices.Clone(next)
		e.emit(FieldMethods)
	}
	if c.method != "" && !slices.Contains(c.methods, c.method) {
		c.method = ""
		e.emit(FieldMethod)
	}
}

// NormalizePayload validates a JSON request payload. Comments and trailing
// commas are accepted and stripped. A blank payload is an empty message.
func NormalizePayload(payload string) (string, error) {
	if strings.TrimSpace(payload) == "" {
		return "{}", nil
	}
	clean := jsonc.ToJSON([]byte(payload))
	if !json.Valid(clean) {
		return "", apperrors.ValidationError{Field: "payload", Message: "request payload is not valid JSON"}
	}
	return string(clean), nil
}

// BeginAttempt validates the call and moves it to InFlight.
func (c *GRPCCall) BeginAttempt(now time.Time) (Generation, PreparedGRPC, error) {
	var (
		gen  Generation
		call PreparedGRPC
	)
	err := c.g.writeErr(func(e *emitter) error {
		switch {
		case c.service == "":
			return apperrors.InvalidInput("grpc.invoke", "no service selected")
		case c.method == "":
			return apperrors.InvalidInput("grpc.invoke", "no method selected")
		case strings.TrimSpace(c.target) == "":
			return apperrors.InvalidInput("grpc.invoke", "target address is empty")
		}
		payload, err := NormalizePayload(c.payload)
		if err != nil {
			return err
		}
		g, err := c.lc.begin("grpc.invoke")
		if err != nil {
			return err
		}
		gen = g
		var md []Header
		for _, en := range c.metadata.enabledLocked() {
			md = append(md, Header{Name: en.Key, Value: en.Value})
		}
		call = PreparedGRPC{
			Target:     c.target,
			Descriptor: c.descriptor,
			Service:    c.service,
			Method:     c.method,
			Payload:    payload,
			Metadata:   md,
		}
		c.startedAt = now
		e.emit(FieldStatus)
		return nil
	})
	return gen, call, err
}

// CompleteAttempt writes the response of attempt gen.
func (c *GRPCCall) CompleteAttempt(gen Generation, res GRPCResult) bool {
	applied := false
	c.g.write(func(e *emitter) {
		if !c.lc.current(gen) {
			return
		}
		c.response = res.Payload
		c.headers = slices.Clone(res.Headers)
		c.trailers = slices.Clone(res.Trailers)
		c.code = res.StatusCode
		if c.code == "" {
			c.code = "OK"
		}
		c.elapsed = res.Elapsed
		c.issuedAt = c.startedAt
		c.failure = nil
		c.lc.status = Completed
		applied = true
		e.emit(FieldResponse, FieldStatus)
	})
	return applied
}

// FailAttempt records the failure of attempt gen. code is the gRPC code
// name when the server answered with an error status.
func (c *GRPCCall) FailAttempt(gen Generation, code string, f Failure, res GRPCResult) bool {
	applied := false
	c.g.write(func(e *emitter) {
		if !c.lc.current(gen) {
			return
		}
		c.response = ""
		c.headers = slices.Clone(res.Headers)
		c.trailers = slices.Clone(res.Trailers)
		c.code = code
		c.elapsed = res.Elapsed
		c.issuedAt = c.startedAt
		c.failure = &f
		c.lc.status = Failed
		applied = true
		e.emit(FieldResponse, FieldStatus)
	})
	return applied
}

// CancelAttempt cancels the running call and returns the generation it
// cancelled. It is a no-op unless InFlight.
func (c *GRPCCall) CancelAttempt() (Generation, bool) {
	var (
		gen Generation
		ok  bool
	)
	c.g.write(func(e *emitter) {
		if gen, ok = c.lc.cancel(); ok {
			e.emit(FieldStatus)
		}
	})
	return gen, ok
}
