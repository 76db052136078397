package telemetry

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/shhac/wirebench/internal/telemetry"

// Instrumenter wraps request attempts in spans.
type Instrumenter interface {
	Start(ctx context.Context, info RequestStart) (context.Context, RequestSpan)
	Shutdown(ctx context.Context) error
}

// RequestStart describes an attempt as it begins.
type RequestStart struct {
	Protocol string // "http", "websocket" or "grpc"
	Method   string // HTTP verb or gRPC "Service/Method"
	Target   string
	TabID    string
}

// RequestResult describes how an attempt resolved.
type RequestResult struct {
	Err        error
	StatusCode int    // HTTP status
	GRPCCode   string // gRPC code name
	Bytes      int64
	Cancelled  bool
}

// RequestSpan is ended exactly once per attempt.
type RequestSpan interface {
	End(result RequestResult)
}

type providerOptions struct {
	exporter       sdktrace.SpanExporter
	spanProcessors []sdktrace.SpanProcessor
}

// Option configures New.
type Option func(*providerOptions)

// WithSpanProcessor adds a span processor, e.g. a recorder in tests.
func WithSpanProcessor(proc sdktrace.SpanProcessor) Option {
	return func(opts *providerOptions) {
		if proc != nil {
			opts.spanProcessors = append(opts.spanProcessors, proc)
		}
	}
}

// WithExporter replaces the OTLP exporter.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(opts *providerOptions) {
		if exp != nil {
			opts.exporter = exp
		}
	}
}

type manager struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	shutdown sync.Once
}

// New builds an instrumenter. Without an endpoint, exporter or span
// processor it returns Noop.
func New(cfg Config, opts ...Option) (Instrumenter, error) {
	builder := providerOptions{}
	for _, opt := range opts {
		opt(&builder)
	}

	if !cfg.Enabled() && builder.exporter == nil && len(builder.spanProcessors) == 0 {
		return Noop(), nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(semconv.ServiceName(cfg.serviceName())),
	)
	if err != nil {
		return nil, err
	}

	exporter := builder.exporter
	if exporter == nil && cfg.Enabled() {
		exporter, err = newExporter(cfg)
		if err != nil {
			return nil, err
		}
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	for _, proc := range builder.spanProcessors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(proc))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	return &manager{tracer: tp.Tracer(tracerName), provider: tp}, nil
}

func (m *manager) Start(ctx context.Context, info RequestStart) (context.Context, RequestSpan) {
	ctx, span := m.tracer.Start(
		ctx,
		spanName(info),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(spanAttributes(info)...),
	)
	return ctx, &requestSpan{span: span}
}

func (m *manager) Shutdown(ctx context.Context) error {
	var err error
	m.shutdown.Do(func() {
		err = m.provider.Shutdown(ctx)
	})
	return err
}

type requestSpan struct {
	span trace.Span
	once sync.Once
}

func (rs *requestSpan) End(result RequestResult) {
	rs.once.Do(func() {
		if result.StatusCode > 0 {
			rs.span.SetAttributes(semconv.HTTPStatusCodeKey.Int(result.StatusCode))
		}
		if result.GRPCCode != "" {
			rs.span.SetAttributes(attribute.String("rpc.grpc.status", result.GRPCCode))
		}
		if result.Bytes > 0 {
			rs.span.SetAttributes(attribute.Int64("wirebench.response.bytes", result.Bytes))
		}

		switch {
		case result.Cancelled:
			rs.span.SetAttributes(attribute.Bool("wirebench.cancelled", true))
			rs.span.SetStatus(codes.Unset, "cancelled")
		case result.Err != nil:
			rs.span.RecordError(result.Err)
			rs.span.SetStatus(codes.Error, result.Err.Error())
		case result.StatusCode >= 400:
			rs.span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(result.StatusCode))
		default:
			rs.span.SetStatus(codes.Ok, "OK")
		}
		rs.span.End()
	})
}

// Noop returns an instrumenter that records nothing.
func Noop() Instrumenter {
	return noopInstrumenter{}
}

type noopInstrumenter struct{}

type noopSpan struct{}

func (noopInstrumenter) Start(ctx context.Context, _ RequestStart) (context.Context, RequestSpan) {
	return ctx, noopSpan{}
}

func (noopInstrumenter) Shutdown(context.Context) error { return nil }

func (noopSpan) End(RequestResult) {}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("telemetry endpoint is required")
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	clientOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		clientOpts = append(clientOpts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return otlptrace.New(ctx, otlptracegrpc.NewClient(clientOpts...))
}

func spanAttributes(info RequestStart) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("wirebench.protocol", info.Protocol),
	}
	if info.TabID != "" {
		attrs = append(attrs, attribute.String("wirebench.tab_id", info.TabID))
	}
	switch info.Protocol {
	case "http":
		if info.Method != "" {
			attrs = append(attrs, semconv.HTTPMethodKey.String(info.Method))
		}
		if info.Target != "" {
			attrs = append(attrs, semconv.HTTPURLKey.String(info.Target))
		}
	case "grpc":
		attrs = append(attrs, semconv.RPCSystemGRPC)
		if svc, method, ok := strings.Cut(info.Method, "/"); ok {
			attrs = append(attrs, semconv.RPCService(svc), semconv.RPCMethod(method))
		}
		if info.Target != "" {
			attrs = append(attrs, attribute.String("server.address", info.Target))
		}
	default:
		if info.Target != "" {
			attrs = append(attrs, attribute.String("url.full", info.Target))
		}
	}
	return attrs
}

func spanName(info RequestStart) string {
	switch {
	case info.Protocol == "http" && info.Method != "":
		return "HTTP " + info.Method
	case info.Protocol == "grpc" && info.Method != "":
		return info.Method
	case info.Protocol != "":
		return info.Protocol + ".request"
	}
	return "request"
}
