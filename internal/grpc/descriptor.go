package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/shhac/wirebench/internal/domain"
	apperrors "github.com/shhac/wirebench/internal/errors"
)

// ReflectScheme prefixes descriptor sources served by server reflection.
const ReflectScheme = "reflect://"

// SourceKind says where a descriptor source is read from.
type SourceKind int

const (
	SourceProto SourceKind = iota
	SourceProtoset
	SourceReflection
)

func (k SourceKind) String() string {
	switch k {
	case SourceProto:
		return "proto"
	case SourceProtoset:
		return "protoset"
	case SourceReflection:
		return "reflection"
	default:
		return "unknown"
	}
}

// Source is a parsed descriptor source. Location is a file path or, for
// reflection, a host:port.
type Source struct {
	Kind     SourceKind
	Location string
}

// ParseSource classifies a descriptor source string.
func ParseSource(raw string) (Source, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Source{}, apperrors.InvalidInput("grpc.descriptor", "descriptor source is empty")
	}
	if addr, ok := strings.CutPrefix(s, ReflectScheme); ok {
		if addr == "" {
			return Source{}, apperrors.InvalidInput("grpc.descriptor", "reflection source %q has no address", raw)
		}
		return Source{Kind: SourceReflection, Location: addr}, nil
	}
	switch strings.ToLower(filepath.Ext(s)) {
	case ".proto":
		return Source{Kind: SourceProto, Location: s}, nil
	case ".protoset", ".pb", ".desc":
		return Source{Kind: SourceProtoset, Location: s}, nil
	}
	return Source{}, apperrors.InvalidInput("grpc.descriptor",
		"unsupported descriptor source %q (want .proto, .protoset or %shost:port)", raw, ReflectScheme)
}

// Catalog is the set of services a descriptor source offers.
type Catalog struct {
	Source   Source
	services map[string]*desc.ServiceDescriptor
}

func newCatalog(src Source, sds []*desc.ServiceDescriptor) *Catalog {
	c := &Catalog{Source: src, services: make(map[string]*desc.ServiceDescriptor, len(sds))}
	for _, sd := range sds {
		name := sd.GetFullyQualifiedName()
		if isReflectionService(name) {
			continue
		}
		c.services[name] = sd
	}
	return c
}

// Services returns the fully qualified service names, sorted.
func (c *Catalog) Services() []string {
	names := make([]string, 0, len(c.services))
	for name := range c.services {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Methods returns the method names of service in declaration order.
func (c *Catalog) Methods(service string) ([]string, error) {
	sd, ok := c.services[service]
	if !ok {
		return nil, apperrors.InvalidInput("grpc.methods", "service %q not found", service)
	}
	var names []string
	for _, md := range sd.GetMethods() {
		names = append(names, md.GetName())
	}
	return names, nil
}

// Describe summarises every service and its methods, sorted by service.
func (c *Catalog) Describe() []domain.Service {
	out := make([]domain.Service, 0, len(c.services))
	for _, name := range c.Services() {
		sd := c.services[name]
		svc := domain.Service{Name: sd.GetName(), FullName: name}
		for _, md := range sd.GetMethods() {
			svc.Methods = append(svc.Methods, domain.Method{
				Name:           md.GetName(),
				FullName:       md.GetFullyQualifiedName(),
				InputType:      md.GetInputType().GetFullyQualifiedName(),
				OutputType:     md.GetOutputType().GetFullyQualifiedName(),
				IsClientStream: md.IsClientStreaming(),
				IsServerStream: md.IsServerStreaming(),
			})
		}
		out = append(out, svc)
	}
	return out
}

// Method looks up service/method.
func (c *Catalog) Method(service, method string) (*desc.MethodDescriptor, error) {
	sd, ok := c.services[service]
	if !ok {
		return nil, apperrors.InvalidInput("grpc.method", "service %q not found", service)
	}
	md := sd.FindMethodByName(method)
	if md == nil {
		return nil, apperrors.InvalidInput("grpc.method", "method %s not found in service %s", method, service)
	}
	return md, nil
}

// Loader loads and caches catalogs per source string.
type Loader struct {
	pool   *ConnectionPool
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]*Catalog
}

// NewLoader returns a loader that uses pool for reflection sources.
func NewLoader(pool *ConnectionPool, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{pool: pool, logger: logger, cache: make(map[string]*Catalog)}
}

// Get returns the cached catalog of raw, loading it on first use.
func (l *Loader) Get(ctx context.Context, raw string) (*Catalog, error) {
	l.mu.Lock()
	c, ok := l.cache[raw]
	l.mu.Unlock()
	if ok {
		return c, nil
	}
	return l.Reload(ctx, raw)
}

// Reload loads raw again and replaces the cached catalog.
func (l *Loader) Reload(ctx context.Context, raw string) (*Catalog, error) {
	src, err := ParseSource(raw)
	if err != nil {
		return nil, err
	}

	var sds []*desc.ServiceDescriptor
	switch src.Kind {
	case SourceProto:
		sds, err = loadProto(src.Location)
	case SourceProtoset:
		sds, err = loadProtoset(src.Location)
	case SourceReflection:
		sds, err = l.loadReflection(ctx, src.Location)
	}
	if err != nil {
		l.logger.Error("failed to load descriptor",
			slog.String("source", raw),
			slog.Any("error", err),
		)
		return nil, err
	}

	c := newCatalog(src, sds)
	l.mu.Lock()
	l.cache[raw] = c
	l.mu.Unlock()

	l.logger.Info("discovered services",
		slog.String("source", raw),
		slog.String("kind", src.Kind.String()),
		slog.Int("count", len(c.services)),
	)
	return c, nil
}

// Forget drops the cached catalog of raw.
func (l *Loader) Forget(raw string) {
	l.mu.Lock()
	delete(l.cache, raw)
	l.mu.Unlock()
}

func loadProto(path string) ([]*desc.ServiceDescriptor, error) {
	parser := protoparse.Parser{
		ImportPaths: []string{filepath.Dir(path)},
	}
	fds, err := parser.ParseFiles(filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidDescriptor, err)
	}
	var sds []*desc.ServiceDescriptor
	for _, fd := range fds {
		sds = append(sds, fd.GetServices()...)
	}
	return sds, nil
}

func loadProtoset(path string) ([]*desc.ServiceDescriptor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read protoset: %w", err)
	}
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(b, &set); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", apperrors.ErrInvalidDescriptor, filepath.Base(path), err)
	}
	files, err := desc.CreateFileDescriptorsFromSet(&set)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidDescriptor, err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)

	var sds []*desc.ServiceDescriptor
	for _, name := range names {
		sds = append(sds, files[name].GetServices()...)
	}
	return sds, nil
}
