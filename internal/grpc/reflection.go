package grpc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/protobuf/reflect/protoregistry"

	apperrors "github.com/shhac/wirebench/internal/errors"
)

func isReflectionService(name string) bool {
	return name == "grpc.reflection.v1alpha.ServerReflection" ||
		name == "grpc.reflection.v1.ServerReflection"
}

// loadReflection resolves every service the server at addr advertises.
// It auto-detects v1 and v1alpha reflection and tolerates servers with
// incomplete descriptors by falling back to the local registry.
func (l *Loader) loadReflection(ctx context.Context, addr string) ([]*desc.ServiceDescriptor, error) {
	if l.pool == nil {
		return nil, apperrors.New(apperrors.KindInvalidState, "grpc.reflection", "no connection pool configured")
	}
	conn, err := l.pool.Get(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrConnectionFailed, err)
	}

	l.logger.Debug("listing services via reflection", slog.String("address", addr))

	refClient := grpcreflect.NewClientAuto(ctx, conn)
	defer refClient.Reset()

	// Permissive mode for servers with broken or partial descriptors
	refClient.AllowFallbackResolver(protoregistry.GlobalFiles, protoregistry.GlobalTypes)
	refClient.AllowMissingFileDescriptors()

	names, err := refClient.ListServices()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrReflectionUnavailable, err)
	}

	var sds []*desc.ServiceDescriptor
	for _, name := range names {
		if isReflectionService(name) {
			l.logger.Debug("skipping internal reflection service", slog.String("service", name))
			continue
		}
		sd, err := refClient.ResolveService(name)
		if err != nil {
			l.logger.Warn("failed to resolve service",
				slog.String("service", name),
				slog.Any("error", err),
			)
			continue
		}
		sds = append(sds, sd)
	}
	return sds, nil
}
