package grpc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"github.com/jhump/protoreflect/dynamic/grpcdynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/protoadapt"

	apperrors "github.com/shhac/wirebench/internal/errors"
)

// maxLoggedBody bounds payloads written to debug logs.
const maxLoggedBody = 2048

// UnaryResult is the outcome of a unary call. Headers and Trailers are set
// even when the call failed with a status.
type UnaryResult struct {
	Response string
	Headers  metadata.MD
	Trailers metadata.MD
}

// unaryCall is a decoded request ready to be sent on any connection.
type unaryCall struct {
	method  *desc.MethodDescriptor
	request *dynamic.Message
	md      metadata.MD
}

// prepareUnary checks that method is unary and decodes payload into its
// input type. Both failures are InvalidInput and happen before any dial.
func prepareUnary(method *desc.MethodDescriptor, payload string, md metadata.MD) (*unaryCall, error) {
	name := method.GetFullyQualifiedName()
	if method.IsClientStreaming() || method.IsServerStreaming() {
		return nil, apperrors.InvalidInput("grpc.invoke", "%s is a streaming method; only unary calls are supported", name)
	}
	req := dynamic.NewMessage(method.GetInputType())
	if err := req.UnmarshalJSON([]byte(payload)); err != nil {
		return nil, apperrors.ValidationError{Field: "payload", Message: "invalid request JSON: " + err.Error()}
	}
	return &unaryCall{method: method, request: req, md: md}, nil
}

// invoke sends the call over conn and renders the reply as JSON.
func (c *unaryCall) invoke(ctx context.Context, conn *grpc.ClientConn, logger *slog.Logger) (UnaryResult, error) {
	name := c.method.GetFullyQualifiedName()
	log := logger.With(slog.String("method", name))
	if log.Enabled(ctx, slog.LevelDebug) {
		body, _ := c.request.MarshalJSON()
		log.Debug("invoking unary RPC", slog.String("request", clip(string(body))))
	}

	if len(c.md) > 0 {
		ctx = metadata.NewOutgoingContext(ctx, c.md)
	}
	var res UnaryResult
	reply, err := grpcdynamic.NewStub(conn).InvokeRpc(ctx, c.method, c.request,
		grpc.Header(&res.Headers),
		grpc.Trailer(&res.Trailers),
	)
	if err != nil {
		log.Debug("RPC failed", slog.Any("error", err))
		return res, err
	}

	res.Response, err = encodeReply(reply)
	if err != nil {
		log.Error("failed to render reply", slog.Any("error", err))
		return res, fmt.Errorf("format response: %w", err)
	}
	log.Debug("unary RPC completed", slog.String("response", clip(res.Response)))
	return res, nil
}

// encodeReply renders a reply as JSON. Replies of well-known types come
// back as generated messages rather than dynamic ones.
func encodeReply(msg protoadapt.MessageV1) (string, error) {
	var (
		b   []byte
		err error
	)
	if dm, ok := msg.(*dynamic.Message); ok {
		b, err = dm.MarshalJSON()
	} else {
		b, err = protojson.Marshal(protoadapt.MessageV2Of(msg))
	}
	return string(b), err
}

func clip(s string) string {
	if len(s) <= maxLoggedBody {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes total)", s[:maxLoggedBody], len(s))
}
