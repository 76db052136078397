package execution

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc/status"

	apperrors "github.com/shhac/wirebench/internal/errors"
	"github.com/shhac/wirebench/internal/model"
	"github.com/shhac/wirebench/internal/telemetry"
)

// LoadDescriptor discovers the services and methods offered by source and
// installs them on the call of tab. On failure the call keeps the error
// and loses its catalog.
func (c *Controller) LoadDescriptor(ctx context.Context, tab *model.Tab, source string) error {
	const op = "execution.load_descriptor"
	if err := requireKind(op, tab, model.KindGRPC); err != nil {
		return err
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return apperrors.InvalidInput(op, "descriptor source is empty")
	}
	if c.grpc == nil {
		return apperrors.InvalidState(op, "no gRPC transport configured")
	}

	call := tab.GRPC()
	services, err := c.grpc.ListServices(ctx, source)
	if err != nil {
		return c.descriptorFailed(tab, source, err)
	}

	methods := make(map[string][]string, len(services))
	for _, svc := range services {
		ms, err := c.grpc.ListMethods(ctx, source, svc)
		if err != nil {
			return c.descriptorFailed(tab, source, err)
		}
		methods[svc] = ms
	}

	call.SetCatalog(source, services, methods)
	c.logger.Info("descriptor loaded",
		slog.String("tab", tab.ID()),
		slog.String("source", source),
		slog.Int("service_count", len(services)),
	)
	return nil
}

func (c *Controller) descriptorFailed(tab *model.Tab, source string, err error) error {
	tab.GRPC().SetDescriptorError(source, model.FailureFrom(err).Message)
	c.logger.Error("failed to load descriptor",
		slog.String("tab", tab.ID()),
		slog.String("source", source),
		slog.Any("error", err),
	)
	return apperrors.Wrap(apperrors.KindTransportFailure, "execution.load_descriptor", err)
}

// SelectService selects a service on the call of tab and rescopes its
// method list.
func (c *Controller) SelectService(tab *model.Tab, name string) error {
	if err := requireKind("execution.select_service", tab, model.KindGRPC); err != nil {
		return err
	}
	return tab.GRPC().SetService(name)
}

// SelectMethod selects a method of the current service.
func (c *Controller) SelectMethod(tab *model.Tab, name string) error {
	if err := requireKind("execution.select_method", tab, model.KindGRPC); err != nil {
		return err
	}
	return tab.GRPC().SetMethod(name)
}

// Invoke runs the unary call of tab.
func (c *Controller) Invoke(tab *model.Tab) (*Attempt, error) {
	const op = "execution.invoke"
	if err := requireKind(op, tab, model.KindGRPC); err != nil {
		return nil, err
	}
	if err := c.checkOpen(op); err != nil {
		return nil, err
	}
	if c.grpc == nil {
		return nil, apperrors.InvalidState(op, "no gRPC transport configured")
	}

	startedAt := c.now()
	gen, prepared, err := tab.GRPC().BeginAttempt(startedAt)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("sending request",
		slog.String("tab", tab.ID()),
		slog.String("service", prepared.Service),
		slog.String("method", prepared.Method),
	)

	return c.launch(tab, gen, func(ctx context.Context, a *Attempt) {
		c.runGRPC(ctx, tab, a, prepared, startedAt)
	}), nil
}

func (c *Controller) runGRPC(ctx context.Context, tab *model.Tab, a *Attempt, call model.PreparedGRPC, startedAt time.Time) {
	rpc := tab.GRPC()
	fullMethod := call.Service + "/" + call.Method
	ctx, span := c.tel.Start(ctx, telemetry.RequestStart{
		Protocol: "grpc",
		Method:   fullMethod,
		Target:   call.Target,
		TabID:    tab.ID(),
	})

	resp, err := c.grpc.InvokeUnary(ctx, GRPCRequest{
		Target:     call.Target,
		Descriptor: call.Descriptor,
		Service:    call.Service,
		Method:     call.Method,
		Payload:    call.Payload,
		Metadata:   call.Metadata,
	})
	elapsed := c.now().Sub(startedAt)

	res := model.GRPCResult{
		Payload:  resp.Payload,
		Headers:  resp.Headers,
		Trailers: resp.Trailers,
		Elapsed:  elapsed,
	}
	out := Outcome{
		TabID:     tab.ID(),
		Protocol:  model.KindGRPC,
		Method:    fullMethod,
		Target:    call.Target,
		StartedAt: startedAt,
		Elapsed:   elapsed,
		Request:   call.Payload,
	}

	if err != nil {
		code, failure := grpcFailure(err)
		applied := rpc.FailAttempt(a.Generation, code, failure, res)
		out.Status, out.StatusCode, out.Err = model.Failed, code, err
		if !applied {
			out.Status = model.Cancelled
		} else {
			c.logger.Error("RPC invocation failed",
				slog.String("tab", tab.ID()),
				slog.String("method", fullMethod),
				slog.String("code", code),
				slog.Any("error", err),
			)
		}
		span.End(telemetry.RequestResult{Err: err, GRPCCode: code, Cancelled: !applied})
		c.emit(out)
		return
	}

	res.StatusCode = "OK"
	applied := rpc.CompleteAttempt(a.Generation, res)
	out.StatusCode = "OK"
	out.Response = resp.Payload
	out.Size = int64(len(resp.Payload))
	out.Status = model.Completed
	if !applied {
		out.Status = model.Cancelled
	} else {
		c.logger.Info("RPC completed successfully",
			slog.String("tab", tab.ID()),
			slog.String("method", fullMethod),
			slog.Duration("duration", elapsed),
		)
	}
	span.End(telemetry.RequestResult{GRPCCode: "OK", Bytes: out.Size, Cancelled: !applied})
	c.emit(out)
}

// grpcFailure returns the status code name and the classified failure of
// err. Errors that carry no gRPC status have an empty code.
func grpcFailure(err error) (string, model.Failure) {
	st, ok := status.FromError(err)
	if !ok {
		return "", model.FailureFrom(err)
	}
	r := apperrors.ClassifyGRPC(err)
	if r == nil {
		return st.Code().String(), model.FailureFrom(err)
	}
	return st.Code().String(), model.Failure{Title: r.Title, Message: r.Message, Details: r.Details}
}
