package execution

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	apperrors "github.com/shhac/wirebench/internal/errors"
	"github.com/shhac/wirebench/internal/model"
	"github.com/shhac/wirebench/internal/telemetry"
)

// Start sends the HTTP request of tab. Validation errors are returned;
// transport errors end up on the exchange as a Failed response.
func (c *Controller) Start(tab *model.Tab) (*Attempt, error) {
	const op = "execution.start"
	if err := requireKind(op, tab, model.KindHTTP); err != nil {
		return nil, err
	}
	if err := c.checkOpen(op); err != nil {
		return nil, err
	}
	if c.http == nil {
		return nil, apperrors.InvalidState(op, "no HTTP transport configured")
	}

	x := tab.HTTP()
	startedAt := c.now()
	gen, prepared, err := x.BeginAttempt(startedAt)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("sending request",
		slog.String("tab", tab.ID()),
		slog.String("method", string(prepared.Method)),
		slog.String("target", prepared.Target),
	)

	return c.launch(tab, gen, func(ctx context.Context, a *Attempt) {
		c.runHTTP(ctx, tab, a, prepared, startedAt)
	}), nil
}

// runHTTP sends req. Elapsed runs from startedAt, the instant the exchange
// recorded as IssuedAt, to the moment the response body was read.
func (c *Controller) runHTTP(ctx context.Context, tab *model.Tab, a *Attempt, req model.PreparedHTTP, startedAt time.Time) {
	x := tab.HTTP()
	ctx, span := c.tel.Start(ctx, telemetry.RequestStart{
		Protocol: "http",
		Method:   string(req.Method),
		Target:   req.Target,
		TabID:    tab.ID(),
	})

	resp, err := c.http.SendHTTP(ctx, HTTPRequest{
		Method:  string(req.Method),
		Target:  req.Target,
		Headers: req.Headers,
		Body:    req.Body,
	}, func(chunk string) {
		x.AppendChunk(a.Generation, chunk)
	})
	elapsed := c.now().Sub(startedAt)

	out := Outcome{
		TabID:     tab.ID(),
		Protocol:  model.KindHTTP,
		Method:    string(req.Method),
		Target:    req.Target,
		StartedAt: startedAt,
		Elapsed:   elapsed,
		Request:   req.Body,
	}

	if err != nil {
		applied := x.FailAttempt(a.Generation, model.FailureFrom(err), elapsed)
		out.Status = model.Failed
		out.Err = err
		if !applied {
			out.Status = model.Cancelled
		}
		span.End(telemetry.RequestResult{Err: err, Cancelled: !applied})
		if applied {
			c.logger.Error("request failed",
				slog.String("tab", tab.ID()),
				slog.String("target", req.Target),
				slog.Any("error", err),
			)
		}
		c.emit(out)
		return
	}

	applied := x.CompleteAttempt(a.Generation, model.HTTPResult{
		StatusCode:   resp.StatusCode,
		StatusText:   resp.Status,
		Headers:      resp.Headers,
		Body:         resp.Body,
		Elapsed:      elapsed,
		PreviewLimit: c.previewLimit,
	})
	out.StatusCode = strconv.Itoa(resp.StatusCode)
	out.Size = int64(len(resp.Body))
	out.Response = resp.Body
	out.Status = model.Completed
	if !applied {
		out.Status = model.Cancelled
	}
	span.End(telemetry.RequestResult{StatusCode: resp.StatusCode, Bytes: out.Size, Cancelled: !applied})

	if applied {
		c.logger.Info("request completed",
			slog.String("tab", tab.ID()),
			slog.String("method", string(req.Method)),
			slog.Int("status", resp.StatusCode),
			slog.Duration("duration", elapsed),
		)
	}
	c.emit(out)
}
