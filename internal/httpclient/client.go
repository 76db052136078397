// Package httpclient sends HTTP requests for the execution controller.
package httpclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	apperrors "github.com/shhac/wirebench/internal/errors"
	"github.com/shhac/wirebench/internal/execution"
	"github.com/shhac/wirebench/internal/model"
)

const chunkSize = 32 * 1024

// Options configures the underlying http.Client.
type Options struct {
	Timeout            time.Duration
	FollowRedirects    bool
	InsecureSkipVerify bool
	ProxyURL           string
}

// DefaultOptions follows redirects with a 30 second timeout.
func DefaultOptions() Options {
	return Options{Timeout: 30 * time.Second, FollowRedirects: true}
}

// Client implements execution.HTTPTransport.
type Client struct {
	client *http.Client
	logger *slog.Logger
}

var _ execution.HTTPTransport = (*Client)(nil)

// New builds a client from opts.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	hc, err := buildHTTPClient(opts)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{client: hc, logger: logger}, nil
}

// SendHTTP performs req and streams the body to onChunk as it is read.
// Any status code is a response; only transport problems are errors.
func (c *Client) SendHTTP(ctx context.Context, req execution.HTTPRequest, onChunk func(string)) (execution.HTTPResponse, error) {
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.Target, body)
	if err != nil {
		return execution.HTTPResponse{}, apperrors.Wrap(apperrors.KindInvalidInput, "http.send", err)
	}
	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, "Host") {
			httpReq.Host = h.Value
			continue
		}
		httpReq.Header.Set(h.Name, h.Value)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return execution.HTTPResponse{Duration: time.Since(start)}, apperrors.Wrap(apperrors.KindTransportFailure, "http.send", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var sb strings.Builder
	buf := make([]byte, chunkSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			sb.WriteString(chunk)
			if onChunk != nil {
				onChunk(chunk)
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return execution.HTTPResponse{Duration: time.Since(start)}, apperrors.Wrap(apperrors.KindTransportFailure, "http.read_body", rerr)
		}
	}
	duration := time.Since(start)

	c.logger.Debug("http response",
		slog.String("method", req.Method),
		slog.String("target", req.Target),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", sb.Len()),
	)

	return execution.HTTPResponse{
		StatusCode: resp.StatusCode,
		Status:     statusText(resp),
		Headers:    flattenHeaders(resp.Header),
		Body:       sb.String(),
		Duration:   duration,
	}, nil
}

// statusText strips the numeric code from resp.Status ("404 Not Found").
func statusText(resp *http.Response) string {
	if _, text, ok := strings.Cut(resp.Status, " "); ok {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

func flattenHeaders(h http.Header) []model.Header {
	names := slices.Sorted(maps.Keys(h))
	out := make([]model.Header, 0, len(h))
	for _, name := range names {
		out = append(out, model.Header{Name: name, Value: strings.Join(h.Values(name), ", ")})
	}
	return out
}
