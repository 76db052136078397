package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/shhac/wirebench/internal/errors"
	"github.com/shhac/wirebench/internal/model"
)

func TestStart_Completes(t *testing.T) {
	clock := newManualClock()
	began := clock.Now()
	transport := &fakeHTTP{fn: func(_ context.Context, _ HTTPRequest, onChunk func(string)) (HTTPResponse, error) {
		onChunk("hel")
		clock.advance(40 * time.Millisecond)
		onChunk("lo")
		// The transport's own timing excludes time spent before the dial.
		return HTTPResponse{StatusCode: 201, Status: "201 Created", Body: "hello", Duration: 3 * time.Millisecond}, nil
	}}
	var got outcomes
	c := New(WithHTTPTransport(transport), WithOutcomeHook(got.hook), WithClock(clock.Now))
	defer c.Close()

	tab := newTab(t, model.KindHTTP)
	x := tab.HTTP()
	require.NoError(t, x.SetMethod(model.MethodPost))
	x.SetBaseTarget("http://x/api")
	require.NoError(t, x.Query().Append("a", "1", true))
	x.SetBody(`{"n":1}`)

	a, err := c.Start(tab)
	require.NoError(t, err)
	wait(t, a)

	assert.Equal(t, model.Completed, x.Status())
	resp := x.Response()
	assert.True(t, resp.Present)
	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "hello", resp.Raw)
	assert.Equal(t, []string{"hel", "lo"}, resp.Chunks)
	assert.Equal(t, "40 ms", resp.FormattedElapsed)
	assert.Equal(t, began, resp.IssuedAt)
	assert.Equal(t, clock.Now().Sub(resp.IssuedAt), resp.Elapsed)

	reqs := transport.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "POST", reqs[0].Method)
	assert.Equal(t, "http://x/api?a=1", reqs[0].Target)
	assert.Equal(t, `{"n":1}`, reqs[0].Body)

	outs := got.list()
	require.Len(t, outs, 1)
	assert.Equal(t, model.Completed, outs[0].Status)
	assert.Equal(t, "201", outs[0].StatusCode)
	assert.Equal(t, int64(5), outs[0].Size)
	assert.Equal(t, tab.ID(), outs[0].TabID)
	assert.Equal(t, began, outs[0].StartedAt)
	assert.Equal(t, 40*time.Millisecond, outs[0].Elapsed)
}

func TestStart_Validation(t *testing.T) {
	c := New(WithHTTPTransport(&fakeHTTP{}))
	defer c.Close()

	_, err := c.Start(newTab(t, model.KindGRPC))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = c.Start(newTab(t, model.KindHTTP))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput, "empty target")

	_, err = New().Start(newTab(t, model.KindHTTP))
	assert.ErrorIs(t, err, apperrors.ErrInvalidState, "no transport")
}

func TestStart_SecondStartWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	transport := &fakeHTTP{fn: func(context.Context, HTTPRequest, func(string)) (HTTPResponse, error) {
		<-release
		return HTTPResponse{StatusCode: 200}, nil
	}}
	c := New(WithHTTPTransport(transport))
	defer c.Close()

	tab := newTab(t, model.KindHTTP)
	tab.HTTP().SetBaseTarget("http://x")

	a, err := c.Start(tab)
	require.NoError(t, err)
	_, err = c.Start(tab)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	close(release)
	wait(t, a)
	assert.Equal(t, model.Completed, tab.HTTP().Status())
}

func TestCancel_DropsLateResult(t *testing.T) {
	cancelled := make(chan struct{})
	transport := &fakeHTTP{fn: func(ctx context.Context, _ HTTPRequest, onChunk func(string)) (HTTPResponse, error) {
		<-ctx.Done()
		close(cancelled)
		onChunk("late")
		return HTTPResponse{StatusCode: 200, Body: "late"}, nil
	}}
	var got outcomes
	c := New(WithHTTPTransport(transport), WithOutcomeHook(got.hook))
	defer c.Close()

	tab := newTab(t, model.KindHTTP)
	x := tab.HTTP()
	x.SetBaseTarget("http://x")

	a, err := c.Start(tab)
	require.NoError(t, err)
	require.NoError(t, c.Cancel(tab))
	assert.Equal(t, model.Cancelled, x.Status())

	<-cancelled
	wait(t, a)
	assert.Equal(t, model.Cancelled, x.Status())
	assert.False(t, x.Response().Present)
	assert.Empty(t, x.Response().Chunks)

	outs := got.list()
	require.Len(t, outs, 1)
	assert.Equal(t, model.Cancelled, outs[0].Status)
}

func TestCancel_SparesNewerAttempt(t *testing.T) {
	release := make(chan struct{})
	transport := &fakeHTTP{fn: func(ctx context.Context, _ HTTPRequest, _ func(string)) (HTTPResponse, error) {
		select {
		case <-release:
			return HTTPResponse{StatusCode: 200, Status: "200 OK", Body: "fresh"}, nil
		case <-ctx.Done():
			return HTTPResponse{}, ctx.Err()
		}
	}}
	c := New(WithHTTPTransport(transport))
	defer c.Close()

	tab := newTab(t, model.KindHTTP)
	x := tab.HTTP()
	x.SetBaseTarget("http://x")

	first, err := c.Start(tab)
	require.NoError(t, err)
	stale, ok := x.CancelAttempt()
	require.True(t, ok)
	assert.Equal(t, first.Generation, stale)

	second, err := c.Start(tab)
	require.NoError(t, err)
	require.NotEqual(t, first.Generation, second.Generation)

	// The cancel of the first attempt lands after the second registered.
	c.cancelAttempt(tab.ID(), stale)
	close(release)
	wait(t, first)
	wait(t, second)

	assert.Equal(t, model.Completed, x.Status())
	assert.Equal(t, second.Generation, x.Generation())
	assert.Equal(t, "fresh", x.Response().Raw)
}

func TestCancel_IdleIsNoop(t *testing.T) {
	c := New(WithHTTPTransport(&fakeHTTP{}))
	defer c.Close()

	tab := newTab(t, model.KindHTTP)
	require.NoError(t, c.Cancel(tab))
	assert.Equal(t, model.Idle, tab.HTTP().Status())
	assert.Equal(t, model.Generation(0), tab.HTTP().Generation())
}

func TestStart_TransportFailure(t *testing.T) {
	transport := &fakeHTTP{fn: func(context.Context, HTTPRequest, func(string)) (HTTPResponse, error) {
		return HTTPResponse{}, errors.New("dial tcp 127.0.0.1:1: connect: connection refused")
	}}
	var got outcomes
	c := New(WithHTTPTransport(transport), WithOutcomeHook(got.hook))
	defer c.Close()

	tab := newTab(t, model.KindHTTP)
	tab.HTTP().SetBaseTarget("http://127.0.0.1:1")

	a, err := c.Start(tab)
	require.NoError(t, err, "transport errors are not returned")
	wait(t, a)

	assert.Equal(t, model.Failed, tab.HTTP().Status())
	f := tab.HTTP().Response().Failure
	require.NotNil(t, f)
	assert.NotEmpty(t, f.Title)

	outs := got.list()
	require.Len(t, outs, 1)
	assert.Equal(t, model.Failed, outs[0].Status)
	assert.Error(t, outs[0].Err)
}

func TestStart_APIKeyAuth(t *testing.T) {
	transport := &fakeHTTP{fn: func(context.Context, HTTPRequest, func(string)) (HTTPResponse, error) {
		return HTTPResponse{StatusCode: 204}, nil
	}}
	c := New(WithHTTPTransport(transport))
	defer c.Close()

	tab := newTab(t, model.KindHTTP)
	x := tab.HTTP()
	x.SetBaseTarget("http://x")
	require.NoError(t, x.Headers().Append("Accept", "application/json", true))
	require.NoError(t, x.Auth().SetKind(model.AuthAPIKey))
	x.Auth().SetAPIKey("", "k1")

	a, err := c.Start(tab)
	require.NoError(t, err)
	wait(t, a)

	reqs := transport.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []model.Header{
		{Name: "Accept", Value: "application/json"},
		{Name: "X-API-Key", Value: "k1"},
	}, reqs[0].Headers)
}

func TestClose_CancelsAndRejects(t *testing.T) {
	transport := &fakeHTTP{fn: func(ctx context.Context, _ HTTPRequest, _ func(string)) (HTTPResponse, error) {
		<-ctx.Done()
		return HTTPResponse{}, ctx.Err()
	}}
	c := New(WithHTTPTransport(transport))

	tab := newTab(t, model.KindHTTP)
	tab.HTTP().SetBaseTarget("http://x")
	a, err := c.Start(tab)
	require.NoError(t, err)

	c.Close()
	wait(t, a)
	assert.Equal(t, model.Cancelled, tab.HTTP().Status())

	_, err = c.Start(tab)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}
