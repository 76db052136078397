package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/shhac/wirebench/internal/errors"
	"github.com/shhac/wirebench/internal/model"
)

func greeter() *fakeGRPC {
	return &fakeGRPC{
		services: []string{"helloworld.Greeter", "ops.Health"},
		methods: map[string][]string{
			"helloworld.Greeter": {"SayHello", "SayGoodbye"},
			"ops.Health":         {"Check"},
		},
	}
}

func TestLoadDescriptor_InstallsCatalog(t *testing.T) {
	c := New(WithGRPCTransport(greeter()))
	defer c.Close()

	tab := newTab(t, model.KindGRPC)
	call := tab.GRPC()
	require.NoError(t, c.LoadDescriptor(context.Background(), tab, "greeter.proto"))

	assert.Equal(t, "greeter.proto", call.DescriptorSource())
	assert.Equal(t, []string{"helloworld.Greeter", "ops.Health"}, call.DiscoveredServices())
	assert.Empty(t, call.DiscoveredMethods())

	require.NoError(t, c.SelectService(tab, "helloworld.Greeter"))
	assert.Equal(t, []string{"SayHello", "SayGoodbye"}, call.DiscoveredMethods())
	require.NoError(t, c.SelectMethod(tab, "SayHello"))

	require.NoError(t, c.SelectService(tab, "ops.Health"))
	assert.Equal(t, []string{"Check"}, call.DiscoveredMethods())
	assert.Empty(t, call.Method(), "method of the previous service is cleared")

	assert.ErrorIs(t, c.SelectService(tab, "nope.Service"), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, c.SelectMethod(tab, "SayHello"), apperrors.ErrInvalidInput)
}

func TestLoadDescriptor_Failure(t *testing.T) {
	transport := greeter()
	transport.discoverErr = errors.New("open missing.proto: no such file or directory")
	c := New(WithGRPCTransport(transport))
	defer c.Close()

	tab := newTab(t, model.KindGRPC)
	err := c.LoadDescriptor(context.Background(), tab, "missing.proto")
	assert.ErrorIs(t, err, apperrors.ErrTransportFailure)
	assert.NotEmpty(t, tab.GRPC().DescriptorError())
	assert.Empty(t, tab.GRPC().DiscoveredServices())

	assert.ErrorIs(t, c.LoadDescriptor(context.Background(), tab, "  "), apperrors.ErrInvalidInput)
}

func readyCall(t *testing.T, c *Controller) *model.Tab {
	t.Helper()
	tab := newTab(t, model.KindGRPC)
	require.NoError(t, c.LoadDescriptor(context.Background(), tab, "greeter.proto"))
	require.NoError(t, c.SelectService(tab, "helloworld.Greeter"))
	require.NoError(t, c.SelectMethod(tab, "SayHello"))
	tab.GRPC().SetTarget("localhost:50051")
	return tab
}

func TestInvoke_Completes(t *testing.T) {
	transport := greeter()
	clock := newManualClock()
	began := clock.Now()
	var seen GRPCRequest
	transport.invoke = func(_ context.Context, req GRPCRequest) (GRPCResponse, error) {
		seen = req
		clock.advance(25 * time.Millisecond)
		return GRPCResponse{
			Payload:  `{"message":"hi bob"}`,
			Trailers: []model.Header{{Name: "x-served-by", Value: "a"}},
		}, nil
	}
	var got outcomes
	c := New(WithGRPCTransport(transport), WithOutcomeHook(got.hook), WithClock(clock.Now))
	defer c.Close()

	tab := readyCall(t, c)
	call := tab.GRPC()
	call.SetRequestPayload(`{"name": "bob", /* trailing */}`)
	require.NoError(t, call.Metadata().Append("x-request-id", "42", true))

	a, err := c.Invoke(tab)
	require.NoError(t, err)
	wait(t, a)

	assert.Equal(t, "helloworld.Greeter", seen.Service)
	assert.Equal(t, "SayHello", seen.Method)
	assert.JSONEq(t, `{"name":"bob"}`, seen.Payload)
	assert.Equal(t, []model.Header{{Name: "x-request-id", Value: "42"}}, seen.Metadata)

	assert.Equal(t, model.Completed, call.Status())
	assert.Equal(t, "OK", call.StatusCode())
	assert.Equal(t, `{"message":"hi bob"}`, call.ResponsePayload())
	assert.Equal(t, []model.Header{{Name: "x-served-by", Value: "a"}}, call.ResponseTrailers())

	outs := got.list()
	require.Len(t, outs, 1)
	assert.Equal(t, "helloworld.Greeter/SayHello", outs[0].Method)
	assert.Equal(t, "OK", outs[0].StatusCode)
	assert.Equal(t, began, call.IssuedAt())
	assert.Equal(t, 25*time.Millisecond, call.Elapsed())
	assert.Equal(t, 25*time.Millisecond, outs[0].Elapsed)
}

func TestInvoke_StatusError(t *testing.T) {
	transport := greeter()
	transport.invoke = func(context.Context, GRPCRequest) (GRPCResponse, error) {
		return GRPCResponse{}, status.Error(codes.NotFound, "no such user")
	}
	c := New(WithGRPCTransport(transport))
	defer c.Close()

	tab := readyCall(t, c)
	a, err := c.Invoke(tab)
	require.NoError(t, err)
	wait(t, a)

	call := tab.GRPC()
	assert.Equal(t, model.Failed, call.Status())
	assert.Equal(t, "NotFound", call.StatusCode())
	require.NotNil(t, call.Failure())
	assert.NotEmpty(t, call.Failure().Title)
}

func TestInvoke_Validation(t *testing.T) {
	c := New(WithGRPCTransport(greeter()))
	defer c.Close()

	_, err := c.Invoke(newTab(t, model.KindHTTP))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = c.Invoke(newTab(t, model.KindGRPC))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput, "no service selected")

	tab := readyCall(t, c)
	tab.GRPC().SetRequestPayload(`{"name":`)
	_, err = c.Invoke(tab)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, model.Idle, tab.GRPC().Status())
}

func TestInvoke_Cancel(t *testing.T) {
	transport := greeter()
	transport.invoke = func(ctx context.Context, _ GRPCRequest) (GRPCResponse, error) {
		<-ctx.Done()
		return GRPCResponse{}, status.FromContextError(ctx.Err()).Err()
	}
	c := New(WithGRPCTransport(transport))
	defer c.Close()

	tab := readyCall(t, c)
	a, err := c.Invoke(tab)
	require.NoError(t, err)
	require.NoError(t, c.Cancel(tab))
	wait(t, a)

	assert.Equal(t, model.Cancelled, tab.GRPC().Status())
	assert.Nil(t, tab.GRPC().Failure())
}
