package grpc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/shhac/wirebench/internal/domain"
	apperrors "github.com/shhac/wirebench/internal/errors"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		raw      string
		want     Source
		wantFail bool
	}{
		{raw: "api/greeter.proto", want: Source{Kind: SourceProto, Location: "api/greeter.proto"}},
		{raw: " set.PROTOSET ", want: Source{Kind: SourceProtoset, Location: "set.PROTOSET"}},
		{raw: "out.pb", want: Source{Kind: SourceProtoset, Location: "out.pb"}},
		{raw: "image.desc", want: Source{Kind: SourceProtoset, Location: "image.desc"}},
		{raw: "reflect://localhost:50051", want: Source{Kind: SourceReflection, Location: "localhost:50051"}},
		{raw: "reflect://", wantFail: true},
		{raw: "schema.json", wantFail: true},
		{raw: "", wantFail: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseSource(tt.raw)
			if tt.wantFail {
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoader_Proto(t *testing.T) {
	l := NewLoader(nil, testLogger)
	c, err := l.Get(context.Background(), filepath.Join("testdata", "greeter.proto"))
	require.NoError(t, err)

	assert.Equal(t, []string{"helloworld.Greeter"}, c.Services())
	methods, err := c.Methods("helloworld.Greeter")
	require.NoError(t, err)
	assert.Equal(t, []string{"SayHello", "SayGoodbye", "StreamHellos"}, methods)

	md, err := c.Method("helloworld.Greeter", "SayHello")
	require.NoError(t, err)
	assert.Equal(t, "helloworld.HelloRequest", md.GetInputType().GetFullyQualifiedName())

	_, err = c.Method("helloworld.Greeter", "Nope")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = c.Methods("nope.Service")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCatalog_Describe(t *testing.T) {
	c, err := NewLoader(nil, testLogger).Get(context.Background(), filepath.Join("testdata", "greeter.proto"))
	require.NoError(t, err)

	services := c.Describe()
	require.Len(t, services, 1)
	assert.Equal(t, "Greeter", services[0].Name)
	assert.Equal(t, "helloworld.Greeter", services[0].FullName)
	require.Len(t, services[0].Methods, 3)
	assert.Equal(t, "helloworld.Greeter.SayHello", services[0].Methods[0].FullName)
	assert.Equal(t, domain.Unary, services[0].Methods[0].Kind())
	assert.Equal(t, domain.ServerStream, services[0].Methods[2].Kind())
}

func TestLoader_BrokenProto(t *testing.T) {
	_, err := NewLoader(nil, testLogger).Get(context.Background(), filepath.Join("testdata", "broken.proto"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidDescriptor)
}

func TestLoader_Protoset(t *testing.T) {
	fds, err := (&protoparse.Parser{ImportPaths: []string{"testdata"}}).ParseFiles("greeter.proto")
	require.NoError(t, err)

	set := &descriptorpb.FileDescriptorSet{}
	for _, fd := range fds {
		for _, dep := range fd.GetDependencies() {
			set.File = append(set.File, dep.AsFileDescriptorProto())
		}
		set.File = append(set.File, fd.AsFileDescriptorProto())
	}
	b, err := proto.Marshal(set)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "greeter.protoset")
	require.NoError(t, os.WriteFile(path, b, 0o600))

	c, err := NewLoader(nil, testLogger).Get(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"helloworld.Greeter"}, c.Services())

	garbage := filepath.Join(t.TempDir(), "garbage.pb")
	require.NoError(t, os.WriteFile(garbage, []byte("not a descriptor set"), 0o600))
	_, err = NewLoader(nil, testLogger).Get(context.Background(), garbage)
	assert.Error(t, err)
}

func TestLoader_Reflection(t *testing.T) {
	tr := newTestTransport(t)
	c, err := tr.loader.Get(context.Background(), ReflectScheme+testAddr)
	require.NoError(t, err)

	services := c.Services()
	assert.Contains(t, services, "grpc.testing.TestService")
	assert.Contains(t, services, "grpc.health.v1.Health")
	for _, svc := range services {
		assert.NotContains(t, svc, "grpc.reflection", "reflection service should be filtered out")
	}
}

func TestLoader_Caches(t *testing.T) {
	dir := t.TempDir()
	src, err := os.ReadFile(filepath.Join("testdata", "greeter.proto"))
	require.NoError(t, err)
	path := filepath.Join(dir, "greeter.proto")
	require.NoError(t, os.WriteFile(path, src, 0o600))

	l := NewLoader(nil, testLogger)
	first, err := l.Get(context.Background(), path)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	cached, err := l.Get(context.Background(), path)
	require.NoError(t, err)
	assert.Same(t, first, cached)

	_, err = l.Reload(context.Background(), path)
	assert.Error(t, err, "reload reads the file again")

	l.Forget(path)
	_, err = l.Get(context.Background(), path)
	assert.Error(t, err)
}

func TestLoader_ReflectionNeedsPool(t *testing.T) {
	_, err := NewLoader(nil, testLogger).Get(context.Background(), ReflectScheme+testAddr)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}
