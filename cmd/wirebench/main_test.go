package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shhac/wirebench/internal/app"
	"github.com/shhac/wirebench/internal/logging"
)

// run executes one CLI invocation against storage dir and returns stdout.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("WIREBENCH_WORKSPACE", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	root := newRootCmd(app.WithLogger(logging.NewNopLogger()))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--storage", dir}, args...))
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := run(t, dir, args...)
	require.NoError(t, err, "wirebench %s", strings.Join(args, " "))
	return out
}

func TestCLI_CollectionsAndTabs(t *testing.T) {
	dir := t.TempDir()

	mustRun(t, dir, "collection", "add", "Payments")
	_, err := run(t, dir, "collection", "add", "payments")
	assert.Error(t, err, "names clash case-insensitively")

	out := mustRun(t, dir, "tab", "new", "http", "--name", "charges", "-X", "post", "-u", "http://x/api")
	assert.Contains(t, out, "HTTP POST")
	assert.Contains(t, out, "in Default")

	mustRun(t, dir, "tab", "mv", "charges", "payments")
	mustRun(t, dir, "collection", "rename", "Payments", "Billing")

	out = mustRun(t, dir, "list")
	assert.Contains(t, out, "Default (0)")
	assert.Contains(t, out, "Billing (1)")
	assert.Contains(t, out, "charges")

	_, err = run(t, dir, "collection", "rm", "billing")
	assert.Error(t, err, "non-empty collection needs --discard")
	mustRun(t, dir, "collection", "rm", "billing", "--discard")
	assert.NotContains(t, mustRun(t, dir, "list"), "charges")
}

func TestCLI_SendHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a=1", r.URL.RawQuery)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("X-Reply", "yes")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, "made")
	}))
	defer srv.Close()

	dir := t.TempDir()
	mustRun(t, dir, "tab", "new", "http", "-n", "create", "-u", srv.URL, "-q", "a=1",
		"--auth", "bearer", "--token", "tok")

	out := mustRun(t, dir, "send", "create")
	assert.Contains(t, out, "201")
	assert.Contains(t, out, "X-Reply: yes")
	assert.Contains(t, out, "made")

	out = mustRun(t, dir, "history")
	assert.Contains(t, out, "HTTP")
	assert.Contains(t, out, "completed 201")

	mustRun(t, dir, "history", "--clear")
	assert.Contains(t, mustRun(t, dir, "history"), "no history")
}

func TestCLI_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "send", "missing")
	assert.ErrorContains(t, err, "not found")

	_, err = run(t, dir, "tab", "new", "ftp")
	assert.Error(t, err)

	_, err = run(t, dir, "tab", "new", "http", "-H", "novalue")
	assert.ErrorContains(t, err, "key=value")
	assert.Contains(t, mustRun(t, dir, "list"), "Default (0)", "failed create leaves no tab")

	_, err = run(t, dir, "grpc", "describe", "schema.json")
	assert.Error(t, err)
}

func TestCLI_GRPCDescribeProto(t *testing.T) {
	proto := filepath.Join("..", "..", "internal", "grpc", "testdata", "greeter.proto")
	out := mustRun(t, t.TempDir(), "grpc", "describe", proto)
	assert.Contains(t, out, "helloworld.Greeter")
	assert.Contains(t, out, "SayHello(helloworld.HelloRequest) returns (helloworld.HelloReply)  Unary")
	assert.Contains(t, out, "StreamHellos")
}

func TestCLI_GRPCTabSelectsFromCatalog(t *testing.T) {
	dir := t.TempDir()
	proto := filepath.Join("..", "..", "internal", "grpc", "testdata", "greeter.proto")

	_, err := run(t, dir, "tab", "new", "grpc", "--name", "loose", "--service", "pkg.Svc", "--rpc", "Do")
	assert.Error(t, err, "no descriptor and no target to reflect on")
	_, err = run(t, dir, "tab", "new", "grpc", "--descriptor", proto, "--service", "helloworld.Greeter", "--rpc", "Nope")
	assert.ErrorContains(t, err, "Nope")
	assert.Contains(t, mustRun(t, dir, "list"), "Default (0)")

	mustRun(t, dir, "tab", "new", "grpc", "--name", "hello", "-u", "localhost:1",
		"--descriptor", proto, "--service", "helloworld.Greeter", "--rpc", "SayHello")
	assert.Contains(t, mustRun(t, dir, "list"), "Default (1)")

	out := mustRun(t, dir, "grpc", "load", "hello", "--rpc", "SayGoodbye")
	assert.Contains(t, out, "helloworld.Greeter")
	_, err = run(t, dir, "grpc", "load", "hello", "--rpc", "Bogus")
	assert.Error(t, err)
}
