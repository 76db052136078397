package model

import (
	"strings"
	"testing"
	"time"

	apperrors "github.com/shhac/wirebench/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestEffectiveTarget(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		params []Entry
		want   string
	}{
		{"no params", "http://x/api", nil, "http://x/api"},
		{
			"disabled and blank rows are skipped",
			"http://x/api",
			[]Entry{{"a", "1", true}, {"b", "", false}},
			"http://x/api?a=1",
		},
		{
			"existing query joins with ampersand",
			"http://x/api?v=2",
			[]Entry{{"a", "1", true}},
			"http://x/api?v=2&a=1",
		},
		{
			"keys and values are escaped",
			"http://x",
			[]Entry{{"a b", "c&d", true}, {"ü", "=1", true}},
			"http://x?a+b=c%26d&%C3%BC=%3D1",
		},
		{
			"repeated keys pass through",
			"http://x/api?a=0",
			[]Entry{{"a", "1", true}, {"a", "2", true}},
			"http://x/api?a=0&a=1&a=2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := NewHTTPExchange()
			x.SetBaseTarget(tt.base)
			for _, p := range tt.params {
				require.NoError(t, x.Query().Append(p.Key, p.Value, p.Enabled))
			}
			assert.Equal(t, tt.want, x.EffectiveTarget())
		})
	}
}

func TestEffectiveTarget_FreshBeforeNotification(t *testing.T) {
	x := NewHTTPExchange()
	x.SetBaseTarget("http://x/api")

	var seen []string
	x.Subscribe(func(c Change) {
		if c.Field == FieldQuery || c.Field == FieldEffectiveTarget {
			seen = append(seen, string(c.Field)+"="+x.EffectiveTarget())
		}
	})

	require.NoError(t, x.Query().Append("a", "1", true))
	assert.Equal(t, []string{
		"Query=http://x/api?a=1",
		"EffectiveTarget=http://x/api?a=1",
	}, seen)

	seen = nil
	require.NoError(t, x.Query().SetEnabled(0, false))
	assert.Equal(t, []string{"Query=http://x/api", "EffectiveTarget=http://x/api"}, seen)
}

func TestSetMethod(t *testing.T) {
	x := NewHTTPExchange()
	assert.Equal(t, Method(""), x.Method())

	require.NoError(t, x.SetMethod("post"))
	assert.Equal(t, MethodPost, x.Method())
	assert.ErrorIs(t, x.SetMethod("BREW"), apperrors.ErrInvalidInput)
	assert.Equal(t, MethodPost, x.Method())
}

func TestOutgoingHeaders_APIKey(t *testing.T) {
	x := NewHTTPExchange()
	require.NoError(t, x.Headers().Append("Accept", "application/json", true))
	require.NoError(t, x.Headers().Append("X-Debug", "1", false))
	x.Auth().SetAPIKey("", "k1")
	require.NoError(t, x.Auth().SetKind(AuthAPIKey))

	hs := x.OutgoingHeaders()
	assert.Equal(t, []Header{
		{Name: "Accept", Value: "application/json"},
		{Name: "X-API-Key", Value: "k1"},
	}, hs)
	for _, h := range hs {
		assert.NotEqual(t, "Authorization", h.Name)
	}
}

func TestHTTPLifecycle_CompleteKeepsPreviousUntilResolved(t *testing.T) {
	x := NewHTTPExchange()
	x.SetBaseTarget("http://x/api")
	require.NoError(t, x.SetMethod(MethodPut))
	x.SetBody(`{"a":1}`)

	gen, req, err := x.BeginAttempt(t0)
	require.NoError(t, err)
	assert.Equal(t, InFlight, x.Status())
	assert.Equal(t, MethodPut, req.Method)
	assert.Equal(t, "http://x/api", req.Target)
	assert.Equal(t, `{"a":1}`, req.Body)

	assert.True(t, x.AppendChunk(gen, "hel"))
	assert.True(t, x.AppendChunk(gen, "lo"))
	assert.Equal(t, []string{"hel", "lo"}, x.Response().Chunks)

	require.True(t, x.CompleteAttempt(gen, HTTPResult{
		StatusCode: 404,
		StatusText: "404 Not Found",
		Body:       "hello",
		Elapsed:    123 * time.Millisecond,
	}))
	assert.Equal(t, Completed, x.Status(), "non-2xx still completes")

	resp := x.Response()
	assert.True(t, resp.Present)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "hello", resp.Raw)
	assert.Equal(t, "hello", resp.Preview)
	assert.Equal(t, int64(5), resp.SizeBytes)
	assert.Equal(t, "5 B", resp.FormattedSize)
	assert.Equal(t, "123 ms", resp.FormattedElapsed)
	assert.Equal(t, t0, resp.IssuedAt)

	// A second attempt leaves the first response in place until it resolves.
	gen2, _, err := x.BeginAttempt(t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "hello", x.Response().Raw)
	assert.Empty(t, x.Response().Chunks)

	require.True(t, x.FailAttempt(gen2, Failure{Title: "Connection Failed"}, time.Second))
	assert.Equal(t, Failed, x.Status())
	resp = x.Response()
	assert.False(t, resp.Present)
	require.NotNil(t, resp.Failure)
	assert.Equal(t, "Connection Failed", resp.Failure.Title)
}

func TestHTTPLifecycle_SecondStartWhileInFlight(t *testing.T) {
	x := NewHTTPExchange()
	x.SetBaseTarget("http://x")
	_, _, err := x.BeginAttempt(t0)
	require.NoError(t, err)

	_, _, err = x.BeginAttempt(t0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	assert.Equal(t, InFlight, x.Status())
}

func TestHTTPLifecycle_EmptyTarget(t *testing.T) {
	x := NewHTTPExchange()
	x.SetBaseTarget("   ")
	_, _, err := x.BeginAttempt(t0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, Idle, x.Status())
}

func TestHTTPLifecycle_StaleWritesAreDiscarded(t *testing.T) {
	x := NewHTTPExchange()
	x.SetBaseTarget("http://x")

	old, _, err := x.BeginAttempt(t0)
	require.NoError(t, err)
	cancelled, ok := x.CancelAttempt()
	require.True(t, ok)
	assert.Equal(t, old, cancelled)
	assert.Equal(t, Cancelled, x.Status())

	fresh, _, err := x.BeginAttempt(t0)
	require.NoError(t, err)
	assert.NotEqual(t, old, fresh)

	assert.False(t, x.AppendChunk(old, "late"))
	assert.False(t, x.CompleteAttempt(old, HTTPResult{StatusCode: 200, Body: "stale"}))
	assert.False(t, x.FailAttempt(old, Failure{}, 0))
	assert.Equal(t, InFlight, x.Status())
	assert.Empty(t, x.Response().Chunks)

	require.True(t, x.CompleteAttempt(fresh, HTTPResult{StatusCode: 200, Body: "ok"}))
	assert.Equal(t, "ok", x.Response().Raw)
}

func TestHTTPLifecycle_CancelIdleIsNoop(t *testing.T) {
	x := NewHTTPExchange()
	var changes int
	x.Subscribe(func(Change) { changes++ })

	_, ok := x.CancelAttempt()
	assert.False(t, ok)
	assert.Equal(t, Idle, x.Status())
	assert.Zero(t, changes)
}

func TestTruncatePreview(t *testing.T) {
	short := strings.Repeat("x", DefaultPreviewLimit)
	assert.Equal(t, short, TruncatePreview(short, 0))

	long := strings.Repeat("é", DefaultPreviewLimit+5)
	got := TruncatePreview(long, 0)
	assert.True(t, strings.HasPrefix(got, strings.Repeat("é", DefaultPreviewLimit)))
	assert.True(t, strings.HasSuffix(got, "... (4010 bytes total)"))
	assert.False(t, strings.HasPrefix(got, strings.Repeat("é", DefaultPreviewLimit+1)))

	assert.Equal(t, "ab... (3 bytes total)", TruncatePreview("abc", 2))
	assert.Equal(t, "", TruncatePreview("", 0))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", FormatSize(0))
	assert.Equal(t, "1.2 kB", FormatSize(1234))
	assert.Equal(t, "", FormatSize(-1))
}
