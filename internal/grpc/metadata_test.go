package grpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	apperrors "github.com/shhac/wirebench/internal/errors"
	"github.com/shhac/wirebench/internal/model"
)

func TestBuildMetadata(t *testing.T) {
	md, err := BuildMetadata([]model.Header{
		{Name: "X-Request-ID", Value: "42"},
		{Name: "x-request-id", Value: "43"},
		{Name: "trace-bin", Value: "AAE="},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"42", "43"}, md.Get("x-request-id"))
	assert.Equal(t, []string{"\x00\x01"}, md.Get("trace-bin"))
}

func TestBuildMetadata_Rejects(t *testing.T) {
	for _, key := range []string{"", ":authority", "grpc-timeout", "content-type", "te", "bad key", "ümlaut"} {
		t.Run(key, func(t *testing.T) {
			_, err := BuildMetadata([]model.Header{{Name: key, Value: "v"}})
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}

	_, err := BuildMetadata([]model.Header{{Name: "blob-bin", Value: "%%%"}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestMDHeaders(t *testing.T) {
	md := metadata.MD{
		"b":     {"2", "3"},
		"a":     {"1"},
		"x-bin": {"\x00\x01"},
	}
	assert.Equal(t, []model.Header{
		{Name: "a", Value: "1"},
		{Name: "b", Value: "2"},
		{Name: "b", Value: "3"},
		{Name: "x-bin", Value: "AAE="},
	}, mdHeaders(md))
}
