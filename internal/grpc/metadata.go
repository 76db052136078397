package grpc

import (
	"encoding/base64"
	"slices"
	"strings"

	"google.golang.org/grpc/metadata"

	apperrors "github.com/shhac/wirebench/internal/errors"
	"github.com/shhac/wirebench/internal/model"
)

// reservedKeys are set by the transport and cannot be sent as metadata.
var reservedKeys = []string{"content-type", "te", "user-agent", "host", "connection"}

// BuildMetadata validates request metadata and converts it. Keys are
// lower-cased. Values of "-bin" keys must be base64.
func BuildMetadata(pairs []model.Header) (metadata.MD, error) {
	md := metadata.MD{}
	for _, p := range pairs {
		key := strings.ToLower(strings.TrimSpace(p.Name))
		if err := validateKey(key); err != nil {
			return nil, err
		}
		value := p.Value
		if strings.HasSuffix(key, "-bin") {
			raw, err := base64.StdEncoding.DecodeString(value)
			if err != nil {
				return nil, apperrors.ValidationError{Field: key, Message: "binary metadata value must be base64"}
			}
			value = string(raw)
		}
		md.Append(key, value)
	}
	return md, nil
}

func validateKey(key string) error {
	switch {
	case key == "":
		return apperrors.ValidationError{Field: "metadata", Message: "metadata key is empty"}
	case strings.HasPrefix(key, ":"), strings.HasPrefix(key, "grpc-"), slices.Contains(reservedKeys, key):
		return apperrors.ValidationError{Field: key, Message: "metadata key is reserved"}
	}
	for _, r := range key {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' && r != '.' {
			return apperrors.ValidationError{Field: key, Message: "metadata key may only contain a-z, 0-9, '-', '_' and '.'"}
		}
	}
	return nil
}

// mdHeaders flattens md into sorted headers. Binary values are base64.
func mdHeaders(md metadata.MD) []model.Header {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var out []model.Header
	for _, k := range keys {
		for _, v := range md[k] {
			if strings.HasSuffix(k, "-bin") {
				v = base64.StdEncoding.EncodeToString([]byte(v))
			}
			out = append(out, model.Header{Name: k, Value: v})
		}
	}
	return out
}
