package model

import (
	"encoding/base64"
	"fmt"
	"strings"

	apperrors "github.com/shhac/wirebench/internal/errors"
)

// AuthKind selects the active authentication variant.
type AuthKind int

const (
	AuthNone AuthKind = iota
	AuthBasic
	AuthBearer
	AuthAPIKey
)

// DefaultAPIKeyHeader is used when an API key profile names no header.
const DefaultAPIKeyHeader = "X-API-Key"

// String returns the persisted name of the kind.
func (k AuthKind) String() string {
	switch k {
	case AuthBasic:
		return "basic"
	case AuthBearer:
		return "bearer"
	case AuthAPIKey:
		return "apikey"
	default:
		return "none"
	}
}

// ParseAuthKind is the inverse of AuthKind.String. The empty string is none.
func ParseAuthKind(s string) (AuthKind, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return AuthNone, nil
	case "basic":
		return AuthBasic, nil
	case "bearer":
		return AuthBearer, nil
	case "apikey", "api_key", "api-key":
		return AuthAPIKey, nil
	}
	return AuthNone, apperrors.InvalidInput("auth.kind", "unknown auth kind %q", s)
}

// Auth field names.
const (
	FieldAuthKind     Field = "AuthKind"
	FieldUsername     Field = "Username"
	FieldPassword     Field = "Password"
	FieldToken        Field = "Token"
	FieldAPIKeyHeader Field = "APIKeyHeader"
	FieldAPIKeyValue  Field = "APIKeyValue"
)

// Header is a single outgoing header.
type Header struct {
	Name  string
	Value string
}

func (h Header) String() string {
	return h.Name + ": " + h.Value
}

// AuthProfile holds credentials for every variant at once. Switching the
// kind never clears the others.
type AuthProfile struct {
	g *guard
	n notifier

	kind         AuthKind
	username     string
	password     string
	token        string
	apiKeyHeader string
	apiKeyValue  string

	onChange func(e *emitter)
}

// NewAuthProfile returns a standalone profile of kind none.
func NewAuthProfile() *AuthProfile {
	return newOwnedAuth(&guard{}, nil)
}

func newOwnedAuth(g *guard, onChange func(e *emitter)) *AuthProfile {
	return &AuthProfile{g: g, apiKeyHeader: DefaultAPIKeyHeader, onChange: onChange}
}

// Subscribe registers an observer for auth field changes.
func (a *AuthProfile) Subscribe(fn Observer) (unsubscribe func()) {
	return a.n.Subscribe(fn)
}

func (a *AuthProfile) Kind() AuthKind   { return read(a.g, func() AuthKind { return a.kind }) }
func (a *AuthProfile) Username() string { return read(a.g, func() string { return a.username }) }
func (a *AuthProfile) Password() string { return read(a.g, func() string { return a.password }) }
func (a *AuthProfile) Token() string    { return read(a.g, func() string { return a.token }) }
func (a *AuthProfile) APIKeyHeader() string {
	return read(a.g, func() string { return a.apiKeyHeader })
}
func (a *AuthProfile) APIKeyValue() string { return read(a.g, func() string { return a.apiKeyValue }) }

// SetKind switches the active variant.
func (a *AuthProfile) SetKind(k AuthKind) error {
	if k < AuthNone || k > AuthAPIKey {
		return apperrors.InvalidInput("auth.set_kind", "unknown auth kind %d", int(k))
	}
	a.set(FieldAuthKind, func() { a.kind = k })
	return nil
}

// SetBasic sets the basic-auth credentials.
func (a *AuthProfile) SetBasic(username, password string) {
	a.set(FieldUsername, func() { a.username = username })
	a.set(FieldPassword, func() { a.password = password })
}

// SetToken sets the bearer token.
func (a *AuthProfile) SetToken(token string) {
	a.set(FieldToken, func() { a.token = token })
}

// SetAPIKey sets the API key header name and value.
func (a *AuthProfile) SetAPIKey(header, value string) {
	a.set(FieldAPIKeyHeader, func() { a.apiKeyHeader = header })
	a.set(FieldAPIKeyValue, func() { a.apiKeyValue = value })
}

// HeaderContribution returns the header the active variant adds to a
// request. It reads the profile and changes nothing.
func (a *AuthProfile) HeaderContribution() (Header, bool) {
	a.g.mu.RLock()
	defer a.g.mu.RUnlock()
	return a.contributionLocked()
}

func (a *AuthProfile) contributionLocked() (Header, bool) {
	switch a.kind {
	case AuthBasic:
		cred := base64.StdEncoding.EncodeToString([]byte(a.username + ":" + a.password))
		return Header{Name: "Authorization", Value: "Basic " + cred}, true
	case AuthBearer:
		return Header{Name: "Authorization", Value: "Bearer " + a.token}, true
	case AuthAPIKey:
		name := a.apiKeyHeader
		if strings.TrimSpace(name) == "" {
			name = DefaultAPIKeyHeader
		}
		return Header{Name: name, Value: a.apiKeyValue}, true
	}
	return Header{}, false
}

func (a *AuthProfile) String() string {
	return fmt.Sprintf("auth(%s)", a.Kind())
}

func (a *AuthProfile) set(f Field, fn func()) {
	var e emitter
	a.g.mu.Lock()
	fn()
	if a.onChange != nil {
		a.onChange(&e)
	}
	a.g.pub.Lock()
	a.g.mu.Unlock()
	defer a.g.pub.Unlock()
	a.n.publish([]Field{f})
	a.g.publish(e.fields)
}

// read runs fn under the guard's read lock.
func read[T any](g *guard, fn func() T) T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn()
}
