package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers that branch on it.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidState
	KindInvalidInput
	KindDuplicateName
	KindTransportFailure
	KindCancelled
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInvalidState:
		return "invalid state"
	case KindInvalidInput:
		return "invalid input"
	case KindDuplicateName:
		return "duplicate name"
	case KindTransportFailure:
		return "transport failure"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Sentinel errors for the workbench failure taxonomy. Use errors.Is to test
// a returned error against these.
var (
	ErrInvalidState     = errors.New("invalid state")
	ErrInvalidInput     = errors.New("invalid input")
	ErrDuplicateName    = errors.New("duplicate name")
	ErrTransportFailure = errors.New("transport failure")
	ErrCancelled        = errors.New("cancelled")
)

// Sentinel errors for common transport failure modes.
var (
	ErrConnectionFailed      = errors.New("connection failed")
	ErrReflectionUnavailable = errors.New("reflection not available")
	ErrInvalidDescriptor     = errors.New("invalid descriptor")
	ErrTimeout               = errors.New("operation timed out")
)

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidState:
		return ErrInvalidState
	case KindInvalidInput:
		return ErrInvalidInput
	case KindDuplicateName:
		return ErrDuplicateName
	case KindTransportFailure:
		return ErrTransportFailure
	case KindCancelled:
		return ErrCancelled
	}
	return nil
}

// Error is a classified failure raised by an operation.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "tab.create"
	Message string
	Err     error // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// New returns an *Error of the given kind.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error of the given kind around err.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// InvalidState reports an operation attempted in the wrong lifecycle state.
func InvalidState(op, format string, args ...any) *Error {
	return New(KindInvalidState, op, format, args...)
}

// InvalidInput reports a rejected argument.
func InvalidInput(op, format string, args ...any) *Error {
	return New(KindInvalidInput, op, format, args...)
}

// DuplicateName reports a name clash.
func DuplicateName(op, name string) *Error {
	return New(KindDuplicateName, op, "name %q is already in use", name)
}

// KindOf returns the taxonomy kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var v ValidationError
	if errors.As(err, &v) {
		return KindInvalidInput
	}
	return KindUnknown
}

// ValidationError represents a field validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Is lets a ValidationError match ErrInvalidInput.
func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}
