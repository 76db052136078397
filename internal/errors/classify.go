package errors

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Severity indicates how serious a failure is for whoever presents it.
type Severity int

const (
	SeverityInfo    Severity = iota // User should know, not blocking
	SeverityWarning                 // Degraded functionality
	SeverityError                   // Operation failed, can retry
	SeverityFatal                   // Application must exit
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityFatal:
		return "fatal"
	default:
		return "error"
	}
}

// Report wraps an error with presentation metadata.
type Report struct {
	Err      error
	Severity Severity
	Title    string   // Short user-facing title
	Message  string   // Detailed user-facing message
	Recovery []string // Suggested actions
	Details  string   // Technical details
}

func (r *Report) Error() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return r.Title
}

// Unwrap returns the underlying error.
func (r *Report) Unwrap() error {
	return r.Err
}

// Classify converts an error into a Report with a severity, title, message
// and recovery suggestions.
func Classify(err error) *Report {
	if err == nil {
		return nil
	}

	var report *Report
	if errors.As(err, &report) {
		return report
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return &Report{
			Err:      err,
			Severity: SeverityError,
			Title:    "Request Timeout",
			Message:  "The server took too long to respond.",
			Recovery: []string{"Try again", "Increase the timeout setting"},
			Details:  err.Error(),
		}

	case errors.Is(err, context.Canceled), errors.Is(err, ErrCancelled):
		return &Report{
			Err:      err,
			Severity: SeverityInfo,
			Title:    "Request Cancelled",
			Message:  "The operation was cancelled.",
		}

	case errors.Is(err, ErrConnectionFailed), isNetworkError(err):
		return &Report{
			Err:      err,
			Severity: SeverityError,
			Title:    "Connection Failed",
			Message:  "Unable to connect to the server.",
			Recovery: []string{
				"Check that the server is running",
				"Verify the address and port",
				"Check your network connection",
			},
			Details: err.Error(),
		}

	case errors.Is(err, ErrReflectionUnavailable):
		return &Report{
			Err:      err,
			Severity: SeverityWarning,
			Title:    "Reflection Not Available",
			Message:  "This server doesn't support gRPC reflection.",
			Recovery: []string{"Load a .proto or .protoset file instead"},
			Details:  err.Error(),
		}

	case errors.Is(err, ErrInvalidDescriptor):
		return &Report{
			Err:      err,
			Severity: SeverityError,
			Title:    "Invalid Descriptor",
			Message:  "The descriptor source could not be loaded.",
			Recovery: []string{
				"Check the descriptor path",
				"Regenerate the descriptor set",
			},
			Details: err.Error(),
		}
	}

	switch KindOf(err) {
	case KindInvalidInput:
		msg := err.Error()
		var v ValidationError
		if errors.As(err, &v) {
			msg = v.Message
		}
		return &Report{
			Err:      err,
			Severity: SeverityError,
			Title:    "Validation Error",
			Message:  msg,
			Recovery: []string{"Correct the field value and try again"},
			Details:  err.Error(),
		}
	case KindInvalidState:
		return &Report{
			Err:      err,
			Severity: SeverityWarning,
			Title:    "Not Allowed Now",
			Message:  err.Error(),
			Recovery: []string{"Wait for the current operation to finish"},
		}
	case KindDuplicateName:
		return &Report{
			Err:      err,
			Severity: SeverityError,
			Title:    "Name Already Used",
			Message:  err.Error(),
			Recovery: []string{"Choose a different name"},
		}
	}

	// Default fallback for unknown errors
	return &Report{
		Err:      err,
		Severity: SeverityError,
		Title:    "Request Failed",
		Message:  firstLine(err.Error()),
		Recovery: []string{"Try again"},
		Details:  err.Error(),
	}
}

func isNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
