package errors

import (
	"fmt"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// codeReport is the presentation template for one gRPC status code.
type codeReport struct {
	severity Severity
	title    string
	message  string // empty means use the status message
	recovery []string
	terse    bool // details carry only the status message
}

var grpcReports = map[codes.Code]codeReport{
	codes.Unavailable: {
		title:   "Cannot Connect to Server",
		message: "The server is not responding.",
		recovery: []string{
			"Check that the server is running",
			"Verify the address and port",
			"Check your network connection",
		},
	},
	codes.DeadlineExceeded: {
		title:    "Request Timeout",
		message:  "The server took too long to respond.",
		recovery: []string{"Try again", "Increase timeout setting"},
	},
	codes.Unauthenticated: {
		title:    "Authentication Required",
		message:  "You need to authenticate to access this service.",
		recovery: []string{"Add credentials in metadata"},
	},
	codes.PermissionDenied: {
		title:    "Access Denied",
		message:  "You don't have permission to call this method.",
		recovery: []string{"Contact administrator for access"},
	},
	codes.InvalidArgument: {
		title:    "Invalid Request",
		message:  "The request contains invalid data.",
		recovery: []string{"Check field values", "See details for specifics"},
		terse:    true,
	},
	codes.Internal: {
		title:    "Server Error",
		message:  "The server encountered an unexpected error.",
		recovery: []string{"Try again later", "Contact server administrator"},
	},
	codes.Unimplemented: {
		severity: SeverityWarning,
		title:    "Method Not Available",
		message:  "This method is not implemented on the server.",
		recovery: []string{"Check method name", "Verify server version"},
	},
	codes.NotFound: {
		title:    "Not Found",
		message:  "The requested resource was not found.",
		recovery: []string{"Check the request parameters"},
	},
	codes.AlreadyExists: {
		title:    "Already Exists",
		message:  "The resource already exists.",
		recovery: []string{"Use a different identifier"},
	},
	codes.ResourceExhausted: {
		title:    "Resource Exhausted",
		message:  "The server has insufficient resources.",
		recovery: []string{"Try again later", "Reduce request size"},
	},
	codes.FailedPrecondition: {
		title:    "Failed Precondition",
		message:  "The operation was rejected due to system state.",
		recovery: []string{"Check system state", "See details for more info"},
		terse:    true,
	},
	codes.Aborted: {
		title:    "Operation Aborted",
		message:  "The operation was aborted, typically due to concurrency issues.",
		recovery: []string{"Try again"},
	},
	codes.OutOfRange: {
		title:    "Out of Range",
		message:  "A value is out of the valid range.",
		recovery: []string{"Check input values", "See details for specifics"},
		terse:    true,
	},
	codes.DataLoss: {
		severity: SeverityFatal,
		title:    "Data Loss",
		message:  "Unrecoverable data loss or corruption.",
		recovery: []string{"Contact server administrator immediately"},
	},
	codes.Canceled: {
		severity: SeverityInfo,
		title:    "Request Cancelled",
		message:  "The operation was cancelled.",
	},
	codes.Unknown: {
		title:    "Unknown Error",
		recovery: []string{"Try again", "Contact server administrator if problem persists"},
	},
}

// ClassifyGRPC converts a gRPC error into a Report. Errors that carry no
// gRPC status fall back to Classify.
func ClassifyGRPC(err error) *Report {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return Classify(err)
	}

	details := fmt.Sprintf("gRPC: %s - %s", st.Code(), st.Message())
	if extra := formatStatusDetails(st); extra != "" {
		details += "\n\n" + extra
	}

	tmpl, ok := grpcReports[st.Code()]
	if !ok {
		tmpl = codeReport{title: "Request Failed", recovery: []string{"Try again"}}
	}
	if tmpl.severity == SeverityInfo && st.Code() != codes.Canceled {
		tmpl.severity = SeverityError
	}
	if tmpl.terse {
		details = st.Message()
	}
	msg := tmpl.message
	if msg == "" {
		msg = st.Message()
	}

	return &Report{
		Err:      err,
		Severity: tmpl.severity,
		Title:    tmpl.title,
		Message:  msg,
		Recovery: tmpl.recovery,
		Details:  details,
	}
}

// formatStatusDetails extracts and formats rich error details from a gRPC status.
func formatStatusDetails(st *status.Status) string {
	details := st.Details()
	if len(details) == 0 {
		return ""
	}

	var sections []string

	for _, detail := range details {
		switch d := detail.(type) {
		case *errdetails.BadRequest:
			if fvs := d.GetFieldViolations(); len(fvs) > 0 {
				var lines []string
				lines = append(lines, "Field Violations:")
				for _, fv := range fvs {
					line := fmt.Sprintf("  %s: %s", fv.GetField(), fv.GetDescription())
					if r := fv.GetReason(); r != "" {
						line += fmt.Sprintf(" (reason: %s)", r)
					}
					lines = append(lines, line)
				}
				sections = append(sections, strings.Join(lines, "\n"))
			}

		case *errdetails.DebugInfo:
			var lines []string
			lines = append(lines, "Debug Info:")
			if d.GetDetail() != "" {
				lines = append(lines, "  "+d.GetDetail())
			}
			for _, entry := range d.GetStackEntries() {
				lines = append(lines, "  "+entry)
			}
			sections = append(sections, strings.Join(lines, "\n"))

		case *errdetails.ErrorInfo:
			var lines []string
			lines = append(lines, fmt.Sprintf("Error Info: %s", d.GetReason()))
			if d.GetDomain() != "" {
				lines = append(lines, fmt.Sprintf("  Domain: %s", d.GetDomain()))
			}
			for k, v := range d.GetMetadata() {
				lines = append(lines, fmt.Sprintf("  %s: %s", k, v))
			}
			sections = append(sections, strings.Join(lines, "\n"))

		case *errdetails.RetryInfo:
			if delay := d.GetRetryDelay(); delay != nil {
				sections = append(sections, fmt.Sprintf("Retry after: %v", delay.AsDuration()))
			}

		case *errdetails.PreconditionFailure:
			if vs := d.GetViolations(); len(vs) > 0 {
				var lines []string
				lines = append(lines, "Precondition Failures:")
				for _, v := range vs {
					lines = append(lines, fmt.Sprintf("  [%s] %s: %s", v.GetType(), v.GetSubject(), v.GetDescription()))
				}
				sections = append(sections, strings.Join(lines, "\n"))
			}

		case *errdetails.QuotaFailure:
			if vs := d.GetViolations(); len(vs) > 0 {
				var lines []string
				lines = append(lines, "Quota Failures:")
				for _, v := range vs {
					lines = append(lines, fmt.Sprintf("  %s: %s", v.GetSubject(), v.GetDescription()))
				}
				sections = append(sections, strings.Join(lines, "\n"))
			}

		case *errdetails.RequestInfo:
			sections = append(sections, fmt.Sprintf("Request ID: %s", d.GetRequestId()))

		case *errdetails.ResourceInfo:
			sections = append(sections, fmt.Sprintf("Resource: %s/%s (%s)", d.GetResourceType(), d.GetResourceName(), d.GetDescription()))

		case *errdetails.Help:
			if links := d.GetLinks(); len(links) > 0 {
				var lines []string
				lines = append(lines, "Help:")
				for _, link := range links {
					lines = append(lines, fmt.Sprintf("  %s: %s", link.GetDescription(), link.GetUrl()))
				}
				sections = append(sections, strings.Join(lines, "\n"))
			}

		default:
			sections = append(sections, fmt.Sprintf("Detail: %v", detail))
		}
	}

	return strings.Join(sections, "\n\n")
}
