package gcp

import (
	"errors"
	"strings"

	compute "google.golang.org/api/compute/v0.beta"
	"google.golang.org/api/googleapi"
)

// IsAlreadyExists reports whether the error says the resource being created
// already exists. Creation of a resource that exists satisfies intent, so
// callers treat this as success rather than failure.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || len(apiErr.Errors) == 0 {
		return false
	}
	for _, item := range apiErr.Errors {
		if item.Reason != "alreadyExists" {
			return false
		}
	}
	return true
}

// IsTransient reports whether the error is worth retrying: rate limiting,
// server-side failures and plain transport errors. Structured client errors
// are final.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		// No API error at all: connection reset, timeout and the like.
		return true
	}
	return apiErr.Code == 429 || apiErr.Code >= 500
}

// OperationErrorCode joins the codes of all errors attached to a completed
// operation, e.g. "QUOTA_EXCEEDED" or "A+B" when multiple errors are
// reported. Returns "" for operations without errors.
func OperationErrorCode(op *compute.Operation) string {
	if op == nil || op.Error == nil || len(op.Error.Errors) == 0 {
		return ""
	}
	codes := make([]string, 0, len(op.Error.Errors))
	for _, e := range op.Error.Errors {
		codes = append(codes, e.Code)
	}
	return strings.Join(codes, "+")
}

// OperationErrorMessage renders all errors of a completed operation as
// "CODE: message" pairs joined with "; ".
func OperationErrorMessage(op *compute.Operation) string {
	if op == nil || op.Error == nil {
		return ""
	}
	parts := make([]string, 0, len(op.Error.Errors))
	for _, e := range op.Error.Errors {
		msg := e.Message
		if msg == "" {
			msg = "no message"
		}
		parts = append(parts, e.Code+": "+msg)
	}
	return strings.Join(parts, "; ")
}

// TrimSelfLink returns the resource name from a self link, e.g.
// ".../instances/hpc-compute-0" -> "hpc-compute-0".
func TrimSelfLink(link string) string {
	if i := strings.LastIndexByte(link, '/'); i >= 0 {
		return link[i+1:]
	}
	return link
}
