// Package errors defines the classified error taxonomy shared by the
// extractors, the download orchestrator and the post-processing pipeline.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// Kind represents different kinds of errors that can occur during a run.
type Kind string

const (
	// KindUnsupportedURL means no extractor matched the input URL.
	KindUnsupportedURL Kind = "unsupported_url"
	// KindAuthRequired means the extractor needs credentials or cookies
	// that were not supplied.
	KindAuthRequired Kind = "auth_required"
	// KindExtraction is an upstream parsing or API failure during extraction.
	KindExtraction Kind = "extraction"
	// KindExtractionTransient is a transient upstream failure during
	// extraction; extraction may be retried a bounded number of times.
	KindExtractionTransient Kind = "extraction_transient"
	// KindValidation is malformed selection, filter or template syntax.
	// Fatal for the whole run, raised before any network activity.
	KindValidation Kind = "validation"
	// KindNetwork is a retryable transport failure (timeout, 5xx, reset).
	KindNetwork Kind = "network"
	// KindRateLimit is an upstream throttling signal. Retryable with
	// extended backoff, kept distinct from KindNetwork for reporting.
	KindRateLimit Kind = "rate_limit"
	// KindNotFound means the item is gone upstream. Never retried.
	KindNotFound Kind = "not_found"
	// KindFilesystem means the destination path cannot be created or
	// written. Never retried.
	KindFilesystem Kind = "filesystem"
	// KindPostProcess is a pipeline step failure, reported per item.
	KindPostProcess Kind = "postprocess"
	// KindCancelled marks work aborted by cancellation, distinguishable
	// from ordinary failure in the final report.
	KindCancelled Kind = "cancelled"
	// KindUnknown is everything else.
	KindUnknown Kind = "unknown"
)

// Error is a classified error with an optional HTTP status code and cause.
type Error struct {
	Kind    Kind
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps a cause with a classification. A nil cause returns nil.
func Wrap(kind Kind, err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithCode attaches an HTTP status code to the error.
func (e *Error) WithCode(code int) *Error {
	e.Code = code
	return e
}

// KindOf classifies an arbitrary error. Context cancellation maps to
// KindCancelled, anything unclassified to KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *Error
	if stderrors.As(err, &ce) {
		return ce.Kind
	}
	if stderrors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindUnknown
}

// IsRetryable reports whether an error kind should be retried.
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindNetwork, KindRateLimit, KindExtractionTransient:
		return true
	default:
		return false
	}
}

// IsRetryableErr classifies err and reports whether it should be retried.
func IsRetryableErr(err error) bool {
	return IsRetryable(KindOf(err))
}

// KindFromStatusCode maps an HTTP status code to an error kind.
func KindFromStatusCode(statusCode int) Kind {
	switch {
	case statusCode == 0:
		return KindNetwork
	case statusCode == 401 || statusCode == 403:
		return KindAuthRequired
	case statusCode == 404 || statusCode == 410:
		return KindNotFound
	case statusCode == 429:
		return KindRateLimit
	case statusCode >= 500:
		return KindNetwork
	default:
		return KindUnknown
	}
}
