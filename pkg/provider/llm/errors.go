package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind categorises a service-boundary failure. Callers branch on kind —
// never on error message content.
type Kind string

const (
	// KindTimeout covers deadline expiry and connection-level failures.
	KindTimeout Kind = "timeout"

	// KindRateLimit marks provider-side throttling (e.g., HTTP 429).
	// Logged distinctly for operational visibility; retryable with backoff.
	KindRateLimit Kind = "rate_limit"

	// KindMalformed marks a response that arrived but could not be parsed
	// into the expected structure. Not retryable — repair instead.
	KindMalformed Kind = "malformed_output"

	// KindOther is everything else.
	KindOther Kind = "other"
)

// ServiceError wraps a provider failure with its classified [Kind].
type ServiceError struct {
	// Kind is the failure category.
	Kind Kind

	// Provider names the backend that produced the failure.
	Provider string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s provider: %s: %v", e.Provider, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error { return e.Err }

// WrapError classifies err and wraps it in a [ServiceError]. Context
// cancellation/deadline and net timeouts map to [KindTimeout]; everything
// unrecognised maps to [KindOther]. Providers that can detect throttling
// (e.g., from an HTTP status code) should construct the [ServiceError]
// directly with [KindRateLimit].
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindOther
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	return &ServiceError{Kind: kind, Provider: provider, Err: err}
}

// KindOf returns the classified kind of err, or [KindOther] when err carries
// no [ServiceError] in its chain.
func KindOf(err error) Kind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindOther
}

// Retryable reports whether err is worth retrying at the service-client
// layer: timeouts and rate limits are, malformed output and everything else
// are not.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindRateLimit:
		return true
	}
	return false
}
