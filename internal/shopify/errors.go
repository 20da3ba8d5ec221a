package shopify

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError is a fatal setup problem: bad credentials, unknown query
// document or operation name, malformed filter string. Never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// ThrottledError signals the remote API rejected the call with a THROTTLED
// extension code. Retried with backoff inside the executor.
type ThrottledError struct {
	Message string
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("throttled by remote API: %s", e.Message)
}

// TransportError is a network or HTTP-level failure. Retried with backoff; an
// optional Retry-After value from the response is honored.
type TransportError struct {
	StatusCode int
	RetryAfter float64
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error: %v", e.Err)
	}
	return fmt.Sprintf("transport error: status %d", e.StatusCode)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is a non-throttle error payload from the remote API, or a
// malformed record during reconciliation. Not retried.
type ProtocolError struct {
	Messages []string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("remote API errors: %s", strings.Join(e.Messages, " | "))
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsThrottled reports whether err is a ThrottledError.
func IsThrottled(err error) bool {
	var te *ThrottledError
	return errors.As(err, &te)
}

// IsProtocol reports whether err is a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
