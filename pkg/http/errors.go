package http

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrRetriesExhausted wraps the last transient error once every retry
// attempt has been spent. Callers treat it as "no data this cycle".
var ErrRetriesExhausted = errors.New("retries exhausted")

// APIError represents a non-2xx response from the remote API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// RateLimited reports whether the response was an HTTP 429.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == 429
}

// IsTimeout reports whether err is a network timeout or a deadline expiry.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsTransient reports whether err should trigger a backoff retry.
// Only timeouts and rate-limit responses qualify; anything else is a
// programming or request error and must propagate to the caller.
func IsTransient(err error) bool {
	if IsTimeout(err) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.RateLimited()
}
