package provider

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// APIError is a non-2xx response from a backend.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string

	// RetryAfter is the backend's suggested wait from a retry-after
	// header, when present.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// ErrCredentialsExhausted is returned when every credential in a pool is
// marked rate-limited. It is terminal for the invocation: the caller
// decides whether to wait, not the retry loop.
type ErrCredentialsExhausted struct {
	Provider string

	// RetryAfter suggests when the earliest credential frees up. Zero
	// when unknown.
	RetryAfter time.Duration
}

func (e *ErrCredentialsExhausted) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s credentials exhausted, retry in %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s credentials exhausted", e.Provider)
}

// IsToolUnsupported reports whether the error indicates the selected
// model or backend rejected tool declarations, as opposed to any other
// bad-request condition.
func IsToolUnsupported(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode != 400 && apiErr.StatusCode != 404 && apiErr.StatusCode != 422 {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	if !strings.Contains(msg, "tool") && !strings.Contains(msg, "function") {
		return false
	}
	return strings.Contains(msg, "not support") ||
		strings.Contains(msg, "unsupported") ||
		strings.Contains(msg, "does not have") ||
		strings.Contains(msg, "unknown field")
}
