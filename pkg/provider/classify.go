package provider

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// Category buckets a provider failure for the retry loop.
type Category string

const (
	CategoryRateLimit            Category = "RATE_LIMIT"
	CategoryAuth                 Category = "AUTH"
	CategoryNetwork              Category = "NETWORK"
	CategoryTimeout              Category = "TIMEOUT"
	CategoryToolUnsupported      Category = "TOOL_UNSUPPORTED"
	CategoryCredentialsExhausted Category = "CREDENTIALS_EXHAUSTED"
	CategoryUnknown              Category = "UNKNOWN"
)

// Severity grades how loudly the failure should surface.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityFatal   Severity = "fatal"
)

// Classification is the retry guidance computed fresh for one failure.
// RetryDelay is the base delay; the retry loop grows it exponentially up
// to a bound.
type Classification struct {
	Category           Category
	Severity           Severity
	Retryable          bool
	RetryDelay         time.Duration
	MaxRetries         int
	RecoverySuggestion string
}

// ClassifyContext carries the call context the classifier may use.
type ClassifyContext struct {
	Provider string
	Model    string
}

// Classify inspects a failure from a provider adapter and assigns its
// category and retry guidance. It never returns a zero Classification:
// anything unrecognized is CategoryUnknown, non-retryable, with a
// generic suggestion.
func Classify(err error, cctx ClassifyContext) Classification {
	if err == nil {
		return Classification{Category: CategoryUnknown, Severity: SeverityWarning}
	}

	var exhausted *ErrCredentialsExhausted
	if errors.As(err, &exhausted) {
		return Classification{
			Category:           CategoryCredentialsExhausted,
			Severity:           SeverityFatal,
			Retryable:          false,
			RetryDelay:         exhausted.RetryAfter,
			RecoverySuggestion: "all API keys for " + cctx.Provider + " are rate-limited; add keys or wait before retrying",
		}
	}

	if IsToolUnsupported(err) {
		return Classification{
			Category:           CategoryToolUnsupported,
			Severity:           SeverityWarning,
			Retryable:          false,
			RecoverySuggestion: "model " + cctx.Model + " does not support tool declarations; the request is retried once without tools",
		}
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr, cctx)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{
			Category:           CategoryTimeout,
			Severity:           SeverityWarning,
			Retryable:          true,
			RetryDelay:         2 * time.Second,
			MaxRetries:         3,
			RecoverySuggestion: "the call exceeded its timeout budget; retrying, consider a faster model",
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		cls := Classification{
			Category:           CategoryNetwork,
			Severity:           SeverityWarning,
			Retryable:          true,
			RetryDelay:         2 * time.Second,
			MaxRetries:         3,
			RecoverySuggestion: "network failure reaching " + cctx.Provider + "; check connectivity",
		}
		if netErr.Timeout() {
			cls.Category = CategoryTimeout
		}
		return cls
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "quota"):
		return Classification{
			Category:           CategoryRateLimit,
			Severity:           SeverityWarning,
			Retryable:          true,
			RetryDelay:         5 * time.Second,
			MaxRetries:         5,
			RecoverySuggestion: "rate limited by " + cctx.Provider + "; backing off",
		}
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "authentication") || strings.Contains(msg, "forbidden"):
		return Classification{
			Category:           CategoryAuth,
			Severity:           SeverityFatal,
			Retryable:          false,
			RecoverySuggestion: "authentication failed for " + cctx.Provider + "; check the configured API key",
		}
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "unexpected eof"):
		return Classification{
			Category:           CategoryNetwork,
			Severity:           SeverityWarning,
			Retryable:          true,
			RetryDelay:         2 * time.Second,
			MaxRetries:         3,
			RecoverySuggestion: "could not reach " + cctx.Provider + "; check connectivity and base URL",
		}
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout"):
		return Classification{
			Category:           CategoryTimeout,
			Severity:           SeverityWarning,
			Retryable:          true,
			RetryDelay:         2 * time.Second,
			MaxRetries:         3,
			RecoverySuggestion: "the call timed out; retrying",
		}
	}

	return Classification{
		Category:           CategoryUnknown,
		Severity:           SeverityError,
		Retryable:          false,
		RecoverySuggestion: "unexpected failure from " + cctx.Provider + "; inspect the underlying error",
	}
}

func classifyAPIError(apiErr *APIError, cctx ClassifyContext) Classification {
	switch {
	case apiErr.StatusCode == 429 || apiErr.StatusCode == 529:
		delay := apiErr.RetryAfter
		if delay <= 0 {
			delay = 5 * time.Second
		}
		return Classification{
			Category:           CategoryRateLimit,
			Severity:           SeverityWarning,
			Retryable:          true,
			RetryDelay:         delay,
			MaxRetries:         5,
			RecoverySuggestion: "rate limited by " + cctx.Provider + "; backing off",
		}
	case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
		return Classification{
			Category:           CategoryAuth,
			Severity:           SeverityFatal,
			Retryable:          false,
			RecoverySuggestion: "authentication failed for " + cctx.Provider + "; check the configured API key",
		}
	case apiErr.StatusCode == 408:
		return Classification{
			Category:           CategoryTimeout,
			Severity:           SeverityWarning,
			Retryable:          true,
			RetryDelay:         2 * time.Second,
			MaxRetries:         3,
			RecoverySuggestion: "request timed out at " + cctx.Provider + "; retrying",
		}
	case apiErr.StatusCode >= 500:
		return Classification{
			Category:           CategoryNetwork,
			Severity:           SeverityWarning,
			Retryable:          true,
			RetryDelay:         3 * time.Second,
			MaxRetries:         3,
			RecoverySuggestion: cctx.Provider + " returned a server error; retrying",
		}
	}
	return Classification{
		Category:           CategoryUnknown,
		Severity:           SeverityError,
		Retryable:          false,
		RecoverySuggestion: cctx.Provider + " rejected the request; inspect the request parameters",
	}
}
