package provider

import (
	"net/http"
	"strconv"
	"time"
)

// newHTTPClient returns the client adapters share. Call timeouts are
// enforced per request through the context, tiered by model class, so
// the client itself carries none.
func newHTTPClient() *http.Client {
	return &http.Client{}
}

// retryAfterHeader parses a retry-after header into a duration, zero
// when absent or unparseable.
func retryAfterHeader(resp *http.Response) time.Duration {
	ra := resp.Header.Get("retry-after")
	if ra == "" {
		return 0
	}
	if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
