package activities

import (
	"fmt"
	"net/http"

	"go.temporal.io/sdk/temporal"
)

// Error taxonomy. Missing configuration is non-retryable and aborts the
// workflow immediately; transient upstream failures are returned as plain
// errors so the runtime's retry policy applies; expected business failures
// never become errors at all, they come back as {Success: false} results.
const (
	ErrTypeConfig   = "ConfigError"
	ErrTypeUpstream = "UpstreamError"
)

// configError reports missing or invalid configuration. Retrying cannot fix
// it, so the error is classified non-retryable.
func configError(format string, args ...interface{}) error {
	return temporal.NewNonRetryableApplicationError(fmt.Sprintf(format, args...), ErrTypeConfig, nil)
}

// upstreamError wraps a transient third-party failure. Left retryable.
func upstreamError(target string, err error) error {
	return temporal.NewApplicationError(fmt.Sprintf("%s: %v", target, err), ErrTypeUpstream)
}

// retryableStatus reports whether an HTTP status from a third-party API
// should be retried (5xx and 429) or surfaced as an expected failure.
func retryableStatus(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}
