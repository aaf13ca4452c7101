// Package httpclient builds HTTP clients shared by the remote tools and the
// agent transport: timeout-bounded, circuit-breaker guarded, with response
// size limits.
package httpclient

import (
	"net/http"
	"time"

	"finbench/internal/logging"
)

// New returns an HTTP client with the given total-request timeout.
func New(timeout time.Duration, logger logging.Logger) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logging.OrNop(logger).Debug("Creating HTTP client with timeout %v", timeout)
	return &http.Client{
		Timeout: timeout,
	}
}
