package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"time"
)

// LimitedError is returned to callers that were denied by a limiter.
// It is soft: the same request may succeed after RetryAfter.
type LimitedError struct {
	Limiter    string
	Identifier string
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: retry after %s", e.Limiter, e.RetryAfter.Round(time.Second))
}

// RetryAfterSeconds rounds the delay up to whole seconds for the Retry-After header
func (e *LimitedError) RetryAfterSeconds() int {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// StatusCode maps the error to 429 Too Many Requests
func (e *LimitedError) StatusCode() int {
	return http.StatusTooManyRequests
}

// Err converts a denied result into a *LimitedError, or nil when allowed
func (r Result) Err(limiter, identifier string) error {
	if r.Allowed {
		return nil
	}
	return &LimitedError{Limiter: limiter, Identifier: identifier, RetryAfter: r.ResetAfter}
}
