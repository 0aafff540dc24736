package source

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// FetchError is a non-retryable hosting API failure.
type FetchError struct {
	Status  int
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("github api error status=%d: %s", e.Status, e.Message)
	}
	return e.Message
}

func (e *FetchError) Unwrap() error { return e.Err }

// RateLimitError is returned for 403 and 429 responses. Remaining is -1 and
// Reset is zero when the response did not carry quota headers.
type RateLimitError struct {
	Status    int
	Remaining int
	Reset     time.Time
	Message   string
}

func (e *RateLimitError) Error() string {
	reset := "unknown"
	if !e.Reset.IsZero() {
		reset = strconv.FormatInt(e.Reset.Unix(), 10)
	}
	return fmt.Sprintf("github rate limit or forbidden: status=%d remaining=%d reset=%s %s",
		e.Status, e.Remaining, reset, e.Message)
}

func rateLimitFromHeaders(status int, h http.Header, msg string) *RateLimitError {
	rl := &RateLimitError{Status: status, Remaining: -1, Message: msg}
	if v, err := strconv.Atoi(h.Get("X-RateLimit-Remaining")); err == nil {
		rl.Remaining = v
	}
	if v, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		rl.Reset = time.Unix(v, 0).UTC()
	}
	return rl
}
