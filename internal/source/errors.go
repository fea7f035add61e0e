package source

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitError signals that the provider (or a local governor) refused a
// call because a quota is exhausted. It is never retried inline.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration // zero when unknown
	Quota      bool          // hard hourly quota rather than a transient limit
}

func (e *RateLimitError) Error() string {
	kind := "rate limited"
	if e.Quota {
		kind = "quota exhausted"
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %s, retry after %s", e.Source, kind, e.RetryAfter)
	}
	return fmt.Sprintf("%s: %s", e.Source, kind)
}

// AsRateLimit reports whether err wraps a *RateLimitError.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// ErrNotFound is returned by Detail when the item no longer exists.
var ErrNotFound = errors.New("item not found")

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
