package apierrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Classify maps an arbitrary failure to a classified *Error. Already-classified
// errors pass through unchanged. Transport-level failures (timeouts, resets,
// missing connectivity) become transient; context cancellation becomes
// canceled; everything else is unknown and therefore not retried.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	// Cancellation is surfaced distinctly, never as a failure kind.
	if errors.Is(err, context.Canceled) {
		return NewCanceledError(err)
	}

	// Per-request deadlines wrap DeadlineExceeded while the parent context is
	// still valid, so they count as transport timeouts.
	if errors.Is(err, context.DeadlineExceeded) {
		return NewErrorWithCause(ErrorTypeTransient, err, "request timeout")
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewErrorWithCause(ErrorTypeTransient, err, "network timeout")
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NewErrorWithCause(ErrorTypeTransient, err, "no connectivity")
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NewErrorWithCause(ErrorTypeTransient, err, "network error")
	}

	// String fallback for transport errors the stdlib does not expose as types.
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "EOF") {
		return NewErrorWithCause(ErrorTypeTransient, err, "network or connection error")
	}

	return NewErrorWithCause(ErrorTypeUnknown, err, "unclassified error")
}

// FromResponse classifies a non-2xx HTTP response. The body, when available,
// is folded into the message for caller-facing detail.
func FromResponse(resp *http.Response, body []byte) *Error {
	msg := strings.TrimSpace(string(body))
	const maxBodyStub = 512
	if len(msg) > maxBodyStub {
		msg = msg[:maxBodyStub]
	}

	status := resp.StatusCode
	switch {
	case status == http.StatusTooManyRequests:
		e := NewErrorWithStatus(ErrorTypeRateLimit, status, "rate limit exceeded")
		if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			e.RetryAfter = d
		}
		return e
	case status == http.StatusUnauthorized:
		return NewErrorWithStatus(ErrorTypeAuth, status, "authentication failed - check API key")
	case status == http.StatusForbidden:
		return NewErrorWithStatus(ErrorTypeAuth, status, "permission denied - check API access")
	case status == http.StatusBadRequest:
		return NewErrorWithStatus(ErrorTypeBadRequest, status, fmt.Sprintf("bad request: %s", msg))
	case status >= 500:
		return NewErrorWithStatus(ErrorTypeTransient, status, fmt.Sprintf("server error: %s", msg))
	default:
		return NewErrorWithStatus(ErrorTypeUnknown, status, fmt.Sprintf("unexpected status: %s", msg))
	}
}

// parseRetryAfter parses a Retry-After header value, which is either
// delta-seconds or an HTTP date.
func parseRetryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}

	if at, err := http.ParseTime(v); err == nil {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return 0, false
}
