package retry

import (
	"time"

	"tenniscoach/pkg/apierrors"
)

// Decision is the outcome of classifying one failure: retry now, retry after a
// server-directed wait, or give up.
type Decision struct {
	after time.Duration
	retry bool
}

// Retry requests another attempt after the policy-computed backoff delay.
func Retry() Decision {
	return Decision{retry: true}
}

// RetryAfter requests another attempt after the given server-directed wait.
func RetryAfter(d time.Duration) Decision {
	return Decision{retry: true, after: d}
}

// DoNotRetry propagates the failure immediately.
func DoNotRetry() Decision {
	return Decision{}
}

// ShouldRetry reports whether another attempt is wanted.
func (d Decision) ShouldRetry() bool {
	return d.retry
}

// DelayOr returns the server-directed wait when present, otherwise fallback.
func (d Decision) DelayOr(fallback time.Duration) time.Duration {
	if d.after > 0 {
		return d.after
	}
	return fallback
}

// Decider maps a failure to a Decision. The zero decider for all executor
// calls is Decide; operations with special nuance (e.g. a processing poll that
// tolerates many transient failures) pass their own via WithDecider.
type Decider func(err error) Decision

// Decide is the default classifier-backed decider.
// Transient transport failures and 5xx retry; 429 retries after the
// server-directed delay when one was present; auth, bad-request, processing,
// protocol, and unclassified failures do not retry (fail closed).
func Decide(err error) Decision {
	if err == nil {
		return DoNotRetry()
	}

	apiErr := apierrors.Classify(err)
	switch apiErr.Type {
	case apierrors.ErrorTypeTransient:
		return Retry()
	case apierrors.ErrorTypeRateLimit:
		if apiErr.RetryAfter > 0 {
			return RetryAfter(apiErr.RetryAfter)
		}
		return Retry()
	default:
		return DoNotRetry()
	}
}

// IsCanceled reports whether err came from cancellation rather than an
// operation failure.
func IsCanceled(err error) bool {
	return apierrors.IsCanceled(err)
}
