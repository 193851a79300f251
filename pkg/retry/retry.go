// Package retry provides a generic retry executor with exponential backoff for
// resilient network calls. Every call owns independent attempt state, so one
// executor invocation never affects another sharing the same policy.
package retry

import (
	"context"
	"time"

	"tenniscoach/pkg/apierrors"
	"tenniscoach/pkg/backoff"
	"tenniscoach/pkg/logx"
)

// Operation is a single attempt producing a result or failing.
type Operation[T any] func(ctx context.Context) (T, error)

// Option customizes one executor call.
type Option func(*options)

type options struct {
	decider Decider
	logger  *logx.Logger
	onRetry func(attempt int, err error)
}

// WithDecider overrides the default classifier-backed decider for
// operation-specific nuance.
func WithDecider(d Decider) Option {
	return func(o *options) { o.decider = d }
}

// WithLogger attaches a logger for per-attempt debug output.
func WithLogger(l *logx.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithOnRetry registers a callback invoked before each re-attempt, after the
// failure was classified retryable. Used by callers that must re-sync state
// (e.g. querying the committed upload offset) before trying again.
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(o *options) { o.onRetry = fn }
}

// Do runs op under the given policy. On success the result is returned
// immediately. On failure the decider picks Retry, RetryAfter, or DoNotRetry;
// non-retryable failures propagate untouched after exactly one attempt, and an
// exhausted budget surfaces the last observed failure tagged exhausted.
// The inter-attempt sleep is interruptible: cancellation during the sleep
// aborts with a canceled error distinct from the operation's failure and never
// invokes another attempt.
func Do[T any](ctx context.Context, policy backoff.Policy, op Operation[T], opts ...Option) (T, error) {
	var zero T

	o := options{decider: Decide}
	for _, apply := range opts {
		apply(&o)
	}

	// Attempt state is local to this call: attempt counter, last failure.
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, apierrors.NewCanceledError(err)
		}

		res, err := op(ctx)
		if err == nil {
			if attempt > 0 && o.logger != nil {
				o.logger.Debug("operation succeeded after %d retries", attempt)
			}
			return res, nil
		}
		lastErr = err

		// An attempt that failed because the caller canceled is cancellation,
		// not an operation failure.
		if ctx.Err() != nil {
			return zero, apierrors.NewCanceledError(ctx.Err())
		}

		decision := o.decider(err)
		if !decision.ShouldRetry() {
			return zero, err
		}

		if attempt+1 >= policy.MaxAttempts {
			if o.logger != nil {
				o.logger.Warn("retry budget exhausted after %d attempts: %v", policy.MaxAttempts, lastErr)
			}
			return zero, apierrors.NewExhaustedError(lastErr, policy.MaxAttempts)
		}

		delay := decision.DelayOr(policy.Delay(attempt))
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
		if o.logger != nil {
			o.logger.Debug("attempt %d failed (%v), retrying in %v", attempt+1, err, delay)
		}

		select {
		case <-ctx.Done():
			return zero, apierrors.NewCanceledError(ctx.Err())
		case <-time.After(delay):
		}

		if o.onRetry != nil {
			o.onRetry(attempt+1, err)
		}
	}
}

// Run is the result-free variant of Do for operations with side effects only.
func Run(ctx context.Context, policy backoff.Policy, op func(ctx context.Context) error, opts ...Option) error {
	_, err := Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}
