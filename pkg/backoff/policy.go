// Package backoff provides exponential backoff policies with jitter for retried network calls.
package backoff

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy defines configuration for retry delay computation.
// Policies are immutable values and safe to share between concurrent callers.
type Policy struct {
	MaxAttempts    int           `json:"max_attempts"`    // Maximum number of attempts (including initial)
	InitialDelay   time.Duration `json:"initial_delay"`   // Delay before the first retry
	MaxDelay       time.Duration `json:"max_delay"`       // Maximum delay between retries
	Multiplier     float64       `json:"multiplier"`      // Multiplier for exponential backoff
	JitterFraction float64       `json:"jitter_fraction"` // Symmetric jitter as a fraction of the base delay (0..1)
}

// Canonical policies.
//
//nolint:gochecknoglobals // Sensible default config pattern
var (
	// Default covers ordinary API calls: 3 attempts, 1s initial, doubling, 10% jitter.
	Default = Policy{
		MaxAttempts:    3,
		InitialDelay:   1 * time.Second,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}

	// Aggressive is for cheap, idempotent calls such as status polls.
	Aggressive = Policy{
		MaxAttempts:    5,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		Multiplier:     1.5,
		JitterFraction: 0.1,
	}

	// Conservative is for expensive calls where a quick second try is all that is wanted.
	Conservative = Policy{
		MaxAttempts:    2,
		InitialDelay:   2 * time.Second,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
)

// Validate checks the policy invariants.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay <= 0 {
		return fmt.Errorf("initial delay must be positive, got %v", p.InitialDelay)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("max delay %v must not be below initial delay %v", p.MaxDelay, p.InitialDelay)
	}
	if p.Multiplier <= 1 {
		return fmt.Errorf("multiplier must be greater than 1, got %v", p.Multiplier)
	}
	if p.JitterFraction < 0 || p.JitterFraction > 1 {
		return fmt.Errorf("jitter fraction must be in [0,1], got %v", p.JitterFraction)
	}
	return nil
}

// Delay computes the backoff delay after `attempt` failed attempts (0-indexed:
// Delay(0) is the wait before the first retry). The base delay is
// min(MaxDelay, InitialDelay * Multiplier^attempt); jitter is applied
// symmetrically (base ± base*JitterFraction, uniformly sampled) and the result
// is clamped to [0, MaxDelay]. Pure apart from the jitter sample.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	base := time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt)))
	if base > p.MaxDelay || base <= 0 { // <=0 guards float overflow on large attempt counts
		base = p.MaxDelay
	}

	delay := base
	if p.JitterFraction > 0 {
		// Symmetric jitter: uniform in [-f, +f] of the base delay.
		offset := (2*rand.Float64() - 1) * p.JitterFraction * float64(base)
		delay = base + time.Duration(offset)
	}

	if delay < 0 {
		delay = 0
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}
