package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelay_ExponentialGrowth(t *testing.T) {
	p := Policy{
		MaxAttempts:    5,
		InitialDelay:   time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0,
	}

	assert.Equal(t, 1*time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
}

func TestDelay_MaxDelayClamp(t *testing.T) {
	p := Policy{
		MaxAttempts:    10,
		InitialDelay:   time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0,
	}

	// 1s * 2^5 = 32s, clamped to 30s.
	assert.Equal(t, 30*time.Second, p.Delay(5))
	// Deep attempt counts stay clamped rather than overflowing.
	assert.Equal(t, 30*time.Second, p.Delay(100))
}

func TestDelay_NegativeAttemptTreatedAsZero(t *testing.T) {
	p := Policy{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2.0}
	assert.Equal(t, time.Second, p.Delay(-1))
}

func TestDelay_JitterBounds(t *testing.T) {
	p := Policy{
		MaxAttempts:    3,
		InitialDelay:   time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}

	base := 2 * time.Second
	lo := base - time.Duration(float64(base)*0.1)
	hi := base + time.Duration(float64(base)*0.1)
	for i := 0; i < 100; i++ {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, lo)
		assert.LessOrEqual(t, d, hi)
	}
}

func TestDelay_JitterNeverExceedsMaxDelay(t *testing.T) {
	p := Policy{
		MaxAttempts:    5,
		InitialDelay:   time.Second,
		MaxDelay:       4 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.5,
	}

	for i := 0; i < 100; i++ {
		d := p.Delay(4) // base would be 16s without the clamp
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, p.MaxDelay)
	}
}

func TestCanonicalPolicies(t *testing.T) {
	require.NoError(t, Default.Validate())
	require.NoError(t, Aggressive.Validate())
	require.NoError(t, Conservative.Validate())

	assert.Equal(t, 3, Default.MaxAttempts)
	assert.Equal(t, 1*time.Second, Default.InitialDelay)
	assert.Equal(t, 2.0, Default.Multiplier)
	assert.Equal(t, 0.1, Default.JitterFraction)

	assert.Equal(t, 5, Aggressive.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, Aggressive.InitialDelay)
	assert.Equal(t, 1.5, Aggressive.Multiplier)

	assert.Equal(t, 2, Conservative.MaxAttempts)
	assert.Equal(t, 2*time.Second, Conservative.InitialDelay)
	assert.Equal(t, 2.0, Conservative.Multiplier)
}

func TestValidate_RejectsBadPolicies(t *testing.T) {
	cases := []struct {
		name string
		p    Policy
	}{
		{"zero attempts", Policy{MaxAttempts: 0, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 2}},
		{"zero initial delay", Policy{MaxAttempts: 1, InitialDelay: 0, MaxDelay: time.Second, Multiplier: 2}},
		{"max below initial", Policy{MaxAttempts: 1, InitialDelay: 2 * time.Second, MaxDelay: time.Second, Multiplier: 2}},
		{"multiplier of one", Policy{MaxAttempts: 1, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}},
		{"jitter above one", Policy{MaxAttempts: 1, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 2, JitterFraction: 1.5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.p.Validate())
		})
	}
}
