package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountTokens_Basic(t *testing.T) {
	tc, err := NewTokenCounter()
	require.NoError(t, err)

	assert.Equal(t, 0, tc.CountTokens(""))
	assert.Greater(t, tc.CountTokens("analyze my serve toss"), 0)
}

func TestCountTokens_NilCounterFallsBack(t *testing.T) {
	var tc *TokenCounter
	text := strings.Repeat("a", 400)
	assert.Equal(t, 100, tc.CountTokens(text))
}

func TestValidateTokenLimit(t *testing.T) {
	tc, err := NewTokenCounter()
	require.NoError(t, err)

	assert.True(t, tc.ValidateTokenLimit("short", 100))
	long := strings.Repeat("forehand crosscourt ", 500)
	assert.False(t, tc.ValidateTokenLimit(long, 10))
}
