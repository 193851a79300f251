// Package utils provides tiktoken-based token counting utilities.
package utils

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides approximate token counting for prompt budgeting.
// Gemini tokenization is close enough to GPT-4 encoding for budget checks.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a new token counter.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		// Fallback to character-based estimation (4 chars ≈ 1 token)
		return len(text) / 4
	}

	ids, _, err := tc.codec.Encode(text)
	if err != nil {
		return len(text) / 4
	}
	return len(ids)
}

// CountTokensSimple provides token counting without a TokenCounter instance.
func CountTokensSimple(text string) int {
	counter, err := NewTokenCounter()
	if err != nil {
		return len(text) / 4
	}
	return counter.CountTokens(text)
}

// ValidateTokenLimit checks if text exceeds the specified token limit.
// Returns true if within limit, false if exceeds limit.
func (tc *TokenCounter) ValidateTokenLimit(text string, limit int) bool {
	return tc.CountTokens(text) <= limit
}
