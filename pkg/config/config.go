// Package config provides configuration loading, validation, and management
// for the coaching backend. It handles JSON config files with environment
// variable overrides for credentials.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"tenniscoach/pkg/backoff"
)

// Default model and endpoints.
const (
	DefaultModel         = "gemini-2.0-flash"
	DefaultBaseURL       = "https://generativelanguage.googleapis.com"
	DefaultUploadBaseURL = "https://generativelanguage.googleapis.com"
)

// Upload and streaming defaults.
const (
	DefaultUploadChunkBytes     = 8 * 1024 * 1024 // aligned to the server's 8 MiB chunk granularity
	DefaultMaxStreamBufferBytes = 1 << 20         // cap on un-emitted frame bytes before the stream is failed
	DefaultPollIntervalSec      = 2
	DefaultMaxPollAttempts      = 30
	DefaultMaxContextTokens     = 32000
	DefaultRequestTimeoutSec    = 120
)

// RetrySettings defines the serializable knobs for one backoff policy.
type RetrySettings struct {
	MaxAttempts    int     `json:"max_attempts"`
	InitialDelayMs int     `json:"initial_delay_ms"`
	MaxDelayMs     int     `json:"max_delay_ms"`
	Multiplier     float64 `json:"multiplier"`
	JitterFraction float64 `json:"jitter_fraction"`
}

// ToPolicy converts retry settings to a backoff policy, falling back to the
// given preset for unset values.
func (r *RetrySettings) ToPolicy(preset backoff.Policy) backoff.Policy {
	p := preset
	if r == nil {
		return p
	}
	if r.MaxAttempts > 0 {
		p.MaxAttempts = r.MaxAttempts
	}
	if r.InitialDelayMs > 0 {
		p.InitialDelay = time.Duration(r.InitialDelayMs) * time.Millisecond
	}
	if r.MaxDelayMs > 0 {
		p.MaxDelay = time.Duration(r.MaxDelayMs) * time.Millisecond
	}
	if r.Multiplier > 1 {
		p.Multiplier = r.Multiplier
	}
	if r.JitterFraction > 0 {
		p.JitterFraction = r.JitterFraction
	}
	return p
}

// Config represents the main configuration for the coaching backend.
type Config struct {
	APIKey        string `json:"api_key,omitempty"` // Normally supplied via GEMINI_API_KEY
	Model         string `json:"model"`
	BaseURL       string `json:"base_url"`
	UploadBaseURL string `json:"upload_base_url"`

	UploadChunkBytes     int64 `json:"upload_chunk_bytes"`
	MaxStreamBufferBytes int   `json:"max_stream_buffer_bytes"`
	PollIntervalSec      int   `json:"poll_interval_sec"`
	MaxPollAttempts      int   `json:"max_poll_attempts"`
	RequestTimeoutSec    int   `json:"request_timeout_sec"`
	MaxContextTokens     int   `json:"max_context_tokens"`

	// Retry policy overrides; nil fields keep the canonical presets.
	CallRetry *RetrySettings `json:"call_retry,omitempty"`
	PollRetry *RetrySettings `json:"poll_retry,omitempty"`

	HistoryDBPath string `json:"history_db_path,omitempty"` // Empty keeps history in memory
	MetricsAddr   string `json:"metrics_addr,omitempty"`    // e.g. ":9090"; empty disables the /metrics endpoint
}

// DefaultConfig returns a config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Model:                DefaultModel,
		BaseURL:              DefaultBaseURL,
		UploadBaseURL:        DefaultUploadBaseURL,
		UploadChunkBytes:     DefaultUploadChunkBytes,
		MaxStreamBufferBytes: DefaultMaxStreamBufferBytes,
		PollIntervalSec:      DefaultPollIntervalSec,
		MaxPollAttempts:      DefaultMaxPollAttempts,
		RequestTimeoutSec:    DefaultRequestTimeoutSec,
		MaxContextTokens:     DefaultMaxContextTokens,
	}
}

// Load reads configuration from the given path (optional) and applies
// environment overrides. A missing path yields pure defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variables on top of file values.
// Credentials belong in the environment, not in checked-in config files.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("COACH_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("COACH_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("COACH_UPLOAD_BASE_URL"); v != "" {
		cfg.UploadBaseURL = v
	}
	if v := os.Getenv("COACH_HISTORY_DB"); v != "" {
		cfg.HistoryDBPath = v
	}
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.BaseURL == "" || c.UploadBaseURL == "" {
		return fmt.Errorf("base URLs cannot be empty")
	}
	if c.UploadChunkBytes <= 0 {
		return fmt.Errorf("upload chunk bytes must be positive, got %d", c.UploadChunkBytes)
	}
	if c.MaxStreamBufferBytes <= 0 {
		return fmt.Errorf("max stream buffer bytes must be positive, got %d", c.MaxStreamBufferBytes)
	}
	if c.PollIntervalSec <= 0 || c.MaxPollAttempts <= 0 {
		return fmt.Errorf("poll interval and attempts must be positive")
	}
	if p := c.CallPolicy(); p.Validate() != nil {
		return fmt.Errorf("invalid call retry settings: %w", p.Validate())
	}
	if p := c.PollPolicy(); p.Validate() != nil {
		return fmt.Errorf("invalid poll retry settings: %w", p.Validate())
	}
	return nil
}

// CallPolicy returns the backoff policy for ordinary API calls.
func (c *Config) CallPolicy() backoff.Policy {
	return c.CallRetry.ToPolicy(backoff.Default)
}

// PollPolicy returns the lenient backoff policy for processing status polls:
// many attempts, short delays, distinct from the upload-step policy.
func (c *Config) PollPolicy() backoff.Policy {
	return c.PollRetry.ToPolicy(backoff.Aggressive)
}

// PollInterval returns the fixed wait between processing status polls.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// RequestTimeout returns the per-request timeout for non-streaming calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}
