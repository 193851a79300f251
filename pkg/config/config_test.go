package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenniscoach/pkg/backoff"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, int64(DefaultUploadChunkBytes), cfg.UploadChunkBytes)
	assert.Equal(t, 2*time.Second, cfg.PollInterval())
	assert.Equal(t, backoff.Default, cfg.CallPolicy())
	assert.Equal(t, backoff.Aggressive, cfg.PollPolicy())
}

func TestLoad_FileValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data := `{
		"model": "gemini-2.0-pro",
		"upload_chunk_bytes": 262144,
		"poll_interval_sec": 1,
		"call_retry": {"max_attempts": 5, "initial_delay_ms": 200}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.0-pro", cfg.Model)
	assert.Equal(t, int64(262144), cfg.UploadChunkBytes)
	assert.Equal(t, time.Second, cfg.PollInterval())

	policy := cfg.CallPolicy()
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, policy.InitialDelay)
	// Unset fields keep the preset.
	assert.Equal(t, backoff.Default.MaxDelay, policy.MaxDelay)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"api_key": "from-file", "model": "m1"}`), 0o644))

	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("COACH_MODEL", "m2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, "m2", cfg.Model)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/config.json")
	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UploadChunkBytes = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Model = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.CallRetry = &RetrySettings{MaxAttempts: 3, InitialDelayMs: 5000, MaxDelayMs: 1000}
	assert.Error(t, cfg.Validate(), "max delay below initial delay must be rejected")
}
