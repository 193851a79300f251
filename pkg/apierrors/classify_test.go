package apierrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify_Nil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}

func TestClassify_PassThrough(t *testing.T) {
	orig := NewErrorWithStatus(ErrorTypeAuth, 401, "bad key")
	got := Classify(fmt.Errorf("call failed: %w", orig))
	assert.Same(t, orig, got)
}

func TestClassify_ContextCanceled(t *testing.T) {
	got := Classify(context.Canceled)
	require.NotNil(t, got)
	assert.Equal(t, ErrorTypeCanceled, got.Type)
	assert.False(t, got.IsRetryable())
}

func TestClassify_DeadlineExceededIsTransient(t *testing.T) {
	// Per-request HTTP timeouts wrap DeadlineExceeded while the parent
	// context is still valid, so they must stay retryable.
	got := Classify(fmt.Errorf("http call: %w", context.DeadlineExceeded))
	assert.Equal(t, ErrorTypeTransient, got.Type)
}

func TestClassify_NetTimeout(t *testing.T) {
	got := Classify(timeoutErr{})
	assert.Equal(t, ErrorTypeTransient, got.Type)
}

func TestClassify_DNSFailureIsTransient(t *testing.T) {
	// No connectivity: DNS cannot resolve while offline.
	dnsErr := &net.DNSError{Err: "no such host", Name: "example.invalid", IsNotFound: true}
	got := Classify(dnsErr)
	assert.Equal(t, ErrorTypeTransient, got.Type)
}

func TestClassify_ConnectionResetString(t *testing.T) {
	got := Classify(errors.New("read tcp 10.0.0.1:443: connection reset by peer"))
	assert.Equal(t, ErrorTypeTransient, got.Type)
}

func TestClassify_UnknownFailsClosed(t *testing.T) {
	got := Classify(errors.New("something completely unexpected"))
	assert.Equal(t, ErrorTypeUnknown, got.Type)
	assert.False(t, got.IsRetryable())
}

func makeResponse(status int, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Header: header}
}

func TestFromResponse_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorType
	}{
		{400, ErrorTypeBadRequest},
		{401, ErrorTypeAuth},
		{403, ErrorTypeAuth},
		{429, ErrorTypeRateLimit},
		{500, ErrorTypeTransient},
		{502, ErrorTypeTransient},
		{503, ErrorTypeTransient},
		{504, ErrorTypeTransient},
		{418, ErrorTypeUnknown},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			got := FromResponse(makeResponse(tc.status, nil), nil)
			assert.Equal(t, tc.want, got.Type)
			assert.Equal(t, tc.status, got.StatusCode)
		})
	}
}

func TestFromResponse_RetryAfterSeconds(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "5")
	got := FromResponse(makeResponse(429, h), nil)
	assert.Equal(t, ErrorTypeRateLimit, got.Type)
	assert.Equal(t, 5*time.Second, got.RetryAfter)
}

func TestFromResponse_RetryAfterHTTPDate(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", time.Now().UTC().Add(10*time.Second).Format(http.TimeFormat))
	got := FromResponse(makeResponse(429, h), nil)
	assert.Greater(t, got.RetryAfter, 5*time.Second)
	assert.LessOrEqual(t, got.RetryAfter, 10*time.Second)
}

func TestFromResponse_RetryAfterInvalidIgnored(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "soon")
	got := FromResponse(makeResponse(429, h), nil)
	assert.Equal(t, time.Duration(0), got.RetryAfter)
}

func TestFromResponse_BodyStubTruncated(t *testing.T) {
	body := make([]byte, 2048)
	for i := range body {
		body[i] = 'x'
	}
	got := FromResponse(makeResponse(500, nil), body)
	assert.LessOrEqual(t, len(got.Message), 600)
}
