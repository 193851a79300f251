package logx

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"
)

// newBufferLogger builds a logger writing into a buffer for inspection.
func newBufferLogger(component string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Logger{
		component: component,
		logger:    log.New(&buf, "", 0),
	}, &buf
}

func TestLogFormat(t *testing.T) {
	logger, buf := newBufferLogger("upload")
	logger.Info("committed %d bytes", 4096)

	output := buf.String()
	if !strings.Contains(output, "[upload]") {
		t.Errorf("Expected component in output, got: %s", output)
	}
	if !strings.Contains(output, "INFO") {
		t.Errorf("Expected log level in output, got: %s", output)
	}
	if !strings.Contains(output, "committed 4096 bytes") {
		t.Errorf("Expected formatted message in output, got: %s", output)
	}
	// ISO timestamp, basic check.
	if !strings.Contains(output, "T") || !strings.Contains(output, "Z") {
		t.Errorf("Expected ISO timestamp in output, got: %s", output)
	}
}

func TestDebugGatedByDomain(t *testing.T) {
	defer SetDebug(false, nil)

	logger, buf := newBufferLogger("stream")

	SetDebug(false, nil)
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected no debug output when disabled, got: %s", buf.String())
	}

	SetDebug(true, []string{"upload"})
	logger.Debug("still hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected no debug output for unlisted domain, got: %s", buf.String())
	}

	SetDebug(true, []string{"stream"})
	logger.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("Expected debug output for listed domain, got: %s", buf.String())
	}

	SetDebug(true, nil)
	buf.Reset()
	logger.Debug("all domains")
	if !strings.Contains(buf.String(), "all domains") {
		t.Errorf("Expected debug output with no domain filter, got: %s", buf.String())
	}
}

func TestIsDebugEnabledForDomain(t *testing.T) {
	defer SetDebug(false, nil)

	SetDebug(true, []string{"upload", "chat"})
	if !IsDebugEnabledForDomain("upload") {
		t.Error("Expected upload domain to be enabled")
	}
	if IsDebugEnabledForDomain("stream") {
		t.Error("Expected stream domain to be disabled")
	}
}

func TestWithComponent(t *testing.T) {
	logger, buf := newBufferLogger("gemini")
	child := logger.WithComponent("gemini-upload")

	if child.GetComponent() != "gemini-upload" {
		t.Errorf("Expected child component, got %s", child.GetComponent())
	}

	child.Info("hello")
	if !strings.Contains(buf.String(), "[gemini-upload]") {
		t.Errorf("Expected child component tag, got: %s", buf.String())
	}
}

func TestErrorfReturnsError(t *testing.T) {
	err := Errorf("upload failed: %w", errors.New("boom"))
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Expected wrapped error, got: %v", err)
	}
}

func TestWrap(t *testing.T) {
	base := errors.New("disk full")
	err := Wrap(base, "open history store")
	if !errors.Is(err, base) {
		t.Error("Expected wrapped error to unwrap to the base error")
	}
	if Wrap(nil, "noop") != nil {
		t.Error("Expected nil wrap of nil error")
	}
}
