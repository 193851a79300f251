// Package metrics provides Prometheus-based metrics recording for upload,
// streaming, and chat operations.
package metrics

import "time"

// Recorder abstracts metrics recording so the network core stays testable
// without a Prometheus registry.
type Recorder interface {
	// ObserveRequest records one completed network operation (upload step,
	// stream connect, poll) with its outcome.
	ObserveRequest(op, model string, success bool, errorType string, duration time.Duration)

	// IncRetry counts one re-attempt of the named operation.
	IncRetry(op string)

	// AddUploadBytes counts bytes acknowledged by the server.
	AddUploadBytes(n int64)

	// ObserveStream records one finished response stream: chunks delivered and
	// total duration, labeled by how the stream ended.
	ObserveStream(model, outcome string, chunks int, duration time.Duration)

	// AddTokens counts prompt/completion tokens attributed to a chat session.
	AddTokens(sessionID, kind string, n int)
}

// NopRecorder discards all observations.
type NopRecorder struct{}

func (NopRecorder) ObserveRequest(string, string, bool, string, time.Duration) {}
func (NopRecorder) IncRetry(string)                                            {}
func (NopRecorder) AddUploadBytes(int64)                                       {}
func (NopRecorder) ObserveStream(string, string, int, time.Duration)           {}
func (NopRecorder) AddTokens(string, string, int)                              {}
