package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// One recorder for the whole package: promauto registers against the default
// registry, which rejects duplicate registration.
var rec = NewPrometheusRecorder()

func TestRecorder_Counters(t *testing.T) {
	rec.ObserveRequest("upload", "gemini-2.0-flash", true, "", 120*time.Millisecond)
	rec.ObserveRequest("upload", "gemini-2.0-flash", false, "transient", 60*time.Millisecond)

	ok := rec.requestsTotal.WithLabelValues("upload", "gemini-2.0-flash", "success", "")
	assert.Equal(t, 1.0, testutil.ToFloat64(ok))
	failed := rec.requestsTotal.WithLabelValues("upload", "gemini-2.0-flash", "error", "transient")
	assert.Equal(t, 1.0, testutil.ToFloat64(failed))

	rec.IncRetry("upload_transfer")
	rec.IncRetry("upload_transfer")
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.retriesTotal.WithLabelValues("upload_transfer")))

	rec.AddUploadBytes(1024)
	rec.AddUploadBytes(-5) // negative deltas are dropped
	assert.Equal(t, 1024.0, testutil.ToFloat64(rec.uploadBytes))

	rec.ObserveStream("gemini-2.0-flash", "complete", 7, time.Second)
	assert.Equal(t, 7.0, testutil.ToFloat64(rec.streamChunks.WithLabelValues("gemini-2.0-flash", "complete")))

	rec.AddTokens("sess-1", "prompt", 40)
	rec.AddTokens("sess-1", "completion", 90)
	rec.AddTokens("sess-1", "completion", 0) // zero is dropped
	assert.Equal(t, 40.0, testutil.ToFloat64(rec.tokensTotal.WithLabelValues("sess-1", "prompt")))
	assert.Equal(t, 90.0, testutil.ToFloat64(rec.tokensTotal.WithLabelValues("sess-1", "completion")))
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = NopRecorder{}
	r.ObserveRequest("upload", "m", true, "", time.Second)
	r.IncRetry("poll")
	r.AddUploadBytes(10)
	r.ObserveStream("m", "error", 1, time.Second)
	r.AddTokens("s", "prompt", 5)
}
