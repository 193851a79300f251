package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	uploadBytes     prometheus.Counter
	streamChunks    *prometheus.CounterVec
	streamDuration  *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
}

// NewPrometheusRecorder creates a new Prometheus-based metrics recorder using
// the default registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coach_requests_total",
				Help: "Total number of API operations by operation, model, status, and error type",
			},
			[]string{"op", "model", "status", "error_type"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coach_request_duration_seconds",
				Help:    "Duration of API operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "model"},
		),
		retriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coach_retries_total",
				Help: "Total number of retried attempts by operation",
			},
			[]string{"op"},
		),
		uploadBytes: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "coach_upload_bytes_total",
				Help: "Total bytes acknowledged by the upload endpoint",
			},
		),
		streamChunks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coach_stream_chunks_total",
				Help: "Total streamed response chunks delivered to consumers",
			},
			[]string{"model", "outcome"},
		),
		streamDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coach_stream_duration_seconds",
				Help:    "Lifetime of response streams in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "outcome"},
		),
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coach_tokens_total",
				Help: "Total number of tokens used in analysis requests",
			},
			[]string{"session_id", "type"},
		),
	}
}

// ObserveRequest records one completed network operation.
func (p *PrometheusRecorder) ObserveRequest(op, model string, success bool, errorType string, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.requestsTotal.WithLabelValues(op, model, status, errorType).Inc()
	p.requestDuration.WithLabelValues(op, model).Observe(duration.Seconds())
}

// IncRetry counts one re-attempt of the named operation.
func (p *PrometheusRecorder) IncRetry(op string) {
	p.retriesTotal.WithLabelValues(op).Inc()
}

// AddUploadBytes counts bytes acknowledged by the server.
func (p *PrometheusRecorder) AddUploadBytes(n int64) {
	if n > 0 {
		p.uploadBytes.Add(float64(n))
	}
}

// ObserveStream records one finished response stream.
func (p *PrometheusRecorder) ObserveStream(model, outcome string, chunks int, duration time.Duration) {
	p.streamChunks.WithLabelValues(model, outcome).Add(float64(chunks))
	p.streamDuration.WithLabelValues(model, outcome).Observe(duration.Seconds())
}

// AddTokens counts tokens attributed to a chat session.
func (p *PrometheusRecorder) AddTokens(sessionID, kind string, n int) {
	if n > 0 {
		p.tokensTotal.WithLabelValues(sessionID, kind).Add(float64(n))
	}
}
