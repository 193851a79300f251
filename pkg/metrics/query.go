package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// SessionMetrics represents aggregated metrics for one chat session.
type SessionMetrics struct {
	SessionID        string `json:"session_id"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetSessionMetrics retrieves aggregated token usage for one chat session.
func (q *QueryService) GetSessionMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error) {
	metrics := &SessionMetrics{
		SessionID: sessionID,
	}

	promptQuery := fmt.Sprintf(`sum(coach_tokens_total{session_id=%q, type="prompt"})`, sessionID)
	promptResult, _, err := q.queryAPI.Query(ctx, promptQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	if vector, ok := promptResult.(model.Vector); ok && len(vector) > 0 {
		metrics.PromptTokens = int64(vector[0].Value)
	}

	completionQuery := fmt.Sprintf(`sum(coach_tokens_total{session_id=%q, type="completion"})`, sessionID)
	completionResult, _, err := q.queryAPI.Query(ctx, completionQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	if vector, ok := completionResult.(model.Vector); ok && len(vector) > 0 {
		metrics.CompletionTokens = int64(vector[0].Value)
	}

	metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens
	return metrics, nil
}

// GetUploadRetryRate returns the retry count for the upload transfer step
// since process start, a quick signal of network quality in the field.
func (q *QueryService) GetUploadRetryRate(ctx context.Context) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, `sum(coach_retries_total{op="upload_transfer"})`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to query upload retries: %w", err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}
