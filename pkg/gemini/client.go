package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tenniscoach/pkg/apierrors"
	"tenniscoach/pkg/backoff"
	"tenniscoach/pkg/config"
	"tenniscoach/pkg/logx"
	"tenniscoach/pkg/metrics"
)

const apiVersion = "v1beta"

// maxErrorBodyBytes caps how much of an error response body is read for
// classification.
const maxErrorBodyBytes = 64 * 1024

// Client talks to the generative language API. It is safe for concurrent use;
// each upload or stream owns its own session state.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	uploadBaseURL string
	apiKey        string
	model         string

	chunkSize       int64
	maxStreamBuffer int
	pollInterval    time.Duration
	maxPolls        int
	requestTimeout  time.Duration

	callPolicy backoff.Policy
	pollPolicy backoff.Policy

	rec    metrics.Recorder
	logger *logx.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec metrics.Recorder) Option {
	return func(c *Client) { c.rec = rec }
}

// WithLogger sets the logger.
func WithLogger(l *logx.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient builds a client from configuration.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		httpClient:      &http.Client{},
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		uploadBaseURL:   strings.TrimRight(cfg.UploadBaseURL, "/"),
		apiKey:          cfg.APIKey,
		model:           cfg.Model,
		chunkSize:       cfg.UploadChunkBytes,
		maxStreamBuffer: cfg.MaxStreamBufferBytes,
		pollInterval:    cfg.PollInterval(),
		maxPolls:        cfg.MaxPollAttempts,
		requestTimeout:  cfg.RequestTimeout(),
		callPolicy:      cfg.CallPolicy(),
		pollPolicy:      cfg.PollPolicy(),
		rec:             metrics.NopRecorder{},
		logger:          logx.NewLogger("gemini"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// withRequestTimeout bounds one non-streaming request attempt. Streams are
// exempt: a healthy stream may legitimately outlive any fixed deadline.
// Timeouts surface as transient failures, so bounded attempts still retry.
func (c *Client) withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

// newRequest builds an authenticated request. The API key travels in a header
// so it never appears in logged URLs.
func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, apierrors.NewErrorWithCause(apierrors.ErrorTypeBadRequest, err, "building request")
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	return req, nil
}

// doJSON performs a single request attempt and decodes a JSON response into
// out. Non-2xx responses are classified into typed errors.
func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apierrors.Classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return decodeJSONBody(resp.Body, out)
}

// decodeJSONBody decodes a response body, classifying parse failures as
// protocol errors.
func decodeJSONBody(r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return apierrors.NewErrorWithCause(apierrors.ErrorTypeProtocol, err, "decoding response body")
	}
	return nil
}

// responseError reads a bounded prefix of the body and classifies the failure
// by status code.
func responseError(resp *http.Response) *apierrors.Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return apierrors.FromResponse(resp, body)
}

// getFile fetches file metadata for one poll attempt.
func (c *Client) getFile(ctx context.Context, name string) (*File, error) {
	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, apiVersion, name)
	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	var f File
	if err := c.doJSON(req, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// marshalBody encodes a JSON request body.
func marshalBody(v any) (*bytes.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, apierrors.NewErrorWithCause(apierrors.ErrorTypeBadRequest, err, "encoding request body")
	}
	return bytes.NewReader(data), nil
}

// observe reports one logical operation to the recorder.
func (c *Client) observe(op string, start time.Time, err error) {
	c.rec.ObserveRequest(op, c.model, err == nil, errorTypeLabel(err), time.Since(start))
}

func errorTypeLabel(err error) string {
	if err == nil {
		return ""
	}
	return apierrors.TypeOf(err).String()
}
