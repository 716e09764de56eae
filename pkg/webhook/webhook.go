// Package webhook posts run reports to HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ccollicutt/trafficlog/pkg/output"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 10 * time.Second

// RunIDHeader carries the report's run ID.
const RunIDHeader = "X-Trafficlog-Run-Id"

const maxResponseBody = 1024 * 1024

// Client sends run reports to webhook endpoints.
type Client struct {
	httpClient   *http.Client
	retryBackoff time.Duration
}

// NewClient creates a new webhook client.
func NewClient() *Client {
	return &Client{
		httpClient:   &http.Client{},
		retryBackoff: time.Second,
	}
}

// SendOptions configures a webhook request.
type SendOptions struct {
	URL     string
	Token   string        // Bearer token (optional)
	Timeout time.Duration // Per-attempt timeout (uses DefaultTimeout if zero)
	Retries int           // Extra attempts after a network error or 5xx response
}

// Response contains the result of a webhook request.
type Response struct {
	StatusCode int
	Body       string
	Attempts   int
	Duration   time.Duration
	Error      error
}

// Success returns true if the webhook was sent successfully (2xx status).
func (r *Response) Success() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Send posts a run report to a webhook endpoint.
func (c *Client) Send(ctx context.Context, report *output.Report, opts SendOptions) *Response {
	start := time.Now()
	resp := &Response{}

	payload, err := json.Marshal(report)
	if err != nil {
		resp.Error = fmt.Errorf("failed to marshal report: %w", err)
		resp.Duration = time.Since(start)
		return resp
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retryBackoff
	exp.MaxElapsedTime = 0
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)

	resp.Error = backoff.Retry(func() error {
		resp.Attempts++
		return c.post(ctx, payload, report.Metadata.RunID, opts, resp)
	}, b)
	resp.Duration = time.Since(start)

	return resp
}

// post performs one attempt. Errors that retrying cannot fix are wrapped as permanent.
func (c *Client) post(ctx context.Context, payload []byte, runID string, opts SendOptions, resp *Response) error {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.URL, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "trafficlog-webhook")
	if runID != "" {
		req.Header.Set(RunIDHeader, runID)
	}
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	resp.StatusCode = httpResp.StatusCode
	resp.Body = string(body)

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return backoff.Permanent(fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}
	return nil
}
