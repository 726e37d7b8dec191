// Package coderabbit calls the CodeRabbit platform API. Only the reports
// endpoint is used: the per-PR reviews arrive through GitHub comments and are
// handled by the judge pipeline.
package coderabbit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wallofshame/gitranker/internal/errors"
	"github.com/wallofshame/gitranker/internal/resilience"
)

const defaultAPIBase = "https://api.coderabbit.ai/api/v1"

// Client talks to the CodeRabbit REST API with an API key.
type Client struct {
	base       string
	apiKey     string
	httpClient *http.Client
	retry      resilience.RetryConfig
	now        func() time.Time
}

// NewClient creates a CodeRabbit client. base may be empty for the production
// endpoint. Report generation walks every review in the date range, so the
// timeout is generous.
func NewClient(base, apiKey string) *Client {
	if base == "" {
		base = defaultAPIBase
	}
	return &Client{
		base:   base,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		retry: resilience.DefaultRetryConfig(),
		now:   time.Now,
	}
}

type reportRequest struct {
	From           string `json:"from"`
	To             string `json:"to"`
	PromptTemplate string `json:"promptTemplate"`
	Prompt         string `json:"prompt"`
	GroupBy        string `json:"groupBy"`
}

// GenerateReport requests a custom report grouped by repository over the
// current year, returning the raw response JSON.
func (c *Client) GenerateReport(ctx context.Context, prompt string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, errors.NewValidationError("coderabbit api key not configured")
	}

	now := c.now().UTC()
	payload, err := json.Marshal(reportRequest{
		From:           fmt.Sprintf("%d-01-01", now.Year()),
		To:             now.Format("2006-01-02"),
		PromptTemplate: "Custom",
		Prompt:         prompt,
		GroupBy:        "REPOSITORY",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report request: %w", err)
	}

	resp, err := resilience.RetryHTTP(ctx, c.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", c.base+"/report.generate", bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("x-coderabbitai-api-key", c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, errors.NewTransientError("coderabbit request failed", err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewExternalAPIError("coderabbit",
			fmt.Errorf("status %d: %.300s", resp.StatusCode, string(body)))
	}
	return body, nil
}
