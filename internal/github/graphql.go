package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wallofshame/gitranker/internal/errors"
	"github.com/wallofshame/gitranker/internal/resilience"
)

// GraphQLClient executes GitHub GraphQL queries with token rotation and
// retry on transient upstream failures.
type GraphQLClient struct {
	url        string
	pool       *TokenPool
	httpClient *http.Client
	retry      resilience.RetryConfig
}

// NewGraphQLClient creates a GraphQL client over the given token pool.
func NewGraphQLClient(url string, pool *TokenPool) *GraphQLClient {
	return &GraphQLClient{
		url:  url,
		pool: pool,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: resilience.DefaultRetryConfig(),
	}
}

// GraphQLRequest represents a GraphQL request.
type GraphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// GraphQLResponse represents a GraphQL response envelope.
type GraphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

// GraphQLError represents a single GraphQL error.
type GraphQLError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Query executes a GraphQL query and unmarshals the data payload into out.
// A "Could not resolve to a User" error is surfaced as the terminal
// not-found category; other GraphQL errors are external-API errors.
func (c *GraphQLClient) Query(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	reqBody := GraphQLRequest{
		Query:     query,
		Variables: variables,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := resilience.RetryHTTP(ctx, c.retry, func() (*http.Response, error) {
		// Rotate to the next available token on every attempt; a retry after
		// a 429 should not reuse the credential that just got throttled.
		token, err := c.pool.Next(ctx)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Wall-of-Shame-Scraper")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, errors.NewTransientError("github graphql request failed", err)
		}

		c.pool.RecordRateLimit(token, resp.Header)
		return resp, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return errors.NewExternalAPIError("github graphql",
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var gqlResp GraphQLResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		for _, e := range gqlResp.Errors {
			if e.Type == "NOT_FOUND" || strings.Contains(e.Message, "Could not resolve to a User") {
				return errors.NewNotFoundError("user")
			}
		}
		return errors.NewExternalAPIError("github graphql",
			fmt.Errorf("graphql errors: %v", gqlResp.Errors))
	}

	if out != nil {
		if err := json.Unmarshal(gqlResp.Data, out); err != nil {
			return fmt.Errorf("failed to decode data: %w", err)
		}
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
