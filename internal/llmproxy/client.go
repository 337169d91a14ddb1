// Package llmproxy is the HTTP client for the LLM proxy: one
// OpenAI-compatible completion endpoint shared by the AI response pipeline
// and the ticket guard's smart-guard classifier.
package llmproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// requestTimeout is the total HTTP timeout for one completion call.
const requestTimeout = 300 * time.Second

type Client struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, client: &http.Client{Timeout: requestTimeout}}
}

// Complete posts req to the proxy's completion endpoint. This is a single
// attempt: a 5xx never retries here, the debounce orchestrator's next
// enqueue is the retry path. Attempts:1 overrides the package default
// explicitly so a change to DefaultRetryConfig can't silently reintroduce
// a retry.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	req.Messages = collapseToolCallsWithoutSig(req.Messages)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llmproxy: marshal request: %w", err)
	}

	cfg := RetryConfig{Attempts: 1}
	resp, err := RetryDo(ctx, cfg, func() (*CompletionResponse, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		httpResp, err := c.client.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode >= 300 {
			buf := new(bytes.Buffer)
			buf.ReadFrom(httpResp.Body)
			retryAfter := ParseRetryAfter(httpResp.Header.Get("Retry-After"))
			return nil, &HTTPError{Status: httpResp.StatusCode, Body: truncate(buf.String(), 500), RetryAfter: retryAfter}
		}

		var parsed CompletionResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("llmproxy: decode response: %w", err)
		}
		return &parsed, nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Classify satisfies internal/ticketguard.Classifier: a minimal one-shot
// completion call for the ticket guard's smart-guard classifier, carrying
// no tools and a low temperature for deterministic JSON output.
func (c *Client) Classify(ctx context.Context, prompt string) (string, error) {
	resp, err := c.Complete(ctx, CompletionRequest{
		Messages:    []Message{{Role: "user", Content: prompt}},
		Category:    "ticket_classification",
		Temperature: 0.0,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llmproxy: classify returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
