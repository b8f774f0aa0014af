// Package runpod implements the secondary provider against a RunPod
// serverless endpoint. The endpoint wraps requests in an {"input": ...}
// envelope and replies either directly or under an "output" key; the reply
// text itself may live under several different field names depending on the
// handler revision, so extraction is deliberately permissive.
package runpod

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/essket/pixorbi-bot/llm"
)

const providerName = "runpod"

type Client struct {
	URL    string
	APIKey string
	HTTP   *http.Client
}

// New normalizes the configured endpoint base. Accepted forms:
// https://api.runpod.ai/v2/<endpointId>, or the same with an explicit
// /run or /runsync suffix. Without a suffix, /runsync is appended.
func New(endpointURL, apiKey string, timeout time.Duration) (*Client, error) {
	u, err := normalizeEndpoint(endpointURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Client{
		URL:    u,
		APIKey: apiKey,
		HTTP:   &http.Client{Timeout: timeout},
	}, nil
}

func normalizeEndpoint(base string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", fmt.Errorf("runpod endpoint url is empty")
	}
	if strings.HasSuffix(base, "/run") || strings.HasSuffix(base, "/runsync") {
		return base, nil
	}
	return base + "/runsync", nil
}

type generateInput struct {
	SessionID string `json:"user_id"`
	Character string `json:"character"`
	Language  string `json:"language"`
	Text      string `json:"text"`
}

type generateRequest struct {
	Input generateInput `json:"input"`
}

func (c *Client) Generate(ctx context.Context, req llm.FallbackRequest) (string, error) {
	body, err := json.Marshal(generateRequest{Input: generateInput{
		SessionID: req.SessionID,
		Character: req.Character,
		Language:  req.Language,
		Text:      req.Message,
	}})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return "", &llm.ProviderError{
			Provider:  providerName,
			Kind:      llm.KindTransport,
			Retryable: true,
			Detail:    err.Error(),
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &llm.ProviderError{
			Provider:  providerName,
			Kind:      llm.KindTransport,
			Retryable: true,
			Detail:    err.Error(),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &llm.ProviderError{
			Provider:  providerName,
			Kind:      llm.KindTransport,
			Status:    resp.StatusCode,
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			Detail:    truncate(string(raw), 512),
		}
	}

	text, err := extractReply(raw)
	if err != nil {
		return "", &llm.ProviderError{
			Provider: providerName,
			Kind:     llm.KindProvider,
			Status:   resp.StatusCode,
			Detail:   err.Error(),
		}
	}
	return text, nil
}

func extractReply(raw []byte) (string, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("invalid response json: %w", err)
	}
	if out, ok := payload["output"].(map[string]any); ok {
		payload = out
	}
	for _, key := range []string{"reply", "msg", "message", "text"} {
		if s, ok := payload[key].(string); ok && strings.TrimSpace(s) != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("no reply field in response: %s", truncate(string(raw), 256))
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
