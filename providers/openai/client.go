// Package openai implements the primary provider against any
// OpenAI-compatible chat-completions endpoint.
package openai

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

const providerName = "openai"

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Result, error) {
	start := time.Now()

	body := chatCompletionRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return llm.Result{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/chat/completions", bytes.NewReader(b))
	if err != nil {
		return llm.Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return llm.Result{}, &llm.ProviderError{
			Provider:  providerName,
			Kind:      llm.KindTransport,
			Retryable: true,
			Detail:    err.Error(),
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Result{}, &llm.ProviderError{
			Provider:  providerName,
			Kind:      llm.KindTransport,
			Retryable: true,
			Detail:    err.Error(),
		}
	}

	var out chatCompletionResponse
	if jsonErr := json.Unmarshal(raw, &out); jsonErr != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return llm.Result{}, &llm.ProviderError{
			Provider: providerName,
			Kind:     llm.KindProvider,
			Status:   resp.StatusCode,
			Detail:   fmt.Sprintf("invalid response json: %v", jsonErr),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := truncate(string(raw), 512)
		if out.Error != nil && out.Error.Message != "" {
			detail = out.Error.Message
		}
		return llm.Result{}, &llm.ProviderError{
			Provider:  providerName,
			Kind:      llm.KindTransport,
			Status:    resp.StatusCode,
			Retryable: retryableStatus(resp.StatusCode),
			Detail:    detail,
		}
	}

	if len(out.Choices) == 0 {
		return llm.Result{}, &llm.ProviderError{
			Provider: providerName,
			Kind:     llm.KindProvider,
			Status:   resp.StatusCode,
			Detail:   "empty choices",
		}
	}

	return llm.Result{
		Text: out.Choices[0].Message.Content,
		Usage: llm.Usage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
			TotalTokens:  out.Usage.TotalTokens,
		},
		Duration: time.Since(start),
	}, nil
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
