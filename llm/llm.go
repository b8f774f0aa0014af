package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

type Result struct {
	Text     string
	Usage    Usage
	Duration time.Duration
}

type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Client is the primary chat-completion provider.
type Client interface {
	Chat(ctx context.Context, req Request) (Result, error)
}

// FallbackRequest is the simpler payload the secondary provider accepts.
type FallbackRequest struct {
	SessionID string
	Character string
	Language  string
	Message   string
}

// FallbackClient is the secondary provider, used only when the primary is
// unusable or unconfigured.
type FallbackClient interface {
	Generate(ctx context.Context, req FallbackRequest) (string, error)
}

// ErrorKind classifies a provider failure for logging and fallback decisions.
type ErrorKind string

const (
	// KindTransport covers network errors, timeouts and non-2xx statuses.
	KindTransport ErrorKind = "transport"
	// KindProvider covers errors the provider reported in a well-formed
	// response body.
	KindProvider ErrorKind = "provider"
)

// ProviderError is a typed failure returned by provider clients. The
// orchestrator consumes it explicitly instead of using errors as control
// flow for fallback.
type ProviderError struct {
	Provider  string
	Kind      ErrorKind
	Status    int
	Retryable bool
	Detail    string
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s http %d: %s", e.Provider, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Detail)
}

// AsProviderError unwraps err into a *ProviderError if there is one.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
