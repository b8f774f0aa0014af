package llm

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestProviderErrorMessage(t *testing.T) {
	e := &ProviderError{Provider: "openai", Kind: KindTransport, Status: 502, Detail: "bad gateway"}
	got := e.Error()
	if !strings.Contains(got, "openai") || !strings.Contains(got, "502") {
		t.Errorf("unexpected error text: %q", got)
	}

	e = &ProviderError{Provider: "runpod", Kind: KindTransport, Detail: "connection refused"}
	if got := e.Error(); strings.Contains(got, "http") {
		t.Errorf("status-less error should not mention http: %q", got)
	}
}

func TestAsProviderError(t *testing.T) {
	base := &ProviderError{Provider: "openai", Kind: KindProvider, Status: 400, Detail: "bad request"}
	wrapped := fmt.Errorf("primary call: %w", base)

	pe, ok := AsProviderError(wrapped)
	if !ok {
		t.Fatalf("expected wrapped ProviderError to unwrap")
	}
	if pe.Status != 400 || pe.Kind != KindProvider {
		t.Errorf("unexpected unwrapped error: %+v", pe)
	}

	if _, ok := AsProviderError(errors.New("plain")); ok {
		t.Errorf("plain error should not unwrap to ProviderError")
	}
}
