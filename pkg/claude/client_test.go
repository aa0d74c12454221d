package claude

import (
	"errors"
	"testing"
)

func TestModelMapping(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"claude-sonnet-4", "claude-sonnet-4-20250514"},
		{"claude-sonnet-4-5", "claude-sonnet-4-5-20250929"},
		{"claude-opus-4-5", "claude-opus-4-5-20251101"},
		{"claude-haiku-4-5", "claude-haiku-4-5-20251001"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			mapped, ok := modelMapping[tt.input]
			if !ok {
				t.Errorf("model %q not found in mapping", tt.input)
				return
			}
			if mapped != tt.expected {
				t.Errorf("model %q mapped to %q, expected %q", tt.input, mapped, tt.expected)
			}
		})
	}
}

func TestIsAgentSupported(t *testing.T) {
	for _, agent := range SupportedAgents {
		if !IsAgentSupported(agent) {
			t.Errorf("agent %q should be supported", agent)
		}
		if _, ok := modelMapping[agent]; !ok {
			t.Errorf("agent %q has no model mapping", agent)
		}
	}

	for _, agent := range []string{"claude-3", "gpt-4", "invalid"} {
		if IsAgentSupported(agent) {
			t.Errorf("agent %q should not be supported", agent)
		}
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewClient(DefaultAgent); err == nil {
		t.Error("expected error without ANTHROPIC_API_KEY")
	}
}

func TestNewClientOptions(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	client, err := NewClient("", WithMaxTokens(1024), WithRateLimit(5))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.Model() != "claude-sonnet-4-5-20250929" {
		t.Errorf("default model = %q", client.Model())
	}
	if client.maxTokens != 1024 {
		t.Errorf("maxTokens = %d, want 1024", client.maxTokens)
	}
	if client.retry.Limiter == nil || client.retry.Limiter.Limit() != 5 {
		t.Error("expected rate limiter of 5 rps")
	}

	raw, err := NewClient("claude-custom-model")
	if err != nil {
		t.Fatal(err)
	}
	if raw.Model() != "claude-custom-model" {
		t.Errorf("unmapped model should pass through, got %q", raw.Model())
	}
}

func TestIsRetryableFallback(t *testing.T) {
	if !isRetryable(errors.New("upstream overloaded")) {
		t.Error("overloaded should be retryable")
	}
	if isRetryable(errors.New("invalid request")) {
		t.Error("plain errors should not be retryable")
	}
}
