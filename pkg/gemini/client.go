package gemini

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	clog "github.com/xrsl/tailor/pkg/log"
	"github.com/xrsl/tailor/pkg/retry"
)

const DefaultAgent = "gemini-2.5-flash"

var SupportedAgents = []string{
	"gemini-3-flash-preview",
	"gemini-3-pro-preview",
	"gemini-2.5-flash",
	"gemini-2.5-pro",
	"gemini-2.0-flash",
}

func IsAgentSupported(agent string) bool {
	return slices.Contains(SupportedAgents, agent)
}

type Client struct {
	client      *genai.Client
	name        string
	temperature float32
	retry       retry.Config
}

func NewClient(model string) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	if model == "" {
		model = DefaultAgent
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	cfg := retry.DefaultConfig()
	cfg.Limiter = retry.NewRateLimiter(2.0)
	return &Client{
		client:      client,
		name:        model,
		temperature: 0.4,
		retry:       cfg,
	}, nil
}

func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return c.GenerateContentWithSystem(ctx, "", prompt)
}

// model returns a fresh model handle so concurrent units never share a
// system instruction.
func (c *Client) model(systemPrompt string) *genai.GenerativeModel {
	m := c.client.GenerativeModel(c.name)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(c.temperature)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}
	return m
}

func isRetryable(err error) bool {
	s := err.Error()
	return strings.Contains(s, "429") ||
		strings.Contains(s, "RESOURCE_EXHAUSTED") ||
		strings.Contains(s, "503") ||
		strings.Contains(s, "UNAVAILABLE") ||
		strings.Contains(s, "deadline")
}

// GenerateContentWithSystem uses system instruction for the prompt
// Note: Gemini's context caching requires separate cache creation, so this just uses system instruction
func (c *Client) GenerateContentWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m := c.model(systemPrompt)

	return retry.Do(ctx, c.retry, func() (string, error) {
		resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
		if err != nil {
			if isRetryable(err) {
				return "", retry.Retryable(fmt.Errorf("gemini API error: %w", err))
			}
			return "", fmt.Errorf("gemini API error: %w", err)
		}

		if resp.UsageMetadata != nil {
			clog.Debug("gemini response", "model", c.name, "tokens", resp.UsageMetadata.TotalTokenCount)
		}

		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			return "", fmt.Errorf("no content generated")
		}

		var text strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				text.WriteString(string(txt))
			}
		}
		if text.Len() == 0 {
			return "", fmt.Errorf("unexpected response format")
		}
		return text.String(), nil
	})
}

func (c *Client) Close() {
	_ = c.client.Close()
}
