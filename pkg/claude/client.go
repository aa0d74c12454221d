package claude

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	clog "github.com/xrsl/tailor/pkg/log"
	"github.com/xrsl/tailor/pkg/retry"
)

const DefaultAgent = "claude-sonnet-4-5"

// Drafts and full-document rewrites need more room than a chat reply.
const defaultMaxTokens = 8192

var SupportedAgents = []string{
	"claude-sonnet-4",
	"claude-sonnet-4-5",
	"claude-opus-4",
	"claude-opus-4-5",
	"claude-haiku-4-5",
}

// Map friendly agent names to Anthropic model IDs
var modelMapping = map[string]string{
	"claude-sonnet-4":   "claude-sonnet-4-20250514",
	"claude-sonnet-4-5": "claude-sonnet-4-5-20250929",
	"claude-opus-4":     "claude-opus-4-20250514",
	"claude-opus-4-5":   "claude-opus-4-5-20251101",
	"claude-haiku-4-5":  "claude-haiku-4-5-20251001",
}

func IsAgentSupported(agent string) bool {
	return slices.Contains(SupportedAgents, agent)
}

type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	retry     retry.Config
}

// Option configures a Client.
type Option func(*Client)

// WithMaxTokens sets the response token budget.
func WithMaxTokens(n int64) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithRateLimit caps requests per second for this client. Clients are
// shared by all units of a run, so this bounds the whole run.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) { c.retry.Limiter = retry.NewRateLimiter(perSecond) }
}

func NewClient(model string, opts ...Option) (*Client, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}

	if model == "" {
		model = DefaultAgent
	}

	// Map agent name to Anthropic model ID
	modelID, ok := modelMapping[model]
	if !ok {
		modelID = model // fallback to raw value if not in mapping
	}

	c := &Client{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     modelID,
		maxTokens: defaultMaxTokens,
		retry:     retry.DefaultConfig(),
	}
	c.retry.Limiter = retry.NewRateLimiter(1.0)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the Anthropic model ID used for requests.
func (c *Client) Model() string { return c.model }

func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return c.GenerateContentWithSystem(ctx, "", prompt)
}

// isRetryable reports whether a failed request is worth repeating:
// rate limits, overload and server-side errors.
func isRetryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, 529:
			return true
		}
		return apiErr.StatusCode >= 500
	}
	errStr := err.Error()
	return strings.Contains(errStr, "overloaded") || strings.Contains(errStr, "timeout")
}

// formatAPIError converts API errors to user-friendly messages
func formatAPIError(err error, model string) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("claude API error: %w", err)
	}

	switch apiErr.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("claude API error: invalid API key. Check ANTHROPIC_API_KEY environment variable")
	case http.StatusForbidden:
		return fmt.Errorf("claude API error: key does not have access to model %q", model)
	case http.StatusNotFound:
		return fmt.Errorf("claude API error: model %q not found", model)
	case http.StatusTooManyRequests:
		return fmt.Errorf("claude API error: rate limit exceeded for model %q: %w", model, err)
	case 529:
		return fmt.Errorf("claude API error: service overloaded: %w", err)
	default:
		return fmt.Errorf("claude API error: %w", err)
	}
}

// GenerateContentWithSystem sends a prompt with a cached system message
// The system prompt is marked for caching (5-min TTL, 90% cost reduction on cache hit)
func (c *Client) GenerateContentWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return retry.Do(ctx, c.retry, func() (string, error) {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: c.maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
			},
		}

		if systemPrompt != "" {
			params.System = []anthropic.TextBlockParam{
				{
					Text:         systemPrompt,
					CacheControl: anthropic.NewCacheControlEphemeralParam(),
				},
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err != nil {
			if isRetryable(err) {
				return "", retry.Retryable(formatAPIError(err, c.model))
			}
			return "", formatAPIError(err, c.model)
		}

		clog.Debug("claude response",
			"model", c.model,
			"input_tokens", message.Usage.InputTokens,
			"output_tokens", message.Usage.OutputTokens,
			"stop_reason", message.StopReason,
		)

		var text strings.Builder
		for _, block := range message.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		if text.Len() == 0 {
			return "", fmt.Errorf("no text content in response")
		}
		if message.StopReason == anthropic.StopReasonMaxTokens {
			return "", fmt.Errorf("claude response truncated at %d tokens", c.maxTokens)
		}
		return text.String(), nil
	})
}

func (c *Client) Close() {}
