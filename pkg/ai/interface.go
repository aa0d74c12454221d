package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xrsl/tailor/pkg/cache"
	"github.com/xrsl/tailor/pkg/claude"
	"github.com/xrsl/tailor/pkg/gemini"
)

// Client is the common interface for AI providers
type Client interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Close()
}

// CachingClient supports prompt caching (optional interface)
type CachingClient interface {
	Client
	GenerateContentWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

var (
	_ CachingClient = (*CLI)(nil)
	_ CachingClient = (*claude.Client)(nil)
	_ CachingClient = (*gemini.Client)(nil)
	_ CachingClient = (*cache.Client)(nil)
)

// DefaultAgent returns the best available agent
// Prefers claude-code, then gemini-cli, then API agents
func DefaultAgent() string {
	if IsClaudeCLIAvailable() {
		return "claude-code"
	}
	if IsGeminiCLIAvailable() {
		return "gemini-cli"
	}
	return gemini.DefaultAgent
}

// subAgent parses "claude-code:sonnet-4-5" → "sonnet-4-5".
func subAgent(agent string) string {
	if idx := strings.Index(agent, ":"); idx != -1 {
		return agent[idx+1:]
	}
	return ""
}

func isCLI(agent, name string) bool {
	return agent == name || strings.HasPrefix(agent, name+":")
}

// NewClient creates an AI client based on agent prefix
func NewClient(agent string) (Client, error) {
	switch {
	case isCLI(agent, "claude-code"):
		if !IsClaudeCLIAvailable() {
			return nil, fmt.Errorf("claude CLI not found in PATH")
		}
		return NewClaudeCLI(subAgent(agent)), nil
	case isCLI(agent, "gemini-cli"):
		if !IsGeminiCLIAvailable() {
			return nil, fmt.Errorf("gemini CLI not found in PATH")
		}
		return NewGeminiCLI(subAgent(agent)), nil
	case strings.HasPrefix(agent, "gemini-"):
		return gemini.NewClient(agent)
	case strings.HasPrefix(agent, "claude-"):
		return claude.NewClient(agent)
	default:
		return nil, fmt.Errorf("unknown agent: %s (use claude-code, gemini-cli, gemini-*, or claude-*)", agent)
	}
}

// NewCachedClient creates a client for agent whose responses are stored
// in cacheDir. An empty cacheDir disables caching.
func NewCachedClient(agent, cacheDir string) (Client, error) {
	c, err := NewClient(agent)
	if err != nil {
		return nil, err
	}
	if cacheDir == "" {
		return c, nil
	}
	return cache.Wrap(c, agent, cache.NewStore(cacheDir)), nil
}

// IsAgentSupported checks if an agent is supported by any provider
func IsAgentSupported(agent string) bool {
	switch {
	case isCLI(agent, "claude-code"):
		return IsClaudeCLIAvailable()
	case isCLI(agent, "gemini-cli"):
		return IsGeminiCLIAvailable()
	default:
		return IsModelSupported(agent)
	}
}

// IsAgentCLI returns true if the agent is a CLI agent (claude-code, gemini-cli)
func IsAgentCLI(agent string) bool {
	return isCLI(agent, "claude-code") || isCLI(agent, "gemini-cli")
}

// IsModelSupported checks if an API model is supported
func IsModelSupported(model string) bool {
	switch {
	case strings.HasPrefix(model, "gemini-"):
		return gemini.IsAgentSupported(model)
	case strings.HasPrefix(model, "claude-"):
		return claude.IsAgentSupported(model)
	default:
		return false
	}
}

// SupportedAgents returns all supported agents (CLI + API)
func SupportedAgents() []string {
	agents := SupportedCLIAgents()
	agents = append(agents, SupportedModels()...)
	return agents
}

// SupportedCLIAgents returns supported CLI agents
func SupportedCLIAgents() []string {
	agents := []string{}
	if IsClaudeCLIAvailable() {
		agents = append(agents, "claude-code")
	}
	if IsGeminiCLIAvailable() {
		agents = append(agents, "gemini-cli")
	}
	return agents
}

// SupportedModels returns supported API models (full names)
func SupportedModels() []string {
	models := []string{}
	models = append(models, claude.SupportedAgents...)
	models = append(models, gemini.SupportedAgents...)
	return models
}

// Model represents a model configuration for both CLI and API usage
type Model struct {
	Name    string // Short name (e.g., "sonnet-4")
	CLIName string // CLI parameter name (e.g., "claude-sonnet-4")
	APIName string // Full API model name (e.g., "claude-sonnet-4")
}

// SupportedModelMap maps short model names to their configurations
var SupportedModelMap = map[string]Model{
	"sonnet-4":   {Name: "sonnet-4", CLIName: "claude-sonnet-4", APIName: "claude-sonnet-4"},
	"sonnet-4-5": {Name: "sonnet-4-5", CLIName: "claude-sonnet-4-5", APIName: "claude-sonnet-4-5"},
	"opus-4-5":   {Name: "opus-4-5", CLIName: "claude-opus-4-5", APIName: "claude-opus-4-5"},
	"haiku-4-5":  {Name: "haiku-4-5", CLIName: "claude-haiku-4-5", APIName: "claude-haiku-4-5"},
	"flash":      {Name: "flash", CLIName: "gemini-2.5-flash", APIName: "gemini-2.5-flash"},
	"pro":        {Name: "pro", CLIName: "gemini-2.5-pro", APIName: "gemini-2.5-pro"},
	"flash-3":    {Name: "flash-3", CLIName: "gemini-3-flash-preview", APIName: "gemini-3-flash-preview"},
	"pro-3":      {Name: "pro-3", CLIName: "gemini-3-pro-preview", APIName: "gemini-3-pro-preview"},
}

// GetModel returns the model configuration for a given short name
func GetModel(shortName string) (Model, bool) {
	model, ok := SupportedModelMap[shortName]
	return model, ok
}

// SupportedModelNames returns the sorted short model names
func SupportedModelNames() []string {
	names := make([]string, 0, len(SupportedModelMap))
	for name := range SupportedModelMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
