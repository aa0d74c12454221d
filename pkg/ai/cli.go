package ai

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CLI implements Client by shelling out to an installed agent CLI
// (claude or gemini) in non-interactive print mode.
type CLI struct {
	binary string
	model  string // e.g. "sonnet-4-5", "flash"
}

// NewClaudeCLI creates a Claude CLI client
func NewClaudeCLI(model string) *CLI {
	return &CLI{binary: "claude", model: model}
}

// NewGeminiCLI creates a Gemini CLI client
func NewGeminiCLI(model string) *CLI {
	return &CLI{binary: "gemini", model: model}
}

// IsClaudeCLIAvailable checks if claude CLI is installed
func IsClaudeCLIAvailable() bool {
	_, err := exec.LookPath("claude")
	return err == nil
}

// IsGeminiCLIAvailable checks if gemini CLI is installed
func IsGeminiCLIAvailable() bool {
	_, err := exec.LookPath("gemini")
	return err == nil
}

func (c *CLI) args(prompt string) []string {
	switch c.binary {
	case "claude":
		args := []string{"-p", prompt, "--output-format", "text"}
		if c.model != "" {
			args = append(args, "--model", cliModel(c.model))
		}
		return args
	default:
		args := []string{"-p", prompt, "-o", "text"}
		if c.model != "" {
			args = append(args, "--model", cliModel(c.model))
		}
		return args
	}
}

// cliModel resolves a short model name ("opus-4-5") to the name the CLI
// expects, passing unknown names through.
func cliModel(name string) string {
	if m, ok := GetModel(name); ok {
		return m.CLIName
	}
	return name
}

func (c *CLI) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return c.invoke(ctx, c.args(prompt))
}

// GenerateContentWithSystem passes systemPrompt with --append-system-prompt
// to claude; gemini has no such flag and gets it prepended to the prompt.
func (c *CLI) GenerateContentWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.binary == "claude" {
		return c.invoke(ctx, append(c.args(userPrompt), "--append-system-prompt", systemPrompt))
	}
	return c.invoke(ctx, c.args(systemPrompt+"\n\n"+userPrompt))
}

func (c *CLI) invoke(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("%s CLI: %w", c.binary, err)
		}
		return "", fmt.Errorf("%s CLI: %w: %s", c.binary, err, msg)
	}
	return string(output), nil
}

func (c *CLI) Close() {}
