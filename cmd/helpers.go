package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xrsl/tailor/pkg/agents"
	"github.com/xrsl/tailor/pkg/ai"
	"github.com/xrsl/tailor/pkg/cache"
	"github.com/xrsl/tailor/pkg/config"
	"github.com/xrsl/tailor/pkg/pipeline"
	"github.com/xrsl/tailor/pkg/schema"
	"github.com/xrsl/tailor/pkg/style"
	"github.com/xrsl/tailor/pkg/workflow"
)

// loadConfig loads and validates the configuration, applying the agent
// override when set.
func loadConfig(agent string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if agent != "" {
		cfg.Agent = agent
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}

// newSuite connects the configured agent to the prompt workflows.
func newSuite(cfg *config.Config) (*agents.Suite, ai.Client, error) {
	cacheDir := ""
	if cfg.Cache {
		cacheDir = cache.DefaultDir()
	}
	client, err := ai.NewCachedClient(cfg.Agent, cacheDir)
	if err != nil {
		return nil, nil, err
	}
	prompts, err := workflow.Load(workflow.Dir)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	sch, err := schema.Load(cfg.Schema)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	suite, err := agents.New(client, prompts, sch)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return suite, client, nil
}

// printSummary writes the end-of-run report to stderr.
func printSummary(s pipeline.Summary) {
	w := os.Stderr
	fmt.Fprintf(w, "\n%s %s  %s\n", style.B("Run"), s.RunID, style.Status(string(s.Status)))
	fmt.Fprintf(w, "  %-10s %s\n", "stage", s.Stage)
	fmt.Fprintf(w, "  %-10s %s\n", "duration", s.Duration.Round(time.Second))
	fmt.Fprintf(w, "  %-10s %d\n", "processed", s.Processed)
	if len(s.Succeeded) > 0 {
		fmt.Fprintf(w, "  %-10s %s\n", "succeeded", style.C(style.Green, strings.Join(s.Succeeded, ", ")))
	}
	errs := s.UnitErrors()
	for _, unit := range s.Failed {
		fmt.Fprintf(w, "  %s %s\n", style.C(style.Red, "✗"), unit)
		for _, msg := range errs[unit] {
			fmt.Fprintf(w, "      %s\n", style.C(style.Gray, msg))
		}
	}
	for _, e := range s.Errors {
		if e.Unit == "" {
			fmt.Fprintf(w, "  %s %s: %s\n", style.C(style.Yellow, "!"), e.Stage, e.Message)
		}
	}
}
