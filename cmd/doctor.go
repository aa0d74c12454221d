package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xrsl/tailor/pkg/ai"
	"github.com/xrsl/tailor/pkg/config"
	"github.com/xrsl/tailor/pkg/schema"
	"github.com/xrsl/tailor/pkg/style"
	"github.com/xrsl/tailor/pkg/workflow"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check system setup for tailor run",
	Long:  `Verify the configuration, agents, credentials and prompt workflows needed for tailor run.`,
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Printf("%s Checking tailor setup\n\n", style.C(style.Blue, "→"))
	allGood := true
	check := func(ok bool, msg, hint string) {
		fmt.Printf("%s %s\n", style.Check(ok), msg)
		if !ok {
			allGood = false
			if hint != "" {
				fmt.Printf("  %s\n", hint)
			}
		}
	}

	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	check(err == nil, "configuration valid", fmt.Sprint(err))
	if cfg == nil {
		return fmt.Errorf("setup issues detected")
	}

	check(ai.IsAgentSupported(cfg.Agent), fmt.Sprintf("agent %s available", cfg.Agent),
		"Install the agent CLI or pick another: tailor config set agent <name>")

	_, err = workflow.Load(workflow.Dir)
	check(err == nil, "prompt workflows parse", fmt.Sprint(err))

	_, err = schema.Load(cfg.Schema)
	check(err == nil, "posting schema loads", fmt.Sprint(err))

	fmt.Printf("\n%s Checking agents and credentials\n\n", style.C(style.Blue, "→"))
	for _, cli := range []struct {
		name      string
		available bool
	}{
		{"claude-code", ai.IsClaudeCLIAvailable()},
		{"gemini-cli", ai.IsGeminiCLIAvailable()},
	} {
		mark := style.C(style.Yellow, "○")
		if cli.available {
			mark = style.Check(true)
		}
		fmt.Printf("%s %s\n", mark, cli.name)
	}
	for _, key := range []string{"ANTHROPIC_API_KEY", "GEMINI_API_KEY"} {
		if os.Getenv(key) != "" {
			fmt.Printf("%s %s set\n", style.Check(true), key)
		} else {
			fmt.Printf("%s %s not set\n", style.C(style.Yellow, "○"), key)
		}
	}
	fmt.Println()

	if !allGood {
		return fmt.Errorf("setup issues detected")
	}
	fmt.Printf("%s Setup OK\n", style.Check(true))
	return nil
}
