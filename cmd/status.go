package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xrsl/tailor/pkg/config"
	"github.com/xrsl/tailor/pkg/pipeline"
	"github.com/xrsl/tailor/pkg/style"
)

var statusJSONFlag bool

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show runs and their checkpoints",
	Long: `Without arguments, list recorded runs, newest first.

With a run id (or a unique prefix), show the run's summary and the
checkpoint written at each stage.

Examples:
  tailor status
  tailor status 3f2a
  tailor status 3f2a --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSONFlag, "json", false, "Print the run summary as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	p := pipeline.New(cfg.DataDir)

	if len(args) == 0 {
		runs, err := p.Runs()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs yet. Start one with: tailor run")
			return nil
		}
		for _, cp := range runs {
			fmt.Printf("%s  %s  %-18s %s\n",
				style.C(style.Cyan, cp.Run.ID[:8]),
				cp.Run.StartedAt.Local().Format("2006-01-02 15:04"),
				cp.Stage,
				style.Status(string(cp.Status)))
		}
		return nil
	}

	runID, err := resolveRun(p, args[0])
	if err != nil {
		return err
	}
	cps, err := p.Checkpoints(runID)
	if err != nil {
		return err
	}
	run := pipeline.Restore(cps[len(cps)-1])

	if statusJSONFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run.Summary())
	}

	printSummary(run.Summary())
	fmt.Fprintf(os.Stderr, "\n%s\n", style.B("Checkpoints"))
	for _, cp := range cps {
		fmt.Fprintf(os.Stderr, "  %-18s %s  %s\n", cp.Stage, cp.Timestamp.Local().Format("15:04:05"), style.Status(string(cp.Status)))
	}
	return nil
}

// resolveRun expands a run id prefix to the full id.
func resolveRun(p *pipeline.Pipeline, prefix string) (string, error) {
	runs, err := p.Runs()
	if err != nil {
		return "", err
	}
	var found []string
	for _, cp := range runs {
		if cp.Run.ID == prefix {
			return prefix, nil
		}
		if strings.HasPrefix(cp.Run.ID, prefix) {
			found = append(found, cp.Run.ID)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("no run matching %q", prefix)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("run id %q is ambiguous (%d matches)", prefix, len(found))
	}
}
