package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xrsl/tailor/pkg/pipeline"
	"github.com/xrsl/tailor/pkg/prune"
	"github.com/xrsl/tailor/pkg/signal"
	"github.com/xrsl/tailor/pkg/style"
	"github.com/xrsl/tailor/pkg/tailor"
)

var (
	runResumeFlag      string
	runAgentFlag       string
	runTopNFlag        int
	runPoolSizeFlag    int
	runInteractiveFlag bool
)

var runCmd = &cobra.Command{
	Use:   "run <posting>...",
	Short: "Tailor the master resume to job postings",
	Long: `Run the full tailoring pipeline.

Postings are read from files (.html is reduced to its text). The best
matching postings (top_n) get a resume and cover letter, written to
{data_dir}/{run_id}/release/.

Exit status is 0 when every posting succeeded, 2 when some failed and 1
when the run failed.

Examples:
  tailor run -r resume.md jobs/acme.html jobs/globex.txt
  tailor run -r resume.md jobs/*.html --top-n 1
  tailor run -r resume.md jobs/acme.html --interactive`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runResumeFlag, "resume", "r", "", "Master resume file (required)")
	runCmd.Flags().StringVarP(&runAgentFlag, "agent", "a", "", "Agent override (claude-code, gemini-cli, claude-*, gemini-*)")
	runCmd.Flags().IntVar(&runTopNFlag, "top-n", 0, "Number of postings to tailor for (overrides top_n)")
	runCmd.Flags().IntVar(&runPoolSizeFlag, "pool-size", -1, "Concurrent units, 0 for unlimited (overrides pool_size)")
	runCmd.Flags().BoolVarP(&runInteractiveFlag, "interactive", "i", false, "Review each pruning change")
	_ = runCmd.MarkFlagRequired("resume")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runAgentFlag)
	if err != nil {
		return err
	}
	if runTopNFlag > 0 {
		cfg.TopN = runTopNFlag
	}
	if runPoolSizeFlag >= 0 {
		cfg.PoolSize = runPoolSizeFlag
	}

	suite, client, err := newSuite(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	var opts []tailor.Option
	if runInteractiveFlag {
		opts = append(opts, tailor.WithReviewer(prune.NewTerminalReviewer(os.Stdin, os.Stderr)))
	}

	ctx, cancel := signal.NotifyContext()
	defer cancel()

	p := pipeline.New(cfg.DataDir)
	run, err := tailor.New(p, suite, opts...).Run(ctx, cfg.Run(), tailor.Input{
		Resume:   runResumeFlag,
		Postings: args,
	})
	if err != nil {
		return err
	}

	printSummary(run.Summary())
	if m, err := tailor.LoadManifest(p.RunDir(run.ID)); err == nil {
		fmt.Fprintf(os.Stderr, "\n%s%s (%d documents)\n", style.Success("Release"), tailor.ReleaseDir(p.RunDir(run.ID)), len(m.Documents))
	}
	if code := run.Status.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}
