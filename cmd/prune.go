package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xrsl/tailor/pkg/prune"
	"github.com/xrsl/tailor/pkg/schema"
	"github.com/xrsl/tailor/pkg/signal"
	"github.com/xrsl/tailor/pkg/style"
	"github.com/xrsl/tailor/pkg/utils"
	"github.com/xrsl/tailor/pkg/version"
)

var (
	pruneTargetFlag      int
	pruneIDFlag          string
	pruneDirFlag         string
	pruneOutFlag         string
	pruneAgentFlag       string
	pruneInteractiveFlag bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune <file>",
	Short: "Shorten a document to a target length",
	Long: `Run the pruning loop on a single document.

Every applied change is stored as a new version under --dir, so earlier
states can be inspected or restored with 'tailor versions'.

Examples:
  tailor prune resume.md --target 3500
  tailor prune letter.md --target 2000 -i -o letter.short.md`,
	Args: cobra.ExactArgs(1),
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().IntVarP(&pruneTargetFlag, "target", "t", 0, "Target length in characters (required)")
	pruneCmd.Flags().StringVar(&pruneIDFlag, "id", "", "Document id (default: file name)")
	pruneCmd.Flags().StringVar(&pruneDirFlag, "dir", ".tailor/versions", "Version store directory")
	pruneCmd.Flags().StringVarP(&pruneOutFlag, "out", "o", "", "Write the result to file instead of stdout")
	pruneCmd.Flags().StringVarP(&pruneAgentFlag, "agent", "a", "", "Agent override")
	pruneCmd.Flags().BoolVarP(&pruneInteractiveFlag, "interactive", "i", false, "Review each change")
	_ = pruneCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	content, err := utils.ReadFile(args[0])
	if err != nil {
		return err
	}
	docID := pruneIDFlag
	if docID == "" {
		base := filepath.Base(args[0])
		docID = schema.Slug(strings.TrimSuffix(base, filepath.Ext(base)))
	}

	cfg, err := loadConfig(pruneAgentFlag)
	if err != nil {
		return err
	}
	suite, client, err := newSuite(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	opts := []prune.Option{prune.WithMaxIterations(cfg.MaxIterations)}
	if pruneInteractiveFlag {
		opts = append(opts, prune.WithReviewer(prune.NewTerminalReviewer(os.Stdin, os.Stderr)))
	}

	ctx, cancel := signal.NotifyContext()
	defer cancel()

	loop := prune.New(version.NewStore(pruneDirFlag), suite.Proposer(), opts...)
	res, err := loop.Run(ctx, prune.Request{
		DocumentID:   docID,
		Content:      content,
		TargetLength: pruneTargetFlag,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "%s %s v%d  %s  %d applied, %d skipped\n",
		style.Status(string(res.State)), docID, res.Version, style.Fit(res.Length, res.Target), res.Applied, res.Skipped)
	if res.Error != "" {
		fmt.Fprintf(os.Stderr, "  %s\n", style.C(style.Yellow, res.Error))
	}

	if pruneOutFlag != "" {
		if err := utils.WriteFile(pruneOutFlag, res.Content); err != nil {
			return err
		}
	} else {
		fmt.Print(res.Content)
	}
	if res.State == prune.StateExhausted {
		return &exitError{code: 2}
	}
	return nil
}
