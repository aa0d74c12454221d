package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xrsl/tailor/pkg/change"
	"github.com/xrsl/tailor/pkg/style"
	"github.com/xrsl/tailor/pkg/utils"
)

var rankJSONFlag bool

var rankCmd = &cobra.Command{
	Use:   "rank <changes.json>",
	Short: "Rank proposed changes by effectiveness",
	Long: `Rank a batch of proposed changes without applying them.

The file holds {"rewrites": [...], "removals": [...]} as produced by the
propose_changes workflow. Changes are ordered by quality delta per
character saved and marked recommended or not.

Examples:
  tailor rank changes.json
  tailor rank changes.json --json`,
	Args: cobra.ExactArgs(1),
	RunE: runRank,
}

func init() {
	rankCmd.Flags().BoolVar(&rankJSONFlag, "json", false, "Print the ranking as JSON")
	rootCmd.AddCommand(rankCmd)
}

func runRank(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var batch change.Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}

	ranking, err := change.Rank(batch.Changes())
	if err != nil {
		return err
	}

	if rankJSONFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ranking)
	}

	fmt.Printf("%s\n", style.B(fmt.Sprintf("%-3s %-8s %6s %7s %13s  %s", "#", "type", "saved", "delta", "effectiveness", "target")))
	for i, r := range ranking.Changes {
		mark := style.C(style.Gray, "·")
		if r.Recommended {
			mark = style.C(style.Green, "✓")
		}
		fmt.Printf("%-3d %-8s %6d %+7.3f %13.5f  %s %s\n",
			i+1, r.Change.Kind(), r.Change.Reduction(), r.Change.Delta(), r.Effectiveness, mark, preview(r.Change.Target()))
	}
	fmt.Printf("\n%d of %d recommended, threshold %.3f\n", len(ranking.Recommended()), len(ranking.Changes), ranking.Threshold)
	return nil
}

// preview shortens s to one line of at most 50 characters.
func preview(s string) string {
	return utils.Truncate(strings.Join(strings.Fields(s), " "), 50)
}
