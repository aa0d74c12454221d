package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xrsl/tailor/pkg/config"
	"github.com/xrsl/tailor/pkg/pipeline"
	"github.com/xrsl/tailor/pkg/style"
	"github.com/xrsl/tailor/pkg/version"
)

var versionsDirFlag string

var versionsCmd = &cobra.Command{
	Use:   "versions <run-id> [document] [version]",
	Short: "List or show document versions",
	Long: `Inspect the version history written while pruning.

With a run id, lists the documents of that run. With a document, lists its
versions. With a version number, prints that version.

Use --dir to read a store written by 'tailor prune' instead of a run.

Examples:
  tailor versions 3f2a
  tailor versions 3f2a acme-resume
  tailor versions 3f2a acme-resume 2
  tailor versions --dir .tailor/versions - resume`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runVersions,
}

func init() {
	versionsCmd.Flags().StringVar(&versionsDirFlag, "dir", "", "Version store directory (run id is ignored)")
	rootCmd.AddCommand(versionsCmd)
}

func runVersions(cmd *cobra.Command, args []string) error {
	dir := versionsDirFlag
	if dir == "" {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		p := pipeline.New(cfg.DataDir)
		runID, err := resolveRun(p, args[0])
		if err != nil {
			return err
		}
		dir = filepath.Join(p.RunDir(runID), "versions")
	}
	store := version.NewStore(dir)

	switch len(args) {
	case 1:
		docs, err := store.Documents()
		if err != nil {
			return err
		}
		for _, doc := range docs {
			latest, err := store.Latest(doc)
			if err != nil {
				return err
			}
			fmt.Printf("%-40s v%-3d %6d chars\n", style.C(style.Cyan, doc), latest.Number, latest.Length)
		}
		return nil
	case 2:
		versions, err := store.List(args[1])
		if err != nil {
			return err
		}
		for _, v := range versions {
			parent := "-"
			if v.Metadata.Parent > 0 {
				parent = fmt.Sprintf("v%d", v.Metadata.Parent)
			}
			fmt.Printf("v%-3d %-5s %6d chars  %s  %s\n",
				v.Number, parent, v.Length, v.CreatedAt.Local().Format("15:04:05"), style.C(style.Gray, v.Metadata.Note))
		}
		return nil
	default:
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid version number: %s", args[2])
		}
		v, err := store.Load(args[1], n)
		if err != nil {
			return err
		}
		fmt.Print(v.Content)
		return nil
	}
}
