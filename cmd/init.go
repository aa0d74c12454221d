package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xrsl/tailor/pkg/config"
	"github.com/xrsl/tailor/pkg/style"
	"github.com/xrsl/tailor/pkg/utils"
	"github.com/xrsl/tailor/pkg/workflow"
)

var initResetFlag bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize tailor in the current directory",
	Long: `Initialize tailor configuration and directory structure.

Creates:
  .tailor.yaml                   Configuration file
  .tailor/workflows/             Prompt templates (edit to customize)
  .tailor/posting-schema.yaml    Fields extracted from job postings
  .tailor/runs/                  Run data (git-ignored)

Existing files are kept. Use -r to reset workflows to the defaults.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initResetFlag, "reset", "r", false, "Reset workflows to embedded defaults")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if _, err := os.Stat(config.Path()); os.IsNotExist(err) {
		if cfg.Schema == "" {
			cfg.Schema = workflow.DefaultSchemaPath
		}
		if err := config.Save(cfg); err != nil {
			return err
		}
		fmt.Printf("%s created %s\n", style.Check(true), config.Path())
	} else {
		fmt.Printf("%s using %s\n", style.Check(true), config.Path())
	}

	if err := workflow.Init(workflow.Dir, cfg.Schema); err != nil {
		return fmt.Errorf("initialize workflows: %w", err)
	}
	if initResetFlag {
		if err := workflow.Reset(workflow.Dir); err != nil {
			return err
		}
		fmt.Printf("%s workflows reset to defaults\n", style.Check(true))
	}
	fmt.Printf("%s workflows in %s\n", style.Check(true), workflow.Dir)

	if err := utils.EnsureGitignore(cfg.DataDir); err != nil {
		return err
	}
	fmt.Printf("%s runs in %s\n\n", style.Check(true), cfg.DataDir)

	fmt.Printf("%s Try: %s\n\n", style.B(style.C(style.Green, "Ready!")), style.C(style.Cyan, "tailor run -r resume.md job.html"))
	return nil
}
