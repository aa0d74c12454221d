package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xrsl/tailor/pkg/config"
	"github.com/xrsl/tailor/pkg/style"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage tailor configuration",
	Long: `Read and write settings in .tailor.yaml.

Every key can also be set through the environment as TAILOR_<KEY>, for
example TAILOR_TOP_N=1.

Examples:
  tailor config list
  tailor config get agent
  tailor config set agent gemini-2.5-pro
  tailor config set pool_size 4`,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Args:  cobra.ExactArgs(2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return config.Keys, cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.Set(key, value); err != nil {
			return err
		}
		fmt.Printf("%s%s = %s\n", style.Success("Set"), key, value)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:       "get <key>",
	Short:     "Get a config value",
	Args:      cobra.ExactArgs(1),
	ValidArgs: config.Keys,
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := config.Get(args[0])
		if err != nil {
			return err
		}
		if value == "" {
			fmt.Println("(not set)")
		} else {
			fmt.Println(value)
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all config values",
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := config.All()
		if err != nil {
			return err
		}

		fmt.Printf("\n%s\n", style.B(style.C(style.Cyan, "tailor config")))
		fmt.Printf("%s\n\n", style.C(style.Gray, config.Path()))
		for _, key := range config.Keys {
			printConfigRow(key, values[key])
		}
		fmt.Println()
		return nil
	},
}

func printConfigRow(key, value string) {
	if value == "" {
		fmt.Printf("  %-24s %s\n", key, style.C(style.Gray, "(not set)"))
	} else {
		fmt.Printf("  %-24s %s\n", key, style.C(style.Green, value))
	}
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)
}
