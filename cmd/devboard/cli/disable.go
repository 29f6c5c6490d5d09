package cli

import "github.com/spf13/cobra"

var disableCmd = &cobra.Command{
	Use:   "disable <workspace/slug>",
	Short: "Disable repository in config.yaml",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRepositoryEnabled(args[0], false)
	},
	ValidArgsFunction: completeRepositories(func(r repoItem) bool { return r.Enabled }),
}

func init() {
	rootCmd.AddCommand(disableCmd)
}
