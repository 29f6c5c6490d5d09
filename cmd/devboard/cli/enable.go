package cli

import (
	"fmt"

	"github.com/davarch/devboard/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

// setRepositoryEnabled edits the flag in the config file only; running serve/watch processes pick it up on reload.
func setRepositoryEnabled(name string, enabled bool) error {
	changed, err := config.SetRepositoryEnabled(cfgPath, name, enabled)
	if err != nil {
		return err
	}

	state := map[bool]string{true: "enabled", false: "disabled"}[enabled]
	if !changed {
		fmt.Printf("no change (repository %q already %s)\n", name, state)
		return nil
	}
	fmt.Printf("%s: %s\n", state, name)
	return nil
}

var enableCmd = &cobra.Command{
	Use:   "enable <workspace/slug>",
	Short: "Enable repository in config.yaml",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRepositoryEnabled(args[0], true)
	},
	ValidArgsFunction: completeRepositories(func(r repoItem) bool { return !r.Enabled }),
}

func init() {
	rootCmd.AddCommand(enableCmd)
}
