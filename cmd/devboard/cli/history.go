package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var historyJSON bool

var historyCmd = &cobra.Command{
	Use:   "history <workspace/slug>",
	Short: "Show recent pipeline runs of one repository, unclassified",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		svc, err := buildServices(log, cfg)
		if err != nil {
			return err
		}

		runs, err := svc.pipelines.History(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if historyJSON {
			return writeJSON(os.Stdout, runs)
		}
		fmt.Println(runsTable(runs))
		return nil
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print JSON")
	historyCmd.ValidArgsFunction = completeRepositories(func(r repoItem) bool { return r.Enabled })
	rootCmd.AddCommand(historyCmd)
}
