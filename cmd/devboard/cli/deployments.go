package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var deploymentsJSON bool

var deploymentsCmd = &cobra.Command{
	Use:   "deployments",
	Short: "Show the latest deployment per environment of every enabled repository",
	Long: `Show the latest deployment per environment of every enabled repository.
Repositories without deployment records fall back to their newest finished
pipeline run per environment category; those rows are marked with *.`,
	Args: cobra.NoArgs,
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

		rep, err := svc.deployments.Deployments(cmd.Context())
		if err != nil {
			return err
		}

		if deploymentsJSON {
			return writeJSON(os.Stdout, rep)
		}

		fmt.Println(deploymentsTable(rep.Deployments))
		if note := failureNote(rep.Failed); note != "" {
			_, _ = fmt.Fprintln(os.Stderr, note)
		}
		return nil
	},
}

func init() {
	deploymentsCmd.Flags().BoolVar(&deploymentsJSON, "json", false, "print JSON")
	rootCmd.AddCommand(deploymentsCmd)
}
