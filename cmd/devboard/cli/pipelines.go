package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pipelinesJSON bool

var pipelinesCmd = &cobra.Command{
	Use:   "pipelines",
	Short: "Show the pipeline dashboard grouped by repository and environment",
	Args:  cobra.NoArgs,
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

		dash, err := svc.pipelines.Dashboard(cmd.Context())
		if err != nil {
			return err
		}

		if pipelinesJSON {
			return writeJSON(os.Stdout, dash)
		}

		fmt.Println(dashboardTable(dash))
		if note := failureNote(dash.Failed); note != "" {
			_, _ = fmt.Fprintln(os.Stderr, note)
		}
		return nil
	},
}

func init() {
	pipelinesCmd.Flags().BoolVar(&pipelinesJSON, "json", false, "print JSON")
	rootCmd.AddCommand(pipelinesCmd)
}
