package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/davarch/devboard/internal/application"
	"github.com/spf13/cobra"
)

var issuesJSON bool

var issuesCmd = &cobra.Command{
	Use:       "issues <view>",
	Short:     "Show a merged issue view across all Jira instances",
	Long:      "Views: " + strings.Join(application.ViewNames(), ", "),
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: application.ViewNames(),
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

		res, err := svc.issues.View(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if issuesJSON {
			return writeJSON(os.Stdout, res)
		}

		fmt.Println(issuesTable(res.Issues))
		if note := failureNote(res.Failed); note != "" {
			_, _ = fmt.Fprintln(os.Stderr, note)
		}
		return nil
	},
}

func init() {
	issuesCmd.Flags().BoolVar(&issuesJSON, "json", false, "print JSON")
	rootCmd.AddCommand(issuesCmd)
}
