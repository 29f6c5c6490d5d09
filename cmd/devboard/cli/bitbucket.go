package cli

import (
	"fmt"
	"os"

	"github.com/davarch/devboard/internal/application"
	"github.com/spf13/cobra"
)

var (
	bitbucketJSON bool
	commitLimit   int
)

var bitbucketCmd = &cobra.Command{
	Use:   "bitbucket",
	Short: "Ad-hoc Bitbucket lookups outside the configured repository list",
}

// withWorkspace runs one lookup and prints its result as JSON or through render.
func withWorkspace(run func(*application.WorkspaceService) (any, func() string, error)) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	svc, err := buildServices(log, cfg)
	if err != nil {
		return err
	}

	v, render, err := run(svc.workspace)
	if err != nil {
		return err
	}
	if bitbucketJSON {
		return writeJSON(os.Stdout, v)
	}
	fmt.Println(render())
	return nil
}

var bitbucketReposCmd = &cobra.Command{
	Use:   "repos <workspace>",
	Short: "List every repository of a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(func(ws *application.WorkspaceService) (any, func() string, error) {
			repos, err := ws.Repositories(cmd.Context(), args[0])
			return repos, func() string { return workspaceReposTable(repos) }, err
		})
	},
}

var bitbucketCommitsCmd = &cobra.Command{
	Use:   "commits <workspace/slug>",
	Short: "Show the newest commits of a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(func(ws *application.WorkspaceService) (any, func() string, error) {
			commits, err := ws.Commits(cmd.Context(), args[0], commitLimit)
			return commits, func() string { return commitsTable(commits) }, err
		})
	},
	ValidArgsFunction: completeRepositories(func(r repoItem) bool { return true }),
}

var bitbucketWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Check the Bitbucket credentials and print the account they belong to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(func(ws *application.WorkspaceService) (any, func() string, error) {
			acc, err := ws.CheckCredentials(cmd.Context())
			return acc, func() string { return fmt.Sprintf("authenticated as %s (%s)", acc.Username, acc.DisplayName) }, err
		})
	},
}

func init() {
	bitbucketCmd.PersistentFlags().BoolVar(&bitbucketJSON, "json", false, "print JSON")
	bitbucketCommitsCmd.Flags().IntVarP(&commitLimit, "limit", "n", application.DefaultCommitLimit, "number of commits")

	bitbucketCmd.AddCommand(bitbucketReposCmd, bitbucketCommitsCmd, bitbucketWhoamiCmd)
	rootCmd.AddCommand(bitbucketCmd)
}
