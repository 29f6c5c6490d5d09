package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/davarch/devboard/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var (
	reposOnlyEnabled  bool
	reposOnlyDisabled bool
	reposJSON         bool
)

type repoItem struct {
	FullName     string `json:"full_name"`
	Enabled      bool   `json:"enabled"`
	Link         string `json:"link"`
	Environments int    `json:"environments"`
}

func repoItems(cfg config.Config) []repoItem {
	web := strings.TrimRight(cfg.Bitbucket.WebURL, "/")
	items := make([]repoItem, 0, len(cfg.Bitbucket.Repositories))
	for _, r := range cfg.Bitbucket.Repositories {
		items = append(items, repoItem{
			FullName:     r.FullName,
			Enabled:      r.Enabled,
			Link:         web + "/" + r.FullName,
			Environments: len(r.Environments),
		})
	}
	return items
}

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "List Bitbucket repositories from config.yaml",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if reposOnlyEnabled && reposOnlyDisabled {
			return fmt.Errorf("flags --enabled and --disabled are mutually exclusive")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		items := make([]repoItem, 0, len(cfg.Bitbucket.Repositories))
		for _, r := range repoItems(cfg) {
			if reposOnlyEnabled && !r.Enabled {
				continue
			}
			if reposOnlyDisabled && r.Enabled {
				continue
			}
			items = append(items, r)
		}

		if reposJSON {
			return writeJSON(os.Stdout, items)
		}

		t := newTable("REPOSITORY", "ENABLED", "ENVIRONMENTS", "LINK")
		for _, r := range items {
			envs := "default"
			if r.Environments > 0 {
				envs = itoa(r.Environments)
			}
			t.Row(r.FullName, fmt.Sprint(r.Enabled), envs, r.Link)
		}
		fmt.Println(t.StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 1 && row >= 0 && row < len(items) && !items[row].Enabled:
				return mutedStyle
			}
			return cellStyle
		}).String())
		return nil
	},
}

// completeRepositories suggests configured repositories accepted by keep.
func completeRepositories(keep func(repoItem) bool) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		var out []string
		for _, r := range repoItems(cfg) {
			if keep(r) && strings.HasPrefix(r.FullName, toComplete) {
				out = append(out, r.FullName)
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}
}

func init() {
	reposCmd.Flags().BoolVar(&reposOnlyEnabled, "enabled", false, "show only enabled repositories")
	reposCmd.Flags().BoolVar(&reposOnlyDisabled, "disabled", false, "show only disabled repositories")
	reposCmd.Flags().BoolVar(&reposJSON, "json", false, "print JSON")

	rootCmd.AddCommand(reposCmd)
}
