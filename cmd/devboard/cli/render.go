package cli

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/davarch/devboard/internal/domain"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	okStyle      = cellStyle.Foreground(lipgloss.Color("42"))
	failStyle    = cellStyle.Foreground(lipgloss.Color("196"))
	runningStyle = cellStyle.Foreground(lipgloss.Color("220"))
	mutedStyle   = cellStyle.Foreground(lipgloss.Color("241"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("211"))
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("241"))).
		Headers(headers...)
}

func resultStyle(r domain.RunResult) lipgloss.Style {
	switch {
	case r.IsSuccess():
		return okStyle
	case !r.IsTerminal():
		return runningStyle
	case r == domain.ResultFailed, r == domain.ResultError, r == domain.ResultFailedWithErrors:
		return failStyle
	default:
		return mutedStyle
	}
}

func issuesTable(issues []domain.IssueRecord) string {
	t := newTable("INSTANCE", "TICKET", "PRIORITY", "DUE", "ASSIGNEE", "TITLE")
	for _, is := range issues {
		due := "-"
		if is.DueDate != nil {
			due = is.DueDate.String()
		}
		t.Row(is.Instance, is.Key, string(is.Priority), due, orDash(is.Assignee), truncate(is.Title, 60))
	}
	return t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		return cellStyle
	}).String()
}

type dashboardRow struct {
	result domain.RunResult
	cells  []string
}

// dashboardTable shows the newest run and the latest successful run per repository and category.
func dashboardTable(d domain.PipelineDashboard) string {
	var rows []dashboardRow
	for _, repo := range d.Order {
		cats := d.Repositories[repo]
		for _, cat := range d.Categories {
			group, ok := cats[cat]
			if !ok || len(group.Runs) == 0 {
				continue
			}
			head := group.Runs[0]
			last := "-"
			if ls := group.LatestSuccessful; ls != nil {
				last = shortHash(ls.CommitHash) + " " + ls.Ref
			}
			rows = append(rows, dashboardRow{
				result: head.Result,
				cells:  []string{repo, cat, head.Ref, string(head.Result), shortHash(head.CommitHash), age(head), last},
			})
		}
	}

	t := newTable("REPOSITORY", "CATEGORY", "REF", "RESULT", "COMMIT", "WHEN", "LAST SUCCESS")
	for _, r := range rows {
		t.Row(r.cells...)
	}
	return t.StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case col == 3 && row >= 0 && row < len(rows):
			return resultStyle(rows[row].result)
		}
		return cellStyle
	}).String()
}

func runsTable(runs []domain.PipelineRun) string {
	t := newTable("#", "REF", "KIND", "RESULT", "COMMIT", "CREATED", "LINK")
	for _, r := range runs {
		t.Row(itoa(r.BuildNumber), r.Ref, orDash(string(r.RefKind)), string(r.Result),
			shortHash(r.CommitHash), r.CreatedOn.Local().Format("2006-01-02 15:04"), r.PipelineLink)
	}
	return t.StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case col == 3 && row >= 0 && row < len(runs):
			return resultStyle(runs[row].Result)
		}
		return cellStyle
	}).String()
}

func failureNote(failed []domain.SourceFailure) string {
	if len(failed) == 0 {
		return ""
	}
	lines := make([]string, 0, len(failed)+1)
	lines = append(lines, "warning: some sources failed, results are incomplete")
	for _, f := range failed {
		lines = append(lines, "  "+f.Source+" ("+f.Kind+"): "+f.Error)
	}
	return warnStyle.Render(strings.Join(lines, "\n"))
}

func age(r domain.PipelineRun) string {
	if r.CompletedAt == nil {
		return "running"
	}
	return time.Since(*r.CompletedAt).Truncate(time.Minute).String() + " ago"
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return orDash(h)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func itoa(n int) string {
	if n == 0 {
		return "-"
	}
	return strconv.Itoa(n)
}

func deploymentsTable(list []domain.Deployment) string {
	t := newTable("REPOSITORY", "ENVIRONMENT", "RESULT", "COMMIT", "TAG", "UPDATED", "MESSAGE")
	for _, d := range list {
		updated := "-"
		if !d.UpdatedAt.IsZero() {
			updated = d.UpdatedAt.Local().Format("2006-01-02 15:04")
		}
		env := d.Environment
		if d.Origin == domain.OriginPipeline {
			env += " *"
		}
		t.Row(d.Repository, env, string(d.Result), shortHash(d.Commit), orDash(d.Tag), updated, truncate(orDash(d.Message), 50))
	}
	return t.StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case col == 2 && row >= 0 && row < len(list):
			return resultStyle(list[row].Result)
		}
		return cellStyle
	}).String()
}

func commitsTable(commits []domain.Commit) string {
	t := newTable("COMMIT", "DATE", "AUTHOR", "MESSAGE")
	for _, c := range commits {
		date := "-"
		if !c.Date.IsZero() {
			date = c.Date.Local().Format("2006-01-02 15:04")
		}
		t.Row(shortHash(c.Hash), date, truncate(orDash(c.Author), 30), truncate(orDash(c.Message), 60))
	}
	return t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		return cellStyle
	}).String()
}

func workspaceReposTable(repos []domain.WorkspaceRepository) string {
	t := newTable("REPOSITORY", "NAME", "PRIVATE", "LINK")
	for _, r := range repos {
		t.Row(r.Workspace+"/"+r.Slug, r.Name, strconv.FormatBool(r.Private), r.Link)
	}
	return t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		return cellStyle
	}).String()
}
