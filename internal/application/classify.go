package application

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/davarch/devboard/internal/domain"
	"github.com/gobwas/glob"
)

type matcher struct {
	pattern domain.EnvironmentPattern
	match   func(ref string) bool
}

func (m matcher) matches(run domain.PipelineRun) bool {
	if run.Ref == "" {
		return false
	}
	if m.pattern.RefKind != "" && run.RefKind != m.pattern.RefKind {
		return false
	}
	return m.match(run.Ref)
}

// Classifier assigns runs to environment categories using per-repository pattern tables.
// Patterns are tested in declaration order and the first match wins.
type Classifier struct {
	tables map[string][]matcher
	union  bool
}

func NewClassifier(repos []domain.RepositoryConfig, unionCategories bool) (*Classifier, error) {
	c := &Classifier{tables: make(map[string][]matcher, len(repos)), union: unionCategories}

	for _, repo := range repos {
		table := make([]matcher, 0, len(repo.Environments))
		for _, p := range repo.Environments {
			m, err := compileMatcher(p)
			if err != nil {
				return nil, fmt.Errorf("%w: repository %s: category %q: %v", domain.ErrConfiguration, repo.FullName, p.Category, err)
			}
			table = append(table, m)
		}
		c.tables[repo.FullName] = table
	}

	return c, nil
}

func compileMatcher(p domain.EnvironmentPattern) (matcher, error) {
	if strings.TrimSpace(p.Category) == "" {
		return matcher{}, fmt.Errorf("empty category")
	}
	if p.Pattern == "" {
		return matcher{}, fmt.Errorf("empty pattern")
	}

	m := matcher{pattern: p}
	switch p.Mode {
	case domain.MatchExact:
		m.match = func(ref string) bool { return ref == p.Pattern }
	case domain.MatchPrefix:
		m.match = func(ref string) bool { return strings.HasPrefix(ref, p.Pattern) }
	case domain.MatchRegex:
		re, err := regexp.Compile("^(?:" + p.Pattern + ")$")
		if err != nil {
			return matcher{}, err
		}
		m.match = re.MatchString
	case domain.MatchGlob, "":
		g, err := glob.Compile(p.Pattern, '/')
		if err != nil {
			return matcher{}, err
		}
		m.match = g.Match
	default:
		return matcher{}, fmt.Errorf("unknown match mode %q", p.Mode)
	}
	return m, nil
}

func (c *Classifier) Category(repo string, run domain.PipelineRun) (string, bool) {
	for _, m := range c.tables[repo] {
		if m.matches(run) {
			return m.pattern.Category, true
		}
	}
	return "", false
}

// Aggregate builds the dashboard for every repository present in runs, visiting them in
// order. Runs are de-duplicated by uuid; unmatched runs are dropped.
func (c *Classifier) Aggregate(order []string, runs map[string][]domain.PipelineRun) domain.PipelineDashboard {
	dash := domain.PipelineDashboard{
		Repositories: make(map[string]map[string]domain.CategoryRuns),
		Order:        make([]string, 0, len(order)),
		Categories:   []string{},
	}

	for _, repo := range order {
		list, ok := runs[repo]
		if !ok {
			continue
		}

		seen := make(map[string]struct{}, len(list))
		groups := make(map[string][]domain.PipelineRun)
		for _, r := range list {
			if _, dup := seen[r.UUID]; dup {
				continue
			}
			seen[r.UUID] = struct{}{}

			if cat, ok := c.Category(repo, r); ok {
				groups[cat] = append(groups[cat], r)
			}
		}

		cats := make(map[string]domain.CategoryRuns, len(groups))
		for cat, rs := range groups {
			SortRuns(rs)
			cats[cat] = domain.CategoryRuns{Runs: rs, LatestSuccessful: LatestSuccessful(rs)}
		}

		dash.Repositories[repo] = cats
		dash.Order = append(dash.Order, repo)
	}

	dash.Categories = c.summaryCategories(dash.Order, dash.Repositories)
	return dash
}

// summaryCategories returns the categories of the first repository that has any, in its
// pattern-table order. With union enabled, every repository contributes.
func (c *Classifier) summaryCategories(order []string, repos map[string]map[string]domain.CategoryRuns) []string {
	out := []string{}
	seen := map[string]struct{}{}

	for _, repo := range order {
		present := repos[repo]
		if len(present) == 0 {
			continue
		}
		for _, m := range c.tables[repo] {
			cat := m.pattern.Category
			if _, ok := present[cat]; !ok {
				continue
			}
			if _, dup := seen[cat]; dup {
				continue
			}
			seen[cat] = struct{}{}
			out = append(out, cat)
		}
		if !c.union {
			break
		}
	}
	return out
}

// SortRuns orders runs newest first. Runs without a completion time sort ahead of finished ones.
func SortRuns(runs []domain.PipelineRun) {
	slices.SortStableFunc(runs, compareRuns)
}

func compareRuns(a, b domain.PipelineRun) int {
	switch {
	case a.CompletedAt == nil && b.CompletedAt != nil:
		return -1
	case a.CompletedAt != nil && b.CompletedAt == nil:
		return 1
	case a.CompletedAt != nil && b.CompletedAt != nil:
		if c := b.CompletedAt.Compare(*a.CompletedAt); c != 0 {
			return c
		}
	}
	if c := b.CreatedOn.Compare(a.CreatedOn); c != 0 {
		return c
	}
	return cmp.Compare(b.BuildNumber, a.BuildNumber)
}

// LatestSuccessful returns the first successful run of an already ordered list.
func LatestSuccessful(runs []domain.PipelineRun) *domain.PipelineRun {
	for _, r := range runs {
		if r.Result.IsSuccess() {
			return &r
		}
	}
	return nil
}
