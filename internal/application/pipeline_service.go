package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/davarch/devboard/internal/domain"
	"go.uber.org/zap"
)

type PipelineOptions struct {
	FetchTimeout    time.Duration
	Concurrency     int
	MaxRuns         int
	Lookback        time.Duration
	UnionCategories bool
	WebURL          string
}

type PipelineService struct {
	log        *zap.Logger
	source     domain.PipelineSource
	repos      []domain.RepositoryConfig
	classifier *Classifier
	opt        PipelineOptions
	now        func() time.Time
}

func NewPipelineService(log *zap.Logger, source domain.PipelineSource, repos []domain.RepositoryConfig, opt PipelineOptions) (*PipelineService, error) {
	classifier, err := NewClassifier(repos, opt.UnionCategories)
	if err != nil {
		return nil, err
	}

	return &PipelineService{
		log:        log,
		source:     source,
		repos:      repos,
		classifier: classifier,
		opt:        opt,
		now:        time.Now,
	}, nil
}

type fetchTask struct {
	repo     string
	selector string
}

func (t fetchTask) label() string {
	if t.selector == "" {
		return t.repo
	}
	return t.repo + " [" + t.selector + "]"
}

// planFetches issues one unfiltered fetch per repository unless every environment of that
// repository declares a server-side selector, in which case one fetch per distinct selector.
func planFetches(repos []domain.RepositoryConfig) []fetchTask {
	var out []fetchTask
	for _, repo := range repos {
		var selectors []string
		seen := map[string]struct{}{}
		unfiltered := len(repo.Environments) == 0

		for _, env := range repo.Environments {
			if env.Selector == "" {
				unfiltered = true
				break
			}
			if _, dup := seen[env.Selector]; !dup {
				seen[env.Selector] = struct{}{}
				selectors = append(selectors, env.Selector)
			}
		}

		if unfiltered {
			out = append(out, fetchTask{repo: repo.FullName})
			continue
		}
		for _, sel := range selectors {
			out = append(out, fetchTask{repo: repo.FullName, selector: sel})
		}
	}
	return out
}

func (s *PipelineService) runQuery(selector string) domain.RunQuery {
	q := domain.RunQuery{Selector: selector, MaxRuns: s.opt.MaxRuns}
	if s.opt.Lookback > 0 {
		q.Since = s.now().Add(-s.opt.Lookback)
	}
	return q
}

// Dashboard fetches every repository concurrently and classifies whatever succeeded.
// It fails only when every fetch failed.
func (s *PipelineService) Dashboard(ctx context.Context) (domain.PipelineDashboard, error) {
	plan := planFetches(s.repos)

	tasks := make([]func(context.Context) ([]domain.PipelineRun, error), len(plan))
	for i, t := range plan {
		q := s.runQuery(t.selector)
		tasks[i] = func(ctx context.Context) ([]domain.PipelineRun, error) {
			return s.source.ListRuns(ctx, t.repo, q)
		}
	}

	runs := make(map[string][]domain.PipelineRun, len(s.repos))
	var failed []domain.SourceFailure

	for i, o := range settle(ctx, s.opt.Concurrency, s.opt.FetchTimeout, tasks) {
		t := plan[i]
		if o.err != nil {
			f := domain.NewSourceFailure(t.label(), o.err)
			s.log.Warn("pipeline source failed",
				zap.String("source", f.Source),
				zap.String("kind", f.Kind),
				zap.Error(o.err),
			)
			failed = append(failed, f)
			continue
		}
		runs[t.repo] = append(runs[t.repo], o.value...)
	}

	order := make([]string, len(s.repos))
	for i, r := range s.repos {
		order[i] = r.FullName
	}

	dash := s.classifier.Aggregate(order, runs)
	dash.Failed = failed
	dash.Sources = len(plan)

	if dash.Sources > 0 && len(failed) == dash.Sources {
		return dash, fmt.Errorf("%w: %d of %d pipeline fetches", domain.ErrAllSourcesFailed, len(failed), dash.Sources)
	}
	return dash, nil
}

// History returns the raw run history of one configured repository, unclassified.
func (s *PipelineService) History(ctx context.Context, repository string) ([]domain.PipelineRun, error) {
	if !s.hasRepository(repository) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownRepository, repository)
	}

	if s.opt.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opt.FetchTimeout)
		defer cancel()
	}

	runs, err := s.source.ListRuns(ctx, repository, s.runQuery(""))
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []domain.PipelineRun{}
	}
	return runs, nil
}

func (s *PipelineService) Repositories() []domain.RepositoryLink {
	web := strings.TrimRight(s.opt.WebURL, "/")
	out := make([]domain.RepositoryLink, 0, len(s.repos))
	for _, r := range s.repos {
		ws, slug, ok := strings.Cut(r.FullName, "/")
		link := domain.RepositoryLink{Slug: r.FullName, Full: r.FullName}
		if ok {
			link.Workspace, link.Slug = ws, slug
			if web != "" {
				link.Link = web + "/" + r.FullName
			}
		}
		out = append(out, link)
	}
	return out
}

func (s *PipelineService) hasRepository(name string) bool {
	for _, r := range s.repos {
		if r.FullName == name {
			return true
		}
	}
	return false
}
