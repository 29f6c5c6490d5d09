package application

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/davarch/devboard/internal/domain"
	"go.uber.org/zap"
)

type DeploymentOptions struct {
	FetchTimeout time.Duration
	Concurrency  int
	// Limit caps the deployment records read per repository.
	Limit int
}

// DeploymentService reports what is currently deployed where. Repositories that never
// recorded a deployment fall back to their newest finished pipeline run per category.
type DeploymentService struct {
	log       *zap.Logger
	source    domain.DeploymentSource
	pipelines *PipelineService
	opt       DeploymentOptions
}

func NewDeploymentService(log *zap.Logger, source domain.DeploymentSource, pipelines *PipelineService, opt DeploymentOptions) *DeploymentService {
	return &DeploymentService{log: log, source: source, pipelines: pipelines, opt: opt}
}

// Deployments collects the latest deployment per environment of every configured repository,
// ordered by repository then environment. It fails only when every repository failed.
func (s *DeploymentService) Deployments(ctx context.Context) (domain.DeploymentReport, error) {
	repos := s.pipelines.repos

	tasks := make([]func(context.Context) ([]domain.Deployment, error), len(repos))
	for i, r := range repos {
		tasks[i] = func(ctx context.Context) ([]domain.Deployment, error) {
			return s.latest(ctx, r.FullName)
		}
	}

	report := domain.DeploymentReport{Deployments: []domain.Deployment{}, Sources: len(repos)}
	for i, o := range settle(ctx, s.opt.Concurrency, s.opt.FetchTimeout, tasks) {
		if o.err != nil {
			f := domain.NewSourceFailure(repos[i].FullName, o.err)
			s.log.Warn("deployment source failed",
				zap.String("source", f.Source),
				zap.String("kind", f.Kind),
				zap.Error(o.err),
			)
			report.Failed = append(report.Failed, f)
			continue
		}
		report.Deployments = append(report.Deployments, o.value...)
	}

	slices.SortStableFunc(report.Deployments, func(a, b domain.Deployment) int {
		if c := cmp.Compare(a.Repository, b.Repository); c != 0 {
			return c
		}
		return cmp.Compare(a.Environment, b.Environment)
	})

	if report.Sources > 0 && len(report.Failed) == report.Sources {
		return report, fmt.Errorf("%w: %d of %d deployment fetches", domain.ErrAllSourcesFailed, len(report.Failed), report.Sources)
	}
	return report, nil
}

func (s *DeploymentService) latest(ctx context.Context, repo string) ([]domain.Deployment, error) {
	all, err := s.source.ListDeployments(ctx, repo, s.opt.Limit)
	if err != nil {
		return nil, err
	}

	out := LatestPerEnvironment(all)
	if len(out) == 0 {
		runs, err := s.pipelines.source.ListRuns(ctx, repo, s.pipelines.runQuery(""))
		if err != nil {
			return nil, err
		}
		out = s.fromPipelines(repo, runs)
	}

	for i := range out {
		out[i].Repository = repo
	}
	s.enrich(ctx, repo, out)
	return out, nil
}

// LatestPerEnvironment keeps the most recently updated deployment of each environment,
// ordered by environment. Records without an environment are dropped.
func LatestPerEnvironment(list []domain.Deployment) []domain.Deployment {
	newest := make(map[string]domain.Deployment)
	for _, d := range list {
		if d.Environment == "" {
			continue
		}
		if cur, ok := newest[d.Environment]; !ok || d.UpdatedAt.After(cur.UpdatedAt) {
			newest[d.Environment] = d
		}
	}

	out := make([]domain.Deployment, 0, len(newest))
	for _, d := range newest {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b domain.Deployment) int { return cmp.Compare(a.Environment, b.Environment) })
	return out
}

// fromPipelines picks the newest finished run of every category the run history matches.
func (s *DeploymentService) fromPipelines(repo string, runs []domain.PipelineRun) []domain.Deployment {
	dash := s.pipelines.classifier.Aggregate([]string{repo}, map[string][]domain.PipelineRun{repo: runs})

	var out []domain.Deployment
	for cat, group := range dash.Repositories[repo] {
		for _, r := range group.Runs {
			if !r.Result.IsTerminal() {
				continue
			}
			updated := r.CreatedOn
			if r.CompletedAt != nil {
				updated = *r.CompletedAt
			}
			out = append(out, domain.Deployment{
				Repository:  repo,
				Environment: cat,
				Name:        r.Ref,
				Result:      r.Result,
				Commit:      r.CommitHash,
				UpdatedAt:   updated,
				Link:        r.PipelineLink,
				Origin:      domain.OriginPipeline,
			})
			break
		}
	}

	slices.SortFunc(out, func(a, b domain.Deployment) int { return cmp.Compare(a.Environment, b.Environment) })
	return out
}

// enrich fills commit message and tag. Lookup failures leave the fields empty.
func (s *DeploymentService) enrich(ctx context.Context, repo string, list []domain.Deployment) {
	cache := make(map[string]domain.Commit)
	for i := range list {
		hash := list[i].Commit
		if hash == "" {
			continue
		}

		c, ok := cache[hash]
		if !ok {
			var err error
			c, err = s.source.CommitDetail(ctx, repo, hash)
			if err != nil {
				s.log.Debug("commit lookup failed", zap.String("repository", repo), zap.String("commit", hash), zap.Error(err))
			}
			cache[hash] = c
		}

		list[i].Message = c.Message
		list[i].Tag = c.Tag
	}
}
