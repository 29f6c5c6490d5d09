package cli

import (
	"github.com/davarch/devboard/internal/application"
	"github.com/davarch/devboard/internal/domain"
	"github.com/davarch/devboard/internal/infrastructure/bitbucket_http"
	"github.com/davarch/devboard/internal/infrastructure/config"
	"github.com/davarch/devboard/internal/infrastructure/httpclient"
	"github.com/davarch/devboard/internal/infrastructure/jira_http"
	"go.uber.org/zap"
)

// services is the immutable set of use cases built from one configuration snapshot.
type services struct {
	issues      *application.IssueService
	pipelines   *application.PipelineService
	deployments *application.DeploymentService
	workspace   *application.WorkspaceService
}

func buildServices(log *zap.Logger, cfg config.Config) (services, error) {
	retry := httpclient.RetryPolicy{
		InitialInterval: cfg.Fetch.InitialBackoff,
		MaxInterval:     cfg.Fetch.MaxBackoff,
		MaxRetries:      cfg.Fetch.Retries,
	}

	reg, err := cfg.InstanceRegistry()
	if err != nil {
		return services{}, err
	}

	sources := make([]domain.IssueSource, 0, reg.Len())
	for _, inst := range reg.All() {
		sources = append(sources, jira_http.New(log, inst, jira_http.Options{
			Timeout:   cfg.Jira.Timeout,
			PageSize:  cfg.Jira.PageSize,
			MaxIssues: cfg.Jira.MaxIssues,
			Retry:     retry,
		}))
	}

	bb := bitbucket_http.New(log, bitbucket_http.Options{
		BaseURL:  cfg.Bitbucket.BaseURL,
		WebURL:   cfg.Bitbucket.WebURL,
		Email:    cfg.Bitbucket.Email,
		Token:    cfg.Bitbucket.Token,
		Timeout:  cfg.Bitbucket.Timeout,
		PageSize: cfg.Bitbucket.PageSize,
		Retry:    retry,
	})

	pipelines, err := application.NewPipelineService(log, bb, cfg.RepositoryConfigs(), application.PipelineOptions{
		FetchTimeout:    cfg.Fetch.Timeout,
		Concurrency:     cfg.Fetch.Concurrency,
		MaxRuns:         cfg.Bitbucket.MaxRuns,
		Lookback:        cfg.Bitbucket.Lookback,
		UnionCategories: cfg.Bitbucket.UnionCategories,
		WebURL:          cfg.Bitbucket.WebURL,
	})
	if err != nil {
		return services{}, err
	}

	return services{
		issues:    application.NewIssueService(log, sources, cfg.Fetch.Timeout, cfg.Fetch.Concurrency),
		pipelines: pipelines,
		deployments: application.NewDeploymentService(log, bb, pipelines, application.DeploymentOptions{
			FetchTimeout: cfg.Fetch.Timeout,
			Concurrency:  cfg.Fetch.Concurrency,
			Limit:        cfg.Bitbucket.MaxDeployments,
		}),
		workspace: application.NewWorkspaceService(bb, cfg.Fetch.Timeout),
	}, nil
}
