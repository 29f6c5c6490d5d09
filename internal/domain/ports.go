package domain

import "context"

// IssueSource searches one issue-tracker instance and returns every matching raw payload.
type IssueSource interface {
	Instance() InstanceConfig
	Search(ctx context.Context, q IssueQuery) ([]RawIssue, error)
}

// PipelineSource returns pipeline runs for one repository, newest first as delivered.
type PipelineSource interface {
	ListRuns(ctx context.Context, repository string, q RunQuery) ([]PipelineRun, error)
}

type Notifier interface {
	Notify(ctx context.Context, title, body, url string) error
}

type SnapshotWriter interface {
	Write(ctx context.Context, s Snapshot) error
}

// DeploymentSource reads deployment records and commit metadata of one repository.
type DeploymentSource interface {
	ListDeployments(ctx context.Context, repository string, limit int) ([]Deployment, error)
	CommitDetail(ctx context.Context, repository, hash string) (Commit, error)
}

// WorkspaceBrowser answers ad-hoc questions about what the configured credentials can see.
type WorkspaceBrowser interface {
	ListRepositories(ctx context.Context, workspace string) ([]WorkspaceRepository, error)
	ListCommits(ctx context.Context, repository string, limit int) ([]Commit, error)
	CurrentUser(ctx context.Context) (Account, error)
}
