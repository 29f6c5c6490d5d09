package domain

import (
	"context"
	"sync"
)

type MockIssueSource struct {
	Config InstanceConfig
	Issues []RawIssue
	Err    error

	mu      sync.Mutex
	Queries []IssueQuery
}

func (m *MockIssueSource) Instance() InstanceConfig { return m.Config }

func (m *MockIssueSource) Search(ctx context.Context, q IssueQuery) ([]RawIssue, error) {
	m.mu.Lock()
	m.Queries = append(m.Queries, q)
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Issues, nil
}

type MockPipelineSource struct {
	Runs map[string][]PipelineRun
	Errs map[string]error
	// Block makes ListRuns wait for ctx cancellation for these repositories.
	Block map[string]bool

	mu    sync.Mutex
	Calls []RunQuery
}

func (m *MockPipelineSource) ListRuns(ctx context.Context, repository string, q RunQuery) ([]PipelineRun, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, q)
	m.mu.Unlock()

	if m.Block[repository] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := m.Errs[repository]; err != nil {
		return nil, err
	}
	return m.Runs[repository], nil
}

type MockNotifier struct {
	Messages []string
	Err      error
}

func (n *MockNotifier) Notify(ctx context.Context, title, body, url string) error {
	n.Messages = append(n.Messages, title+"|"+body+"|"+url)
	return n.Err
}

type MockSnapshots struct {
	Snapshots []Snapshot
	Err       error
}

func (c *MockSnapshots) Write(ctx context.Context, s Snapshot) error {
	if c.Err != nil {
		return c.Err
	}
	c.Snapshots = append(c.Snapshots, s)
	return nil
}

type MockDeploymentSource struct {
	Deployments map[string][]Deployment
	Errs        map[string]error
	// Commits is keyed by hash; missing hashes fail with CommitErr.
	Commits   map[string]Commit
	CommitErr error
}

func (m *MockDeploymentSource) ListDeployments(ctx context.Context, repository string, limit int) ([]Deployment, error) {
	if err := m.Errs[repository]; err != nil {
		return nil, err
	}
	return m.Deployments[repository], nil
}

func (m *MockDeploymentSource) CommitDetail(ctx context.Context, repository, hash string) (Commit, error) {
	c, ok := m.Commits[hash]
	if !ok {
		return Commit{}, m.CommitErr
	}
	return c, nil
}

type MockWorkspaceBrowser struct {
	Repos   map[string][]WorkspaceRepository
	Commits map[string][]Commit
	Account Account
	Err     error

	Limits []int
}

func (m *MockWorkspaceBrowser) ListRepositories(ctx context.Context, workspace string) ([]WorkspaceRepository, error) {
	return m.Repos[workspace], m.Err
}

func (m *MockWorkspaceBrowser) ListCommits(ctx context.Context, repository string, limit int) ([]Commit, error) {
	m.Limits = append(m.Limits, limit)
	return m.Commits[repository], m.Err
}

func (m *MockWorkspaceBrowser) CurrentUser(ctx context.Context) (Account, error) {
	return m.Account, m.Err
}
