package application

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/davarch/devboard/internal/domain"
)

const (
	DefaultCommitLimit = 10
	MaxCommitLimit     = 100
)

// WorkspaceService runs one-off lookups against the pipeline host outside the configured
// repository list.
type WorkspaceService struct {
	src     domain.WorkspaceBrowser
	timeout time.Duration
}

func NewWorkspaceService(src domain.WorkspaceBrowser, timeout time.Duration) *WorkspaceService {
	return &WorkspaceService{src: src, timeout: timeout}
}

func (s *WorkspaceService) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func() {}
}

// Repositories lists every repository of a workspace, ordered by slug.
func (s *WorkspaceService) Repositories(ctx context.Context, workspace string) ([]domain.WorkspaceRepository, error) {
	workspace = strings.TrimSpace(workspace)
	if workspace == "" || strings.Contains(workspace, "/") {
		return nil, fmt.Errorf("%w: workspace %q", domain.ErrInvalidInput, workspace)
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	repos, err := s.src.ListRepositories(ctx, workspace)
	if err != nil {
		return nil, err
	}

	out := append([]domain.WorkspaceRepository{}, repos...)
	slices.SortFunc(out, func(a, b domain.WorkspaceRepository) int { return cmp.Compare(a.Slug, b.Slug) })
	return out, nil
}

// Commits returns the newest commits of any repository the credentials can read.
// A non-positive limit means DefaultCommitLimit; larger limits are capped at MaxCommitLimit.
func (s *WorkspaceService) Commits(ctx context.Context, repository string, limit int) ([]domain.Commit, error) {
	ws, slug, ok := strings.Cut(repository, "/")
	if !ok || ws == "" || slug == "" || strings.Contains(slug, "/") {
		return nil, fmt.Errorf("%w: repository %q must be workspace/slug", domain.ErrInvalidInput, repository)
	}

	switch {
	case limit <= 0:
		limit = DefaultCommitLimit
	case limit > MaxCommitLimit:
		limit = MaxCommitLimit
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	commits, err := s.src.ListCommits(ctx, repository, limit)
	if err != nil {
		return nil, err
	}
	if len(commits) > limit {
		commits = commits[:limit]
	}
	return append([]domain.Commit{}, commits...), nil
}

// CheckCredentials resolves the account behind the configured credentials.
func (s *WorkspaceService) CheckCredentials(ctx context.Context) (domain.Account, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.src.CurrentUser(ctx)
}
