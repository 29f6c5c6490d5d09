package rest_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/davarch/devboard/internal/application"
	"github.com/davarch/devboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeIssues struct {
	res   domain.IssueResult
	err   error
	asked []string
}

func (f *fakeIssues) View(ctx context.Context, name string) (domain.IssueResult, error) {
	f.asked = append(f.asked, name)
	if _, err := application.LookupView(name); err != nil {
		return domain.IssueResult{}, err
	}
	return f.res, f.err
}

type fakePipelines struct {
	dash domain.PipelineDashboard
	err  error
	runs map[string][]domain.PipelineRun
}

func (f *fakePipelines) Dashboard(ctx context.Context) (domain.PipelineDashboard, error) {
	return f.dash, f.err
}

func (f *fakePipelines) History(ctx context.Context, repo string) ([]domain.PipelineRun, error) {
	runs, ok := f.runs[repo]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownRepository, repo)
	}
	return runs, nil
}

func (f *fakePipelines) Repositories() []domain.RepositoryLink {
	return []domain.RepositoryLink{{Workspace: "ws", Slug: "api", Full: "ws/api", Link: "https://bitbucket.org/ws/api"}}
}

type fakeDeployments struct {
	rep domain.DeploymentReport
	err error
}

func (f *fakeDeployments) Deployments(ctx context.Context) (domain.DeploymentReport, error) {
	return f.rep, f.err
}

func workspace(src *domain.MockWorkspaceBrowser) Services {
	return Services{Issues: &fakeIssues{}, Pipelines: &fakePipelines{}, Workspace: application.NewWorkspaceService(src, time.Second)}
}

func serve(t *testing.T, svc Services, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	srv := NewServer(zap.NewNop(), svc)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func partialIssues() domain.IssueResult {
	return domain.IssueResult{
		Issues:  []domain.IssueRecord{{Instance: "a", Key: "A-1", Title: "t", Link: "https://a/browse/A-1", Priority: domain.PriorityHigh}},
		Failed:  []domain.SourceFailure{{Source: "b", Kind: "authentication", Error: "401"}},
		Sources: 2,
	}
}

func TestIssues_PartialResultCarriesWarning(t *testing.T) {
	issues := &fakeIssues{res: partialIssues()}
	rec, body := serve(t, Services{Issues: issues, Pipelines: &fakePipelines{}}, "/issues/in-progress")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "in-progress", body["view"])
	assert.Contains(t, body["warning"], "b")
	assert.Len(t, body["failed_sources"], 1)

	list := body["issues"].([]any)
	require.Len(t, list, 1)
	first := list[0].(map[string]any)
	assert.Equal(t, "A-1", first["ticket"])
	assert.Equal(t, "High", first["priority"])
	assert.Nil(t, first["dueDate"])
}

func TestIssues_AliasRoutes(t *testing.T) {
	issues := &fakeIssues{res: domain.IssueResult{Issues: []domain.IssueRecord{}, Sources: 1}}
	svc := Services{Issues: issues, Pipelines: &fakePipelines{}}

	rec, body := serve(t, svc, "/open-issues-by-due")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, body, "warning")

	rec, _ = serve(t, svc, "/in-progress")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{application.ViewOpenByDue, application.ViewInProgress}, issues.asked)
}

func TestIssues_UnknownViewIs404(t *testing.T) {
	rec, body := serve(t, Services{Issues: &fakeIssues{}, Pipelines: &fakePipelines{}}, "/issues/weekly")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNotFound, body["error"].(map[string]any)["code"])
}

func TestIssues_TotalFailureIs502(t *testing.T) {
	issues := &fakeIssues{
		res: domain.IssueResult{Failed: []domain.SourceFailure{{Source: "a", Kind: "transient"}}, Sources: 1},
		err: fmt.Errorf("%w: 1 of 1", domain.ErrAllSourcesFailed),
	}
	rec, body := serve(t, Services{Issues: issues, Pipelines: &fakePipelines{}}, "/issues/backlog")

	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, codeUpstream, body["error"].(map[string]any)["code"])
	assert.Len(t, body["failed_sources"], 1)
}

func TestPipelines_Dashboard(t *testing.T) {
	dash := domain.PipelineDashboard{
		Repositories: map[string]map[string]domain.CategoryRuns{"ws/api": {"prod": {Runs: []domain.PipelineRun{{UUID: "1", Ref: "main", Result: domain.ResultSuccessful}}}}},
		Order:        []string{"ws/api"},
		Categories:   []string{"prod"},
		Failed:       []domain.SourceFailure{{Source: "ws/web", Kind: "timeout"}},
		Sources:      2,
	}
	rec, body := serve(t, Services{Issues: &fakeIssues{}, Pipelines: &fakePipelines{dash: dash}}, "/pipelines")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"prod"}, body["categories"])
	assert.Contains(t, body["warning"], "ws/web")
	assert.Contains(t, body["repositories"], "ws/api")
}

func TestPipelines_TotalFailureIs502(t *testing.T) {
	p := &fakePipelines{err: domain.ErrAllSourcesFailed}
	rec, _ := serve(t, Services{Issues: &fakeIssues{}, Pipelines: p}, "/pipelines")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestPipelines_History(t *testing.T) {
	p := &fakePipelines{runs: map[string][]domain.PipelineRun{"ws/api": {{UUID: "1", Ref: "feature/x", Result: domain.ResultFailed}}}}
	svc := Services{Issues: &fakeIssues{}, Pipelines: p}

	rec, body := serve(t, svc, "/pipelines/ws/api")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ws/api", body["repository"])
	assert.Len(t, body["runs"], 1)

	rec, _ = serve(t, svc, "/pipelines/ws/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRepos(t *testing.T) {
	rec, _ := serve(t, Services{Issues: &fakeIssues{}, Pipelines: &fakePipelines{}}, "/repos")
	require.Equal(t, http.StatusOK, rec.Code)

	var repos []domain.RepositoryLink
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &repos))
	require.Len(t, repos, 1)
	assert.Equal(t, "https://bitbucket.org/ws/api", repos[0].Link)
}

func TestHealthz(t *testing.T) {
	rec, body := serve(t, Services{}, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Swap(t *testing.T) {
	first := &fakeIssues{res: domain.IssueResult{Issues: []domain.IssueRecord{}, Sources: 1}}
	second := &fakeIssues{res: domain.IssueResult{Issues: []domain.IssueRecord{}, Sources: 1}}

	srv := NewServer(zap.NewNop(), Services{Issues: first, Pipelines: &fakePipelines{}})
	h := srv.Handler()
	srv.Swap(Services{Issues: second, Pipelines: &fakePipelines{}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/in-progress", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, first.asked)
	assert.Len(t, second.asked, 1)
}

func TestDeployments(t *testing.T) {
	rep := domain.DeploymentReport{
		Deployments: []domain.Deployment{{Repository: "ws/api", Environment: "production", Commit: "abc", Tag: "v1.0.0", Result: domain.ResultSuccessful}},
		Failed:      []domain.SourceFailure{{Source: "ws/web", Kind: "timeout"}},
		Sources:     2,
	}
	svc := Services{Issues: &fakeIssues{}, Pipelines: &fakePipelines{}, Deployments: &fakeDeployments{rep: rep}}

	rec, body := serve(t, svc, "/deployments")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["warning"], "ws/web")

	list := body["deployments"].([]any)
	require.Len(t, list, 1)
	first := list[0].(map[string]any)
	assert.Equal(t, "production", first["environment"])
	assert.Equal(t, "v1.0.0", first["tag"])

	svc.Deployments = &fakeDeployments{err: domain.ErrAllSourcesFailed}
	rec, _ = serve(t, svc, "/deployments")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestBitbucketRepos(t *testing.T) {
	src := &domain.MockWorkspaceBrowser{Repos: map[string][]domain.WorkspaceRepository{
		"acme": {{Workspace: "acme", Slug: "web"}, {Workspace: "acme", Slug: "api", Private: true}},
	}}

	rec, _ := serve(t, workspace(src), "/bitbucket-repos?workspace=acme")
	require.Equal(t, http.StatusOK, rec.Code)

	var repos []domain.WorkspaceRepository
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &repos))
	require.Len(t, repos, 2)
	assert.Equal(t, "api", repos[0].Slug)
	assert.True(t, repos[0].Private)

	rec, body := serve(t, workspace(src), "/bitbucket-repos")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeBadRequest, body["error"].(map[string]any)["code"])
}

func TestBitbucketCommits(t *testing.T) {
	src := &domain.MockWorkspaceBrowser{Commits: map[string][]domain.Commit{"acme/api": {{Hash: "c1", Message: "fix"}}}}

	rec, body := serve(t, workspace(src), "/bitbucket-commits?workspace=acme&repo=api&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme/api", body["repository"])
	assert.Len(t, body["commits"], 1)
	assert.Equal(t, []int{5}, src.Limits)

	rec, _ = serve(t, workspace(src), "/bitbucket-commits?workspace=acme&repo=api&limit=ten")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = serve(t, workspace(src), "/bitbucket-commits?repo=api")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBitbucketCredentialCheck(t *testing.T) {
	rec, body := serve(t, workspace(&domain.MockWorkspaceBrowser{Account: domain.Account{Username: "dev", DisplayName: "Dev"}}), "/bitbucket-test")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "dev", body["username"])

	rec, body = serve(t, workspace(&domain.MockWorkspaceBrowser{Err: fmt.Errorf("bitbucket user: %w", domain.ErrAuthentication)}), "/bitbucket-test")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, codeUpstream, body["error"].(map[string]any)["code"])
}
