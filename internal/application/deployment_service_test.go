package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/davarch/devboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func deployment(env, commit string, minutes int) domain.Deployment {
	return domain.Deployment{
		Environment: env,
		Commit:      commit,
		Result:      domain.ResultSuccessful,
		UpdatedAt:   *at(minutes),
		Origin:      domain.OriginDeployment,
	}
}

func withCommit(r domain.PipelineRun, hash string) domain.PipelineRun {
	r.CommitHash = hash
	return r
}

func newDeployments(t *testing.T, deps *domain.MockDeploymentSource, runs *domain.MockPipelineSource, repos ...string) *DeploymentService {
	t.Helper()
	cfgs := make([]domain.RepositoryConfig, len(repos))
	for i, r := range repos {
		cfgs[i] = domain.RepositoryConfig{FullName: r, Environments: envTable()}
	}
	pipes := newPipelines(t, runs, PipelineOptions{}, cfgs...)
	return NewDeploymentService(zap.NewNop(), deps, pipes, DeploymentOptions{FetchTimeout: time.Second, Limit: 20})
}

func TestLatestPerEnvironment(t *testing.T) {
	got := LatestPerEnvironment([]domain.Deployment{
		deployment("staging", "s1", 1),
		deployment("production", "p1", 5),
		deployment("production", "p2", 9),
		deployment("production", "p0", 2),
		deployment("", "orphan", 30),
	})

	require.Len(t, got, 2)
	assert.Equal(t, "production", got[0].Environment)
	assert.Equal(t, "p2", got[0].Commit)
	assert.Equal(t, "s1", got[1].Commit)
}

func TestDeployments_EnrichesAndOrders(t *testing.T) {
	deps := &domain.MockDeploymentSource{
		Deployments: map[string][]domain.Deployment{
			"ws/b": {deployment("production", "abc", 3)},
			"ws/a": {deployment("staging", "abc", 1), deployment("production", "def", 2)},
		},
		Commits: map[string]domain.Commit{
			"abc": {Hash: "abc", Message: "release 1.2", Tag: "v1.2.0"},
		},
		CommitErr: errors.New("404"),
	}
	svc := newDeployments(t, deps, &domain.MockPipelineSource{}, "ws/b", "ws/a")

	rep, err := svc.Deployments(context.Background())
	require.NoError(t, err)
	assert.False(t, rep.Partial())
	assert.Equal(t, 2, rep.Sources)

	require.Len(t, rep.Deployments, 3)
	var keys []string
	for _, d := range rep.Deployments {
		keys = append(keys, d.Repository+" "+d.Environment)
	}
	assert.Equal(t, []string{"ws/a production", "ws/a staging", "ws/b production"}, keys)

	assert.Empty(t, rep.Deployments[0].Message, "failed commit lookup leaves the record usable")
	assert.Equal(t, "v1.2.0", rep.Deployments[1].Tag)
	assert.Equal(t, "release 1.2", rep.Deployments[2].Message)
}

func TestDeployments_FallsBackToPipelines(t *testing.T) {
	runs := &domain.MockPipelineSource{Runs: map[string][]domain.PipelineRun{
		"ws/a": {
			withCommit(run("4", "main", domain.ResultInProgress, nil), "c4"),
			withCommit(run("3", "main", domain.ResultFailed, at(9)), "c3"),
			withCommit(run("2", "staging", domain.ResultSuccessful, at(5)), "c2"),
			withCommit(run("1", "feature/x", domain.ResultSuccessful, at(7)), "c1"),
		},
	}}
	svc := newDeployments(t, &domain.MockDeploymentSource{}, runs, "ws/a")

	rep, err := svc.Deployments(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Deployments, 2)

	prod := rep.Deployments[0]
	assert.Equal(t, "prod", prod.Environment)
	assert.Equal(t, "c3", prod.Commit, "running pipelines are skipped")
	assert.Equal(t, domain.ResultFailed, prod.Result)
	assert.Equal(t, *at(9), prod.UpdatedAt)
	assert.Equal(t, domain.OriginPipeline, prod.Origin)

	assert.Equal(t, "staging", rep.Deployments[1].Environment)
	assert.Equal(t, "c2", rep.Deployments[1].Commit)
}

func TestDeployments_PartialAndTotalFailure(t *testing.T) {
	deps := &domain.MockDeploymentSource{
		Deployments: map[string][]domain.Deployment{"ws/a": {deployment("production", "abc", 1)}},
		Errs:        map[string]error{"ws/b": fmt.Errorf("bb: %w", domain.ErrAuthentication)},
	}
	svc := newDeployments(t, deps, &domain.MockPipelineSource{}, "ws/a", "ws/b")

	rep, err := svc.Deployments(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Partial())
	require.Len(t, rep.Failed, 1)
	assert.Equal(t, "ws/b", rep.Failed[0].Source)
	assert.Equal(t, "authentication", rep.Failed[0].Kind)

	deps.Errs["ws/a"] = domain.ErrTransientFetch
	rep, err = svc.Deployments(context.Background())
	require.ErrorIs(t, err, domain.ErrAllSourcesFailed)
	assert.Len(t, rep.Failed, 2)
	assert.Empty(t, rep.Deployments)
}

func TestDeployments_FallbackFailureCountsAsSourceFailure(t *testing.T) {
	runs := &domain.MockPipelineSource{Errs: map[string]error{"ws/a": domain.ErrRejected}}
	svc := newDeployments(t, &domain.MockDeploymentSource{}, runs, "ws/a")

	_, err := svc.Deployments(context.Background())
	assert.ErrorIs(t, err, domain.ErrAllSourcesFailed)
}
