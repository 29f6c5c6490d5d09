package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/davarch/devboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func source(name string, raw []domain.RawIssue, err error) *domain.MockIssueSource {
	return &domain.MockIssueSource{
		Config: domain.InstanceConfig{Name: name, BaseURL: "https://" + name + ".example", APIToken: "t"},
		Issues: raw,
		Err:    err,
	}
}

func TestIssueService_PartialFailureIsContained(t *testing.T) {
	a := source("a", []domain.RawIssue{rawIssue(t, "A-1"), rawIssue(t, "A-2")}, nil)
	b := source("b", nil, fmt.Errorf("jira b: %w", domain.ErrAuthentication))
	c := source("c", []domain.RawIssue{rawIssue(t, "C-1")}, nil)

	svc := NewIssueService(zap.NewNop(), []domain.IssueSource{a, b, c}, time.Second, 0)
	res, err := svc.View(context.Background(), ViewInProgress)
	require.NoError(t, err)

	assert.Len(t, res.Issues, 3)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "b", res.Failed[0].Source)
	assert.Equal(t, "authentication", res.Failed[0].Kind)
	assert.Equal(t, 3, res.Sources)
	assert.True(t, res.Partial())

	require.Len(t, a.Queries, 1)
	assert.Equal(t, []string{"In Progress"}, a.Queries[0].Statuses)
}

func TestIssueService_TotalFailureIsAnError(t *testing.T) {
	a := source("a", nil, fmt.Errorf("x: %w", domain.ErrTransientFetch))
	b := source("b", nil, fmt.Errorf("y: %w", domain.ErrAuthentication))

	svc := NewIssueService(zap.NewNop(), []domain.IssueSource{a, b}, time.Second, 2)
	res, err := svc.View(context.Background(), ViewBacklog)

	require.ErrorIs(t, err, domain.ErrAllSourcesFailed)
	assert.Len(t, res.Failed, 2)
}

func TestIssueService_EmptyIsNotFailure(t *testing.T) {
	svc := NewIssueService(zap.NewNop(), []domain.IssueSource{source("a", nil, nil)}, time.Second, 0)
	res, err := svc.View(context.Background(), ViewInProgress)
	require.NoError(t, err)
	assert.NotNil(t, res.Issues)
	assert.Empty(t, res.Issues)
	assert.Empty(t, res.Failed)
}

func TestIssueService_ConcatenationProperty(t *testing.T) {
	a := source("a", []domain.RawIssue{rawIssue(t, "K-1"), rawIssue(t, "K-2"), rawIssue(t, "K-1")}, nil)
	b := source("b", []domain.RawIssue{rawIssue(t, "K-1"), rawIssue(t, "K-5")}, nil)

	svc := NewIssueService(zap.NewNop(), []domain.IssueSource{a, b}, time.Second, 0)
	res, err := svc.View(context.Background(), ViewOpenByDue)
	require.NoError(t, err)
	assert.Len(t, res.Issues, 2+2)
}

func TestIssueService_OpenByDueDropsDoneAndSorts(t *testing.T) {
	a := source("a", []domain.RawIssue{
		rawIssue(t, "K-1", due("2025-01-10")),
		rawIssue(t, "K-2"),
		rawIssue(t, "K-3", due("2025-01-05")),
		rawIssue(t, "K-4", due("2024-12-01"), category("done")),
	}, nil)

	svc := NewIssueService(zap.NewNop(), []domain.IssueSource{a}, time.Second, 0)
	res, err := svc.View(context.Background(), ViewOpenByDue)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-05", "2025-01-10", "absent"}, dueStrings(res.Issues))
}

func TestIssueService_UnknownView(t *testing.T) {
	svc := NewIssueService(zap.NewNop(), nil, time.Second, 0)
	_, err := svc.View(context.Background(), "weekly")
	require.ErrorIs(t, err, domain.ErrUnknownView)
}

type slowSource struct{ *domain.MockIssueSource }

func (s slowSource) Search(ctx context.Context, q domain.IssueQuery) ([]domain.RawIssue, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestIssueService_TimeoutIsPerSource(t *testing.T) {
	slow := slowSource{source("slow", nil, nil)}
	fast := source("fast", []domain.RawIssue{rawIssue(t, "F-1")}, nil)

	svc := NewIssueService(zap.NewNop(), []domain.IssueSource{slow, fast}, 20*time.Millisecond, 0)
	res, err := svc.View(context.Background(), ViewInProgress)
	require.NoError(t, err)
	assert.Len(t, res.Issues, 1)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "timeout", res.Failed[0].Kind)
}
