package application

import (
	"context"
	"fmt"
	"time"

	"github.com/davarch/devboard/internal/domain"
	"go.uber.org/zap"
)

type IssueService struct {
	log          *zap.Logger
	sources      []domain.IssueSource
	fetchTimeout time.Duration
	concurrency  int
}

func NewIssueService(log *zap.Logger, sources []domain.IssueSource, fetchTimeout time.Duration, concurrency int) *IssueService {
	return &IssueService{
		log:          log,
		sources:      sources,
		fetchTimeout: fetchTimeout,
		concurrency:  concurrency,
	}
}

// View queries every instance concurrently and merges whatever succeeded. It fails only
// when every instance failed.
func (s *IssueService) View(ctx context.Context, name string) (domain.IssueResult, error) {
	view, err := LookupView(name)
	if err != nil {
		return domain.IssueResult{}, err
	}

	tasks := make([]func(context.Context) ([]domain.RawIssue, error), len(s.sources))
	for i, src := range s.sources {
		tasks[i] = func(ctx context.Context) ([]domain.RawIssue, error) {
			return src.Search(ctx, view.Query)
		}
	}

	res := domain.IssueResult{Issues: []domain.IssueRecord{}, Sources: len(s.sources)}
	batches := make([]IssueBatch, 0, len(s.sources))

	for i, o := range settle(ctx, s.concurrency, s.fetchTimeout, tasks) {
		inst := s.sources[i].Instance()
		if o.err != nil {
			f := domain.NewSourceFailure(inst.Name, o.err)
			s.log.Warn("issue source failed",
				zap.String("view", view.Name),
				zap.String("source", f.Source),
				zap.String("kind", f.Kind),
				zap.Error(o.err),
			)
			res.Failed = append(res.Failed, f)
			continue
		}
		batches = append(batches, IssueBatch{Instance: inst, Raw: o.value})
	}

	if res.Sources > 0 && len(res.Failed) == res.Sources {
		return res, fmt.Errorf("%w: view %s: %d of %d instances", domain.ErrAllSourcesFailed, view.Name, len(res.Failed), res.Sources)
	}

	records, skipped := MergeIssues(batches)
	for _, err := range skipped {
		s.log.Warn("skipping malformed issue", zap.String("view", view.Name), zap.Error(err))
	}

	for _, rec := range records {
		if view.keep(rec) {
			res.Issues = append(res.Issues, rec)
		}
	}
	SortIssues(res.Issues, view.Order)

	return res, nil
}
