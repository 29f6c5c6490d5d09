package application

import (
	"context"
	"sort"
	"time"

	"github.com/davarch/devboard/internal/domain"
	"go.uber.org/zap"
)

type DashboardProvider interface {
	Dashboard(ctx context.Context) (domain.PipelineDashboard, error)
}

type headState struct {
	uuid   string
	result domain.RunResult
}

// WatchUseCase recomputes the dashboard and reports when the newest run of a
// repository/category changes. The first observation of a group only records a baseline.
// Notification and snapshot failures are logged and never abort a poll; a failed snapshot
// is retried on the next poll.
type WatchUseCase struct {
	log  *zap.Logger
	dash DashboardProvider
	note domain.Notifier
	snap domain.SnapshotWriter

	last  map[string]headState
	stale bool
}

func NewWatchUseCase(log *zap.Logger, dash DashboardProvider, note domain.Notifier, snap domain.SnapshotWriter) *WatchUseCase {
	return &WatchUseCase{
		log:  log,
		dash: dash, note: note, snap: snap,
		last: make(map[string]headState),
	}
}

func (uc *WatchUseCase) PollOnce(ctx context.Context) error {
	d, err := uc.dash.Dashboard(ctx)
	if err != nil {
		return err
	}

	var (
		entries []domain.SnapshotEntry
		changed bool
	)

	for _, repo := range d.Order {
		cats := d.Repositories[repo]
		names := make([]string, 0, len(cats))
		for name := range cats {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, cat := range names {
			runs := cats[cat].Runs
			if len(runs) == 0 {
				continue
			}
			head := runs[0]
			entries = append(entries, domain.SnapshotEntry{
				Repository: repo,
				Category:   cat,
				Ref:        head.Ref,
				Result:     head.Result,
				Commit:     head.CommitHash,
				URL:        head.PipelineLink,
			})

			key := repo + "\x00" + cat
			cur := headState{uuid: head.UUID, result: head.Result}
			prev, seen := uc.last[key]
			if seen && prev == cur {
				continue
			}
			changed = true
			uc.last[key] = cur

			if seen {
				body := repo + " " + cat + " (" + head.Ref + ")"
				if err := uc.note.Notify(ctx, titleFor(head.Result), body, head.PipelineLink); err != nil {
					uc.log.Warn("notify failed", zap.String("repository", repo), zap.String("category", cat), zap.Error(err))
				}
			}
		}
	}

	if changed || uc.stale {
		err := uc.snap.Write(ctx, domain.Snapshot{Entries: entries, Retrieved: time.Now().Unix()})
		if err != nil {
			uc.log.Warn("snapshot write failed", zap.Error(err))
		}
		uc.stale = err != nil
	}

	return nil
}

func titleFor(r domain.RunResult) string {
	switch {
	case r.IsSuccess():
		return "✅ CI: success"
	case r == domain.ResultInProgress || r == domain.ResultPending:
		return "▶️ CI: running"
	case r == domain.ResultStopped || r == domain.ResultCancelled:
		return "⛔ CI: stopped"
	case r == domain.ResultFailed || r == domain.ResultError || r == domain.ResultFailedWithErrors:
		return "❌ CI: failed"
	default:
		return "ℹ️ CI: " + string(r)
	}
}
