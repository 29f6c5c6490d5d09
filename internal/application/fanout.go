package application

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

type outcome[T any] struct {
	value T
	err   error
}

// settle runs every task concurrently, at most limit at a time, each under its own timeout,
// and collects every result. A failing task never cancels its siblings.
func settle[T any](ctx context.Context, limit int, timeout time.Duration, tasks []func(context.Context) (T, error)) []outcome[T] {
	out := make([]outcome[T], len(tasks))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, task := range tasks {
		g.Go(func() error {
			tctx, cancel := ctx, context.CancelFunc(func() {})
			if timeout > 0 {
				tctx, cancel = context.WithTimeout(ctx, timeout)
			}
			defer cancel()

			v, err := task(tctx)
			out[i] = outcome[T]{value: v, err: err}
			return nil
		})
	}

	_ = g.Wait()
	return out
}
