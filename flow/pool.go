package flow

import (
	"context"

	"github.com/metrico/tierflow/utils/promise"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// forEach runs fn for every item with at most workers calls in flight. The
// first error cancels the rest. Results come back in the order of items.
func forEach[I, T any](ctx context.Context, workers int, items []I,
	fn func(ctx context.Context, item I) (T, error)) ([]T, error) {
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(workers))
	slots := make([]*promise.Promise[T], len(items))
	var acquireErr error
	for i, item := range items {
		if acquireErr = sem.Acquire(gctx, 1); acquireErr != nil {
			break
		}
		p := promise.New[T](i)
		slots[i] = p
		g.Go(func() error {
			defer sem.Release(1)
			res, err := fn(gctx, item)
			p.Done(res, err)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if acquireErr != nil {
		return nil, acquireErr
	}
	return promise.Collect(len(items), slots)
}
