package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"thoth/internal/task"
)

// ExecuteParallel starts every task concurrently, still bounded by the
// shared concurrency gate, and returns results in input order regardless of
// completion order.
//
// With returnExceptions, each task's error is captured as a failure result
// in its slot and siblings run to completion. Without it, the first error
// cancels the remaining tasks and propagates.
func (o *Orchestrator) ExecuteParallel(ctx context.Context, tasks []*task.Task, returnExceptions bool) ([]*task.Result, error) {
	results := make([]*task.Result, len(tasks))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, t := range tasks {
		group.Go(func() error {
			result, err := o.ExecuteTask(groupCtx, t)
			if err != nil {
				if !returnExceptions {
					return err
				}
				results[i] = task.NewFailure(t.ID, err.Error(), 0)
				return nil
			}
			results[i] = result
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
